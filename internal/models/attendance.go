package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// AttendanceType classifies a completed attendance.
type AttendanceType string

const (
	AttendanceOnTime      AttendanceType = "ON_TIME"
	AttendanceLate        AttendanceType = "LATE"
	AttendanceExceptional AttendanceType = "EXCEPTIONAL"
)

// Valid returns true when the type is a supported value.
func (t AttendanceType) Valid() bool {
	switch t {
	case AttendanceOnTime, AttendanceLate, AttendanceExceptional:
		return true
	default:
		return false
	}
}

// AttendanceStatus represents the state of an attendance record.
type AttendanceStatus string

const (
	AttendancePending     AttendanceStatus = "PENDING"
	AttendanceVerified    AttendanceStatus = "VERIFIED"
	AttendanceRejected    AttendanceStatus = "REJECTED"
	AttendanceUnderReview AttendanceStatus = "UNDER_REVIEW"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePending, AttendanceVerified, AttendanceRejected, AttendanceUnderReview:
		return true
	default:
		return false
	}
}

// ConflictStrategy selects how a sync collision is resolved.
type ConflictStrategy string

const (
	StrategyKeepLocal    ConflictStrategy = "KEEP_LOCAL"
	StrategyKeepServer   ConflictStrategy = "KEEP_SERVER"
	StrategyMerge        ConflictStrategy = "MERGE"
	StrategyManualReview ConflictStrategy = "MANUAL_REVIEW"
)

// Valid returns true when the strategy is a supported value.
func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategyKeepLocal, StrategyKeepServer, StrategyMerge, StrategyManualReview:
		return true
	default:
		return false
	}
}

// JSONMap is a JSONB-backed map for structured diagnostic payloads.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		if s, sok := src.(string); sok {
			raw = []byte(s)
		} else {
			return fmt.Errorf("unsupported json map source type %T", src)
		}
	}
	return json.Unmarshal(raw, m)
}

// GeoFix is a raw GPS reading submitted by a scanning device.
type GeoFix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// SyncConflictEntry is the structured audit record written whenever a
// conflict resolution is applied, regardless of strategy.
type SyncConflictEntry struct {
	LocalRecord  OfflineAttendance `json:"local_record"`
	ServerRecord RecordSnapshot    `json:"server_record"`
	Resolution   ConflictStrategy  `json:"resolution"`
	ResolvedAt   time.Time         `json:"resolved_at"`
	ResolvedBy   string            `json:"resolved_by,omitempty"`
}

// ConflictLog is the JSONB list of resolutions applied to a record.
type ConflictLog []SyncConflictEntry

// Value implements driver.Valuer.
func (l ConflictLog) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ConflictLog) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		if s, sok := src.(string); sok {
			raw = []byte(s)
		} else {
			return fmt.Errorf("unsupported conflict log source type %T", src)
		}
	}
	return json.Unmarshal(raw, l)
}

// RecordSnapshot captures the server-side verification state at resolution
// time for the conflict audit trail.
type RecordSnapshot struct {
	LocationVerified      bool      `json:"location_verified"`
	QRVerified            bool      `json:"qr_verified"`
	FaceVerified          bool      `json:"face_verified"`
	VerificationCompleted bool      `json:"verification_completed"`
	CheckInTime           time.Time `json:"check_in_time"`
}

// OfflineAttendance is a locally recorded attendance uploaded after the
// device regains connectivity.
type OfflineAttendance struct {
	LocalID          string    `json:"local_id"`
	StudentID        string    `json:"student_id"`
	LectureID        string    `json:"lecture_id"`
	CheckInTime      time.Time `json:"check_in_time"`
	LocationVerified bool      `json:"location_verified"`
	QRVerified       bool      `json:"qr_verified"`
	FaceVerified     bool      `json:"face_verified"`
	Fix              *GeoFix   `json:"fix,omitempty"`
}

// AttendanceRecord is the single source of truth for one (student, lecture)
// pair. Created on first scan attempt, never deleted, only
// status-transitioned.
type AttendanceRecord struct {
	ID          string  `db:"id" json:"id"`
	StudentID   string  `db:"student_id" json:"student_id"`
	LectureID   string  `db:"lecture_id" json:"lecture_id"`
	QRSessionID *string `db:"qr_session_id" json:"qr_session_id,omitempty"`

	LocationVerified      bool `db:"location_verified" json:"location_verified"`
	QRVerified            bool `db:"qr_verified" json:"qr_verified"`
	FaceVerified          bool `db:"face_verified" json:"face_verified"`
	VerificationCompleted bool `db:"verification_completed" json:"verification_completed"`

	RecordedLatitude  *float64   `db:"recorded_latitude" json:"recorded_latitude,omitempty"`
	RecordedLongitude *float64   `db:"recorded_longitude" json:"recorded_longitude,omitempty"`
	RecordedAltitude  *float64   `db:"recorded_altitude" json:"recorded_altitude,omitempty"`
	GPSAccuracy       *float64   `db:"gps_accuracy" json:"gps_accuracy,omitempty"`
	LocationData      JSONMap    `db:"location_data" json:"location_data,omitempty"`
	LocationAt        *time.Time `db:"location_at" json:"location_at,omitempty"`

	QRData JSONMap    `db:"qr_data" json:"qr_data,omitempty"`
	QRAt   *time.Time `db:"qr_at" json:"qr_at,omitempty"`

	FaceScore *float64   `db:"face_score" json:"face_score,omitempty"`
	FaceData  JSONMap    `db:"face_data" json:"face_data,omitempty"`
	FaceAt    *time.Time `db:"face_at" json:"face_at,omitempty"`

	AttendanceType AttendanceType   `db:"attendance_type" json:"attendance_type"`
	Status         AttendanceStatus `db:"status" json:"status"`

	IsExceptional   bool       `db:"is_exceptional" json:"is_exceptional"`
	ExceptionReason *string    `db:"exception_reason" json:"exception_reason,omitempty"`
	ApprovedBy      *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`

	CheckInTime           time.Time  `db:"check_in_time" json:"check_in_time"`
	VerificationStartedAt time.Time  `db:"verification_started_at" json:"verification_started_at"`
	CompletedAt           *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	DeviceInfo JSONMap `db:"device_info" json:"-"`
	IPAddress  *string `db:"ip_address" json:"-"`
	UserAgent  *string `db:"user_agent" json:"-"`

	IsSynced      bool        `db:"is_synced" json:"is_synced"`
	LocalID       *string     `db:"local_id" json:"local_id,omitempty"`
	SyncConflicts ConflictLog `db:"sync_conflicts" json:"sync_conflicts,omitempty"`

	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Snapshot captures the fields the conflict audit trail needs.
func (r *AttendanceRecord) Snapshot() RecordSnapshot {
	return RecordSnapshot{
		LocationVerified:      r.LocationVerified,
		QRVerified:            r.QRVerified,
		FaceVerified:          r.FaceVerified,
		VerificationCompleted: r.VerificationCompleted,
		CheckInTime:           r.CheckInTime,
	}
}

// VerificationProgress returns percent of factors verified, 2 decimals.
func (r *AttendanceRecord) VerificationProgress() float64 {
	steps := 0
	if r.LocationVerified {
		steps++
	}
	if r.QRVerified {
		steps++
	}
	if r.FaceVerified {
		steps++
	}
	return math.Round(float64(steps)/3*10000) / 100
}

// FactorSummary describes one verification factor for API consumers.
type FactorSummary struct {
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Data       JSONMap    `json:"data,omitempty"`
}

// VerificationSummary aggregates the three factors and overall state.
type VerificationSummary struct {
	Location  FactorSummary    `json:"location"`
	QRCode    FactorSummary    `json:"qr_code"`
	Face      FactorSummary    `json:"face"`
	FaceScore *float64         `json:"face_score,omitempty"`
	Completed bool             `json:"completed"`
	Progress  float64          `json:"progress"`
	Status    AttendanceStatus `json:"status"`
	Type      AttendanceType   `json:"attendance_type"`
}

// Summary builds the verification summary for a record.
func (r *AttendanceRecord) Summary() VerificationSummary {
	return VerificationSummary{
		Location:  FactorSummary{Verified: r.LocationVerified, VerifiedAt: r.LocationAt, Data: r.LocationData},
		QRCode:    FactorSummary{Verified: r.QRVerified, VerifiedAt: r.QRAt, Data: r.QRData},
		Face:      FactorSummary{Verified: r.FaceVerified, VerifiedAt: r.FaceAt, Data: r.FaceData},
		FaceScore: r.FaceScore,
		Completed: r.VerificationCompleted,
		Progress:  r.VerificationProgress(),
		Status:    r.Status,
		Type:      r.AttendanceType,
	}
}

// SyncStatus summarises synchronisation state across records.
type SyncStatus struct {
	Total      int `db:"total" json:"total"`
	Synced     int `db:"synced" json:"synced"`
	Unsynced   int `db:"unsynced" json:"unsynced"`
	Conflicted int `db:"conflicted" json:"conflicted"`
}
