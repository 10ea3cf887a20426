package dto

import (
	"time"

	"github.com/uniattend/attendance-api/internal/models"
)

// ScanRequest is one verification scan from a student device.
type ScanRequest struct {
	SessionID        string         `json:"session_id" binding:"required"`
	EncryptedPayload string         `json:"encrypted_payload" binding:"required"`
	EncodedKey       string         `json:"encoded_key" binding:"required"`
	Latitude         float64        `json:"latitude" binding:"required"`
	Longitude        float64        `json:"longitude" binding:"required"`
	Altitude         *float64       `json:"altitude"`
	Accuracy         *float64       `json:"accuracy"`
	FaceScore        *float64       `json:"face_score"`
	DeviceInfo       models.JSONMap `json:"device_info"`
}

// FaceScoreRequest submits a face score as a standalone step.
type FaceScoreRequest struct {
	LectureID string  `json:"lecture_id" binding:"required"`
	Score     float64 `json:"score"`
}

// ScanResponse reports record state after a scan.
type ScanResponse struct {
	RecordID         string                     `json:"record_id"`
	Summary          models.VerificationSummary `json:"summary"`
	CheckInTime      time.Time                  `json:"check_in_time"`
	RemainingSeconds int                        `json:"session_remaining_seconds"`
}

// ExceptionalRequest is the manual approval path body.
type ExceptionalRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	LectureID string `json:"lecture_id" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// OfflineRecord is one locally stored attendance in a batch upload.
type OfflineRecord struct {
	LocalID          string         `json:"local_id" binding:"required"`
	StudentID        string         `json:"student_id" binding:"required"`
	LectureID        string         `json:"lecture_id" binding:"required"`
	CheckInTime      time.Time      `json:"check_in_time" binding:"required"`
	LocationVerified bool           `json:"location_verified"`
	QRVerified       bool           `json:"qr_verified"`
	FaceVerified     bool           `json:"face_verified"`
	Fix              *models.GeoFix `json:"fix"`
}

// BatchUploadRequest carries offline records plus the strategy applied to
// any collisions.
type BatchUploadRequest struct {
	Records  []OfflineRecord         `json:"records" binding:"required,min=1"`
	Strategy models.ConflictStrategy `json:"strategy"`
}

// ConflictResolution names one conflict and how to settle it.
type ConflictResolution struct {
	Local    OfflineRecord           `json:"local_record" binding:"required"`
	Strategy models.ConflictStrategy `json:"strategy" binding:"required"`
}

// ResolveConflictsRequest resolves a batch of conflicts.
type ResolveConflictsRequest struct {
	Resolutions []ConflictResolution `json:"resolutions" binding:"required,min=1"`
}

// ToOffline converts the wire record to the domain shape.
func (r OfflineRecord) ToOffline() models.OfflineAttendance {
	return models.OfflineAttendance{
		LocalID:          r.LocalID,
		StudentID:        r.StudentID,
		LectureID:        r.LectureID,
		CheckInTime:      r.CheckInTime,
		LocationVerified: r.LocationVerified,
		QRVerified:       r.QRVerified,
		FaceVerified:     r.FaceVerified,
		Fix:              r.Fix,
	}
}
