package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// QRStatus represents the lifecycle state of a QR session.
type QRStatus string

const (
	QRActive   QRStatus = "ACTIVE"
	QRUsed     QRStatus = "USED"
	QRExpired  QRStatus = "EXPIRED"
	QRDisabled QRStatus = "DISABLED"
	QRRevoked  QRStatus = "REVOKED"
)

// Valid returns true when the status is a supported value.
func (s QRStatus) Valid() bool {
	switch s {
	case QRActive, QRUsed, QRExpired, QRDisabled, QRRevoked:
		return true
	default:
		return false
	}
}

// StringList is a JSONB-backed list of strings (IP allow-list).
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		if s, sok := src.(string); sok {
			raw = []byte(s)
		} else {
			return fmt.Errorf("unsupported string list source type %T", src)
		}
	}
	return json.Unmarshal(raw, l)
}

// Contains reports membership.
func (l StringList) Contains(v string) bool {
	for _, item := range l {
		if item == v {
			return true
		}
	}
	return false
}

// QRSession is a time-boxed, usage-bounded encrypted token tied to one
// lecture. The symmetric key is never persisted, only its fingerprint.
type QRSession struct {
	ID                 string     `db:"id" json:"id"`
	SessionID          string     `db:"session_id" json:"session_id"`
	LectureID          string     `db:"lecture_id" json:"lecture_id"`
	GeneratedBy        string     `db:"generated_by" json:"generated_by"`
	EncryptedPayload   string     `db:"encrypted_payload" json:"-"`
	KeyHash            string     `db:"key_hash" json:"-"`
	GeneratedAt        time.Time  `db:"generated_at" json:"generated_at"`
	ExpiresAt          time.Time  `db:"expires_at" json:"expires_at"`
	LastUsedAt         *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	Status             QRStatus   `db:"status" json:"status"`
	MaxUsageCount      int        `db:"max_usage_count" json:"max_usage_count"`
	CurrentUsageCount  int        `db:"current_usage_count" json:"current_usage_count"`
	AllowMultipleScans bool       `db:"allow_multiple_scans" json:"allow_multiple_scans"`
	IPAllowList        StringList `db:"ip_allow_list" json:"-"`
	DisplayText        string     `db:"display_text" json:"display_text"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// IsValid reports whether the session can still be consumed at now.
func (s *QRSession) IsValid(now time.Time) bool {
	return s.Status == QRActive &&
		now.Before(s.ExpiresAt) &&
		s.CurrentUsageCount < s.MaxUsageCount
}

// RemainingSeconds returns whole seconds until expiry, never negative.
func (s *QRSession) RemainingSeconds(now time.Time) int {
	remaining := s.ExpiresAt.Sub(now).Seconds()
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// QRSessionView is a session enriched with the derived countdown fields
// clients poll for.
type QRSessionView struct {
	QRSession
	RemainingSeconds int     `json:"remaining_seconds"`
	UsagePercent     float64 `json:"usage_percent"`
}

// UsagePercent returns consumed usage as a percentage rounded to 2 places.
func (s *QRSession) UsagePercent() float64 {
	if s.MaxUsageCount <= 0 {
		return 0
	}
	pct := float64(s.CurrentUsageCount) / float64(s.MaxUsageCount) * 100
	return math.Round(pct*100) / 100
}
