package dto

import (
	"time"

	"github.com/uniattend/attendance-api/internal/models"
)

// GenerateSessionRequest is the body for minting a QR session.
type GenerateSessionRequest struct {
	DurationMinutes    int      `json:"duration_minutes"`
	MaxUsageCount      int      `json:"max_usage_count"`
	AllowMultipleScans *bool    `json:"allow_multiple_scans"`
	IPAllowList        []string `json:"ip_allow_list"`
}

// ExtendSessionRequest pushes a session's expiry forward.
type ExtendSessionRequest struct {
	ExtraMinutes int `json:"extra_minutes" binding:"required,min=1"`
}

// RevokeSessionRequest optionally records why a session was revoked.
type RevokeSessionRequest struct {
	Notes *string `json:"notes"`
}

// SessionResponse is the issued-session payload. EncodedKey is present only
// when the server still holds the key (fresh issue, or reuse within the key
// cache TTL).
type SessionResponse struct {
	SessionID        string          `json:"session_id"`
	LectureID        string          `json:"lecture_id"`
	Status           models.QRStatus `json:"status"`
	EncryptedPayload string          `json:"encrypted_payload"`
	EncodedKey       string          `json:"encoded_key,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
	ExpiresAt        time.Time       `json:"expires_at"`
	MaxUsageCount    int             `json:"max_usage_count"`
	CurrentUsage     int             `json:"current_usage_count"`
	DisplayText      string          `json:"display_text"`
	Reused           bool            `json:"reused"`
}

// SessionStatusResponse is the polling view with countdown fields.
type SessionStatusResponse struct {
	SessionID        string          `json:"session_id"`
	LectureID        string          `json:"lecture_id"`
	Status           models.QRStatus `json:"status"`
	ExpiresAt        time.Time       `json:"expires_at"`
	RemainingSeconds int             `json:"remaining_seconds"`
	MaxUsageCount    int             `json:"max_usage_count"`
	CurrentUsage     int             `json:"current_usage_count"`
	UsagePercent     float64         `json:"usage_percent"`
	LastUsedAt       *time.Time      `json:"last_used_at,omitempty"`
}

// NewSessionResponse maps a generate result.
func NewSessionResponse(result *models.QRSession, encodedKey string, reused bool) SessionResponse {
	return SessionResponse{
		SessionID:        result.SessionID,
		LectureID:        result.LectureID,
		Status:           result.Status,
		EncryptedPayload: result.EncryptedPayload,
		EncodedKey:       encodedKey,
		GeneratedAt:      result.GeneratedAt,
		ExpiresAt:        result.ExpiresAt,
		MaxUsageCount:    result.MaxUsageCount,
		CurrentUsage:     result.CurrentUsageCount,
		DisplayText:      result.DisplayText,
		Reused:           reused,
	}
}

// NewSessionStatusResponse maps a status view.
func NewSessionStatusResponse(view *models.QRSessionView) SessionStatusResponse {
	return SessionStatusResponse{
		SessionID:        view.SessionID,
		LectureID:        view.LectureID,
		Status:           view.Status,
		ExpiresAt:        view.ExpiresAt,
		RemainingSeconds: view.RemainingSeconds,
		MaxUsageCount:    view.MaxUsageCount,
		CurrentUsage:     view.CurrentUsageCount,
		UsagePercent:     view.UsagePercent,
		LastUsedAt:       view.LastUsedAt,
	}
}
