package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uniattend/attendance-api/internal/models"
)

// QRSessionRepository handles persistence for QR sessions. All mutations of
// qr_sessions rows go through this type; the usage counter update is a
// single conditional statement so concurrent scans cannot overshoot the
// limit.
type QRSessionRepository struct {
	db *sqlx.DB
}

// NewQRSessionRepository constructs the repository.
func NewQRSessionRepository(db *sqlx.DB) *QRSessionRepository {
	return &QRSessionRepository{db: db}
}

const qrSessionColumns = `id, session_id, lecture_id, generated_by, encrypted_payload, key_hash,
generated_at, expires_at, last_used_at, status, max_usage_count, current_usage_count,
allow_multiple_scans, ip_allow_list, display_text, notes, created_at, updated_at`

// Create inserts a new session row.
func (r *QRSessionRepository) Create(ctx context.Context, s *models.QRSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO qr_sessions (id, session_id, lecture_id, generated_by, encrypted_payload, key_hash,
		 generated_at, expires_at, status, max_usage_count, current_usage_count, allow_multiple_scans,
		 ip_allow_list, display_text, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.SessionID, s.LectureID, s.GeneratedBy, s.EncryptedPayload, s.KeyHash,
		s.GeneratedAt, s.ExpiresAt, s.Status, s.MaxUsageCount, s.CurrentUsageCount, s.AllowMultipleScans,
		s.IPAllowList, s.DisplayText, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create qr session: %w", err)
	}
	return nil
}

// FindBySessionID returns a session by its public session identifier.
func (r *QRSessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.QRSession, error) {
	query := fmt.Sprintf("SELECT %s FROM qr_sessions WHERE session_id = $1 LIMIT 1", qrSessionColumns)
	var session models.QRSession
	if err := r.db.GetContext(ctx, &session, query, sessionID); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActiveByLecture returns the single ACTIVE session for a lecture, or
// sql.ErrNoRows.
func (r *QRSessionRepository) FindActiveByLecture(ctx context.Context, lectureID string) (*models.QRSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM qr_sessions
		WHERE lecture_id = $1 AND status = $2
		ORDER BY generated_at DESC LIMIT 1`, qrSessionColumns)
	var session models.QRSession
	if err := r.db.GetContext(ctx, &session, query, lectureID, models.QRActive); err != nil {
		return nil, err
	}
	return &session, nil
}

// ConsumeUsage atomically increments the usage counter of an ACTIVE,
// unexpired, non-exhausted session and flips it to USED when single-use or
// the limit is hit. Returns the post-increment row, or ErrUsageExhausted if
// the guarded update matched nothing (a concurrent scan won the race).
func (r *QRSessionRepository) ConsumeUsage(ctx context.Context, sessionID string, now time.Time) (*models.QRSession, error) {
	query := fmt.Sprintf(`UPDATE qr_sessions
		SET current_usage_count = current_usage_count + 1,
		    last_used_at = $2,
		    updated_at = $2,
		    status = CASE
		        WHEN NOT allow_multiple_scans OR current_usage_count + 1 >= max_usage_count THEN '%s'
		        ELSE status
		    END
		WHERE session_id = $1
		  AND status = $3
		  AND expires_at > $2
		  AND current_usage_count < max_usage_count
		RETURNING %s`, models.QRUsed, qrSessionColumns)

	var session models.QRSession
	if err := r.db.GetContext(ctx, &session, query, sessionID, now, models.QRActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUsageExhausted
		}
		return nil, fmt.Errorf("consume qr usage: %w", err)
	}
	return &session, nil
}

// ErrUsageExhausted signals the conditional consume matched no row.
var ErrUsageExhausted = errors.New("qr session no longer consumable")

// UpdateStatus applies an administrative transition (revoke, expire,
// disable). Idempotent: setting the same status again affects the row but
// changes nothing.
func (r *QRSessionRepository) UpdateStatus(ctx context.Context, sessionID string, status models.QRStatus, notes *string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE qr_sessions SET status = $1, notes = COALESCE($2, notes), updated_at = $3 WHERE session_id = $4`,
		status, notes, now, sessionID)
	if err != nil {
		return fmt.Errorf("update qr session status: %w", err)
	}
	return nil
}

// ExtendExpiry pushes the expiry forward while the session is still ACTIVE.
func (r *QRSessionRepository) ExtendExpiry(ctx context.Context, sessionID string, newExpiry, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE qr_sessions SET expires_at = $1, updated_at = $2 WHERE session_id = $3 AND status = $4`,
		newExpiry, now, sessionID, models.QRActive)
	if err != nil {
		return fmt.Errorf("extend qr session: %w", err)
	}
	return requireRowAffected(res, "session not active")
}

// ExpireOverdue marks all overdue ACTIVE sessions EXPIRED; bookkeeping only,
// validation always re-checks expires_at.
func (r *QRSessionRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE qr_sessions SET status = $1, updated_at = $2 WHERE status = $3 AND expires_at <= $2`,
		models.QRExpired, now, models.QRActive)
	if err != nil {
		return 0, fmt.Errorf("expire overdue qr sessions: %w", err)
	}
	return res.RowsAffected()
}
