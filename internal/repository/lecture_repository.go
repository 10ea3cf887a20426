package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/uniattend/attendance-api/internal/models"
)

// LectureRepository handles persistence for lectures.
type LectureRepository struct {
	db *sqlx.DB
}

// NewLectureRepository constructs the repository.
func NewLectureRepository(db *sqlx.DB) *LectureRepository {
	return &LectureRepository{db: db}
}

const lectureColumns = `id, room_id, teacher_id, subject_code, section, scheduled_start, scheduled_end,
actual_start, actual_end, status, qr_enabled, qr_generation_allowed,
late_threshold_minutes, attendance_window_minutes, created_at, updated_at`

// FindByID returns a lecture by primary key.
func (r *LectureRepository) FindByID(ctx context.Context, id string) (*models.Lecture, error) {
	query := fmt.Sprintf("SELECT %s FROM lectures WHERE id = $1 LIMIT 1", lectureColumns)
	var lecture models.Lecture
	if err := r.db.GetContext(ctx, &lecture, query, id); err != nil {
		return nil, err
	}
	return &lecture, nil
}

// MarkStarted records the actual start and flips status to ACTIVE. The
// status guard lives in the service; the WHERE clause keeps the transition
// race-free.
func (r *LectureRepository) MarkStarted(ctx context.Context, id string, startedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lectures SET status = $1, actual_start = $2, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		models.LectureActive, startedAt, id, models.LectureScheduled)
	if err != nil {
		return fmt.Errorf("mark lecture started: %w", err)
	}
	return requireRowAffected(res, "lecture not in startable state")
}

// MarkEnded completes the lecture and disables further QR generation.
func (r *LectureRepository) MarkEnded(ctx context.Context, id string, endedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lectures SET status = $1, actual_end = $2, qr_generation_allowed = FALSE, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		models.LectureCompleted, endedAt, id, models.LectureActive)
	if err != nil {
		return fmt.Errorf("mark lecture ended: %w", err)
	}
	return requireRowAffected(res, "lecture not in endable state")
}

// MarkCancelled cancels a lecture that has not completed.
func (r *LectureRepository) MarkCancelled(ctx context.Context, id string, cancelledAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lectures SET status = $1, qr_generation_allowed = FALSE, updated_at = $2
		 WHERE id = $3 AND status IN ($4, $5)`,
		models.LectureCancelled, cancelledAt, id, models.LectureScheduled, models.LectureActive)
	if err != nil {
		return fmt.Errorf("mark lecture cancelled: %w", err)
	}
	return requireRowAffected(res, "lecture not in cancellable state")
}

// ErrNoTransition is returned when a guarded state transition matched no row.
type ErrNoTransition struct{ Reason string }

func (e *ErrNoTransition) Error() string { return e.Reason }

func requireRowAffected(res interface{ RowsAffected() (int64, error) }, reason string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNoTransition{Reason: reason}
	}
	return nil
}
