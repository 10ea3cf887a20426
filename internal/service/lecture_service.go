package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	"github.com/uniattend/attendance-api/internal/repository"
	"github.com/uniattend/attendance-api/pkg/clock"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
)

type lectureStateRepository interface {
	FindByID(ctx context.Context, id string) (*models.Lecture, error)
	MarkStarted(ctx context.Context, id string, startedAt time.Time) error
	MarkEnded(ctx context.Context, id string, endedAt time.Time) error
	MarkCancelled(ctx context.Context, id string, cancelledAt time.Time) error
}

type lectureSessionRepository interface {
	FindActiveByLecture(ctx context.Context, lectureID string) (*models.QRSession, error)
	UpdateStatus(ctx context.Context, sessionID string, status models.QRStatus, notes *string, now time.Time) error
}

// LectureService applies the start/end/cancel transitions the engine needs.
// Scheduling itself lives elsewhere; this service only moves a lecture
// through its lifecycle and keeps QR issuance consistent with it.
type LectureService struct {
	lectures lectureStateRepository
	sessions lectureSessionRepository
	clock    clock.Clock
	logger   *zap.Logger
}

// NewLectureService constructs the lecture service.
func NewLectureService(lectures lectureStateRepository, sessions lectureSessionRepository, clk clock.Clock, logger *zap.Logger) *LectureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &LectureService{lectures: lectures, sessions: sessions, clock: clk, logger: logger}
}

// Start records the actual start of a SCHEDULED lecture. The actual start
// becomes the anchor for lateness classification.
func (s *LectureService) Start(ctx context.Context, lectureID string) (*models.Lecture, error) {
	now := s.clock.Now()
	if err := s.lectures.MarkStarted(ctx, lectureID, now); err != nil {
		return nil, s.transitionError(ctx, lectureID, err)
	}
	lecture, err := s.lectures.FindByID(ctx, lectureID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "reload lecture")
	}
	s.logger.Info("lecture started", zap.String("lecture_id", lectureID), zap.Time("actual_start", now))
	return lecture, nil
}

// End completes an ACTIVE lecture, stops further QR generation and revokes
// any session still open for it.
func (s *LectureService) End(ctx context.Context, lectureID string) (*models.Lecture, error) {
	now := s.clock.Now()
	if err := s.lectures.MarkEnded(ctx, lectureID, now); err != nil {
		return nil, s.transitionError(ctx, lectureID, err)
	}
	s.closeOpenSession(ctx, lectureID, now)

	lecture, err := s.lectures.FindByID(ctx, lectureID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "reload lecture")
	}
	s.logger.Info("lecture ended", zap.String("lecture_id", lectureID), zap.Time("actual_end", now))
	return lecture, nil
}

// Cancel withdraws a lecture that has not completed.
func (s *LectureService) Cancel(ctx context.Context, lectureID string) (*models.Lecture, error) {
	now := s.clock.Now()
	if err := s.lectures.MarkCancelled(ctx, lectureID, now); err != nil {
		return nil, s.transitionError(ctx, lectureID, err)
	}
	s.closeOpenSession(ctx, lectureID, now)

	lecture, err := s.lectures.FindByID(ctx, lectureID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "reload lecture")
	}
	s.logger.Info("lecture cancelled", zap.String("lecture_id", lectureID))
	return lecture, nil
}

// Get loads a lecture.
func (s *LectureService) Get(ctx context.Context, lectureID string) (*models.Lecture, error) {
	lecture, err := s.lectures.FindByID(ctx, lectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load lecture")
	}
	return lecture, nil
}

func (s *LectureService) closeOpenSession(ctx context.Context, lectureID string, now time.Time) {
	session, err := s.sessions.FindActiveByLecture(ctx, lectureID)
	if err != nil {
		return
	}
	reason := "lecture closed"
	if err := s.sessions.UpdateStatus(ctx, session.SessionID, models.QRRevoked, &reason, now); err != nil {
		s.logger.Warn("failed to revoke session for closed lecture",
			zap.String("session_id", session.SessionID), zap.Error(err))
	}
}

func (s *LectureService) transitionError(ctx context.Context, lectureID string, err error) error {
	var noTransition *repository.ErrNoTransition
	if errors.As(err, &noTransition) {
		// Distinguish missing lectures from bad states.
		if _, findErr := s.lectures.FindByID(ctx, lectureID); errors.Is(findErr, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Clone(appErrors.ErrLectureNotEligible, noTransition.Reason)
	}
	return appErrors.Infrastructure(err, "lecture transition")
}
