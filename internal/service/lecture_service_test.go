package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniattend/attendance-api/internal/models"
	"github.com/uniattend/attendance-api/internal/repository"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
)

type mockLectureStateRepo struct {
	lectures map[string]*models.Lecture
}

func newMockLectureStateRepo(lectures ...*models.Lecture) *mockLectureStateRepo {
	repo := &mockLectureStateRepo{lectures: map[string]*models.Lecture{}}
	for _, l := range lectures {
		repo.lectures[l.ID] = l
	}
	return repo
}

func (m *mockLectureStateRepo) FindByID(ctx context.Context, id string) (*models.Lecture, error) {
	lecture, ok := m.lectures[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *lecture
	return &copied, nil
}

func (m *mockLectureStateRepo) MarkStarted(ctx context.Context, id string, startedAt time.Time) error {
	lecture, ok := m.lectures[id]
	if !ok || lecture.Status != models.LectureScheduled {
		return &repository.ErrNoTransition{Reason: "lecture not in startable state"}
	}
	lecture.Status = models.LectureActive
	lecture.ActualStart = &startedAt
	return nil
}

func (m *mockLectureStateRepo) MarkEnded(ctx context.Context, id string, endedAt time.Time) error {
	lecture, ok := m.lectures[id]
	if !ok || lecture.Status != models.LectureActive {
		return &repository.ErrNoTransition{Reason: "lecture not in endable state"}
	}
	lecture.Status = models.LectureCompleted
	lecture.ActualEnd = &endedAt
	lecture.QRGenerationAllowed = false
	return nil
}

func (m *mockLectureStateRepo) MarkCancelled(ctx context.Context, id string, cancelledAt time.Time) error {
	lecture, ok := m.lectures[id]
	if !ok || (lecture.Status != models.LectureScheduled && lecture.Status != models.LectureActive) {
		return &repository.ErrNoTransition{Reason: "lecture not in cancellable state"}
	}
	lecture.Status = models.LectureCancelled
	lecture.QRGenerationAllowed = false
	return nil
}

type mockLectureSessionRepo struct {
	active   *models.QRSession
	statuses map[string]models.QRStatus
}

func (m *mockLectureSessionRepo) FindActiveByLecture(ctx context.Context, lectureID string) (*models.QRSession, error) {
	if m.active == nil || m.active.LectureID != lectureID {
		return nil, sql.ErrNoRows
	}
	return m.active, nil
}

func (m *mockLectureSessionRepo) UpdateStatus(ctx context.Context, sessionID string, status models.QRStatus, notes *string, now time.Time) error {
	if m.statuses == nil {
		m.statuses = map[string]models.QRStatus{}
	}
	m.statuses[sessionID] = status
	return nil
}

func scheduledLectureFixture(id string) *models.Lecture {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	return &models.Lecture{
		ID:                  id,
		RoomID:              "room-1",
		Status:              models.LectureScheduled,
		ScheduledStart:      start,
		ScheduledEnd:        start.Add(90 * time.Minute),
		QREnabled:           true,
		QRGenerationAllowed: true,
	}
}

func TestLectureServiceStart(t *testing.T) {
	lectures := newMockLectureStateRepo(scheduledLectureFixture("lecture-1"))
	clk := &fakeClock{now: time.Date(2026, 3, 2, 8, 3, 0, 0, time.UTC)}
	svc := NewLectureService(lectures, &mockLectureSessionRepo{}, clk, nil)

	lecture, err := svc.Start(context.Background(), "lecture-1")
	require.NoError(t, err)
	assert.Equal(t, models.LectureActive, lecture.Status)
	require.NotNil(t, lecture.ActualStart)
	assert.Equal(t, clk.now, *lecture.ActualStart)
}

func TestLectureServiceStartTwiceRejected(t *testing.T) {
	lectures := newMockLectureStateRepo(scheduledLectureFixture("lecture-1"))
	svc := NewLectureService(lectures, &mockLectureSessionRepo{}, &fakeClock{now: time.Now()}, nil)

	_, err := svc.Start(context.Background(), "lecture-1")
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), "lecture-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrLectureNotEligible))
}

func TestLectureServiceStartMissing(t *testing.T) {
	svc := NewLectureService(newMockLectureStateRepo(), &mockLectureSessionRepo{}, &fakeClock{now: time.Now()}, nil)

	_, err := svc.Start(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestLectureServiceEndRevokesOpenSession(t *testing.T) {
	lecture := scheduledLectureFixture("lecture-1")
	lecture.Status = models.LectureActive
	lectures := newMockLectureStateRepo(lecture)
	sessions := &mockLectureSessionRepo{active: &models.QRSession{
		SessionID: "sess-1",
		LectureID: "lecture-1",
		Status:    models.QRActive,
	}}
	svc := NewLectureService(lectures, sessions, &fakeClock{now: time.Now()}, nil)

	ended, err := svc.End(context.Background(), "lecture-1")
	require.NoError(t, err)
	assert.Equal(t, models.LectureCompleted, ended.Status)
	assert.False(t, ended.QRGenerationAllowed)
	assert.Equal(t, models.QRRevoked, sessions.statuses["sess-1"])
}

func TestLectureServiceCancelFromScheduled(t *testing.T) {
	lectures := newMockLectureStateRepo(scheduledLectureFixture("lecture-1"))
	svc := NewLectureService(lectures, &mockLectureSessionRepo{}, &fakeClock{now: time.Now()}, nil)

	cancelled, err := svc.Cancel(context.Background(), "lecture-1")
	require.NoError(t, err)
	assert.Equal(t, models.LectureCancelled, cancelled.Status)
}

func TestLectureServiceCancelCompletedRejected(t *testing.T) {
	lecture := scheduledLectureFixture("lecture-1")
	lecture.Status = models.LectureCompleted
	svc := NewLectureService(newMockLectureStateRepo(lecture), &mockLectureSessionRepo{}, &fakeClock{now: time.Now()}, nil)

	_, err := svc.Cancel(context.Background(), "lecture-1")
	assert.True(t, errors.Is(err, appErrors.ErrLectureNotEligible))
}
