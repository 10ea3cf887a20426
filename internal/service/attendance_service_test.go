package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
)

type mockRoomRepo struct {
	rooms map[string]*models.Room
}

func (m *mockRoomRepo) FindByID(ctx context.Context, id string) (*models.Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

type engineFixture struct {
	attendance *AttendanceService
	sessions   *QRSessionService
	records    *mockSyncRecordRepo
	clock      *fakeClock
	lecture    *models.Lecture
}

// newEngineFixture wires the full pipeline against in-memory repositories:
// an ACTIVE lecture in a 10x8 m room, sessions issued for real and scans
// running the complete three-factor chain.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clk := &fakeClock{now: start.Add(2 * time.Minute)}
	lecture := scheduledLecture(start)
	lecture.AttendanceWindowMinutes = 60

	lectures := &mockLectureRepo{lectures: map[string]*models.Lecture{lecture.ID: lecture}}
	rooms := &mockRoomRepo{rooms: map[string]*models.Room{"room-1": rectangleRoom(10, 8)}}
	sessionRepo := newMockSessionRepo()
	recordRepo := &mockSyncRecordRepo{mockRecordRepo: *newMockRecordRepo()}

	sessions := NewQRSessionService(sessionRepo, lectures, newMockCache(), clk, QRSessionConfig{
		DefaultDuration: 30 * time.Minute,
		MaxDuration:     3 * time.Hour,
		DefaultMaxUsage: 1000,
		AllowMultiple:   true,
	}, nil, nil, zap.NewNop())
	geofence := newTestGeofence(false)
	verification := NewVerificationService(recordRepo, geofence, clk, VerificationConfig{
		FaceScoreThreshold: 0.75,
		AltitudeTolerance:  2.0,
	}, nil, zap.NewNop())
	syncSvc := NewSyncConflictService(recordRepo, lectures, clk, nil, nil, zap.NewNop())
	attendance := NewAttendanceService(sessions, verification, syncSvc, lectures, rooms, nil, zap.NewNop())

	return &engineFixture{
		attendance: attendance,
		sessions:   sessions,
		records:    recordRepo,
		clock:      clk,
		lecture:    lecture,
	}
}

func (f *engineFixture) scanRequest(t *testing.T, studentID string, faceScore *float64) ScanRequest {
	t.Helper()
	result, err := f.sessions.Generate(context.Background(), f.lecture.ID, f.lecture.TeacherID, QRSessionOptions{})
	require.NoError(t, err)
	alt := 35.0
	return ScanRequest{
		StudentID:        studentID,
		SessionID:        result.Session.SessionID,
		EncryptedPayload: result.Session.EncryptedPayload,
		EncodedKey:       result.EncodedKey,
		Fix:              models.GeoFix{Latitude: testCenterLat, Longitude: testCenterLon, Altitude: &alt},
		FaceScore:        faceScore,
		ClientIP:         "10.1.2.3",
	}
}

func TestSubmitScan_FullPipelineCompletes(t *testing.T) {
	f := newEngineFixture(t)
	score := 0.88

	result, err := f.attendance.SubmitScan(context.Background(), f.scanRequest(t, "stu-1", &score))
	require.NoError(t, err)
	assert.True(t, result.Record.VerificationCompleted)
	assert.Equal(t, models.AttendanceVerified, result.Record.Status)
	assert.Equal(t, models.AttendanceOnTime, result.Record.AttendanceType)
	assert.Equal(t, 100.0, result.Summary.Progress)
	assert.Greater(t, result.RemainingSeconds, 0)
}

func TestSubmitScan_WithoutFaceLeavesPending(t *testing.T) {
	f := newEngineFixture(t)

	result, err := f.attendance.SubmitScan(context.Background(), f.scanRequest(t, "stu-1", nil))
	require.NoError(t, err)
	assert.False(t, result.Record.VerificationCompleted)
	assert.True(t, result.Record.QRVerified)
	assert.True(t, result.Record.LocationVerified)
	assert.False(t, result.Record.FaceVerified)

	// Face arrives later as a separate step and completes the record.
	summary, err := f.attendance.SubmitFaceScore(context.Background(), "stu-1", f.lecture.ID, 0.80)
	require.NoError(t, err)
	assert.True(t, summary.Completed)
}

func TestSubmitScan_GeofenceFailureKeepsQRProgress(t *testing.T) {
	f := newEngineFixture(t)
	req := f.scanRequest(t, "stu-1", nil)
	req.Fix.Longitude += 20.0 / (111320.0 * 0.8357)

	_, err := f.attendance.SubmitScan(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrGeofenceViolation)

	stored := f.records.records[recordKey("stu-1", f.lecture.ID)]
	require.NotNil(t, stored)
	assert.True(t, stored.QRVerified)
	assert.False(t, stored.LocationVerified)
}

func TestSubmitScan_AttendanceWindowClosed(t *testing.T) {
	f := newEngineFixture(t)
	req := f.scanRequest(t, "stu-1", nil)

	f.clock.advance(2 * time.Hour)

	_, err := f.attendance.SubmitScan(context.Background(), req)
	// The session expired before the window check even runs.
	assert.ErrorIs(t, err, appErrors.ErrSessionExpired)

	// A fresh session against a closed window hits the window guard.
	f.lecture.AttendanceWindowMinutes = 60
	result, err := f.sessions.Generate(context.Background(), f.lecture.ID, f.lecture.TeacherID, QRSessionOptions{})
	require.NoError(t, err)
	req.SessionID = result.Session.SessionID
	req.EncryptedPayload = result.Session.EncryptedPayload
	req.EncodedKey = result.EncodedKey
	_, err = f.attendance.SubmitScan(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrAttendanceWindowClosed)
}

func TestSubmitScan_DuplicateAfterCompletion(t *testing.T) {
	f := newEngineFixture(t)
	score := 0.9

	_, err := f.attendance.SubmitScan(context.Background(), f.scanRequest(t, "stu-1", &score))
	require.NoError(t, err)

	_, err = f.attendance.SubmitScan(context.Background(), f.scanRequest(t, "stu-1", &score))
	assert.ErrorIs(t, err, appErrors.ErrDuplicateAttendance)
}

func TestSubmitScan_TwoStudentsShareOneSession(t *testing.T) {
	f := newEngineFixture(t)
	score := 0.85
	first := f.scanRequest(t, "stu-1", &score)

	_, err := f.attendance.SubmitScan(context.Background(), first)
	require.NoError(t, err)

	second := first
	second.StudentID = "stu-2"
	result, err := f.attendance.SubmitScan(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, result.Record.VerificationCompleted)
}

func TestMarkExceptionalThroughFacade(t *testing.T) {
	f := newEngineFixture(t)

	record, err := f.attendance.MarkExceptional(context.Background(), ExceptionalRequest{
		StudentID: "stu-5",
		LectureID: f.lecture.ID,
		Reason:    "hospitalised",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceExceptional, record.AttendanceType)

	_, err = f.attendance.MarkExceptional(context.Background(), ExceptionalRequest{
		StudentID: "stu-5",
		LectureID: "lec-missing",
		Reason:    "x",
	}, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestBatchUploadAndSyncStatusThroughFacade(t *testing.T) {
	f := newEngineFixture(t)
	start := f.lecture.ScheduledStart

	outcomes, err := f.attendance.BatchUpload(context.Background(), []models.OfflineAttendance{{
		LocalID:          "dev-1",
		StudentID:        "stu-7",
		LectureID:        f.lecture.ID,
		CheckInTime:      start.Add(4 * time.Minute),
		LocationVerified: true,
		QRVerified:       true,
		FaceVerified:     true,
	}}, models.StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, "created", outcomes[0].Outcome)

	status, err := f.attendance.SyncStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.Total)
	assert.Equal(t, 1, status.Synced)
}
