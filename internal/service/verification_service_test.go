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

type mockRecordRepo struct {
	records map[string]*models.AttendanceRecord
	saves   int
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[string]*models.AttendanceRecord)}
}

func recordKey(studentID, lectureID string) string { return studentID + "/" + lectureID }

func (m *mockRecordRepo) FindByStudentLecture(ctx context.Context, studentID, lectureID string) (*models.AttendanceRecord, error) {
	r, ok := m.records[recordKey(studentID, lectureID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

func (m *mockRecordRepo) Create(ctx context.Context, rec *models.AttendanceRecord) error {
	m.records[recordKey(rec.StudentID, rec.LectureID)] = rec
	return nil
}

func (m *mockRecordRepo) Save(ctx context.Context, rec *models.AttendanceRecord) error {
	m.saves++
	m.records[recordKey(rec.StudentID, rec.LectureID)] = rec
	return nil
}

func scheduledLecture(start time.Time) *models.Lecture {
	actual := start
	return &models.Lecture{
		ID:                   "lec-1",
		RoomID:               "room-1",
		TeacherID:            "teacher-1",
		SubjectCode:          "CS301",
		Section:              "A",
		ScheduledStart:       start,
		ScheduledEnd:         start.Add(90 * time.Minute),
		ActualStart:          &actual,
		Status:               models.LectureActive,
		QREnabled:            true,
		QRGenerationAllowed:  true,
		LateThresholdMinutes: 10,
	}
}

func newVerificationFixture(t *testing.T) (*VerificationService, *mockRecordRepo, *fakeClock, *models.Lecture, *models.Room) {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clk := &fakeClock{now: start.Add(2 * time.Minute)}
	repo := newMockRecordRepo()
	geofence := newTestGeofence(false)
	svc := NewVerificationService(repo, geofence, clk, VerificationConfig{
		FaceScoreThreshold: 0.75,
		AltitudeTolerance:  2.0,
	}, nil, zap.NewNop())
	return svc, repo, clk, scheduledLecture(start), rectangleRoom(10, 8)
}

func insideFix() models.GeoFix {
	alt := 35.0
	return models.GeoFix{Latitude: testCenterLat, Longitude: testCenterLon, Altitude: &alt}
}

func consumedSession() *models.QRSession {
	return &models.QRSession{
		ID:                "uuid-1",
		SessionID:         "QR_20260302_090000_abc",
		LectureID:         "lec-1",
		Status:            models.QRActive,
		CurrentUsageCount: 1,
		MaxUsageCount:     1000,
	}
}

func TestEnsureRecord_CreatesPendingOnFirstContact(t *testing.T) {
	svc, repo, clk, lecture, _ := newVerificationFixture(t)

	record, err := svc.EnsureRecord(context.Background(), "stu-1", "lec-1", lecture, RequestContext{IPAddress: "10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePending, record.Status)
	assert.Equal(t, clk.now, record.CheckInTime)
	assert.Equal(t, models.AttendanceOnTime, record.AttendanceType)
	assert.False(t, record.VerificationCompleted)
	require.NotNil(t, record.IPAddress)
	assert.Equal(t, "10.0.0.5", *record.IPAddress)
	assert.Len(t, repo.records, 1)

	again, err := svc.EnsureRecord(context.Background(), "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)
	assert.Len(t, repo.records, 1)
}

func TestVerification_FactorsInAnyOrder(t *testing.T) {
	svc, _, clk, lecture, room := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)

	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.91))
	assert.True(t, record.FaceVerified)
	assert.False(t, record.VerificationCompleted)

	require.NoError(t, svc.VerifyQR(ctx, record, lecture, consumedSession()))
	assert.True(t, record.QRVerified)
	assert.False(t, record.VerificationCompleted)

	require.NoError(t, svc.VerifyLocation(ctx, record, lecture, room, insideFix()))
	assert.True(t, record.LocationVerified)
	assert.True(t, record.VerificationCompleted)
	assert.Equal(t, models.AttendanceVerified, record.Status)
	require.NotNil(t, record.CompletedAt)
	assert.Equal(t, clk.now, *record.CompletedAt)
}

func TestVerification_CompletionIsIdempotent(t *testing.T) {
	svc, _, clk, lecture, room := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyLocation(ctx, record, lecture, room, insideFix()))
	require.NoError(t, svc.VerifyQR(ctx, record, lecture, consumedSession()))
	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.80))
	require.True(t, record.VerificationCompleted)
	completedAt := *record.CompletedAt

	clk.advance(5 * time.Minute)

	// Replays refresh audit fields but never move the completion.
	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.99))
	require.NoError(t, svc.VerifyQR(ctx, record, lecture, consumedSession()))
	require.NoError(t, svc.VerifyLocation(ctx, record, lecture, room, insideFix()))
	assert.Equal(t, completedAt, *record.CompletedAt)
}

func TestVerification_ReplaysRefreshAuditTimestamps(t *testing.T) {
	svc, _, clk, lecture, room := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyLocation(ctx, record, lecture, room, insideFix()))
	require.NoError(t, svc.VerifyQR(ctx, record, lecture, consumedSession()))
	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.80))
	require.True(t, record.VerificationCompleted)
	firstFaceAt := *record.FaceAt
	firstQRAt := *record.QRAt
	attendanceType := record.AttendanceType

	clk.advance(time.Minute)

	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.99))
	require.NoError(t, svc.VerifyQR(ctx, record, lecture, consumedSession()))
	assert.Equal(t, clk.now, *record.FaceAt)
	assert.NotEqual(t, firstFaceAt, *record.FaceAt)
	assert.Equal(t, clk.now, *record.QRAt)
	assert.NotEqual(t, firstQRAt, *record.QRAt)
	assert.Equal(t, 0.99, *record.FaceScore)
	assert.True(t, record.FaceVerified)
	assert.Equal(t, attendanceType, record.AttendanceType)
}

func TestVerifyFace_BelowThresholdStoresScore(t *testing.T) {
	svc, _, _, lecture, _ := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)

	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.74))
	assert.False(t, record.FaceVerified)
	require.NotNil(t, record.FaceScore)
	assert.Equal(t, 0.74, *record.FaceScore)
	assert.Equal(t, false, record.FaceData["passed"])

	// Threshold is inclusive.
	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.75))
	assert.True(t, record.FaceVerified)
}

func TestVerifyFace_RejectsOutOfRangeScore(t *testing.T) {
	svc, _, _, lecture, _ := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.VerifyFace(ctx, record, lecture, 1.2), appErrors.ErrInvalidFaceScore)
	assert.ErrorIs(t, svc.VerifyFace(ctx, record, lecture, -0.1), appErrors.ErrInvalidFaceScore)
	assert.Nil(t, record.FaceScore)
}

func TestVerifyLocation_OutsideGeofence(t *testing.T) {
	svc, repo, _, lecture, room := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)

	fix := insideFix()
	fix.Longitude += 20.0 / (111320.0 * 0.8357)
	err = svc.VerifyLocation(ctx, record, lecture, room, fix)
	assert.ErrorIs(t, err, appErrors.ErrGeofenceViolation)
	assert.False(t, record.LocationVerified)

	// The failed attempt still leaves a diagnostic on the stored record.
	stored := repo.records[recordKey("stu-1", "lec-1")]
	require.NotNil(t, stored.LocationData)
	assert.Equal(t, false, stored.LocationData["inside_polygon"])
}

func TestVerifyLocation_AltitudeMismatch(t *testing.T) {
	svc, _, _, lecture, room := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)

	alt := 50.0 // far above floor 34 + ceiling 3 + tolerance 2
	fix := models.GeoFix{Latitude: testCenterLat, Longitude: testCenterLon, Altitude: &alt}
	err = svc.VerifyLocation(ctx, record, lecture, room, fix)
	assert.ErrorIs(t, err, appErrors.ErrAltitudeMismatch)
	assert.False(t, record.LocationVerified)
}

func TestClassification_BoundaryAtLateThreshold(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	lecture := scheduledLecture(start)

	assert.Equal(t, models.AttendanceOnTime, ClassifyAttendance(lecture, start.Add(10*time.Minute)))
	assert.Equal(t, models.AttendanceLate, ClassifyAttendance(lecture, start.Add(10*time.Minute+time.Second)))
}

func TestClassification_FallsBackToScheduledStart(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	lecture := scheduledLecture(start)
	lecture.ActualStart = nil

	assert.Equal(t, models.AttendanceOnTime, ClassifyAttendance(lecture, start.Add(9*time.Minute)))

	// A delayed actual start moves the deadline with it.
	delayed := start.Add(15 * time.Minute)
	lecture.ActualStart = &delayed
	assert.Equal(t, models.AttendanceOnTime, ClassifyAttendance(lecture, start.Add(20*time.Minute)))
}

func TestLateCheckInClassifiedOnCompletion(t *testing.T) {
	svc, _, clk, lecture, room := newVerificationFixture(t)
	ctx := context.Background()
	clk.now = lecture.EffectiveStart().Add(25 * time.Minute)

	record, err := svc.EnsureRecord(ctx, "stu-2", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyLocation(ctx, record, lecture, room, insideFix()))
	require.NoError(t, svc.VerifyQR(ctx, record, lecture, consumedSession()))
	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.88))

	assert.True(t, record.VerificationCompleted)
	assert.Equal(t, models.AttendanceLate, record.AttendanceType)
}

func TestMarkExceptional(t *testing.T) {
	svc, _, clk, lecture, _ := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.MarkExceptional(ctx, "stu-3", "lec-1", lecture, "medical emergency", "admin-1")
	require.NoError(t, err)
	assert.True(t, record.IsExceptional)
	assert.Equal(t, models.AttendanceExceptional, record.AttendanceType)
	assert.Equal(t, models.AttendanceVerified, record.Status)
	assert.True(t, record.VerificationCompleted)
	require.NotNil(t, record.ApprovedAt)
	assert.Equal(t, clk.now, *record.ApprovedAt)
	require.NotNil(t, record.ExceptionReason)
	assert.Equal(t, "medical emergency", *record.ExceptionReason)
}

func TestMarkExceptional_RejectsCompletedRecord(t *testing.T) {
	svc, _, _, lecture, room := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyLocation(ctx, record, lecture, room, insideFix()))
	require.NoError(t, svc.VerifyQR(ctx, record, lecture, consumedSession()))
	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.9))

	_, err = svc.MarkExceptional(ctx, "stu-1", "lec-1", lecture, "reason", "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrDuplicateAttendance)
}

func TestReject(t *testing.T) {
	svc, _, _, lecture, _ := newVerificationFixture(t)
	ctx := context.Background()

	_, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)

	notes := "device spoofing suspected"
	record, err := svc.Reject(ctx, "stu-1", "lec-1", &notes)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceRejected, record.Status)

	_, err = svc.Reject(ctx, "stu-missing", "lec-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestProgress(t *testing.T) {
	svc, _, _, lecture, room := newVerificationFixture(t)
	ctx := context.Background()

	record, err := svc.EnsureRecord(ctx, "stu-1", "lec-1", lecture, RequestContext{})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyLocation(ctx, record, lecture, room, insideFix()))
	require.NoError(t, svc.VerifyFace(ctx, record, lecture, 0.8))

	summary, err := svc.Progress(ctx, "stu-1", "lec-1")
	require.NoError(t, err)
	assert.True(t, summary.Location.Verified)
	assert.False(t, summary.QRCode.Verified)
	assert.True(t, summary.Face.Verified)
	assert.False(t, summary.Completed)
	assert.InDelta(t, 66.67, summary.Progress, 0.001)
}
