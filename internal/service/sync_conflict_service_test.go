package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
)

type mockSyncRecordRepo struct {
	mockRecordRepo
}

func (m *mockSyncRecordRepo) SyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	status := &models.SyncStatus{}
	for _, r := range m.records {
		status.Total++
		if r.IsSynced {
			status.Synced++
		} else {
			status.Unsynced++
		}
		if len(r.SyncConflicts) > 0 {
			status.Conflicted++
		}
	}
	return status, nil
}

func newSyncFixture(t *testing.T) (*SyncConflictService, *mockSyncRecordRepo, *fakeClock) {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clk := &fakeClock{now: start.Add(2 * time.Hour)}
	repo := &mockSyncRecordRepo{mockRecordRepo: *newMockRecordRepo()}
	lectures := &mockLectureRepo{lectures: map[string]*models.Lecture{
		"lec-1": scheduledLecture(start),
	}}
	svc := NewSyncConflictService(repo, lectures, clk, nil, nil, zap.NewNop())
	return svc, repo, clk
}

func serverRecord(checkIn time.Time) *models.AttendanceRecord {
	return &models.AttendanceRecord{
		ID:               "rec-1",
		StudentID:        "stu-1",
		LectureID:        "lec-1",
		LocationVerified: true,
		QRVerified:       true,
		FaceVerified:     false,
		AttendanceType:   models.AttendanceOnTime,
		Status:           models.AttendancePending,
		CheckInTime:      checkIn,
	}
}

func localUpload(checkIn time.Time) models.OfflineAttendance {
	return models.OfflineAttendance{
		LocalID:          "dev-42",
		StudentID:        "stu-1",
		LectureID:        "lec-1",
		CheckInTime:      checkIn,
		LocationVerified: true,
		QRVerified:       false,
		FaceVerified:     true,
	}
}

func TestResolve_KeepLocal(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := serverRecord(start.Add(5 * time.Minute))
	repo.records[recordKey("stu-1", "lec-1")] = server
	local := localUpload(start.Add(20 * time.Minute))

	resolved, err := svc.Resolve(context.Background(), ResolveRequest{Local: local, Strategy: models.StrategyKeepLocal, ResolvedBy: "admin-1"})
	require.NoError(t, err)
	assert.True(t, resolved.LocationVerified)
	assert.False(t, resolved.QRVerified)
	assert.True(t, resolved.FaceVerified)
	assert.Equal(t, local.CheckInTime, resolved.CheckInTime)
	assert.True(t, resolved.IsSynced)
	// Local check-in at start+20m is past the 10 minute threshold.
	assert.Equal(t, models.AttendanceLate, resolved.AttendanceType)

	require.Len(t, resolved.SyncConflicts, 1)
	entry := resolved.SyncConflicts[0]
	assert.Equal(t, models.StrategyKeepLocal, entry.Resolution)
	assert.Equal(t, "admin-1", entry.ResolvedBy)
	assert.True(t, entry.ServerRecord.QRVerified) // pre-resolution snapshot
}

func TestResolve_KeepServer(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := serverRecord(start.Add(5 * time.Minute))
	repo.records[recordKey("stu-1", "lec-1")] = server

	resolved, err := svc.Resolve(context.Background(), ResolveRequest{Local: localUpload(start.Add(20 * time.Minute)), Strategy: models.StrategyKeepServer})
	require.NoError(t, err)
	assert.True(t, resolved.QRVerified)
	assert.False(t, resolved.FaceVerified)
	assert.Equal(t, start.Add(5*time.Minute), resolved.CheckInTime)
	assert.True(t, resolved.IsSynced)
	require.Len(t, resolved.SyncConflicts, 1)
}

func TestResolve_MergeUnionsFlagsAndKeepsLatestCheckIn(t *testing.T) {
	svc, repo, clk := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := serverRecord(start.Add(5 * time.Minute))
	repo.records[recordKey("stu-1", "lec-1")] = server
	local := localUpload(start.Add(20 * time.Minute))

	resolved, err := svc.Resolve(context.Background(), ResolveRequest{Local: local, Strategy: models.StrategyMerge})
	require.NoError(t, err)
	assert.True(t, resolved.LocationVerified)
	assert.True(t, resolved.QRVerified)
	assert.True(t, resolved.FaceVerified)
	assert.Equal(t, local.CheckInTime, resolved.CheckInTime)

	// Union completed all three factors.
	assert.True(t, resolved.VerificationCompleted)
	assert.Equal(t, models.AttendanceVerified, resolved.Status)
	require.NotNil(t, resolved.CompletedAt)
	assert.Equal(t, clk.now, *resolved.CompletedAt)
	// The later check-in is past the 10 minute threshold.
	assert.Equal(t, models.AttendanceLate, resolved.AttendanceType)
}

func TestResolve_MergeKeepsServerCheckInWhenLater(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := serverRecord(start.Add(20 * time.Minute))
	repo.records[recordKey("stu-1", "lec-1")] = server

	resolved, err := svc.Resolve(context.Background(), ResolveRequest{Local: localUpload(start.Add(5 * time.Minute)), Strategy: models.StrategyMerge})
	require.NoError(t, err)
	assert.Equal(t, start.Add(20*time.Minute), resolved.CheckInTime)
	assert.Equal(t, models.AttendanceLate, resolved.AttendanceType)
}

func TestResolve_MergeIsMonotonic(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := serverRecord(start.Add(5 * time.Minute))
	repo.records[recordKey("stu-1", "lec-1")] = server

	// Upload with every factor false must not unset the server's flags.
	local := models.OfflineAttendance{
		LocalID:     "dev-42",
		StudentID:   "stu-1",
		LectureID:   "lec-1",
		CheckInTime: start.Add(5 * time.Minute),
	}
	resolved, err := svc.Resolve(context.Background(), ResolveRequest{Local: local, Strategy: models.StrategyMerge})
	require.NoError(t, err)
	assert.True(t, resolved.LocationVerified)
	assert.True(t, resolved.QRVerified)
	assert.False(t, resolved.FaceVerified)
}

func TestResolve_ManualReview(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := serverRecord(start.Add(5 * time.Minute))
	repo.records[recordKey("stu-1", "lec-1")] = server

	resolved, err := svc.Resolve(context.Background(), ResolveRequest{Local: localUpload(start.Add(20 * time.Minute)), Strategy: models.StrategyManualReview})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceUnderReview, resolved.Status)
	assert.False(t, resolved.IsSynced)
	// Server data untouched pending review.
	assert.True(t, resolved.QRVerified)
	assert.False(t, resolved.FaceVerified)
	require.Len(t, resolved.SyncConflicts, 1)
}

func TestResolve_UnknownStrategy(t *testing.T) {
	svc, _, _ := newSyncFixture(t)

	_, err := svc.Resolve(context.Background(), ResolveRequest{
		Local:    localUpload(time.Now()),
		Strategy: models.ConflictStrategy("COIN_FLIP"),
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestResolve_MissingServerRecord(t *testing.T) {
	svc, _, _ := newSyncFixture(t)

	_, err := svc.Resolve(context.Background(), ResolveRequest{
		Local:    localUpload(time.Now()),
		Strategy: models.StrategyMerge,
	})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestProcessBatch_CreatesMissingRecords(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	upload := models.OfflineAttendance{
		LocalID:          "dev-7",
		StudentID:        "stu-9",
		LectureID:        "lec-1",
		CheckInTime:      start.Add(3 * time.Minute),
		LocationVerified: true,
		QRVerified:       true,
		FaceVerified:     true,
	}
	outcomes, err := svc.ProcessBatch(context.Background(), []models.OfflineAttendance{upload}, models.StrategyMerge)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "created", outcomes[0].Outcome)

	created := repo.records[recordKey("stu-9", "lec-1")]
	require.NotNil(t, created)
	assert.True(t, created.IsSynced)
	assert.True(t, created.VerificationCompleted)
	assert.Equal(t, models.AttendanceOnTime, created.AttendanceType)
}

func TestProcessBatch_MatchingUploadAlreadySynced(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := serverRecord(start.Add(5 * time.Minute))
	repo.records[recordKey("stu-1", "lec-1")] = server

	upload := models.OfflineAttendance{
		LocalID:          "dev-42",
		StudentID:        "stu-1",
		LectureID:        "lec-1",
		CheckInTime:      server.CheckInTime,
		LocationVerified: true,
		QRVerified:       true,
		FaceVerified:     false,
	}
	outcomes, err := svc.ProcessBatch(context.Background(), []models.OfflineAttendance{upload}, models.StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, "already_synced", outcomes[0].Outcome)
	assert.Empty(t, server.SyncConflicts)
}

func TestProcessBatch_ResolvesCollisions(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	server := serverRecord(start.Add(5 * time.Minute))
	repo.records[recordKey("stu-1", "lec-1")] = server

	outcomes, err := svc.ProcessBatch(context.Background(), []models.OfflineAttendance{localUpload(start.Add(7 * time.Minute))}, models.StrategyMerge)
	require.NoError(t, err)
	assert.Equal(t, "conflict_resolved", outcomes[0].Outcome)
	assert.Len(t, server.SyncConflicts, 1)

	pending, err := svc.ProcessBatch(context.Background(), []models.OfflineAttendance{{
		LocalID:     "dev-43",
		StudentID:   "stu-1",
		LectureID:   "lec-1",
		CheckInTime: start.Add(30 * time.Minute),
	}}, models.StrategyManualReview)
	require.NoError(t, err)
	assert.Equal(t, "conflict_pending", pending[0].Outcome)
}

func TestSyncStatusAggregation(t *testing.T) {
	svc, repo, _ := newSyncFixture(t)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	synced := serverRecord(start)
	synced.IsSynced = true
	repo.records["a"] = synced

	unsynced := serverRecord(start)
	unsynced.IsSynced = false
	unsynced.SyncConflicts = models.ConflictLog{{Resolution: models.StrategyManualReview}}
	repo.records["b"] = unsynced

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 1, status.Synced)
	assert.Equal(t, 1, status.Unsynced)
	assert.Equal(t, 1, status.Conflicted)
}
