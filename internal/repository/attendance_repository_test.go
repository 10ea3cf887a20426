package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniattend/attendance-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

var attendanceRowColumns = []string{
	"id", "student_id", "lecture_id", "qr_session_id",
	"location_verified", "qr_verified", "face_verified", "verification_completed",
	"recorded_latitude", "recorded_longitude", "recorded_altitude", "gps_accuracy", "location_data", "location_at",
	"qr_data", "qr_at", "face_score", "face_data", "face_at",
	"attendance_type", "status", "is_exceptional", "exception_reason", "approved_by", "approved_at",
	"check_in_time", "verification_started_at", "completed_at",
	"device_info", "ip_address", "user_agent", "is_synced", "local_id", "sync_conflicts",
	"notes", "created_at", "updated_at",
}

func attendanceRow(id, studentID, lectureID string, now time.Time) []driver.Value {
	return []driver.Value{
		id, studentID, lectureID, nil,
		false, false, false, false,
		nil, nil, nil, nil, nil, nil,
		nil, nil, nil, nil, nil,
		models.AttendanceOnTime, models.AttendancePending, false, nil, nil, nil,
		now, now, nil,
		nil, nil, nil, true, nil, nil,
		nil, now, now,
	}
}

func TestAttendanceRepositoryFindByStudentLecture(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM attendance_records").
		WithArgs("student-1", "lecture-1").
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns).
			AddRow(attendanceRow("rec-1", "student-1", "lecture-1", now)...))

	record, err := repo.FindByStudentLecture(context.Background(), "student-1", "lecture-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)
	assert.Equal(t, models.AttendancePending, record.Status)
}

func TestAttendanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.AttendanceRecord{
		ID:                    "rec-1",
		StudentID:             "student-1",
		LectureID:             "lecture-1",
		AttendanceType:        models.AttendanceOnTime,
		Status:                models.AttendancePending,
		CheckInTime:           now,
		VerificationStartedAt: now,
		IsSynced:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	require.NoError(t, repo.Create(context.Background(), record))
}

func TestAttendanceRepositorySyncStatus(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"total", "synced", "unsynced", "conflicted"}).
			AddRow(10, 7, 3, 1))

	status, err := repo.SyncStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, status.Total)
	assert.Equal(t, 7, status.Synced)
	assert.Equal(t, 3, status.Unsynced)
	assert.Equal(t, 1, status.Conflicted)
}
