package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uniattend/attendance-api/internal/models"
)

// AttendanceRepository handles persistence for attendance records. Rows are
// mutated only via the verification state machine and the conflict resolver.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, student_id, lecture_id, qr_session_id,
location_verified, qr_verified, face_verified, verification_completed,
recorded_latitude, recorded_longitude, recorded_altitude, gps_accuracy, location_data, location_at,
qr_data, qr_at, face_score, face_data, face_at,
attendance_type, status, is_exceptional, exception_reason, approved_by, approved_at,
check_in_time, verification_started_at, completed_at,
device_info, ip_address, user_agent, is_synced, local_id, sync_conflicts,
notes, created_at, updated_at`

// FindByStudentLecture returns the unique record for a (student, lecture)
// pair, or sql.ErrNoRows.
func (r *AttendanceRepository) FindByStudentLecture(ctx context.Context, studentID, lectureID string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records
		WHERE student_id = $1 AND lecture_id = $2 LIMIT 1`, attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, lectureID); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts a new attendance record. The unique (student_id,
// lecture_id) constraint backs the engine's duplicate check.
func (r *AttendanceRepository) Create(ctx context.Context, rec *models.AttendanceRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance_records (id, student_id, lecture_id,
		 location_verified, qr_verified, face_verified, verification_completed,
		 attendance_type, status, check_in_time, verification_started_at,
		 device_info, ip_address, user_agent, is_synced, local_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		rec.ID, rec.StudentID, rec.LectureID,
		rec.LocationVerified, rec.QRVerified, rec.FaceVerified, rec.VerificationCompleted,
		rec.AttendanceType, rec.Status, rec.CheckInTime, rec.VerificationStartedAt,
		rec.DeviceInfo, rec.IPAddress, rec.UserAgent, rec.IsSynced, rec.LocalID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create attendance record: %w", err)
	}
	return nil
}

// Save writes back the mutable verification state of a record.
func (r *AttendanceRepository) Save(ctx context.Context, rec *models.AttendanceRecord) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE attendance_records SET
		 qr_session_id = $1,
		 location_verified = $2, qr_verified = $3, face_verified = $4, verification_completed = $5,
		 recorded_latitude = $6, recorded_longitude = $7, recorded_altitude = $8, gps_accuracy = $9,
		 location_data = $10, location_at = $11,
		 qr_data = $12, qr_at = $13,
		 face_score = $14, face_data = $15, face_at = $16,
		 attendance_type = $17, status = $18,
		 is_exceptional = $19, exception_reason = $20, approved_by = $21, approved_at = $22,
		 check_in_time = $23, completed_at = $24,
		 is_synced = $25, local_id = $26, sync_conflicts = $27,
		 notes = $28, updated_at = $29
		 WHERE id = $30`,
		rec.QRSessionID,
		rec.LocationVerified, rec.QRVerified, rec.FaceVerified, rec.VerificationCompleted,
		rec.RecordedLatitude, rec.RecordedLongitude, rec.RecordedAltitude, rec.GPSAccuracy,
		rec.LocationData, rec.LocationAt,
		rec.QRData, rec.QRAt,
		rec.FaceScore, rec.FaceData, rec.FaceAt,
		rec.AttendanceType, rec.Status,
		rec.IsExceptional, rec.ExceptionReason, rec.ApprovedBy, rec.ApprovedAt,
		rec.CheckInTime, rec.CompletedAt,
		rec.IsSynced, rec.LocalID, rec.SyncConflicts,
		rec.Notes, rec.UpdatedAt,
		rec.ID)
	if err != nil {
		return fmt.Errorf("save attendance record: %w", err)
	}
	return nil
}

// SyncStatus aggregates sync bookkeeping across all records.
func (r *AttendanceRepository) SyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	var status models.SyncStatus
	err := r.db.GetContext(ctx, &status,
		`SELECT COUNT(*) AS total,
		        COUNT(*) FILTER (WHERE is_synced) AS synced,
		        COUNT(*) FILTER (WHERE NOT is_synced) AS unsynced,
		        COUNT(*) FILTER (WHERE sync_conflicts IS NOT NULL) AS conflicted
		 FROM attendance_records`)
	if err != nil {
		return nil, fmt.Errorf("attendance sync status: %w", err)
	}
	return &status, nil
}
