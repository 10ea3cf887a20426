package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	"github.com/uniattend/attendance-api/pkg/clock"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
)

type verificationRecordRepository interface {
	FindByStudentLecture(ctx context.Context, studentID, lectureID string) (*models.AttendanceRecord, error)
	Create(ctx context.Context, rec *models.AttendanceRecord) error
	Save(ctx context.Context, rec *models.AttendanceRecord) error
}

type verificationMetrics interface {
	FactorVerified(factor string)
	VerificationCompleted(attendanceType string)
}

// VerificationConfig carries the thresholds of the factor checks.
type VerificationConfig struct {
	FaceScoreThreshold float64
	AltitudeTolerance  float64
}

// VerificationService drives the three-factor state machine on an
// attendance record. Factors can pass in any order; completion is the
// conjunction of all three and happens exactly once.
type VerificationService struct {
	records  verificationRecordRepository
	geofence *GeofenceService
	clock    clock.Clock
	config   VerificationConfig
	metrics  verificationMetrics
	logger   *zap.Logger
}

// NewVerificationService constructs the verification service.
func NewVerificationService(records verificationRecordRepository, geofence *GeofenceService, clk clock.Clock, config VerificationConfig, metrics verificationMetrics, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	if config.FaceScoreThreshold <= 0 {
		config.FaceScoreThreshold = 0.75
	}
	if config.AltitudeTolerance <= 0 {
		config.AltitudeTolerance = defaultAltitudeTolerance
	}
	return &VerificationService{
		records:  records,
		geofence: geofence,
		clock:    clk,
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}
}

// RequestContext carries the device fields captured with a scan.
type RequestContext struct {
	DeviceInfo models.JSONMap
	IPAddress  string
	UserAgent  string
}

// EnsureRecord returns the record for a (student, lecture) pair, creating
// the PENDING row on first contact. The check-in time is fixed at creation
// and classification later reads it, so retries never shift the bucket.
func (s *VerificationService) EnsureRecord(ctx context.Context, studentID, lectureID string, lecture *models.Lecture, reqCtx RequestContext) (*models.AttendanceRecord, error) {
	record, err := s.records.FindByStudentLecture(ctx, studentID, lectureID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Infrastructure(err, "load attendance record")
	}

	now := s.clock.Now()
	record = &models.AttendanceRecord{
		ID:                    uuid.NewString(),
		StudentID:             studentID,
		LectureID:             lectureID,
		AttendanceType:        ClassifyAttendance(lecture, now),
		Status:                models.AttendancePending,
		CheckInTime:           now,
		VerificationStartedAt: now,
		DeviceInfo:            reqCtx.DeviceInfo,
		IsSynced:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if reqCtx.IPAddress != "" {
		record.IPAddress = &reqCtx.IPAddress
	}
	if reqCtx.UserAgent != "" {
		record.UserAgent = &reqCtx.UserAgent
	}
	if err := s.records.Create(ctx, record); err != nil {
		// A concurrent first scan may have inserted the row already.
		if existing, findErr := s.records.FindByStudentLecture(ctx, studentID, lectureID); findErr == nil {
			return existing, nil
		}
		return nil, appErrors.Infrastructure(err, "create attendance record")
	}
	return record, nil
}

// VerifyLocation checks the GPS fix against the lecture's room and records
// the outcome. Repeat calls refresh the audit fields; the verified flag
// never regresses.
func (s *VerificationService) VerifyLocation(ctx context.Context, record *models.AttendanceRecord, lecture *models.Lecture, room *models.Room, fix models.GeoFix) error {
	already := record.LocationVerified
	check := s.geofence.Evaluate(room, fix.Latitude, fix.Longitude, fix.Altitude, s.config.AltitudeTolerance)
	now := s.clock.Now()
	record.RecordedLatitude = &fix.Latitude
	record.RecordedLongitude = &fix.Longitude
	record.RecordedAltitude = fix.Altitude
	record.GPSAccuracy = fix.Accuracy
	record.LocationData = models.JSONMap{
		"inside_polygon":       check.InsidePolygon,
		"altitude_match":       check.AltitudeMatch,
		"distance_from_center": check.DistanceFromCenter,
		"degraded_mode":        check.DegradedMode,
		"room_id":              room.ID,
	}
	record.LocationAt = &now
	record.UpdatedAt = now

	if !check.InsidePolygon {
		if err := s.records.Save(ctx, record); err != nil {
			return appErrors.Infrastructure(err, "save attendance record")
		}
		return appErrors.ErrGeofenceViolation
	}
	if !check.AltitudeMatch {
		if err := s.records.Save(ctx, record); err != nil {
			return appErrors.Infrastructure(err, "save attendance record")
		}
		return appErrors.ErrAltitudeMismatch
	}

	record.LocationVerified = true
	s.completeIfVerified(record, lecture, now)
	if err := s.records.Save(ctx, record); err != nil {
		return appErrors.Infrastructure(err, "save attendance record")
	}
	if !already && s.metrics != nil {
		s.metrics.FactorVerified("location")
	}
	return nil
}

// VerifyQR records a successful QR validation against the record. The
// session has already been consumed by the caller. Repeat calls refresh the
// audit fields.
func (s *VerificationService) VerifyQR(ctx context.Context, record *models.AttendanceRecord, lecture *models.Lecture, session *models.QRSession) error {
	already := record.QRVerified
	now := s.clock.Now()
	record.QRVerified = true
	record.QRSessionID = &session.ID
	record.QRData = models.JSONMap{
		"session_id":  session.SessionID,
		"lecture_id":  session.LectureID,
		"usage_count": session.CurrentUsageCount,
	}
	record.QRAt = &now
	record.UpdatedAt = now

	s.completeIfVerified(record, lecture, now)
	if err := s.records.Save(ctx, record); err != nil {
		return appErrors.Infrastructure(err, "save attendance record")
	}
	if !already && s.metrics != nil {
		s.metrics.FactorVerified("qr")
	}
	return nil
}

// VerifyFace applies the similarity threshold to a face match score in
// [0, 1]. The score and diagnostic are stored either way; only a score at
// or above the threshold marks the factor verified, and a verified factor
// never regresses.
func (s *VerificationService) VerifyFace(ctx context.Context, record *models.AttendanceRecord, lecture *models.Lecture, score float64) error {
	if score < 0 || score > 1 {
		return appErrors.ErrInvalidFaceScore
	}
	already := record.FaceVerified
	now := s.clock.Now()
	passed := score >= s.config.FaceScoreThreshold
	record.FaceScore = &score
	record.FaceData = models.JSONMap{
		"score":     score,
		"threshold": s.config.FaceScoreThreshold,
		"passed":    passed,
	}
	record.FaceAt = &now
	record.UpdatedAt = now

	if passed {
		record.FaceVerified = true
		s.completeIfVerified(record, lecture, now)
	}
	if err := s.records.Save(ctx, record); err != nil {
		return appErrors.Infrastructure(err, "save attendance record")
	}
	if passed && !already && s.metrics != nil {
		s.metrics.FactorVerified("face")
	}
	return nil
}

// MarkExceptional records attendance through the manual approval path,
// bypassing the three factors.
func (s *VerificationService) MarkExceptional(ctx context.Context, studentID, lectureID string, lecture *models.Lecture, reason, approvedBy string) (*models.AttendanceRecord, error) {
	record, err := s.EnsureRecord(ctx, studentID, lectureID, lecture, RequestContext{})
	if err != nil {
		return nil, err
	}
	if record.VerificationCompleted && !record.IsExceptional {
		return nil, appErrors.ErrDuplicateAttendance
	}

	now := s.clock.Now()
	record.IsExceptional = true
	record.ExceptionReason = &reason
	record.ApprovedBy = &approvedBy
	record.ApprovedAt = &now
	record.AttendanceType = models.AttendanceExceptional
	record.Status = models.AttendanceVerified
	if !record.VerificationCompleted {
		record.VerificationCompleted = true
		record.CompletedAt = &now
	}
	record.UpdatedAt = now

	if err := s.records.Save(ctx, record); err != nil {
		return nil, appErrors.Infrastructure(err, "save attendance record")
	}
	s.logger.Info("exceptional attendance approved",
		zap.String("student_id", studentID),
		zap.String("lecture_id", lectureID),
		zap.String("approved_by", approvedBy))
	if s.metrics != nil {
		s.metrics.VerificationCompleted(string(models.AttendanceExceptional))
	}
	return record, nil
}

// Reject moves a record to REJECTED, e.g. after manual review of a
// suspicious scan.
func (s *VerificationService) Reject(ctx context.Context, studentID, lectureID string, notes *string) (*models.AttendanceRecord, error) {
	record, err := s.records.FindByStudentLecture(ctx, studentID, lectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load attendance record")
	}
	record.Status = models.AttendanceRejected
	if notes != nil {
		record.Notes = notes
	}
	record.UpdatedAt = s.clock.Now()
	if err := s.records.Save(ctx, record); err != nil {
		return nil, appErrors.Infrastructure(err, "save attendance record")
	}
	return record, nil
}

// Progress loads the verification summary for a pair.
func (s *VerificationService) Progress(ctx context.Context, studentID, lectureID string) (*models.VerificationSummary, error) {
	record, err := s.records.FindByStudentLecture(ctx, studentID, lectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load attendance record")
	}
	summary := record.Summary()
	return &summary, nil
}

// completeIfVerified flips the record to VERIFIED once all three factors
// hold. The transition fires at most once; later calls leave the completion
// timestamp and classification alone.
func (s *VerificationService) completeIfVerified(record *models.AttendanceRecord, lecture *models.Lecture, now time.Time) {
	if record.VerificationCompleted {
		return
	}
	if !record.LocationVerified || !record.QRVerified || !record.FaceVerified {
		return
	}
	record.VerificationCompleted = true
	record.CompletedAt = &now
	record.Status = models.AttendanceVerified
	if !record.IsExceptional {
		record.AttendanceType = ClassifyAttendance(lecture, record.CheckInTime)
	}
	s.logger.Info("verification completed",
		zap.String("student_id", record.StudentID),
		zap.String("lecture_id", record.LectureID),
		zap.String("attendance_type", string(record.AttendanceType)))
	if s.metrics != nil {
		s.metrics.VerificationCompleted(string(record.AttendanceType))
	}
}
