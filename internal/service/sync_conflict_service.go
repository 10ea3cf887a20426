package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	"github.com/uniattend/attendance-api/pkg/clock"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
)

type syncRecordRepository interface {
	FindByStudentLecture(ctx context.Context, studentID, lectureID string) (*models.AttendanceRecord, error)
	Create(ctx context.Context, rec *models.AttendanceRecord) error
	Save(ctx context.Context, rec *models.AttendanceRecord) error
	SyncStatus(ctx context.Context) (*models.SyncStatus, error)
}

type syncMetrics interface {
	ConflictResolved(strategy string)
}

// SyncConflictService reconciles offline-recorded attendance with the
// server copy. Every resolution, whichever way it goes, appends a
// structured entry to the record's conflict log.
type SyncConflictService struct {
	records   syncRecordRepository
	lectures  qrLectureRepository
	clock     clock.Clock
	metrics   syncMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSyncConflictService constructs the resolver.
func NewSyncConflictService(records syncRecordRepository, lectures qrLectureRepository, clk clock.Clock, metrics syncMetrics, validate *validator.Validate, logger *zap.Logger) *SyncConflictService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System()
	}
	return &SyncConflictService{
		records:   records,
		lectures:  lectures,
		clock:     clk,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// ResolveRequest names one conflict to resolve.
type ResolveRequest struct {
	Local      models.OfflineAttendance `json:"local_record" validate:"required"`
	Strategy   models.ConflictStrategy  `json:"strategy" validate:"required"`
	ResolvedBy string                   `json:"resolved_by"`
}

// Resolve applies a strategy to the collision between the server record for
// the local upload's (student, lecture) pair and the upload itself. The
// server record must exist; uploads without a server counterpart go through
// ProcessBatch instead.
func (s *SyncConflictService) Resolve(ctx context.Context, req ResolveRequest) (*models.AttendanceRecord, error) {
	if !req.Strategy.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown conflict strategy")
	}

	record, err := s.records.FindByStudentLecture(ctx, req.Local.StudentID, req.Local.LectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load attendance record")
	}

	now := s.clock.Now()
	entry := models.SyncConflictEntry{
		LocalRecord:  req.Local,
		ServerRecord: record.Snapshot(),
		Resolution:   req.Strategy,
		ResolvedAt:   now,
		ResolvedBy:   req.ResolvedBy,
	}

	switch req.Strategy {
	case models.StrategyKeepLocal:
		record.LocationVerified = req.Local.LocationVerified
		record.QRVerified = req.Local.QRVerified
		record.FaceVerified = req.Local.FaceVerified
		record.CheckInTime = req.Local.CheckInTime
		record.IsSynced = true
		s.reclassify(ctx, record, now)

	case models.StrategyKeepServer:
		record.IsSynced = true

	case models.StrategyMerge:
		// Factor flags only ever gain; the later check-in wins.
		record.LocationVerified = record.LocationVerified || req.Local.LocationVerified
		record.QRVerified = record.QRVerified || req.Local.QRVerified
		record.FaceVerified = record.FaceVerified || req.Local.FaceVerified
		if req.Local.CheckInTime.After(record.CheckInTime) {
			record.CheckInTime = req.Local.CheckInTime
		}
		record.IsSynced = true
		s.reclassify(ctx, record, now)

	case models.StrategyManualReview:
		record.Status = models.AttendanceUnderReview
		record.IsSynced = false
	}

	if req.Local.LocalID != "" {
		record.LocalID = &req.Local.LocalID
	}
	record.SyncConflicts = append(record.SyncConflicts, entry)
	record.UpdatedAt = now

	if err := s.records.Save(ctx, record); err != nil {
		return nil, appErrors.Infrastructure(err, "save attendance record")
	}
	s.logger.Info("sync conflict resolved",
		zap.String("student_id", req.Local.StudentID),
		zap.String("lecture_id", req.Local.LectureID),
		zap.String("strategy", string(req.Strategy)))
	if s.metrics != nil {
		s.metrics.ConflictResolved(string(req.Strategy))
	}
	return record, nil
}

// BatchOutcome reports what happened to one uploaded record.
type BatchOutcome struct {
	LocalID  string `json:"local_id"`
	Outcome  string `json:"outcome"` // created, already_synced, conflict_resolved, conflict_pending, error
	RecordID string `json:"record_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ProcessBatch ingests offline uploads. Uploads without a server record are
// created directly; collisions are resolved with the given default strategy.
func (s *SyncConflictService) ProcessBatch(ctx context.Context, uploads []models.OfflineAttendance, defaultStrategy models.ConflictStrategy) ([]BatchOutcome, error) {
	if !defaultStrategy.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown conflict strategy")
	}

	outcomes := make([]BatchOutcome, 0, len(uploads))
	for _, upload := range uploads {
		outcome := s.processUpload(ctx, upload, defaultStrategy)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *SyncConflictService) processUpload(ctx context.Context, upload models.OfflineAttendance, strategy models.ConflictStrategy) BatchOutcome {
	outcome := BatchOutcome{LocalID: upload.LocalID}

	record, err := s.records.FindByStudentLecture(ctx, upload.StudentID, upload.LectureID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			outcome.Outcome = "error"
			outcome.Error = "lookup failed"
			return outcome
		}
		created, createErr := s.createFromUpload(ctx, upload)
		if createErr != nil {
			outcome.Outcome = "error"
			outcome.Error = createErr.Error()
			return outcome
		}
		outcome.Outcome = "created"
		outcome.RecordID = created.ID
		return outcome
	}

	if !s.conflicts(record, upload) {
		if !record.IsSynced || record.LocalID == nil {
			record.IsSynced = true
			if upload.LocalID != "" {
				record.LocalID = &upload.LocalID
			}
			record.UpdatedAt = s.clock.Now()
			if err := s.records.Save(ctx, record); err != nil {
				outcome.Outcome = "error"
				outcome.Error = "save failed"
				return outcome
			}
		}
		outcome.Outcome = "already_synced"
		outcome.RecordID = record.ID
		return outcome
	}

	resolved, err := s.Resolve(ctx, ResolveRequest{Local: upload, Strategy: strategy})
	if err != nil {
		outcome.Outcome = "error"
		outcome.Error = err.Error()
		return outcome
	}
	outcome.RecordID = resolved.ID
	if strategy == models.StrategyManualReview {
		outcome.Outcome = "conflict_pending"
	} else {
		outcome.Outcome = "conflict_resolved"
	}
	return outcome
}

// Status reports sync bookkeeping across all records.
func (s *SyncConflictService) Status(ctx context.Context) (*models.SyncStatus, error) {
	status, err := s.records.SyncStatus(ctx)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "aggregate sync status")
	}
	return status, nil
}

// conflicts reports whether the upload disagrees with the server copy on
// any factor flag or the check-in time.
func (s *SyncConflictService) conflicts(record *models.AttendanceRecord, upload models.OfflineAttendance) bool {
	return record.LocationVerified != upload.LocationVerified ||
		record.QRVerified != upload.QRVerified ||
		record.FaceVerified != upload.FaceVerified ||
		!record.CheckInTime.Equal(upload.CheckInTime)
}

func (s *SyncConflictService) createFromUpload(ctx context.Context, upload models.OfflineAttendance) (*models.AttendanceRecord, error) {
	lecture, err := s.lectures.FindByID(ctx, upload.LectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load lecture")
	}

	now := s.clock.Now()
	record := &models.AttendanceRecord{
		ID:                    uuid.NewString(),
		StudentID:             upload.StudentID,
		LectureID:             upload.LectureID,
		LocationVerified:      upload.LocationVerified,
		QRVerified:            upload.QRVerified,
		FaceVerified:          upload.FaceVerified,
		AttendanceType:        ClassifyAttendance(lecture, upload.CheckInTime),
		Status:                models.AttendancePending,
		CheckInTime:           upload.CheckInTime,
		VerificationStartedAt: upload.CheckInTime,
		IsSynced:              true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if upload.LocalID != "" {
		record.LocalID = &upload.LocalID
	}
	if upload.Fix != nil {
		record.RecordedLatitude = &upload.Fix.Latitude
		record.RecordedLongitude = &upload.Fix.Longitude
		record.RecordedAltitude = upload.Fix.Altitude
		record.GPSAccuracy = upload.Fix.Accuracy
	}
	if record.LocationVerified && record.QRVerified && record.FaceVerified {
		record.VerificationCompleted = true
		record.CompletedAt = &now
		record.Status = models.AttendanceVerified
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, appErrors.Infrastructure(err, "create attendance record")
	}
	return record, nil
}

// reclassify recomputes completion and the lateness bucket after a
// resolution rewrote factor flags or the check-in time.
func (s *SyncConflictService) reclassify(ctx context.Context, record *models.AttendanceRecord, now time.Time) {
	complete := record.LocationVerified && record.QRVerified && record.FaceVerified
	if complete && !record.VerificationCompleted {
		record.VerificationCompleted = true
		record.CompletedAt = &now
		record.Status = models.AttendanceVerified
	}
	if !complete && record.VerificationCompleted {
		record.VerificationCompleted = false
		record.CompletedAt = nil
		record.Status = models.AttendancePending
	}
	if record.IsExceptional {
		return
	}
	lecture, err := s.lectures.FindByID(ctx, record.LectureID)
	if err != nil {
		s.logger.Warn("lecture lookup failed during reclassification",
			zap.String("lecture_id", record.LectureID), zap.Error(err))
		return
	}
	record.AttendanceType = ClassifyAttendance(lecture, record.CheckInTime)
}
