package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
)

type attendanceRoomRepository interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
}

// AttendanceService is the engine facade. A single scan request runs the
// whole pipeline: QR validation with usage accounting, geofence check, face
// threshold, and the completion transition, each factor persisting its own
// progress so a failure mid-chain loses nothing already verified.
type AttendanceService struct {
	sessions     *QRSessionService
	verification *VerificationService
	sync         *SyncConflictService
	lectures     qrLectureRepository
	rooms        attendanceRoomRepository
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAttendanceService constructs the facade.
func NewAttendanceService(sessions *QRSessionService, verification *VerificationService, syncSvc *SyncConflictService, lectures qrLectureRepository, rooms attendanceRoomRepository, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		sessions:     sessions,
		verification: verification,
		sync:         syncSvc,
		lectures:     lectures,
		rooms:        rooms,
		validator:    validate,
		logger:       logger,
	}
}

// ScanRequest is one student scan: the QR material plus the device's GPS
// fix and, when the client has already run face matching, the score.
type ScanRequest struct {
	StudentID        string         `json:"student_id" validate:"required"`
	SessionID        string         `json:"session_id" validate:"required"`
	EncryptedPayload string         `json:"encrypted_payload" validate:"required"`
	EncodedKey       string         `json:"encoded_key" validate:"required"`
	Fix              models.GeoFix  `json:"fix" validate:"required"`
	FaceScore        *float64       `json:"face_score,omitempty"`
	DeviceInfo       models.JSONMap `json:"device_info,omitempty"`
	ClientIP         string         `json:"-"`
	UserAgent        string         `json:"-"`
}

// ScanResult reports the record state after one scan attempt.
type ScanResult struct {
	Record           *models.AttendanceRecord   `json:"record"`
	Summary          models.VerificationSummary `json:"summary"`
	RemainingSeconds int                        `json:"session_remaining_seconds"`
}

// SubmitScan runs the verification pipeline for one scan. The QR session is
// consumed first; its payload names the lecture, which anchors the window,
// room and classification checks that follow.
func (s *AttendanceService) SubmitScan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if err := s.validator.Struct(&req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	session, payload, err := s.sessions.ValidateAndConsume(ctx, ScanInput{
		SessionID:        req.SessionID,
		EncryptedPayload: req.EncryptedPayload,
		EncodedKey:       req.EncodedKey,
		ClientIP:         req.ClientIP,
	})
	if err != nil {
		return nil, err
	}

	lecture, err := s.lectures.FindByID(ctx, payload.LectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load lecture")
	}
	now := s.verification.clock.Now()
	if !lecture.IsAttendanceOpen(now) {
		return nil, appErrors.ErrAttendanceWindowClosed
	}

	room, err := s.rooms.FindByID(ctx, lecture.RoomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load room")
	}

	record, err := s.verification.EnsureRecord(ctx, req.StudentID, lecture.ID, lecture, RequestContext{
		DeviceInfo: req.DeviceInfo,
		IPAddress:  req.ClientIP,
		UserAgent:  req.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	if record.VerificationCompleted {
		return nil, appErrors.ErrDuplicateAttendance
	}

	if err := s.verification.VerifyQR(ctx, record, lecture, session); err != nil {
		return nil, err
	}
	if err := s.verification.VerifyLocation(ctx, record, lecture, room, req.Fix); err != nil {
		return nil, err
	}
	if req.FaceScore != nil {
		if err := s.verification.VerifyFace(ctx, record, lecture, *req.FaceScore); err != nil {
			return nil, err
		}
	}

	s.logger.Info("scan processed",
		zap.String("student_id", req.StudentID),
		zap.String("lecture_id", lecture.ID),
		zap.String("session_id", session.SessionID),
		zap.Bool("completed", record.VerificationCompleted))

	return &ScanResult{
		Record:           record,
		Summary:          record.Summary(),
		RemainingSeconds: session.RemainingSeconds(now),
	}, nil
}

// SubmitFaceScore records a face match score outside a full scan, for
// clients that run face capture as a separate step.
func (s *AttendanceService) SubmitFaceScore(ctx context.Context, studentID, lectureID string, score float64) (*models.VerificationSummary, error) {
	lecture, err := s.lectures.FindByID(ctx, lectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load lecture")
	}
	record, err := s.verification.EnsureRecord(ctx, studentID, lectureID, lecture, RequestContext{})
	if err != nil {
		return nil, err
	}
	if err := s.verification.VerifyFace(ctx, record, lecture, score); err != nil {
		return nil, err
	}
	summary := record.Summary()
	return &summary, nil
}

// Progress reports a student's verification state for a lecture.
func (s *AttendanceService) Progress(ctx context.Context, studentID, lectureID string) (*models.VerificationSummary, error) {
	return s.verification.Progress(ctx, studentID, lectureID)
}

// ExceptionalRequest is the manual approval path input.
type ExceptionalRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	LectureID string `json:"lecture_id" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

// MarkExceptional records attendance through manual approval.
func (s *AttendanceService) MarkExceptional(ctx context.Context, req ExceptionalRequest, approvedBy string) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(&req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	lecture, err := s.lectures.FindByID(ctx, req.LectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Infrastructure(err, "load lecture")
	}
	return s.verification.MarkExceptional(ctx, req.StudentID, req.LectureID, lecture, req.Reason, approvedBy)
}

// ResolveConflicts applies resolutions to a batch of named conflicts.
func (s *AttendanceService) ResolveConflicts(ctx context.Context, reqs []ResolveRequest) ([]*models.AttendanceRecord, error) {
	resolved := make([]*models.AttendanceRecord, 0, len(reqs))
	for _, req := range reqs {
		record, err := s.sync.Resolve(ctx, req)
		if err != nil {
			return resolved, err
		}
		resolved = append(resolved, record)
	}
	return resolved, nil
}

// BatchUpload ingests offline-recorded attendance.
func (s *AttendanceService) BatchUpload(ctx context.Context, uploads []models.OfflineAttendance, strategy models.ConflictStrategy) ([]BatchOutcome, error) {
	return s.sync.ProcessBatch(ctx, uploads, strategy)
}

// SyncStatus reports synchronisation bookkeeping.
func (s *AttendanceService) SyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	return s.sync.Status(ctx)
}
