package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniattend/attendance-api/internal/dto"
	"github.com/uniattend/attendance-api/internal/models"
	"github.com/uniattend/attendance-api/internal/service"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
	"github.com/uniattend/attendance-api/pkg/response"
)

type attendanceEngine interface {
	SubmitScan(ctx context.Context, req service.ScanRequest) (*service.ScanResult, error)
	SubmitFaceScore(ctx context.Context, studentID, lectureID string, score float64) (*models.VerificationSummary, error)
	Progress(ctx context.Context, studentID, lectureID string) (*models.VerificationSummary, error)
	MarkExceptional(ctx context.Context, req service.ExceptionalRequest, approvedBy string) (*models.AttendanceRecord, error)
	BatchUpload(ctx context.Context, uploads []models.OfflineAttendance, strategy models.ConflictStrategy) ([]service.BatchOutcome, error)
	ResolveConflicts(ctx context.Context, reqs []service.ResolveRequest) ([]*models.AttendanceRecord, error)
	SyncStatus(ctx context.Context) (*models.SyncStatus, error)
}

// AttendanceHandler exposes the verification pipeline and the offline sync
// endpoints.
type AttendanceHandler struct {
	engine attendanceEngine
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(engine attendanceEngine) *AttendanceHandler {
	return &AttendanceHandler{engine: engine}
}

// Scan godoc
// @Summary Submit a verification scan
// @Tags Attendance
// @Accept json
// @Produce json
// @Param request body dto.ScanRequest true "Scan payload"
// @Success 200 {object} response.Envelope{data=dto.ScanResponse}
// @Failure 403 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /attendance/scan [post]
func (h *AttendanceHandler) Scan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	result, err := h.engine.SubmitScan(c.Request.Context(), service.ScanRequest{
		StudentID:        claims.UserID,
		SessionID:        req.SessionID,
		EncryptedPayload: req.EncryptedPayload,
		EncodedKey:       req.EncodedKey,
		Fix: models.GeoFix{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Altitude:  req.Altitude,
			Accuracy:  req.Accuracy,
		},
		FaceScore:  req.FaceScore,
		DeviceInfo: req.DeviceInfo,
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, dto.ScanResponse{
		RecordID:         result.Record.ID,
		Summary:          result.Summary,
		CheckInTime:      result.Record.CheckInTime,
		RemainingSeconds: result.RemainingSeconds,
	}, nil)
}

// FaceScore godoc
// @Summary Submit a face match score as a standalone step
// @Tags Attendance
// @Accept json
// @Produce json
// @Param request body dto.FaceScoreRequest true "Face score"
// @Success 200 {object} response.Envelope{data=models.VerificationSummary}
// @Failure 400 {object} response.Envelope
// @Router /attendance/face-score [post]
func (h *AttendanceHandler) FaceScore(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.FaceScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	summary, err := h.engine.SubmitFaceScore(c.Request.Context(), claims.UserID, req.LectureID, req.Score)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Progress godoc
// @Summary Report a student's verification progress for a lecture
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param lectureId path string true "Lecture ID"
// @Success 200 {object} response.Envelope{data=models.VerificationSummary}
// @Failure 404 {object} response.Envelope
// @Router /attendance/{studentId}/{lectureId}/progress [get]
func (h *AttendanceHandler) Progress(c *gin.Context) {
	summary, err := h.engine.Progress(c.Request.Context(), c.Param("studentId"), c.Param("lectureId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Exceptional godoc
// @Summary Record attendance through manual approval
// @Tags Attendance
// @Accept json
// @Produce json
// @Param request body dto.ExceptionalRequest true "Approval"
// @Success 200 {object} response.Envelope{data=models.AttendanceRecord}
// @Failure 404 {object} response.Envelope
// @Router /attendance/exceptional [post]
func (h *AttendanceHandler) Exceptional(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ExceptionalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	record, err := h.engine.MarkExceptional(c.Request.Context(), service.ExceptionalRequest{
		StudentID: req.StudentID,
		LectureID: req.LectureID,
		Reason:    req.Reason,
	}, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BatchUpload godoc
// @Summary Ingest offline-recorded attendance
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body dto.BatchUploadRequest true "Offline records"
// @Success 200 {object} response.Envelope{data=[]service.BatchOutcome}
// @Failure 400 {object} response.Envelope
// @Router /attendance/batch-upload [post]
func (h *AttendanceHandler) BatchUpload(c *gin.Context) {
	var req dto.BatchUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	uploads := make([]models.OfflineAttendance, 0, len(req.Records))
	for _, rec := range req.Records {
		uploads = append(uploads, rec.ToOffline())
	}

	outcomes, err := h.engine.BatchUpload(c.Request.Context(), uploads, req.Strategy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcomes, nil)
}

// ResolveConflicts godoc
// @Summary Resolve named sync conflicts
// @Tags Sync
// @Accept json
// @Produce json
// @Param request body dto.ResolveConflictsRequest true "Resolutions"
// @Success 200 {object} response.Envelope{data=[]models.AttendanceRecord}
// @Failure 400 {object} response.Envelope
// @Router /attendance/resolve-conflicts [post]
func (h *AttendanceHandler) ResolveConflicts(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ResolveConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	resolutions := make([]service.ResolveRequest, 0, len(req.Resolutions))
	for _, res := range req.Resolutions {
		resolutions = append(resolutions, service.ResolveRequest{
			Local:      res.Local.ToOffline(),
			Strategy:   res.Strategy,
			ResolvedBy: claims.UserID,
		})
	}

	records, err := h.engine.ResolveConflicts(c.Request.Context(), resolutions)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// SyncStatus godoc
// @Summary Report synchronisation bookkeeping
// @Tags Sync
// @Produce json
// @Success 200 {object} response.Envelope{data=models.SyncStatus}
// @Router /attendance/sync-status [get]
func (h *AttendanceHandler) SyncStatus(c *gin.Context) {
	status, err := h.engine.SyncStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
