package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniattend/attendance-api/internal/dto"
	"github.com/uniattend/attendance-api/internal/models"
	"github.com/uniattend/attendance-api/internal/service"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
	"github.com/uniattend/attendance-api/pkg/response"
)

type qrSessionManager interface {
	Generate(ctx context.Context, lectureID, teacherID string, opts service.QRSessionOptions) (*service.SessionResult, error)
	Status(ctx context.Context, sessionID string) (*models.QRSessionView, error)
	Revoke(ctx context.Context, sessionID string, notes *string) error
	Disable(ctx context.Context, sessionID string, notes *string) error
	ExtendExpiry(ctx context.Context, sessionID string, extraMinutes int) (*models.QRSession, error)
}

type sessionSheetRenderer interface {
	SessionSheetPDF(ctx context.Context, sessionID string) ([]byte, string, error)
}

// SessionHandler exposes the QR session lifecycle endpoints.
type SessionHandler struct {
	sessions qrSessionManager
	exports  sessionSheetRenderer
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions qrSessionManager, exports sessionSheetRenderer) *SessionHandler {
	return &SessionHandler{sessions: sessions, exports: exports}
}

// Generate godoc
// @Summary Issue a QR session for a lecture
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Lecture ID"
// @Param request body dto.GenerateSessionRequest false "Session options"
// @Success 201 {object} response.Envelope{data=dto.SessionResponse}
// @Success 200 {object} response.Envelope{data=dto.SessionResponse}
// @Failure 409 {object} response.Envelope
// @Router /lectures/{id}/qr-session [post]
func (h *SessionHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.GenerateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	result, err := h.sessions.Generate(c.Request.Context(), c.Param("id"), claims.UserID, service.QRSessionOptions{
		DurationMinutes:    req.DurationMinutes,
		MaxUsageCount:      req.MaxUsageCount,
		AllowMultipleScans: req.AllowMultipleScans,
		IPAllowList:        req.IPAllowList,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	response.JSON(c, status, dto.NewSessionResponse(result.Session, result.EncodedKey, result.Reused), nil)
}

// Status godoc
// @Summary Poll a QR session's state
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope{data=dto.SessionStatusResponse}
// @Failure 404 {object} response.Envelope
// @Router /qr-sessions/{sessionId} [get]
func (h *SessionHandler) Status(c *gin.Context) {
	view, err := h.sessions.Status(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSessionStatusResponse(view), nil)
}

// Revoke godoc
// @Summary Revoke an active QR session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body dto.RevokeSessionRequest false "Revocation notes"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /qr-sessions/{sessionId}/revoke [post]
func (h *SessionHandler) Revoke(c *gin.Context) {
	var req dto.RevokeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), c.Param("sessionId"), req.Notes); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Disable godoc
// @Summary Disable a QR session without ending the lecture
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body dto.RevokeSessionRequest false "Notes"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /qr-sessions/{sessionId}/disable [post]
func (h *SessionHandler) Disable(c *gin.Context) {
	var req dto.RevokeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if err := h.sessions.Disable(c.Request.Context(), c.Param("sessionId"), req.Notes); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Extend godoc
// @Summary Extend a QR session's expiry
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body dto.ExtendSessionRequest true "Extension"
// @Success 200 {object} response.Envelope{data=dto.SessionResponse}
// @Failure 404 {object} response.Envelope
// @Router /qr-sessions/{sessionId}/extend [post]
func (h *SessionHandler) Extend(c *gin.Context) {
	var req dto.ExtendSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	session, err := h.sessions.ExtendExpiry(c.Request.Context(), c.Param("sessionId"), req.ExtraMinutes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSessionResponse(session, "", false), nil)
}

// Sheet godoc
// @Summary Download the printable session sheet
// @Tags Sessions
// @Produce application/pdf
// @Param sessionId path string true "Session ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /qr-sessions/{sessionId}/sheet [get]
func (h *SessionHandler) Sheet(c *gin.Context) {
	payload, filename, err := h.exports.SessionSheetPDF(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}
