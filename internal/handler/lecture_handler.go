package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniattend/attendance-api/internal/models"
	"github.com/uniattend/attendance-api/pkg/response"
)

type lectureLifecycle interface {
	Start(ctx context.Context, lectureID string) (*models.Lecture, error)
	End(ctx context.Context, lectureID string) (*models.Lecture, error)
	Cancel(ctx context.Context, lectureID string) (*models.Lecture, error)
	Get(ctx context.Context, lectureID string) (*models.Lecture, error)
}

// LectureHandler exposes the lecture lifecycle transitions.
type LectureHandler struct {
	lectures lectureLifecycle
}

// NewLectureHandler constructs the handler.
func NewLectureHandler(lectures lectureLifecycle) *LectureHandler {
	return &LectureHandler{lectures: lectures}
}

// Get godoc
// @Summary Load a lecture
// @Tags Lectures
// @Produce json
// @Param id path string true "Lecture ID"
// @Success 200 {object} response.Envelope{data=models.Lecture}
// @Failure 404 {object} response.Envelope
// @Router /lectures/{id} [get]
func (h *LectureHandler) Get(c *gin.Context) {
	lecture, err := h.lectures.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecture, nil)
}

// Start godoc
// @Summary Start a scheduled lecture
// @Tags Lectures
// @Produce json
// @Param id path string true "Lecture ID"
// @Success 200 {object} response.Envelope{data=models.Lecture}
// @Failure 409 {object} response.Envelope
// @Router /lectures/{id}/start [post]
func (h *LectureHandler) Start(c *gin.Context) {
	lecture, err := h.lectures.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecture, nil)
}

// End godoc
// @Summary End an active lecture
// @Tags Lectures
// @Produce json
// @Param id path string true "Lecture ID"
// @Success 200 {object} response.Envelope{data=models.Lecture}
// @Failure 409 {object} response.Envelope
// @Router /lectures/{id}/end [post]
func (h *LectureHandler) End(c *gin.Context) {
	lecture, err := h.lectures.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecture, nil)
}

// Cancel godoc
// @Summary Cancel a lecture that has not completed
// @Tags Lectures
// @Produce json
// @Param id path string true "Lecture ID"
// @Success 200 {object} response.Envelope{data=models.Lecture}
// @Failure 409 {object} response.Envelope
// @Router /lectures/{id}/cancel [post]
func (h *LectureHandler) Cancel(c *gin.Context) {
	lecture, err := h.lectures.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lecture, nil)
}
