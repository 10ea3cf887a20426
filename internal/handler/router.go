package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/uniattend/attendance-api/internal/middleware"
	"github.com/uniattend/attendance-api/internal/models"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Sessions   *SessionHandler
	Attendance *AttendanceHandler
	Lectures   *LectureHandler
}

// RegisterRoutes mounts the engine's API under /api/v1. The auth middleware
// is injected so tests can substitute a claims-stamping stub.
func RegisterRoutes(router *gin.Engine, h Handlers, auth gin.HandlerFunc) {
	api := router.Group("/api/v1", auth)

	staff := middleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin))
	anyRole := middleware.RBAC(string(models.RoleStudent), string(models.RoleTeacher), string(models.RoleAdmin))

	lectures := api.Group("/lectures")
	lectures.GET("/:id", anyRole, h.Lectures.Get)
	lectures.POST("/:id/start", staff, h.Lectures.Start)
	lectures.POST("/:id/end", staff, h.Lectures.End)
	lectures.POST("/:id/cancel", staff, h.Lectures.Cancel)
	lectures.POST("/:id/qr-session", staff, h.Sessions.Generate)

	sessions := api.Group("/qr-sessions")
	sessions.GET("/:sessionId", staff, h.Sessions.Status)
	sessions.POST("/:sessionId/revoke", staff, h.Sessions.Revoke)
	sessions.POST("/:sessionId/disable", staff, h.Sessions.Disable)
	sessions.POST("/:sessionId/extend", staff, h.Sessions.Extend)
	sessions.GET("/:sessionId/sheet", staff, h.Sessions.Sheet)

	attendance := api.Group("/attendance")
	attendance.POST("/scan", middleware.RBAC(string(models.RoleStudent)), h.Attendance.Scan)
	attendance.POST("/face-score", middleware.RBAC(string(models.RoleStudent)), h.Attendance.FaceScore)
	attendance.GET("/:studentId/:lectureId/progress",
		middleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), "SELF"), h.Attendance.Progress)
	attendance.POST("/exceptional", staff, h.Attendance.Exceptional)
	attendance.POST("/batch-upload",
		middleware.RBAC(string(models.RoleStudent), string(models.RoleAdmin)), h.Attendance.BatchUpload)
	attendance.POST("/resolve-conflicts", staff, h.Attendance.ResolveConflicts)
	attendance.GET("/sync-status", middleware.RBAC(string(models.RoleAdmin)), h.Attendance.SyncStatus)
}
