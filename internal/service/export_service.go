package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
	appErrors "github.com/uniattend/attendance-api/pkg/errors"
	"github.com/uniattend/attendance-api/pkg/export"
)

type exportSessionRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*models.QRSession, error)
}

// ExportService renders the printable QR session sheet teachers hand out or
// project when a display device is unavailable.
type ExportService struct {
	sessions exportSessionRepository
	lectures qrLectureRepository
	rooms    attendanceRoomRepository
	logger   *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(sessions exportSessionRepository, lectures qrLectureRepository, rooms attendanceRoomRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{sessions: sessions, lectures: lectures, rooms: rooms, logger: logger}
}

// SessionSheetPDF renders the printable sheet for a session.
func (s *ExportService) SessionSheetPDF(ctx context.Context, sessionID string) ([]byte, string, error) {
	session, err := s.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.ErrSessionNotFound
		}
		return nil, "", appErrors.Infrastructure(err, "load session")
	}
	lecture, err := s.lectures.FindByID(ctx, session.LectureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.ErrNotFound
		}
		return nil, "", appErrors.Infrastructure(err, "load lecture")
	}
	roomName := lecture.RoomID
	if room, err := s.rooms.FindByID(ctx, lecture.RoomID); err == nil {
		roomName = room.Name
	}

	payload, err := export.RenderSessionSheet(export.SessionSheet{
		SubjectCode: lecture.SubjectCode,
		Section:     lecture.Section,
		RoomName:    roomName,
		SessionID:   session.SessionID,
		DisplayText: session.DisplayText,
		GeneratedAt: session.GeneratedAt,
		ExpiresAt:   session.ExpiresAt,
		MaxUsage:    session.MaxUsageCount,
		QRContent:   session.EncryptedPayload,
	})
	if err != nil {
		return nil, "", appErrors.Infrastructure(err, "render session sheet")
	}
	return payload, fmt.Sprintf("session_%s.pdf", session.SessionID), nil
}
