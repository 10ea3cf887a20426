package models

import "time"

// LectureStatus represents the lifecycle state of a lecture.
type LectureStatus string

const (
	LectureScheduled LectureStatus = "SCHEDULED"
	LectureActive    LectureStatus = "ACTIVE"
	LectureCompleted LectureStatus = "COMPLETED"
	LectureCancelled LectureStatus = "CANCELLED"
	LecturePostponed LectureStatus = "POSTPONED"
)

// Valid returns true when the status is a supported value.
func (s LectureStatus) Valid() bool {
	switch s {
	case LectureScheduled, LectureActive, LectureCompleted, LectureCancelled, LecturePostponed:
		return true
	default:
		return false
	}
}

// Lecture is a single lecture session. Scheduling owns it; the engine reads
// it and applies the start/end transitions.
type Lecture struct {
	ID                      string        `db:"id" json:"id"`
	RoomID                  string        `db:"room_id" json:"room_id"`
	TeacherID               string        `db:"teacher_id" json:"teacher_id"`
	SubjectCode             string        `db:"subject_code" json:"subject_code"`
	Section                 string        `db:"section" json:"section"`
	ScheduledStart          time.Time     `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd            time.Time     `db:"scheduled_end" json:"scheduled_end"`
	ActualStart             *time.Time    `db:"actual_start" json:"actual_start,omitempty"`
	ActualEnd               *time.Time    `db:"actual_end" json:"actual_end,omitempty"`
	Status                  LectureStatus `db:"status" json:"status"`
	QREnabled               bool          `db:"qr_enabled" json:"qr_enabled"`
	QRGenerationAllowed     bool          `db:"qr_generation_allowed" json:"qr_generation_allowed"`
	LateThresholdMinutes    int           `db:"late_threshold_minutes" json:"late_threshold_minutes"`
	AttendanceWindowMinutes int           `db:"attendance_window_minutes" json:"attendance_window_minutes"`
	CreatedAt               time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time     `db:"updated_at" json:"updated_at"`
}

// EffectiveStart is the actual start when the lecture has been started,
// otherwise the scheduled start.
func (l *Lecture) EffectiveStart() time.Time {
	if l.ActualStart != nil {
		return *l.ActualStart
	}
	return l.ScheduledStart
}

// LateDeadline is the last instant still classified OnTime.
func (l *Lecture) LateDeadline() time.Time {
	return l.EffectiveStart().Add(time.Duration(l.LateThresholdMinutes) * time.Minute)
}

// CanGenerateQR reports whether a QR session may be minted for this lecture.
func (l *Lecture) CanGenerateQR() bool {
	if !l.QREnabled || !l.QRGenerationAllowed {
		return false
	}
	return l.Status == LectureScheduled || l.Status == LectureActive
}

// IsAttendanceOpen reports whether check-ins are still accepted at now.
func (l *Lecture) IsAttendanceOpen(now time.Time) bool {
	if l.Status != LectureActive {
		return false
	}
	if l.AttendanceWindowMinutes <= 0 {
		return true
	}
	deadline := l.EffectiveStart().Add(time.Duration(l.AttendanceWindowMinutes) * time.Minute)
	return !now.After(deadline)
}
