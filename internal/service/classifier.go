package service

import (
	"time"

	"github.com/uniattend/attendance-api/internal/models"
)

// ClassifyAttendance buckets a check-in against the lecture's late
// threshold, measured from the actual start when the teacher recorded one
// and the scheduled start otherwise. A check-in exactly on the deadline is
// still on time. Exceptional classification never comes from here; it is
// assigned only through the manual approval path.
func ClassifyAttendance(lecture *models.Lecture, checkIn time.Time) models.AttendanceType {
	if checkIn.After(lecture.LateDeadline()) {
		return models.AttendanceLate
	}
	return models.AttendanceOnTime
}
