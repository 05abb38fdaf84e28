package models

import (
	"time"

	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

// Lesson is one dated occurrence of a class's weekly timetable.
type Lesson struct {
	ID         string                  `db:"id" json:"id"`
	ClassID    string                  `db:"class_id" json:"class_id"`
	TeacherID  string                  `db:"teacher_id" json:"teacher_id"`
	RoomID     string                  `db:"room_id" json:"room_id"`
	Title      string                  `db:"title" json:"title"`
	LessonDate scheduling.CalendarDate `db:"lesson_date" json:"lesson_date"`
	StartTime  scheduling.TimeOfDay    `db:"start_time" json:"start_time"`
	EndTime    scheduling.TimeOfDay    `db:"end_time" json:"end_time"`
	Status     string                  `db:"status" json:"status"`
	UpdatedAt  time.Time               `db:"updated_at" json:"updated_at"`
}

// Lesson statuses.
const (
	LessonScheduled   = "SCHEDULED"
	LessonRescheduled = "RESCHEDULED"
	LessonCanceled    = "CANCELED"
)

// Interval returns the lesson's time range.
func (l Lesson) Interval() scheduling.TimeInterval {
	return scheduling.TimeInterval{Start: l.StartTime, End: l.EndTime}
}

// Edit seeds an unselected change-set entry for the lesson.
func (l Lesson) Edit() scheduling.LessonEdit {
	return scheduling.LessonEdit{
		LessonID:         l.ID,
		RoomID:           l.RoomID,
		TeacherID:        l.TeacherID,
		OriginalDate:     l.LessonDate,
		OriginalInterval: l.Interval(),
	}
}

// LessonUpdate is one row change applied inside a reschedule transaction.
type LessonUpdate struct {
	LessonID  string
	RoomID    string
	TeacherID string
	Date      scheduling.CalendarDate
	StartTime scheduling.TimeOfDay
	EndTime   scheduling.TimeOfDay
}

// RescheduleLog records a committed lesson move.
type RescheduleLog struct {
	ID           string                  `db:"id" json:"id"`
	ClassID      string                  `db:"class_id" json:"class_id"`
	LessonID     string                  `db:"lesson_id" json:"lesson_id"`
	OldDate      scheduling.CalendarDate `db:"old_date" json:"old_date"`
	OldStartTime scheduling.TimeOfDay    `db:"old_start_time" json:"old_start_time"`
	OldEndTime   scheduling.TimeOfDay    `db:"old_end_time" json:"old_end_time"`
	NewDate      scheduling.CalendarDate `db:"new_date" json:"new_date"`
	NewStartTime scheduling.TimeOfDay    `db:"new_start_time" json:"new_start_time"`
	NewEndTime   scheduling.TimeOfDay    `db:"new_end_time" json:"new_end_time"`
	RoomID       string                  `db:"room_id" json:"room_id"`
	RequestedBy  string                  `db:"requested_by" json:"requested_by"`
	CreatedAt    time.Time               `db:"created_at" json:"created_at"`
}
