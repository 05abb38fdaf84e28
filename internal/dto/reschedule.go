package dto

import (
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

// LessonEditRequest is one row of the reschedule form. Slot wins over explicit times.
type LessonEditRequest struct {
	LessonID     string `json:"lesson_id" validate:"required"`
	Selected     bool   `json:"selected"`
	NewDate      string `json:"new_date"`
	NewStartTime string `json:"new_start_time"`
	NewEndTime   string `json:"new_end_time"`
	Slot         int    `json:"slot" validate:"omitempty,min=1,max=6"`
}

// RescheduleRequest carries a class's proposed batch.
type RescheduleRequest struct {
	Edits          []LessonEditRequest `json:"edits" validate:"required,min=1,dive"`
	ApplySlot      int                 `json:"apply_slot" validate:"omitempty,min=1,max=6"`
	AutoAssignRoom bool                `json:"auto_assign_room"`
	PreferRoomID   string              `json:"prefer_room_id"`
}

// RescheduleDraft seeds the form with the class's current lessons.
type RescheduleDraft struct {
	ClassID string                  `json:"class_id"`
	Today   scheduling.CalendarDate `json:"today"`
	Slots   []scheduling.Slot       `json:"slots"`
	Edits   []scheduling.LessonEdit `json:"edits"`
}

// RescheduleReport is the verdict for a batch.
type RescheduleReport struct {
	ClassID     string                    `json:"class_id"`
	Today       scheduling.CalendarDate   `json:"today"`
	Ready       bool                      `json:"ready"`
	Evaluations []scheduling.Evaluation   `json:"evaluations"`
	Pairs       []scheduling.ConflictPair `json:"pairs,omitempty"`
	Unchecked   []UncheckedLesson         `json:"unchecked,omitempty"`
}

// UncheckedLesson explains why availability could not be confirmed.
type UncheckedLesson struct {
	LessonID string `json:"lesson_id"`
	Reason   string `json:"reason"`
}

// RescheduleResult reports a committed batch.
type RescheduleResult struct {
	ClassID         string            `json:"class_id"`
	Applied         int               `json:"applied"`
	RoomAssignments map[string]string `json:"room_assignments,omitempty"`
}

// RescheduleHistory lists committed moves.
type RescheduleHistory struct {
	ClassID string                 `json:"class_id"`
	Logs    []models.RescheduleLog `json:"logs"`
}

// TeacherAvailabilityRequest checks a weekly pattern against a teacher's bookings.
type TeacherAvailabilityRequest struct {
	Weekdays       []string `json:"weekdays" validate:"required,min=1,dive,required"`
	StartTime      string   `json:"start_time" validate:"required"`
	EndTime        string   `json:"end_time" validate:"required"`
	StartDate      string   `json:"start_date" validate:"required"`
	EndDate        string   `json:"end_date" validate:"required"`
	ExcludeClassID string   `json:"exclude_class_id"`
}

// TeacherBusy is one expanded occurrence that collides with existing bookings.
type TeacherBusy struct {
	Date      scheduling.CalendarDate `json:"date"`
	Interval  scheduling.TimeInterval `json:"interval"`
	Conflicts []scheduling.Booking    `json:"conflicts"`
}

// TeacherAvailability is the answer to a weekly teacher check.
type TeacherAvailability struct {
	TeacherID string        `json:"teacher_id"`
	Available bool          `json:"available"`
	Checked   int           `json:"checked"`
	Busy      []TeacherBusy `json:"busy"`
}
