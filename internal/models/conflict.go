package models

// Conflict dimensions.
const (
	ConflictDimensionRoom    = "ROOM"
	ConflictDimensionTeacher = "TEACHER"
	ConflictDimensionClass   = "CLASS"
)

// ScheduleConflict describes an existing booking that blocks a lesson move.
type ScheduleConflict struct {
	BookingID string `json:"booking_id"`
	LessonID  string `json:"lesson_id"`
	ClassID   string `json:"class_id"`
	TeacherID string `json:"teacher_id"`
	RoomID    string `json:"room_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Dimension string `json:"dimension"`
}

// ScheduleConflictError is returned when a committed move collides with a booking.
type ScheduleConflictError struct {
	Type     string             `json:"type"`
	Message  string             `json:"message"`
	Conflict ScheduleConflict   `json:"conflict"`
	Errors   []ScheduleConflict `json:"errors,omitempty"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
