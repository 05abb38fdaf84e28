package models

import (
	"time"

	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

// RoomBooking is one dated lesson occurrence. A row occupies both its room
// and its teacher for the interval.
type RoomBooking struct {
	ID          string                  `db:"id" json:"id"`
	RoomID      string                  `db:"room_id" json:"room_id"`
	TeacherID   string                  `db:"teacher_id" json:"teacher_id"`
	ClassID     string                  `db:"class_id" json:"class_id"`
	LessonID    string                  `db:"lesson_id" json:"lesson_id"`
	BookingDate scheduling.CalendarDate `db:"booking_date" json:"booking_date"`
	StartTime   scheduling.TimeOfDay    `db:"start_time" json:"start_time"`
	EndTime     scheduling.TimeOfDay    `db:"end_time" json:"end_time"`
	CreatedAt   time.Time               `db:"created_at" json:"created_at"`
}

func (b RoomBooking) interval() scheduling.TimeInterval {
	return scheduling.TimeInterval{Start: b.StartTime, End: b.EndTime}
}

// RoomBookingView is the booking as seen by its room.
func (b RoomBooking) RoomBookingView() scheduling.Booking {
	return scheduling.Booking{
		ID:        b.ID,
		Date:      b.BookingDate,
		Interval:  b.interval(),
		OwnerKind: scheduling.OwnerRoom,
		OwnerID:   b.RoomID,
		SubjectID: b.LessonID,
	}
}

// TeacherBookingView is the booking as seen by its teacher.
func (b RoomBooking) TeacherBookingView() scheduling.Booking {
	return scheduling.Booking{
		ID:        b.ID,
		Date:      b.BookingDate,
		Interval:  b.interval(),
		OwnerKind: scheduling.OwnerTeacher,
		OwnerID:   b.TeacherID,
		SubjectID: b.LessonID,
	}
}

// RoomBookings projects rows onto their rooms.
func RoomBookings(rows []RoomBooking) []scheduling.Booking {
	out := make([]scheduling.Booking, len(rows))
	for i, r := range rows {
		out[i] = r.RoomBookingView()
	}
	return out
}

// TeacherBookings projects rows onto their teachers.
func TeacherBookings(rows []RoomBooking) []scheduling.Booking {
	out := make([]scheduling.Booking, len(rows))
	for i, r := range rows {
		out[i] = r.TeacherBookingView()
	}
	return out
}
