package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/internal/dto"
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

// maxWeeklyRangeDays bounds teacher availability expansion.
const maxWeeklyRangeDays = 366

type bookingReader interface {
	ListByRoom(ctx context.Context, roomID string, from, to scheduling.CalendarDate) ([]models.RoomBooking, error)
	ListByTeacher(ctx context.Context, teacherID string, from, to scheduling.CalendarDate) ([]models.RoomBooking, error)
	ListByDateRange(ctx context.Context, from, to scheduling.CalendarDate) ([]models.RoomBooking, error)
	ListOverlapping(ctx context.Context, roomID, teacherID, classID string, date scheduling.CalendarDate, interval scheduling.TimeInterval, excludeLessonID string) ([]models.RoomBooking, error)
}

// BookingConflictChecker answers availability queries from the booking table.
type BookingConflictChecker struct {
	bookings bookingReader
	logger   *zap.Logger
}

// NewBookingConflictChecker builds the database-backed checker.
func NewBookingConflictChecker(bookings bookingReader, logger *zap.Logger) *BookingConflictChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingConflictChecker{bookings: bookings, logger: logger}
}

// CheckConflict reports room, teacher and class collisions for one lesson move.
func (c *BookingConflictChecker) CheckConflict(ctx context.Context, q scheduling.ConflictQuery) (scheduling.ConflictResult, error) {
	rows, err := c.bookings.ListOverlapping(ctx, q.RoomID, q.TeacherID, q.ClassID, q.Date, q.Interval, q.ExcludeSubjectID)
	if err != nil {
		return scheduling.ConflictResult{}, err
	}

	result := scheduling.ConflictResult{Conflicts: []scheduling.ConflictDescriptor{}}
	for _, row := range rows {
		if q.RoomID != "" && row.RoomID == q.RoomID {
			result.Conflicts = append(result.Conflicts, describe(scheduling.OwnerRoom, row))
		}
		if q.TeacherID != "" && row.TeacherID == q.TeacherID {
			result.Conflicts = append(result.Conflicts, describe(scheduling.OwnerTeacher, row))
		}
		if q.ClassID != "" && row.ClassID == q.ClassID && row.RoomID != q.RoomID && row.TeacherID != q.TeacherID {
			result.Conflicts = append(result.Conflicts, describe(scheduling.OwnerClass, row))
		}
	}
	result.HasConflict = len(result.Conflicts) > 0
	if result.HasConflict {
		c.logger.Debug("availability conflict", zap.String("lesson_id", q.LessonID), zap.Int("conflicts", len(result.Conflicts)))
	}
	return result, nil
}

func describe(kind scheduling.OwnerKind, row models.RoomBooking) scheduling.ConflictDescriptor {
	var booking scheduling.Booking
	if kind == scheduling.OwnerTeacher {
		booking = row.TeacherBookingView()
	} else {
		booking = row.RoomBookingView()
	}
	d := scheduling.ConflictDescriptor{
		Kind:      kind,
		OwnerID:   booking.OwnerID,
		SubjectID: booking.SubjectID,
		BookingID: booking.ID,
		Date:      booking.Date,
		Interval:  booking.Interval,
	}
	if kind == scheduling.OwnerClass {
		d.OwnerID = row.ClassID
		d.Message = fmt.Sprintf("class %s already has lesson %s on %s %s", row.ClassID, row.LessonID, booking.Date, booking.Interval)
	}
	return d
}

// CheckTeacherWeekly expands pattern over [from, to] and reports every
// occurrence the teacher is already booked for, ignoring excludeClassID.
func (c *BookingConflictChecker) CheckTeacherWeekly(ctx context.Context, teacherID string, pattern scheduling.WeeklyPattern, from, to scheduling.CalendarDate, excludeClassID string) (*dto.TeacherAvailability, error) {
	rows, err := c.bookings.ListByTeacher(ctx, teacherID, from, to)
	if err != nil {
		return nil, err
	}
	var kept []models.RoomBooking
	for _, row := range rows {
		if excludeClassID != "" && row.ClassID == excludeClassID {
			continue
		}
		kept = append(kept, row)
	}
	bookings := models.TeacherBookings(kept)

	placements := scheduling.ExpandWeekly(pattern, from, to)
	result := &dto.TeacherAvailability{TeacherID: teacherID, Checked: len(placements), Busy: []dto.TeacherBusy{}}
	for _, p := range placements {
		if clashes := scheduling.ConflictsWithAny(p, bookings); len(clashes) > 0 {
			result.Busy = append(result.Busy, dto.TeacherBusy{Date: p.Date, Interval: p.Interval, Conflicts: clashes})
		}
	}
	result.Available = len(result.Busy) == 0
	return result, nil
}
