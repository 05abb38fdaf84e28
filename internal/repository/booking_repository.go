package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

const bookingColumns = "id, room_id, teacher_id, class_id, lesson_id, booking_date, start_time, end_time, created_at"

// BookingRepository reads dated room and teacher occupancy.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ListByRoom returns a room's bookings between from and to inclusive.
func (r *BookingRepository) ListByRoom(ctx context.Context, roomID string, from, to scheduling.CalendarDate) ([]models.RoomBooking, error) {
	query := fmt.Sprintf("SELECT %s FROM room_bookings WHERE room_id = $1 AND booking_date BETWEEN $2 AND $3 ORDER BY booking_date ASC, start_time ASC", bookingColumns)
	var bookings []models.RoomBooking
	if err := r.db.SelectContext(ctx, &bookings, query, roomID, from, to); err != nil {
		return nil, fmt.Errorf("list bookings by room: %w", err)
	}
	return bookings, nil
}

// ListByTeacher returns a teacher's bookings between from and to inclusive.
func (r *BookingRepository) ListByTeacher(ctx context.Context, teacherID string, from, to scheduling.CalendarDate) ([]models.RoomBooking, error) {
	query := fmt.Sprintf("SELECT %s FROM room_bookings WHERE teacher_id = $1 AND booking_date BETWEEN $2 AND $3 ORDER BY booking_date ASC, start_time ASC", bookingColumns)
	var bookings []models.RoomBooking
	if err := r.db.SelectContext(ctx, &bookings, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list bookings by teacher: %w", err)
	}
	return bookings, nil
}

// ListByDateRange returns every booking between from and to inclusive.
func (r *BookingRepository) ListByDateRange(ctx context.Context, from, to scheduling.CalendarDate) ([]models.RoomBooking, error) {
	query := fmt.Sprintf("SELECT %s FROM room_bookings WHERE booking_date BETWEEN $1 AND $2 ORDER BY booking_date ASC, start_time ASC", bookingColumns)
	var bookings []models.RoomBooking
	if err := r.db.SelectContext(ctx, &bookings, query, from, to); err != nil {
		return nil, fmt.Errorf("list bookings by date range: %w", err)
	}
	return bookings, nil
}

// ListOverlapping returns bookings of the room, teacher or class that overlap
// the interval on date, ignoring the given lesson.
func (r *BookingRepository) ListOverlapping(ctx context.Context, roomID, teacherID, classID string, date scheduling.CalendarDate, interval scheduling.TimeInterval, excludeLessonID string) ([]models.RoomBooking, error) {
	query := fmt.Sprintf(`SELECT %s FROM room_bookings WHERE booking_date = $1 AND start_time < $2 AND end_time > $3 AND lesson_id <> $4 AND (room_id = $5 OR teacher_id = $6 OR class_id = $7) ORDER BY start_time ASC`, bookingColumns)
	var bookings []models.RoomBooking
	if err := r.db.SelectContext(ctx, &bookings, query, date, interval.End, interval.Start, excludeLessonID, roomID, teacherID, classID); err != nil {
		return nil, fmt.Errorf("list overlapping bookings: %w", err)
	}
	return bookings, nil
}
