package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-reschedule-api/internal/models"
)

const lessonColumns = "id, class_id, teacher_id, room_id, title, lesson_date, start_time, end_time, status, updated_at"

// LessonRepository persists dated lessons and their reschedule history.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository creates a new lesson repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// ListByClass returns the non-canceled lessons of a class ordered by date and time.
func (r *LessonRepository) ListByClass(ctx context.Context, classID string) ([]models.Lesson, error) {
	query := fmt.Sprintf("SELECT %s FROM lessons WHERE class_id = $1 AND status <> $2 ORDER BY lesson_date ASC, start_time ASC", lessonColumns)
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, classID, models.LessonCanceled); err != nil {
		return nil, fmt.Errorf("list lessons by class: %w", err)
	}
	return lessons, nil
}

// ListLogs returns the latest reschedule log entries for a class.
func (r *LessonRepository) ListLogs(ctx context.Context, classID string, limit int) ([]models.RescheduleLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, class_id, lesson_id, old_date, old_start_time, old_end_time, new_date, new_start_time, new_end_time, room_id, requested_by, created_at FROM reschedule_logs WHERE class_id = $1 ORDER BY created_at DESC LIMIT $2`
	var logs []models.RescheduleLog
	if err := r.db.SelectContext(ctx, &logs, query, classID, limit); err != nil {
		return nil, fmt.Errorf("list reschedule logs: %w", err)
	}
	return logs, nil
}

// ApplyReschedule moves every lesson in updates, mirrors the move onto its
// booking and writes logs, all in one transaction. A booking held by a lesson
// outside the batch that overlaps a new placement aborts the transaction with
// a *models.ScheduleConflictError; a missing lesson aborts with sql.ErrNoRows.
func (r *LessonRepository) ApplyReschedule(ctx context.Context, classID string, updates []models.LessonUpdate, logs []models.RescheduleLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply reschedule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	moving := make([]string, len(updates))
	for i, u := range updates {
		moving[i] = u.LessonID
	}

	for _, u := range updates {
		if err = r.ensureFree(ctx, tx, u, moving); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	for _, u := range updates {
		var res sql.Result
		res, err = tx.ExecContext(ctx,
			`UPDATE lessons SET lesson_date = $1, start_time = $2, end_time = $3, room_id = $4, status = $5, updated_at = $6 WHERE id = $7 AND class_id = $8`,
			u.Date, u.StartTime, u.EndTime, u.RoomID, models.LessonRescheduled, now, u.LessonID, classID)
		if err != nil {
			return fmt.Errorf("update lesson %s: %w", u.LessonID, err)
		}
		var affected int64
		if affected, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("update lesson %s: %w", u.LessonID, err)
		}
		if affected == 0 {
			err = fmt.Errorf("lesson %s in class %s: %w", u.LessonID, classID, sql.ErrNoRows)
			return err
		}

		if _, err = tx.ExecContext(ctx,
			`UPDATE room_bookings SET booking_date = $1, start_time = $2, end_time = $3, room_id = $4 WHERE lesson_id = $5`,
			u.Date, u.StartTime, u.EndTime, u.RoomID, u.LessonID); err != nil {
			return fmt.Errorf("update booking for lesson %s: %w", u.LessonID, err)
		}
	}

	for i := range logs {
		if logs[i].ID == "" {
			logs[i].ID = uuid.NewString()
		}
		if logs[i].CreatedAt.IsZero() {
			logs[i].CreatedAt = now
		}
		if _, err = tx.NamedExecContext(ctx,
			`INSERT INTO reschedule_logs (id, class_id, lesson_id, old_date, old_start_time, old_end_time, new_date, new_start_time, new_end_time, room_id, requested_by, created_at) VALUES (:id, :class_id, :lesson_id, :old_date, :old_start_time, :old_end_time, :new_date, :new_start_time, :new_end_time, :room_id, :requested_by, :created_at)`,
			logs[i]); err != nil {
			return fmt.Errorf("insert reschedule log: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit apply reschedule: %w", err)
	}
	return nil
}

func (r *LessonRepository) ensureFree(ctx context.Context, tx *sqlx.Tx, u models.LessonUpdate, moving []string) error {
	query := fmt.Sprintf(`SELECT %s FROM room_bookings WHERE booking_date = $1 AND start_time < $2 AND end_time > $3 AND NOT (lesson_id = ANY($4)) AND (room_id = $5 OR teacher_id = $6) FOR UPDATE`, bookingColumns)
	var clashes []models.RoomBooking
	if err := tx.SelectContext(ctx, &clashes, query, u.Date, u.EndTime, u.StartTime, pq.Array(moving), u.RoomID, u.TeacherID); err != nil {
		return fmt.Errorf("lock bookings for lesson %s: %w", u.LessonID, err)
	}
	if len(clashes) == 0 {
		return nil
	}

	conflicts := make([]models.ScheduleConflict, len(clashes))
	for i, b := range clashes {
		dimension := models.ConflictDimensionTeacher
		if b.RoomID == u.RoomID {
			dimension = models.ConflictDimensionRoom
		}
		conflicts[i] = models.ScheduleConflict{
			BookingID: b.ID,
			LessonID:  b.LessonID,
			ClassID:   b.ClassID,
			TeacherID: b.TeacherID,
			RoomID:    b.RoomID,
			Date:      b.BookingDate.String(),
			StartTime: b.StartTime.String(),
			EndTime:   b.EndTime.String(),
			Dimension: dimension,
		}
	}
	return &models.ScheduleConflictError{
		Type:     conflicts[0].Dimension,
		Message:  fmt.Sprintf("lesson %s collides with %d existing booking(s)", u.LessonID, len(conflicts)),
		Conflict: conflicts[0],
		Errors:   conflicts,
	}
}
