package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-reschedule-api/internal/models"
)

func sampleUpdate(t *testing.T) models.LessonUpdate {
	return models.LessonUpdate{
		LessonID:  "l1",
		RoomID:    "r1",
		TeacherID: "t1",
		Date:      mustDate(t, "2025-06-10"),
		StartTime: mustTime(t, "09:50"),
		EndTime:   mustTime(t, "11:50"),
	}
}

func TestLessonRepositoryListByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	rows := sqlmock.NewRows([]string{"id", "class_id", "teacher_id", "room_id", "title", "lesson_date", "start_time", "end_time", "status", "updated_at"}).
		AddRow("l1", "c1", "t1", "r1", "Algebra", "2025-06-03", "07:30:00", "09:30:00", "SCHEDULED", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons WHERE class_id = $1 AND status <> $2 ORDER BY lesson_date ASC, start_time ASC")).
		WithArgs("c1", models.LessonCanceled).
		WillReturnRows(rows)

	lessons, err := repo.ListByClass(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	edit := lessons[0].Edit()
	assert.Equal(t, "l1", edit.LessonID)
	assert.Equal(t, "07:30-09:30", edit.OriginalInterval.String())
	assert.False(t, edit.Selected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryApplyRescheduleCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)
	u := sampleUpdate(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM room_bookings WHERE booking_date = $1 AND start_time < $2 AND end_time > $3 AND NOT (lesson_id = ANY($4))")).
		WithArgs(u.Date, "11:50", "09:50", sqlmock.AnyArg(), "r1", "t1").
		WillReturnRows(sqlmock.NewRows(bookingRowColumns))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lessons SET lesson_date = $1")).
		WithArgs(u.Date, "09:50", "11:50", "r1", models.LessonRescheduled, sqlmock.AnyArg(), "l1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE room_bookings SET booking_date = $1")).
		WithArgs(u.Date, "09:50", "11:50", "r1", "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO reschedule_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	logs := []models.RescheduleLog{{ClassID: "c1", LessonID: "l1", NewDate: u.Date, NewStartTime: u.StartTime, NewEndTime: u.EndTime}}
	require.NoError(t, repo.ApplyReschedule(context.Background(), "c1", []models.LessonUpdate{u}, logs))
	assert.NotEmpty(t, logs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryApplyRescheduleRollsBackOnClash(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)
	u := sampleUpdate(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM room_bookings WHERE booking_date").
		WillReturnRows(sqlmock.NewRows(bookingRowColumns).
			AddRow("b9", "r1", "t7", "c9", "l9", "2025-06-10", "10:00:00", "12:00:00", time.Now()))
	mock.ExpectRollback()

	err := repo.ApplyReschedule(context.Background(), "c1", []models.LessonUpdate{u}, nil)
	var conflictErr *models.ScheduleConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Equal(t, models.ConflictDimensionRoom, conflictErr.Type)
	assert.Equal(t, "l9", conflictErr.Conflict.LessonID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryApplyRescheduleMissingLesson(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)
	u := sampleUpdate(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM room_bookings WHERE booking_date").
		WillReturnRows(sqlmock.NewRows(bookingRowColumns))
	mock.ExpectExec("UPDATE lessons SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyReschedule(context.Background(), "c1", []models.LessonUpdate{u}, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
