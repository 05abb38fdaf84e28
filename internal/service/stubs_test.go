package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
	"github.com/noah-isme/sma-reschedule-api/pkg/jobs"
)

func mustDate(t *testing.T, raw string) scheduling.CalendarDate {
	t.Helper()
	d, err := scheduling.ParseFlexibleDate(raw)
	require.NoError(t, err)
	return d
}

func tod(h, m int) scheduling.TimeOfDay {
	return scheduling.TimeOfDay{Hour: h, Minute: m}
}

func fixedNow(raw string) func() time.Time {
	ts, err := time.Parse("2006-01-02 15:04", raw)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

type bookingStub struct {
	rows []models.RoomBooking
	err  error
}

func (b *bookingStub) inRange(row models.RoomBooking, from, to scheduling.CalendarDate) bool {
	return !row.BookingDate.Before(from) && !row.BookingDate.After(to)
}

func (b *bookingStub) ListByRoom(ctx context.Context, roomID string, from, to scheduling.CalendarDate) ([]models.RoomBooking, error) {
	if b.err != nil {
		return nil, b.err
	}
	var out []models.RoomBooking
	for _, row := range b.rows {
		if row.RoomID == roomID && b.inRange(row, from, to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (b *bookingStub) ListByTeacher(ctx context.Context, teacherID string, from, to scheduling.CalendarDate) ([]models.RoomBooking, error) {
	if b.err != nil {
		return nil, b.err
	}
	var out []models.RoomBooking
	for _, row := range b.rows {
		if row.TeacherID == teacherID && b.inRange(row, from, to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (b *bookingStub) ListByDateRange(ctx context.Context, from, to scheduling.CalendarDate) ([]models.RoomBooking, error) {
	if b.err != nil {
		return nil, b.err
	}
	var out []models.RoomBooking
	for _, row := range b.rows {
		if b.inRange(row, from, to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (b *bookingStub) ListOverlapping(ctx context.Context, roomID, teacherID, classID string, date scheduling.CalendarDate, interval scheduling.TimeInterval, excludeLessonID string) ([]models.RoomBooking, error) {
	if b.err != nil {
		return nil, b.err
	}
	var out []models.RoomBooking
	for _, row := range b.rows {
		if !row.BookingDate.Equal(date) || row.LessonID == excludeLessonID {
			continue
		}
		if !scheduling.IntervalsOverlap(interval, scheduling.TimeInterval{Start: row.StartTime, End: row.EndTime}) {
			continue
		}
		if row.RoomID == roomID || row.TeacherID == teacherID || row.ClassID == classID {
			out = append(out, row)
		}
	}
	return out, nil
}

type roomStub struct {
	rooms []models.Room
	err   error
	lists int
}

func (r *roomStub) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, int, error) {
	r.lists++
	if r.err != nil {
		return nil, 0, r.err
	}
	return r.rooms, len(r.rooms), nil
}

func (r *roomStub) ListAll(ctx context.Context) ([]models.Room, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.rooms, nil
}

func (r *roomStub) FindByID(ctx context.Context, id string) (*models.Room, error) {
	for _, room := range r.rooms {
		if room.ID == id {
			cp := room
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

type lessonStub struct {
	lessons  []models.Lesson
	logs     []models.RescheduleLog
	applyErr error

	applied    int
	updates    []models.LessonUpdate
	appliedLog []models.RescheduleLog
}

func (l *lessonStub) ListByClass(ctx context.Context, classID string) ([]models.Lesson, error) {
	var out []models.Lesson
	for _, lesson := range l.lessons {
		if lesson.ClassID == classID {
			out = append(out, lesson)
		}
	}
	return out, nil
}

func (l *lessonStub) ListLogs(ctx context.Context, classID string, limit int) ([]models.RescheduleLog, error) {
	if len(l.logs) > limit {
		return l.logs[:limit], nil
	}
	return l.logs, nil
}

func (l *lessonStub) ApplyReschedule(ctx context.Context, classID string, updates []models.LessonUpdate, logs []models.RescheduleLog) error {
	l.applied++
	if l.applyErr != nil {
		return l.applyErr
	}
	l.updates = updates
	l.appliedLog = logs
	return nil
}

type queueStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type cacheRepoStub struct {
	data     map[string]interface{}
	patterns []string
	err      error
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	if c.err != nil {
		return c.err
	}
	return appErrors.ErrCacheMiss
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.data == nil {
		c.data = make(map[string]interface{})
	}
	c.data[key] = value
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	if c.err != nil {
		return c.err
	}
	c.patterns = append(c.patterns, pattern)
	return nil
}
