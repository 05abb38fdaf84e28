package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/internal/dto"
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
)

type rescheduleFixture struct {
	svc      *RescheduleService
	lessons  *lessonStub
	bookings *bookingStub
	queue    *queueStub
	checks   *atomic.Int32
}

func newRescheduleFixture(t *testing.T, checker scheduling.ConflictChecker) rescheduleFixture {
	t.Helper()
	lessons := &lessonStub{lessons: []models.Lesson{
		{ID: "l1", ClassID: "c1", TeacherID: "t1", RoomID: "r1", LessonDate: mustDate(t, "2024-03-05"), StartTime: tod(7, 30), EndTime: tod(9, 30), Status: models.LessonScheduled},
		{ID: "l2", ClassID: "c1", TeacherID: "t1", RoomID: "r1", LessonDate: mustDate(t, "2024-03-07"), StartTime: tod(7, 30), EndTime: tod(9, 30), Status: models.LessonScheduled},
		{ID: "l3", ClassID: "c1", TeacherID: "t1", RoomID: "r1", LessonDate: mustDate(t, "2024-03-12"), StartTime: tod(9, 50), EndTime: tod(11, 50), Status: models.LessonScheduled},
	}}
	bookings := &bookingStub{}
	queue := &queueStub{}
	checks := &atomic.Int32{}
	if checker == nil {
		checker = scheduling.ConflictCheckerFunc(func(ctx context.Context, q scheduling.ConflictQuery) (scheduling.ConflictResult, error) {
			checks.Add(1)
			return scheduling.ConflictResult{}, nil
		})
	}
	svc := NewRescheduleService(
		lessons,
		&roomStub{rooms: roomFixture()},
		bookings,
		checker,
		NewBookingConflictChecker(bookings, nil),
		queue,
		NewMetricsService(),
		RescheduleConfig{Location: time.UTC, CheckConcurrency: 2, CheckTimeout: time.Second},
		validator.New(),
		zap.NewNop(),
	)
	svc.now = fixedNow("2024-03-04 08:00")
	return rescheduleFixture{svc: svc, lessons: lessons, bookings: bookings, queue: queue, checks: checks}
}

func move(lessonID, date string, slot int) dto.LessonEditRequest {
	return dto.LessonEditRequest{LessonID: lessonID, Selected: true, NewDate: date, Slot: slot}
}

func TestRescheduleDraft(t *testing.T) {
	f := newRescheduleFixture(t, nil)

	draft, err := f.svc.Draft(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-04", draft.Today.String())
	assert.Len(t, draft.Slots, 6)
	require.Len(t, draft.Edits, 3)
	for _, e := range draft.Edits {
		assert.False(t, e.Selected)
		assert.Nil(t, e.ProposedDate)
	}

	_, err = f.svc.Draft(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestRescheduleDraftFromLessonSource(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.svc.WithLessonSource(func(ctx context.Context, classID string) ([]models.Lesson, error) {
		return []models.Lesson{{ID: "legacy-1", ClassID: classID, LessonDate: mustDate(t, "2024-03-05"), StartTime: tod(7, 30), EndTime: tod(9, 30)}}, nil
	})

	draft, err := f.svc.Draft(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, draft.Edits, 1)
	assert.Equal(t, "legacy-1", draft.Edits[0].LessonID)
}

func TestRescheduleValidateReportsStatuses(t *testing.T) {
	f := newRescheduleFixture(t, nil)

	report, err := f.svc.Validate(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		move("l1", "2024-03-01", 1),
		move("l2", "2024-03-06", 2),
		move("l3", "2024-03-06", 2),
	}})
	require.NoError(t, err)
	assert.False(t, report.Ready)

	statuses := map[string]scheduling.EditStatus{}
	for _, ev := range report.Evaluations {
		statuses[ev.LessonID] = ev.Status
	}
	assert.Equal(t, scheduling.StatusInvalidDate, statuses["l1"])
	assert.Equal(t, scheduling.StatusConflict, statuses["l2"])
	assert.Equal(t, scheduling.StatusConflict, statuses["l3"])
	require.Len(t, report.Pairs, 1)
	assert.Zero(t, f.checks.Load())
}

func TestRescheduleValidateUnsetAndTimes(t *testing.T) {
	f := newRescheduleFixture(t, nil)

	report, err := f.svc.Validate(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		{LessonID: "l1", Selected: true},
		{LessonID: "l2", Selected: true, NewDate: "20240308", NewStartTime: "13:30", NewEndTime: "15:00"},
	}})
	require.NoError(t, err)
	ev, ok := findEvaluation(report, "l1")
	require.True(t, ok)
	assert.Equal(t, scheduling.StatusUnset, ev.Status)
	ev, ok = findEvaluation(report, "l2")
	require.True(t, ok)
	assert.Equal(t, scheduling.StatusOK, ev.Status)
}

func TestRescheduleRejectsBadInput(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	ctx := context.Background()

	cases := map[string]dto.RescheduleRequest{
		"unknown lesson": {Edits: []dto.LessonEditRequest{move("nope", "2024-03-06", 1)}},
		"bad date":       {Edits: []dto.LessonEditRequest{move("l1", "03/06/2024", 1)}},
		"bad slot":       {Edits: []dto.LessonEditRequest{move("l1", "2024-03-06", 9)}},
		"reversed times": {Edits: []dto.LessonEditRequest{{LessonID: "l1", Selected: true, NewDate: "2024-03-06", NewStartTime: "10:00", NewEndTime: "09:00"}}},
		"no edits":       {},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Validate(ctx, "c1", req)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
		})
	}
}

func TestRescheduleApplySlotOverridesSelected(t *testing.T) {
	f := newRescheduleFixture(t, nil)

	report, err := f.svc.Validate(context.Background(), "c1", dto.RescheduleRequest{
		ApplySlot: 3,
		Edits: []dto.LessonEditRequest{
			move("l1", "2024-03-06", 1),
			{LessonID: "l2", Selected: false, NewDate: "2024-03-06", Slot: 1},
		},
	})
	require.NoError(t, err)
	assert.True(t, report.Ready, "unselected l2 does not collide with l1 moved to slot 3")
}

func TestRescheduleCheckMarksCheckerFailuresUnknown(t *testing.T) {
	checker := scheduling.ConflictCheckerFunc(func(ctx context.Context, q scheduling.ConflictQuery) (scheduling.ConflictResult, error) {
		if q.LessonID == "l2" {
			return scheduling.ConflictResult{}, errors.New("legacy backend timeout")
		}
		if q.LessonID == "l3" {
			return scheduling.ConflictResult{HasConflict: true, Conflicts: []scheduling.ConflictDescriptor{{Kind: scheduling.OwnerRoom, OwnerID: "r1", SubjectID: "x"}}}, nil
		}
		return scheduling.ConflictResult{}, nil
	})
	f := newRescheduleFixture(t, checker)

	report, err := f.svc.Check(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		move("l1", "2024-03-06", 1),
		move("l2", "2024-03-06", 2),
		move("l3", "2024-03-06", 3),
	}})
	require.NoError(t, err)
	assert.False(t, report.Ready)

	ev, _ := findEvaluation(report, "l1")
	assert.Equal(t, scheduling.StatusOK, ev.Status)
	assert.True(t, ev.Checked)
	ev, _ = findEvaluation(report, "l2")
	assert.Equal(t, scheduling.StatusUnknown, ev.Status)
	ev, _ = findEvaluation(report, "l3")
	assert.Equal(t, scheduling.StatusConflict, ev.Status)
	require.Len(t, report.Unchecked, 1)
	assert.Equal(t, "l2", report.Unchecked[0].LessonID)
}

func TestRescheduleCheckSkipsExternalWhenBatchOverlaps(t *testing.T) {
	f := newRescheduleFixture(t, nil)

	report, err := f.svc.Check(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		move("l1", "2024-03-06", 1),
		move("l2", "2024-03-06", 1),
		move("l3", "2024-03-07", 3),
	}})
	require.NoError(t, err)
	assert.Zero(t, f.checks.Load())
	require.Len(t, report.Unchecked, 1)
	assert.Equal(t, "l3", report.Unchecked[0].LessonID)
}

func TestRescheduleSubmitCommitsBatch(t *testing.T) {
	f := newRescheduleFixture(t, nil)

	result, err := f.svc.Submit(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		move("l1", "2024-03-06", 2),
		move("l3", "2024-03-13", 4),
	}}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Empty(t, result.RoomAssignments)
	assert.EqualValues(t, 2, f.checks.Load())

	require.Equal(t, 1, f.lessons.applied)
	require.Len(t, f.lessons.updates, 2)
	assert.Equal(t, "l1", f.lessons.updates[0].LessonID)
	assert.Equal(t, "r1", f.lessons.updates[0].RoomID)
	assert.Equal(t, tod(9, 50), f.lessons.updates[0].StartTime)
	require.Len(t, f.lessons.appliedLog, 2)
	assert.Equal(t, "2024-03-05", f.lessons.appliedLog[0].OldDate.String())
	assert.Equal(t, "admin-1", f.lessons.appliedLog[0].RequestedBy)

	require.Len(t, f.queue.jobs, 1)
	payload, ok := f.queue.jobs[0].Payload.(RescheduleCommitted)
	require.True(t, ok)
	assert.Equal(t, []string{"l1", "l3"}, payload.LessonIDs)
	assert.Equal(t, []string{"r1"}, payload.RoomIDs)
	assert.EqualValues(t, 1, f.svc.metrics.Snapshot().CommitsTotal)
}

func TestRescheduleSubmitRejectsWithoutCommitting(t *testing.T) {
	f := newRescheduleFixture(t, nil)

	_, err := f.svc.Submit(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		move("l1", "2024-03-06", 2),
		move("l2", "2024-03-01", 2),
	}}, "admin-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrCommitRejected.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrCommitRejected.Message, appErr.Message)
	assert.Equal(t, 1, strings.Count(appErr.Error(), "l2"), "lesson ids appear once")
	rejections, ok := appErr.Details.([]scheduling.Rejection)
	require.True(t, ok)
	require.Len(t, rejections, 1)
	assert.Equal(t, "l2", rejections[0].LessonID)

	assert.Zero(t, f.lessons.applied)
	assert.Empty(t, f.queue.jobs)
	assert.EqualValues(t, 1, f.svc.metrics.Snapshot().RejectionsTotal)
}

func TestRescheduleSubmitNothingSelected(t *testing.T) {
	f := newRescheduleFixture(t, nil)

	_, err := f.svc.Submit(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		{LessonID: "l1", Selected: false, NewDate: "2024-03-06", Slot: 1},
	}}, "admin-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Zero(t, f.lessons.applied)
}

func TestRescheduleSubmitMapsStoreConflict(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.lessons.applyErr = &models.ScheduleConflictError{
		Type:     "schedule_conflict",
		Message:  "room r1 is booked",
		Conflict: models.ScheduleConflict{LessonID: "other", RoomID: "r1", Dimension: models.ConflictDimensionRoom},
	}

	_, err := f.svc.Submit(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		move("l1", "2024-03-06", 2),
	}}, "admin-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Empty(t, f.queue.jobs)
}

func TestRescheduleSubmitAutoAssignsRooms(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.bookings.rows = []models.RoomBooking{
		{ID: "b1", RoomID: "r1", TeacherID: "t9", ClassID: "c9", LessonID: "x1", BookingDate: mustDate(t, "2024-03-06"), StartTime: tod(9, 50), EndTime: tod(11, 50)},
	}

	result, err := f.svc.Submit(context.Background(), "c1", dto.RescheduleRequest{
		AutoAssignRoom: true,
		PreferRoomID:   "r3",
		Edits: []dto.LessonEditRequest{
			move("l1", "2024-03-06", 2),
			move("l2", "2024-03-08", 2),
		},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"l1": "r3", "l2": "r3"}, result.RoomAssignments)
	for _, u := range f.lessons.updates {
		assert.Equal(t, "r3", u.RoomID)
	}
}

func TestRescheduleSubmitAutoAssignRanksWhenPreferredBusy(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.bookings.rows = []models.RoomBooking{
		{ID: "b1", RoomID: "r3", TeacherID: "t9", ClassID: "c9", LessonID: "x1", BookingDate: mustDate(t, "2024-03-06"), StartTime: tod(9, 50), EndTime: tod(11, 50)},
		{ID: "b2", RoomID: "r1", TeacherID: "t9", ClassID: "c9", LessonID: "x2", BookingDate: mustDate(t, "2024-03-06"), StartTime: tod(9, 50), EndTime: tod(11, 50)},
	}

	result, err := f.svc.Submit(context.Background(), "c1", dto.RescheduleRequest{
		AutoAssignRoom: true,
		PreferRoomID:   "r3",
		Edits:          []dto.LessonEditRequest{move("l1", "2024-03-06", 2)},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "r2", result.RoomAssignments["l1"], "same building and type as the current room")
}

func TestRescheduleSubmitAutoAssignLeavesBusyCurrentRoom(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.svc.checker = NewBookingConflictChecker(f.bookings, nil)
	f.bookings.rows = []models.RoomBooking{
		{ID: "b2", RoomID: "r1", TeacherID: "t9", ClassID: "c9", LessonID: "x2", BookingDate: mustDate(t, "2024-03-06"), StartTime: tod(9, 50), EndTime: tod(11, 50)},
	}
	req := dto.RescheduleRequest{
		PreferRoomID: "r3",
		Edits:        []dto.LessonEditRequest{move("l1", "2024-03-06", 2)},
	}

	_, err := f.svc.Submit(context.Background(), "c1", req, "admin-1")
	require.Error(t, err, "r1 is taken when the room is kept")
	assert.Equal(t, appErrors.ErrCommitRejected.Code, appErrors.FromError(err).Code)

	req.AutoAssignRoom = true
	result, err := f.svc.Submit(context.Background(), "c1", req, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "r3", result.RoomAssignments["l1"])
	require.Len(t, f.lessons.updates, 1)
	assert.Equal(t, "r3", f.lessons.updates[0].RoomID)
}

func TestRescheduleSubmitIntoSlotVacatedByBatch(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.svc.checker = NewBookingConflictChecker(f.bookings, nil)
	f.bookings.rows = []models.RoomBooking{
		{ID: "bl1", RoomID: "r1", TeacherID: "t1", ClassID: "c1", LessonID: "l1", BookingDate: mustDate(t, "2024-03-05"), StartTime: tod(7, 30), EndTime: tod(9, 30)},
		{ID: "bl2", RoomID: "r1", TeacherID: "t1", ClassID: "c1", LessonID: "l2", BookingDate: mustDate(t, "2024-03-07"), StartTime: tod(7, 30), EndTime: tod(9, 30)},
	}
	req := dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		move("l1", "2024-03-06", 2),
		move("l2", "2024-03-05", 1),
	}}

	report, err := f.svc.Check(context.Background(), "c1", req)
	require.NoError(t, err)
	for _, ev := range report.Evaluations {
		assert.Equal(t, scheduling.StatusOK, ev.Status, ev.LessonID)
	}

	req.AutoAssignRoom = true
	req.PreferRoomID = "r1"
	result, err := f.svc.Submit(context.Background(), "c1", req, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"l1": "r1", "l2": "r1"}, result.RoomAssignments)
}

func TestRescheduleCheckStillBlocksOutsideBooking(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.svc.checker = NewBookingConflictChecker(f.bookings, nil)
	f.bookings.rows = []models.RoomBooking{
		{ID: "bl1", RoomID: "r1", TeacherID: "t1", ClassID: "c1", LessonID: "l1", BookingDate: mustDate(t, "2024-03-05"), StartTime: tod(7, 30), EndTime: tod(9, 30)},
		{ID: "bx", RoomID: "r2", TeacherID: "t1", ClassID: "c7", LessonID: "x7", BookingDate: mustDate(t, "2024-03-05"), StartTime: tod(8, 0), EndTime: tod(9, 0)},
	}

	report, err := f.svc.Check(context.Background(), "c1", dto.RescheduleRequest{Edits: []dto.LessonEditRequest{
		move("l1", "2024-03-06", 2),
		move("l2", "2024-03-05", 1),
	}})
	require.NoError(t, err)
	ev, ok := findEvaluation(report, "l2")
	require.True(t, ok)
	assert.Equal(t, scheduling.StatusConflict, ev.Status)
	require.Len(t, ev.ExternalConflicts, 1)
	assert.Equal(t, "x7", ev.ExternalConflicts[0].SubjectID)
}

func TestRescheduleHistory(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.lessons.logs = []models.RescheduleLog{{ID: "log-1", ClassID: "c1", LessonID: "l1"}}

	history, err := f.svc.History(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, "c1", history.ClassID)
	assert.Len(t, history.Logs, 1)

	f.lessons.logs = nil
	history, err = f.svc.History(context.Background(), "c1", 10)
	require.NoError(t, err)
	assert.NotNil(t, history.Logs)
}

func TestRescheduleTeacherAvailability(t *testing.T) {
	f := newRescheduleFixture(t, nil)
	f.bookings.rows = []models.RoomBooking{
		{ID: "b1", RoomID: "r1", TeacherID: "t1", ClassID: "c9", LessonID: "x1", BookingDate: mustDate(t, "2024-03-11"), StartTime: tod(8, 0), EndTime: tod(9, 0)},
	}

	result, err := f.svc.TeacherAvailability(context.Background(), "t1", dto.TeacherAvailabilityRequest{
		Weekdays: []string{"monday", "Wed"}, StartTime: "07:30", EndTime: "09:30",
		StartDate: "2024-03-04", EndDate: "2024-03-17",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Checked)
	require.Len(t, result.Busy, 1)
	assert.Equal(t, "2024-03-11", result.Busy[0].Date.String())

	_, err = f.svc.TeacherAvailability(context.Background(), "t1", dto.TeacherAvailabilityRequest{
		Weekdays: []string{"funday"}, StartTime: "07:30", EndTime: "09:30", StartDate: "2024-03-04", EndDate: "2024-03-17",
	})
	require.Error(t, err)

	_, err = f.svc.TeacherAvailability(context.Background(), "t1", dto.TeacherAvailabilityRequest{
		Weekdays: []string{"monday"}, StartTime: "07:30", EndTime: "09:30", StartDate: "2024-03-17", EndDate: "2024-03-04",
	})
	require.Error(t, err)

	_, err = f.svc.TeacherAvailability(context.Background(), "t1", dto.TeacherAvailabilityRequest{
		Weekdays: []string{"monday"}, StartTime: "07:30", EndTime: "09:30", StartDate: "2024-01-01", EndDate: "2025-06-01",
	})
	require.Error(t, err)
}

func findEvaluation(report *dto.RescheduleReport, lessonID string) (scheduling.Evaluation, bool) {
	for _, ev := range report.Evaluations {
		if ev.LessonID == lessonID {
			return ev, true
		}
	}
	return scheduling.Evaluation{}, false
}
