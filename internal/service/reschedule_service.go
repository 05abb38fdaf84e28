package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-reschedule-api/internal/dto"
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	"github.com/noah-isme/sma-reschedule-api/pkg/jobs"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
)

const (
	// JobTypeRescheduleCommitted is enqueued after a batch is applied.
	JobTypeRescheduleCommitted = "reschedule.committed"

	defaultHistoryLimit = 50
)

type lessonStore interface {
	ListByClass(ctx context.Context, classID string) ([]models.Lesson, error)
	ListLogs(ctx context.Context, classID string, limit int) ([]models.RescheduleLog, error)
	ApplyReschedule(ctx context.Context, classID string, updates []models.LessonUpdate, logs []models.RescheduleLog) error
}

type roomCatalog interface {
	ListAll(ctx context.Context) ([]models.Room, error)
}

type teacherCalendar interface {
	CheckTeacherWeekly(ctx context.Context, teacherID string, pattern scheduling.WeeklyPattern, from, to scheduling.CalendarDate, excludeClassID string) (*dto.TeacherAvailability, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// LessonSourceFunc loads the lessons a draft is seeded from.
type LessonSourceFunc func(ctx context.Context, classID string) ([]models.Lesson, error)

// RescheduleConfig tunes the availability fan-out.
type RescheduleConfig struct {
	Location         *time.Location
	CheckConcurrency int
	CheckTimeout     time.Duration
	HistoryLimit     int
}

// RescheduleCommitted is the payload of the post-commit job.
type RescheduleCommitted struct {
	ClassID   string   `json:"class_id"`
	Actor     string   `json:"actor"`
	LessonIDs []string `json:"lesson_ids"`
	RoomIDs   []string `json:"room_ids"`
}

// RescheduleService evaluates and commits lesson reschedule batches.
type RescheduleService struct {
	lessons  lessonStore
	source   LessonSourceFunc
	rooms    roomCatalog
	bookings bookingReader
	checker  scheduling.ConflictChecker
	teachers teacherCalendar
	queue    jobEnqueuer
	metrics  *MetricsService
	registry *scheduling.CheckRegistry
	validate *validator.Validate
	logger   *zap.Logger
	cfg      RescheduleConfig
	now      func() time.Time
}

// NewRescheduleService wires the reschedule workflow.
func NewRescheduleService(
	lessons lessonStore,
	rooms roomCatalog,
	bookings bookingReader,
	checker scheduling.ConflictChecker,
	teachers teacherCalendar,
	queue jobEnqueuer,
	metrics *MetricsService,
	cfg RescheduleConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *RescheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	return &RescheduleService{
		lessons:  lessons,
		source:   lessons.ListByClass,
		rooms:    rooms,
		bookings: bookings,
		checker:  checker,
		teachers: teachers,
		queue:    queue,
		metrics:  metrics,
		registry: scheduling.NewCheckRegistry(),
		validate: validate,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithLessonSource seeds drafts and previews from another lesson source. Submit always reads the local store.
func (s *RescheduleService) WithLessonSource(source LessonSourceFunc) *RescheduleService {
	if source != nil {
		s.source = source
	}
	return s
}

func (s *RescheduleService) today() scheduling.CalendarDate {
	return scheduling.DateOf(s.now().In(s.cfg.Location))
}

func (s *RescheduleService) loadLessons(ctx context.Context, classID string, source LessonSourceFunc) ([]models.Lesson, error) {
	lessons, err := source(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lessons")
	}
	if len(lessons) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class has no scheduled lessons")
	}
	return lessons, nil
}

// Draft returns an unselected change-set seeded from the class's lessons.
func (s *RescheduleService) Draft(ctx context.Context, classID string) (*dto.RescheduleDraft, error) {
	lessons, err := s.loadLessons(ctx, classID, s.source)
	if err != nil {
		return nil, err
	}
	edits := make([]scheduling.LessonEdit, len(lessons))
	for i, l := range lessons {
		edits[i] = l.Edit()
	}
	return &dto.RescheduleDraft{ClassID: classID, Today: s.today(), Slots: scheduling.Slots(), Edits: edits}, nil
}

// Validate evaluates a batch locally without consulting the availability backend.
func (s *RescheduleService) Validate(ctx context.Context, classID string, req dto.RescheduleRequest) (*dto.RescheduleReport, error) {
	cs, err := s.changeSet(ctx, classID, req, s.source)
	if err != nil {
		return nil, err
	}
	today := s.today()
	report := cs.Evaluate(today)
	s.metrics.ObserveReport(report)
	return toReportDTO(classID, today, report, false), nil
}

// Check evaluates a batch locally and against the availability backend.
func (s *RescheduleService) Check(ctx context.Context, classID string, req dto.RescheduleRequest) (*dto.RescheduleReport, error) {
	cs, err := s.changeSet(ctx, classID, req, s.source)
	if err != nil {
		return nil, err
	}
	today := s.today()
	report, err := s.check(ctx, cs, today, req.AutoAssignRoom)
	if err != nil {
		return nil, err
	}
	return toReportDTO(classID, today, report, true), nil
}

// Submit commits the batch when every selected edit is ok, all or nothing.
func (s *RescheduleService) Submit(ctx context.Context, classID string, req dto.RescheduleRequest, actor string) (*dto.RescheduleResult, error) {
	lessons, err := s.loadLessons(ctx, classID, s.lessons.ListByClass)
	if err != nil {
		return nil, err
	}
	cs, err := s.buildChangeSet(classID, lessons, req)
	if err != nil {
		return nil, err
	}

	today := s.today()
	report, err := s.check(ctx, cs, today, req.AutoAssignRoom)
	if err != nil {
		return nil, err
	}

	committer := &lessonCommitter{svc: s, lessons: indexLessons(lessons), actor: actor}
	result, err := scheduling.SubmitReport(ctx, cs, report, committer, scheduling.CommitOptions{
		AutoAssignRoom:  req.AutoAssignRoom,
		PreferredRoomID: req.PreferRoomID,
	})
	if err != nil {
		return nil, s.commitFailure(classID, err)
	}

	s.metrics.RecordCommit(CommitOutcomeCommitted)
	s.logger.Info("reschedule committed",
		zap.String("class_id", classID),
		zap.String("actor", actor),
		zap.Int("applied", result.Applied),
	)
	s.enqueueCommitted(classID, actor, committer.committed)

	return &dto.RescheduleResult{ClassID: classID, Applied: result.Applied, RoomAssignments: result.RoomAssignments}, nil
}

// History lists committed moves for a class, newest first.
func (s *RescheduleService) History(ctx context.Context, classID string, limit int) (*dto.RescheduleHistory, error) {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	logs, err := s.lessons.ListLogs(ctx, classID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reschedule history")
	}
	if logs == nil {
		logs = []models.RescheduleLog{}
	}
	return &dto.RescheduleHistory{ClassID: classID, Logs: logs}, nil
}

// TeacherAvailability checks a recurring weekly placement against a teacher's bookings.
func (s *RescheduleService) TeacherAvailability(ctx context.Context, teacherID string, req dto.TeacherAvailabilityRequest) (*dto.TeacherAvailability, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationFailure(err)
	}
	interval, err := scheduling.ParseTimes(req.StartTime, req.EndTime)
	if err != nil {
		return nil, parseFailure("", "time", err)
	}
	from, err := scheduling.ParseFlexibleDate(req.StartDate)
	if err != nil {
		return nil, parseFailure("", "start_date", err)
	}
	to, err := scheduling.ParseFlexibleDate(req.EndDate)
	if err != nil {
		return nil, parseFailure("", "end_date", err)
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	if from.AddDays(maxWeeklyRangeDays).Before(to) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("date range exceeds %d days", maxWeeklyRangeDays))
	}

	pattern := scheduling.WeeklyPattern{Interval: interval}
	for _, name := range req.Weekdays {
		day, err := scheduling.ParseWeekday(name)
		if err != nil {
			return nil, parseFailure("", "weekdays", err)
		}
		pattern.Weekdays = append(pattern.Weekdays, day)
	}

	result, err := s.teachers.CheckTeacherWeekly(ctx, teacherID, pattern, from, to, req.ExcludeClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher availability")
	}
	return result, nil
}

func (s *RescheduleService) changeSet(ctx context.Context, classID string, req dto.RescheduleRequest, source LessonSourceFunc) (scheduling.ChangeSet, error) {
	lessons, err := s.loadLessons(ctx, classID, source)
	if err != nil {
		return scheduling.ChangeSet{}, err
	}
	return s.buildChangeSet(classID, lessons, req)
}

// buildChangeSet applies request rows to the stored lessons. A slot number
// wins over explicit times; ApplySlot then overrides every selected row.
func (s *RescheduleService) buildChangeSet(classID string, lessons []models.Lesson, req dto.RescheduleRequest) (scheduling.ChangeSet, error) {
	if err := s.validate.Struct(req); err != nil {
		return scheduling.ChangeSet{}, validationFailure(err)
	}

	edits := make([]scheduling.LessonEdit, len(lessons))
	for i, l := range lessons {
		edits[i] = l.Edit()
	}
	cs, err := scheduling.NewChangeSet(classID, edits)
	if err != nil {
		return scheduling.ChangeSet{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "invalid stored lessons")
	}

	for _, row := range req.Edits {
		var date *scheduling.CalendarDate
		if strings.TrimSpace(row.NewDate) != "" {
			d, err := scheduling.ParseFlexibleDate(row.NewDate)
			if err != nil {
				return scheduling.ChangeSet{}, parseFailure(row.LessonID, "new_date", err)
			}
			date = &d
		}

		var interval *scheduling.TimeInterval
		switch {
		case row.Slot > 0:
			slot, ok := scheduling.SlotByNumber(row.Slot)
			if !ok {
				return scheduling.ChangeSet{}, parseFailure(row.LessonID, "slot", fmt.Errorf("unknown slot %d", row.Slot))
			}
			iv := slot.Interval
			interval = &iv
		case row.NewStartTime != "" || row.NewEndTime != "":
			iv, err := scheduling.ParseTimes(row.NewStartTime, row.NewEndTime)
			if err != nil {
				return scheduling.ChangeSet{}, parseFailure(row.LessonID, "new_time", err)
			}
			interval = &iv
		}

		next, err := cs.Select(row.LessonID, row.Selected)
		if err != nil {
			return scheduling.ChangeSet{}, unknownLesson(row.LessonID, err)
		}
		if date != nil || interval != nil {
			if next, err = next.Propose(row.LessonID, date, interval); err != nil {
				return scheduling.ChangeSet{}, unknownLesson(row.LessonID, err)
			}
		}
		cs = next
	}

	if req.ApplySlot > 0 {
		slot, ok := scheduling.SlotByNumber(req.ApplySlot)
		if !ok {
			return scheduling.ChangeSet{}, parseFailure("", "apply_slot", fmt.Errorf("unknown slot %d", req.ApplySlot))
		}
		cs = cs.ApplySlotToSelected(slot)
	}
	return cs, nil
}

func unknownLesson(lessonID string, err error) error {
	if errors.Is(err, scheduling.ErrUnknownLesson) {
		return parseFailure(lessonID, "lesson_id", err)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply edit")
}

// check runs the backend check. With reassignRoom the current rooms are not
// queried, since assignRooms picks a free one inside the commit.
func (s *RescheduleService) check(ctx context.Context, cs scheduling.ChangeSet, today scheduling.CalendarDate, reassignRoom bool) (scheduling.Report, error) {
	start := time.Now()
	report, err := scheduling.CheckAgainstExternalAvailability(ctx, cs, today, s.checker, scheduling.ExternalCheckOptions{
		Concurrency:  s.cfg.CheckConcurrency,
		Timeout:      s.cfg.CheckTimeout,
		Registry:     s.registry,
		ReassignRoom: reassignRoom,
	})
	s.metrics.ObserveCheckBatch(time.Since(start))
	if err != nil {
		return scheduling.Report{}, appErrors.Wrap(err, appErrors.ErrExternalCheck.Code, appErrors.ErrExternalCheck.Status, "availability check aborted")
	}
	s.metrics.ObserveReport(report)
	for _, ev := range report.Evaluations {
		if ev.CheckErr != nil {
			s.logger.Warn("availability check failed",
				zap.String("class_id", cs.ClassID()),
				zap.String("lesson_id", ev.LessonID),
				zap.Error(ev.CheckErr.Err),
			)
		}
	}
	return report, nil
}

func (s *RescheduleService) commitFailure(classID string, err error) error {
	var rejected *scheduling.CommitRejectedError
	if errors.As(err, &rejected) {
		s.metrics.RecordCommit(CommitOutcomeRejected)
		s.logger.Info("reschedule rejected", zap.String("class_id", classID), zap.Error(err))
		return rejectionFailure(rejected)
	}
	var conflict *models.ScheduleConflictError
	if errors.As(err, &conflict) {
		s.metrics.RecordCommit(CommitOutcomeRejected)
		s.logger.Info("reschedule hit a booking conflict", zap.String("class_id", classID), zap.Error(err))
		return conflictFailure(conflict)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		if appErr.Status == appErrors.ErrConflict.Status {
			s.metrics.RecordCommit(CommitOutcomeRejected)
		} else {
			s.metrics.RecordCommit(CommitOutcomeFailed)
		}
		return appErr
	}
	s.metrics.RecordCommit(CommitOutcomeFailed)
	s.logger.Error("reschedule commit failed", zap.String("class_id", classID), zap.Error(err))
	return notFoundOr(err, "lesson no longer exists", "failed to apply reschedule")
}

func (s *RescheduleService) enqueueCommitted(classID, actor string, committed []models.LessonUpdate) {
	if s.queue == nil {
		return
	}
	payload := RescheduleCommitted{ClassID: classID, Actor: actor}
	rooms := make(map[string]struct{})
	for _, u := range committed {
		payload.LessonIDs = append(payload.LessonIDs, u.LessonID)
		if _, seen := rooms[u.RoomID]; !seen && u.RoomID != "" {
			rooms[u.RoomID] = struct{}{}
			payload.RoomIDs = append(payload.RoomIDs, u.RoomID)
		}
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeRescheduleCommitted, Payload: payload}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue post-commit job", zap.String("class_id", classID), zap.Error(err))
	}
}

func toReportDTO(classID string, today scheduling.CalendarDate, report scheduling.Report, external bool) *dto.RescheduleReport {
	out := &dto.RescheduleReport{
		ClassID:     classID,
		Today:       today,
		Ready:       report.Ready(),
		Evaluations: report.Evaluations,
		Pairs:       report.Pairs,
	}
	if !external {
		return out
	}
	for _, ev := range report.Evaluations {
		switch {
		case ev.CheckErr != nil:
			out.Unchecked = append(out.Unchecked, dto.UncheckedLesson{LessonID: ev.LessonID, Reason: ev.CheckErr.Err.Error()})
		case ev.Ready() && !ev.Checked && len(report.Pairs) > 0:
			out.Unchecked = append(out.Unchecked, dto.UncheckedLesson{LessonID: ev.LessonID, Reason: "skipped while selected lessons overlap each other"})
		}
	}
	return out
}

func indexLessons(lessons []models.Lesson) map[string]models.Lesson {
	out := make(map[string]models.Lesson, len(lessons))
	for _, l := range lessons {
		out[l.ID] = l
	}
	return out
}

// lessonCommitter turns a validated batch into one repository transaction.
type lessonCommitter struct {
	svc       *RescheduleService
	lessons   map[string]models.Lesson
	actor     string
	committed []models.LessonUpdate
}

func (c *lessonCommitter) ApplyReschedule(ctx context.Context, batch scheduling.Batch, opts scheduling.CommitOptions) (*scheduling.CommitResult, error) {
	result := &scheduling.CommitResult{}
	if opts.AutoAssignRoom {
		assignments, err := c.svc.assignRooms(ctx, batch, opts.PreferredRoomID)
		if err != nil {
			return nil, err
		}
		result.RoomAssignments = assignments
	}

	now := c.svc.now().UTC()
	updates := make([]models.LessonUpdate, 0, len(batch.Items))
	logs := make([]models.RescheduleLog, 0, len(batch.Items))
	for _, item := range batch.Items {
		lesson, ok := c.lessons[item.LessonID]
		if !ok {
			return nil, fmt.Errorf("lesson %s: %w", item.LessonID, scheduling.ErrUnknownLesson)
		}
		roomID := item.RoomID
		if assigned, ok := result.RoomAssignments[item.LessonID]; ok {
			roomID = assigned
		}
		updates = append(updates, models.LessonUpdate{
			LessonID:  item.LessonID,
			RoomID:    roomID,
			TeacherID: item.TeacherID,
			Date:      item.Date,
			StartTime: item.Interval.Start,
			EndTime:   item.Interval.End,
		})
		logs = append(logs, models.RescheduleLog{
			ClassID:      batch.ClassID,
			LessonID:     item.LessonID,
			OldDate:      lesson.LessonDate,
			OldStartTime: lesson.StartTime,
			OldEndTime:   lesson.EndTime,
			NewDate:      item.Date,
			NewStartTime: item.Interval.Start,
			NewEndTime:   item.Interval.End,
			RoomID:       roomID,
			RequestedBy:  c.actor,
			CreatedAt:    now,
		})
	}

	if err := c.svc.lessons.ApplyReschedule(ctx, batch.ClassID, updates, logs); err != nil {
		return nil, err
	}
	c.committed = updates
	result.Applied = len(updates)
	return result, nil
}

// assignRooms picks a free room for every item. The preferred room wins when
// free; otherwise rooms are ranked against the lesson's current room. Rooms
// given to earlier items in the batch count as booked for later ones.
func (s *RescheduleService) assignRooms(ctx context.Context, batch scheduling.Batch, preferredRoomID string) (map[string]string, error) {
	if len(batch.Items) == 0 {
		return nil, nil
	}
	from, to := batch.Items[0].Date, batch.Items[0].Date
	for _, item := range batch.Items[1:] {
		if item.Date.Before(from) {
			from = item.Date
		}
		if item.Date.After(to) {
			to = item.Date
		}
	}

	rows, err := s.rooms.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rooms")
	}
	bookingRows, err := s.bookings.ListByDateRange(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}

	rooms := models.RoomsToDomain(rows)
	byID := make(map[string]scheduling.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}
	booked := scheduling.GroupByOwner(models.RoomBookings(bookingRows), scheduling.OwnerRoom)
	vacated := make(map[string]struct{}, len(batch.Items))
	for _, item := range batch.Items {
		vacated[item.LessonID] = struct{}{}
	}
	for roomID, list := range booked {
		kept := list[:0]
		for _, b := range list {
			if _, ok := vacated[b.SubjectID]; !ok {
				kept = append(kept, b)
			}
		}
		booked[roomID] = kept
	}

	items := append([]scheduling.RescheduleItem(nil), batch.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].Interval.Start.Before(items[j].Interval.Start)
	})

	assignments := make(map[string]string, len(items))
	for _, item := range items {
		at := scheduling.Placement{Date: item.Date, Interval: item.Interval}
		chosen := ""
		if preferred, ok := byID[preferredRoomID]; ok && preferred.Active() && scheduling.IsAvailable(preferred, at, booked[preferred.ID], item.LessonID) {
			chosen = preferred.ID
		}
		if chosen == "" {
			current := byID[item.RoomID]
			free := scheduling.FilterAvailable(rooms, at, booked, scheduling.RoomConstraints{ExcludeSubjectID: item.LessonID})
			ranked := scheduling.RankRooms(free, scheduling.RoomPreferences{
				MinCapacity:       current.Capacity,
				PreferredBuilding: current.Building,
				PreferredType:     current.Type,
			})
			for _, r := range ranked {
				if r.Room.Active() {
					chosen = r.Room.ID
					break
				}
			}
		}
		if chosen == "" {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("no free room for lesson %s on %s %s", item.LessonID, item.Date, item.Interval))
		}
		assignments[item.LessonID] = chosen
		booked[chosen] = append(booked[chosen], scheduling.Booking{
			Date:      item.Date,
			Interval:  item.Interval,
			OwnerKind: scheduling.OwnerRoom,
			OwnerID:   chosen,
			SubjectID: item.LessonID,
		})
	}
	return assignments, nil
}
