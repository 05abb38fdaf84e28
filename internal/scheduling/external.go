package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ConflictQuery asks whether a lesson may occupy a room and teacher at a placement.
// ExcludeSubjectID keeps the lesson from colliding with its own booking.
type ConflictQuery struct {
	LessonID         string       `json:"lesson_id"`
	ClassID          string       `json:"class_id,omitempty"`
	RoomID           string       `json:"room_id,omitempty"`
	TeacherID        string       `json:"teacher_id,omitempty"`
	Date             CalendarDate `json:"date"`
	Interval         TimeInterval `json:"interval"`
	ExcludeSubjectID string       `json:"exclude_subject_id,omitempty"`
}

// ConflictDescriptor names one existing booking that blocks a query.
type ConflictDescriptor struct {
	Kind      OwnerKind    `json:"kind"`
	OwnerID   string       `json:"owner_id"`
	SubjectID string       `json:"subject_id,omitempty"`
	BookingID string       `json:"booking_id,omitempty"`
	Date      CalendarDate `json:"date"`
	Interval  TimeInterval `json:"interval"`
	Message   string       `json:"message,omitempty"`
}

func (d ConflictDescriptor) String() string {
	if d.Message != "" {
		return d.Message
	}
	return fmt.Sprintf("%s %s is booked by %s on %s %s", d.Kind, d.OwnerID, d.SubjectID, d.Date, d.Interval)
}

// ConflictResult is the checker's answer for one query.
type ConflictResult struct {
	HasConflict bool                 `json:"has_conflict"`
	Conflicts   []ConflictDescriptor `json:"conflicts"`
}

// ConflictChecker is the backend-authoritative room and teacher check.
type ConflictChecker interface {
	CheckConflict(ctx context.Context, query ConflictQuery) (ConflictResult, error)
}

// ConflictCheckerFunc adapts a function to ConflictChecker.
type ConflictCheckerFunc func(ctx context.Context, query ConflictQuery) (ConflictResult, error)

func (f ConflictCheckerFunc) CheckConflict(ctx context.Context, query ConflictQuery) (ConflictResult, error) {
	return f(ctx, query)
}

// ExternalCheckOptions bounds the fan-out of availability checks.
type ExternalCheckOptions struct {
	// Concurrency caps in-flight checks; zero or less means unbounded.
	Concurrency int
	// Timeout applies to each check separately.
	Timeout time.Duration
	// Registry, when set, discards results superseded by a newer check of the same lesson.
	Registry *CheckRegistry
	// ReassignRoom leaves the room out of each query. The caller picks a free
	// room at commit time, so only teacher and class are checked here.
	ReassignRoom bool
}

// CheckAgainstExternalAvailability evaluates cs locally and, when no selected
// edits overlap each other, asks checker about every locally ok edit in
// parallel. A failed or superseded check leaves that edit unknown rather than
// ok or conflict. The returned error is only the caller's context error.
func CheckAgainstExternalAvailability(ctx context.Context, cs ChangeSet, today CalendarDate, checker ConflictChecker, opts ExternalCheckOptions) (Report, error) {
	report := cs.Evaluate(today)
	if len(report.Pairs) > 0 || checker == nil {
		return report, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	moving := cs.movingLessons()

	for i := range report.Evaluations {
		ev := report.Evaluations[i]
		if !ev.Ready() {
			continue
		}
		i := i
		edit := cs.edits[i]
		roomID := edit.RoomID
		if opts.ReassignRoom {
			roomID = ""
		}
		query := ConflictQuery{
			LessonID:         edit.LessonID,
			ClassID:          cs.classID,
			RoomID:           roomID,
			TeacherID:        edit.TeacherID,
			Date:             report.proposals[i].Date,
			Interval:         report.proposals[i].Interval,
			ExcludeSubjectID: edit.LessonID,
		}
		g.Go(func() error {
			result, err := runCheck(gctx, checker, query, cs.classID, opts)
			target := &report.Evaluations[i]
			target.Checked = true
			if err != nil {
				target.CheckErr = &ExternalCheckError{LessonID: query.LessonID, Err: err}
			} else if conflicts, blocked := withoutMoving(result, moving); blocked {
				target.Conflict = true
				target.ExternalConflicts = conflicts
			}
			target.resolve()
			return nil
		})
	}

	_ = g.Wait()
	return report, ctx.Err()
}

// movingLessons lists the selected edits. Their current bookings are vacated
// by the same commit, so they never block another edit of the batch.
func (cs ChangeSet) movingLessons() map[string]struct{} {
	out := make(map[string]struct{})
	for _, e := range cs.edits {
		if e.Selected {
			out[e.LessonID] = struct{}{}
		}
	}
	return out
}

// withoutMoving drops conflicts held by lessons of the batch. A conflict
// verdict without descriptors still blocks.
func withoutMoving(result ConflictResult, moving map[string]struct{}) ([]ConflictDescriptor, bool) {
	if len(result.Conflicts) == 0 {
		return result.Conflicts, result.HasConflict
	}
	kept := make([]ConflictDescriptor, 0, len(result.Conflicts))
	for _, c := range result.Conflicts {
		if _, ok := moving[c.SubjectID]; ok && c.SubjectID != "" {
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(kept) > 0
}

func runCheck(ctx context.Context, checker ConflictChecker, query ConflictQuery, classID string, opts ExternalCheckOptions) (ConflictResult, error) {
	var ticket CheckTicket
	if opts.Registry != nil {
		ctx, ticket = opts.Registry.Begin(ctx, classID+"/"+query.LessonID)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result, err := checker.CheckConflict(ctx, query)
	if opts.Registry != nil && !opts.Registry.Accept(ticket) {
		return ConflictResult{}, ErrSuperseded
	}
	return result, err
}

// CheckTicket identifies one in-flight check.
type CheckTicket struct {
	Key string
	seq uint64
}

type pendingCheck struct {
	seq    uint64
	cancel context.CancelFunc
}

// CheckRegistry gives last-write-wins semantics to per-lesson checks: starting
// a check cancels the previous one for the same key, and only the newest
// ticket is accepted.
type CheckRegistry struct {
	mu      sync.Mutex
	seq     uint64
	pending map[string]pendingCheck
}

// NewCheckRegistry builds an empty registry.
func NewCheckRegistry() *CheckRegistry {
	return &CheckRegistry{pending: make(map[string]pendingCheck)}
}

// Begin starts a check for key and returns its context and ticket.
func (r *CheckRegistry) Begin(ctx context.Context, key string) (context.Context, CheckTicket) {
	checkCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.pending[key]; ok {
		prev.cancel()
	}
	r.seq++
	r.pending[key] = pendingCheck{seq: r.seq, cancel: cancel}
	return checkCtx, CheckTicket{Key: key, seq: r.seq}
}

// Accept finishes a check. It returns false when a newer check for the same
// key has started, in which case the caller must discard the result.
func (r *CheckRegistry) Accept(t CheckTicket) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.pending[t.Key]
	if !ok || current.seq != t.seq {
		return false
	}
	current.cancel()
	delete(r.pending, t.Key)
	return true
}

// Cancel abandons the pending check for key, if any.
func (r *CheckRegistry) Cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.pending[key]; ok {
		prev.cancel()
		delete(r.pending, key)
	}
}

// Pending reports how many checks are in flight.
func (r *CheckRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
