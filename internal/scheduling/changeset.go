package scheduling

import (
	"context"
	"fmt"
)

// LessonEdit is one proposed move of a lesson. RoomID and TeacherID carry the
// lesson's current owners so availability checks know what to ask about.
type LessonEdit struct {
	LessonID         string        `json:"lesson_id"`
	RoomID           string        `json:"room_id,omitempty"`
	TeacherID        string        `json:"teacher_id,omitempty"`
	OriginalDate     CalendarDate  `json:"original_date"`
	OriginalInterval TimeInterval  `json:"original_interval"`
	ProposedDate     *CalendarDate `json:"proposed_date,omitempty"`
	ProposedInterval *TimeInterval `json:"proposed_interval,omitempty"`
	Selected         bool          `json:"selected"`
}

// Proposal returns the proposed placement when both date and interval are set.
func (e LessonEdit) Proposal() (Placement, bool) {
	if e.ProposedDate == nil || e.ProposedInterval == nil {
		return Placement{}, false
	}
	return Placement{Date: *e.ProposedDate, Interval: *e.ProposedInterval}, true
}

func (e LessonEdit) clone() LessonEdit {
	out := e
	if e.ProposedDate != nil {
		d := *e.ProposedDate
		out.ProposedDate = &d
	}
	if e.ProposedInterval != nil {
		iv := *e.ProposedInterval
		out.ProposedInterval = &iv
	}
	return out
}

// EditStatus is the derived state of a lesson edit.
type EditStatus string

const (
	StatusUnset       EditStatus = "unset"
	StatusInvalidDate EditStatus = "invalid-date"
	StatusConflict    EditStatus = "conflict"
	StatusOK          EditStatus = "ok"
	// StatusUnknown means the external availability check could not answer.
	StatusUnknown EditStatus = "unknown"
)

// Evaluation is the verdict for one edit. InvalidDate and Conflict are
// independent; Status collapses them with unset > invalid-date > conflict.
type Evaluation struct {
	LessonID          string               `json:"lesson_id"`
	Selected          bool                 `json:"selected"`
	Unset             bool                 `json:"unset"`
	InvalidDate       bool                 `json:"invalid_date"`
	Conflict          bool                 `json:"conflict"`
	ConflictsWith     []string             `json:"conflicts_with,omitempty"`
	ExternalConflicts []ConflictDescriptor `json:"external_conflicts,omitempty"`
	Checked           bool                 `json:"checked"`
	CheckErr          *ExternalCheckError  `json:"-"`
	Status            EditStatus           `json:"status"`
}

// Ready reports whether the edit may be committed.
func (e Evaluation) Ready() bool {
	return e.Selected && e.Status == StatusOK
}

func (e *Evaluation) resolve() {
	switch {
	case e.Unset:
		e.Status = StatusUnset
	case e.InvalidDate:
		e.Status = StatusInvalidDate
	case e.Conflict:
		e.Status = StatusConflict
	case e.CheckErr != nil:
		e.Status = StatusUnknown
	default:
		e.Status = StatusOK
	}
}

func (e Evaluation) reasons(proposal Placement) []string {
	var reasons []string
	if e.Unset {
		reasons = append(reasons, "no date or slot proposed")
	}
	if e.InvalidDate {
		reasons = append(reasons, fmt.Sprintf("proposed date %s is in the past", proposal.Date))
	}
	for _, other := range e.ConflictsWith {
		reasons = append(reasons, fmt.Sprintf("overlaps lesson %s on %s", other, proposal.Date))
	}
	for _, c := range e.ExternalConflicts {
		reasons = append(reasons, c.String())
	}
	if e.CheckErr != nil {
		reasons = append(reasons, e.CheckErr.Error())
	}
	return reasons
}

// Report is the evaluation of a whole change-set, in edit order.
type Report struct {
	Evaluations []Evaluation   `json:"evaluations"`
	Pairs       []ConflictPair `json:"pairs,omitempty"`

	proposals []Placement
}

// Lookup finds the evaluation of one lesson.
func (r Report) Lookup(lessonID string) (Evaluation, bool) {
	for _, ev := range r.Evaluations {
		if ev.LessonID == lessonID {
			return ev, true
		}
	}
	return Evaluation{}, false
}

// Ready is true iff at least one edit is selected and every selected edit is ok.
func (r Report) Ready() bool {
	selected := 0
	for _, ev := range r.Evaluations {
		if !ev.Selected {
			continue
		}
		selected++
		if ev.Status != StatusOK {
			return false
		}
	}
	return selected > 0
}

// Rejections lists every selected edit that is not ok, with its reasons.
func (r Report) Rejections() []Rejection {
	var out []Rejection
	for i, ev := range r.Evaluations {
		if !ev.Selected || ev.Status == StatusOK {
			continue
		}
		var p Placement
		if i < len(r.proposals) {
			p = r.proposals[i]
		}
		out = append(out, Rejection{LessonID: ev.LessonID, Reasons: ev.reasons(p)})
	}
	return out
}

// ChangeSet is an immutable batch of edits for one class. Every update
// returns a new value and leaves the receiver untouched.
type ChangeSet struct {
	classID string
	edits   []LessonEdit
	index   map[string]int
}

// NewChangeSet copies edits into a change-set, rejecting duplicate lesson ids.
func NewChangeSet(classID string, edits []LessonEdit) (ChangeSet, error) {
	cs := ChangeSet{classID: classID, edits: make([]LessonEdit, len(edits)), index: make(map[string]int, len(edits))}
	for i, e := range edits {
		if _, dup := cs.index[e.LessonID]; dup {
			return ChangeSet{}, fmt.Errorf("%w: %s", ErrDuplicateLesson, e.LessonID)
		}
		cs.index[e.LessonID] = i
		cs.edits[i] = e.clone()
	}
	return cs, nil
}

func (cs ChangeSet) ClassID() string { return cs.classID }

func (cs ChangeSet) Len() int { return len(cs.edits) }

// Edits returns a copy of every edit.
func (cs ChangeSet) Edits() []LessonEdit {
	out := make([]LessonEdit, len(cs.edits))
	for i, e := range cs.edits {
		out[i] = e.clone()
	}
	return out
}

// Selected returns copies of the selected edits.
func (cs ChangeSet) Selected() []LessonEdit {
	var out []LessonEdit
	for _, e := range cs.edits {
		if e.Selected {
			out = append(out, e.clone())
		}
	}
	return out
}

// Edit returns a copy of one edit.
func (cs ChangeSet) Edit(lessonID string) (LessonEdit, bool) {
	i, ok := cs.index[lessonID]
	if !ok {
		return LessonEdit{}, false
	}
	return cs.edits[i].clone(), true
}

func (cs ChangeSet) update(lessonID string, fn func(*LessonEdit)) (ChangeSet, error) {
	i, ok := cs.index[lessonID]
	if !ok {
		return cs, fmt.Errorf("%w: %s", ErrUnknownLesson, lessonID)
	}
	next := ChangeSet{classID: cs.classID, edits: make([]LessonEdit, len(cs.edits)), index: cs.index}
	copy(next.edits, cs.edits)
	edit := cs.edits[i].clone()
	fn(&edit)
	next.edits[i] = edit
	return next, nil
}

// Select toggles whether a lesson takes part in the batch.
func (cs ChangeSet) Select(lessonID string, selected bool) (ChangeSet, error) {
	return cs.update(lessonID, func(e *LessonEdit) { e.Selected = selected })
}

// Propose sets the proposed date and interval. A nil argument clears that field.
func (cs ChangeSet) Propose(lessonID string, date *CalendarDate, interval *TimeInterval) (ChangeSet, error) {
	return cs.update(lessonID, func(e *LessonEdit) {
		e.ProposedDate, e.ProposedInterval = nil, nil
		if date != nil {
			d := *date
			e.ProposedDate = &d
		}
		if interval != nil {
			iv := *interval
			e.ProposedInterval = &iv
		}
	})
}

// Reset clears the proposal of one lesson but keeps its selection.
func (cs ChangeSet) Reset(lessonID string) (ChangeSet, error) {
	return cs.Propose(lessonID, nil, nil)
}

// ApplySlotToSelected sets slot as the proposed interval of every selected edit.
func (cs ChangeSet) ApplySlotToSelected(slot Slot) ChangeSet {
	next := ChangeSet{classID: cs.classID, edits: make([]LessonEdit, len(cs.edits)), index: cs.index}
	for i, e := range cs.edits {
		edit := e.clone()
		if edit.Selected {
			iv := slot.Interval
			edit.ProposedInterval = &iv
		}
		next.edits[i] = edit
	}
	return next
}

// Evaluate derives every edit's status against today. Only selected edits
// with a full proposal take part in pairwise overlap detection.
func (cs ChangeSet) Evaluate(today CalendarDate) Report {
	report := Report{
		Evaluations: make([]Evaluation, len(cs.edits)),
		proposals:   make([]Placement, len(cs.edits)),
	}
	complete := make([]bool, len(cs.edits))

	for i, e := range cs.edits {
		ev := Evaluation{LessonID: e.LessonID, Selected: e.Selected}
		p, ok := e.Proposal()
		if ok {
			report.proposals[i] = p
			complete[i] = true
			ev.InvalidDate = IsPast(p.Date, today)
		} else {
			ev.Unset = true
		}
		report.Evaluations[i] = ev
	}

	for i := range cs.edits {
		if !cs.edits[i].Selected || !complete[i] {
			continue
		}
		for j := i + 1; j < len(cs.edits); j++ {
			if !cs.edits[j].Selected || !complete[j] {
				continue
			}
			a, b := report.proposals[i], report.proposals[j]
			if !a.Overlaps(b) {
				continue
			}
			report.Evaluations[i].Conflict = true
			report.Evaluations[i].ConflictsWith = append(report.Evaluations[i].ConflictsWith, cs.edits[j].LessonID)
			report.Evaluations[j].Conflict = true
			report.Evaluations[j].ConflictsWith = append(report.Evaluations[j].ConflictsWith, cs.edits[i].LessonID)
			report.Pairs = append(report.Pairs, ConflictPair{
				First:          cs.edits[i].LessonID,
				Second:         cs.edits[j].LessonID,
				Date:           a.Date,
				FirstInterval:  a.Interval,
				SecondInterval: b.Interval,
			})
		}
	}

	for i := range report.Evaluations {
		report.Evaluations[i].resolve()
	}
	return report
}

// IsReady reports whether one lesson is selected, fully proposed, not in the
// past and free of intra-batch overlap.
func (cs ChangeSet) IsReady(lessonID string, today CalendarDate) bool {
	ev, ok := cs.Evaluate(today).Lookup(lessonID)
	return ok && ev.Ready()
}

// RescheduleItem is one committed move.
type RescheduleItem struct {
	LessonID  string       `json:"lesson_id"`
	RoomID    string       `json:"room_id,omitempty"`
	TeacherID string       `json:"teacher_id,omitempty"`
	Date      CalendarDate `json:"date"`
	Interval  TimeInterval `json:"interval"`
}

// Batch is the all-or-nothing unit handed to a Committer.
type Batch struct {
	ClassID string           `json:"class_id"`
	Items   []RescheduleItem `json:"items"`
}

// CommitOptions mirrors the room handling choices offered at submission.
type CommitOptions struct {
	AutoAssignRoom  bool   `json:"auto_assign_room"`
	PreferredRoomID string `json:"preferred_room_id,omitempty"`
}

// CommitResult reports what the committer applied.
type CommitResult struct {
	Applied         int               `json:"applied"`
	RoomAssignments map[string]string `json:"room_assignments,omitempty"`
}

// Committer applies a validated batch atomically.
type Committer interface {
	ApplyReschedule(ctx context.Context, batch Batch, opts CommitOptions) (*CommitResult, error)
}

// Submit evaluates cs against today and commits it only when every selected
// edit is ok. It never calls the committer for a rejected batch.
func Submit(ctx context.Context, cs ChangeSet, today CalendarDate, committer Committer, opts CommitOptions) (*CommitResult, error) {
	return SubmitReport(ctx, cs, cs.Evaluate(today), committer, opts)
}

// SubmitReport commits cs using an existing report, typically one that
// already includes external availability results.
func SubmitReport(ctx context.Context, cs ChangeSet, report Report, committer Committer, opts CommitOptions) (*CommitResult, error) {
	if !report.Ready() {
		rejections := report.Rejections()
		if len(rejections) == 0 {
			return nil, &CommitRejectedError{Err: ErrNothingToCommit}
		}
		return nil, &CommitRejectedError{Rejections: rejections}
	}

	batch := Batch{ClassID: cs.classID}
	for _, e := range cs.edits {
		if !e.Selected {
			continue
		}
		p, complete := e.Proposal()
		if ev, ok := report.Lookup(e.LessonID); !ok || !ev.Ready() || !complete {
			return nil, &CommitRejectedError{Rejections: []Rejection{{LessonID: e.LessonID, Reasons: []string{"edit was not evaluated"}}}}
		}
		batch.Items = append(batch.Items, RescheduleItem{
			LessonID:  e.LessonID,
			RoomID:    e.RoomID,
			TeacherID: e.TeacherID,
			Date:      p.Date,
			Interval:  p.Interval,
		})
	}
	return committer.ApplyReschedule(ctx, batch, opts)
}
