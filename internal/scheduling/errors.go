package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownLesson is returned when an edit targets a lesson outside the change-set.
	ErrUnknownLesson = errors.New("lesson not in change-set")
	// ErrDuplicateLesson is returned when a change-set lists the same lesson twice.
	ErrDuplicateLesson = errors.New("duplicate lesson in change-set")
	// ErrNothingToCommit is wrapped by CommitRejectedError when no edit is selected.
	ErrNothingToCommit = errors.New("no lessons selected")
	// ErrSuperseded marks a check result dropped because a newer check for the same lesson started.
	ErrSuperseded = errors.New("availability check superseded")
)

// ParseError reports malformed boundary input such as a date in an unknown format.
type ParseError struct {
	Kind   string
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Input, e.Reason)
}

// ConflictPair names two selected edits that overlap on the same date.
type ConflictPair struct {
	First          string       `json:"first"`
	Second         string       `json:"second"`
	Date           CalendarDate `json:"date"`
	FirstInterval  TimeInterval `json:"first_interval"`
	SecondInterval TimeInterval `json:"second_interval"`
}

func (p ConflictPair) String() string {
	return fmt.Sprintf("lessons %s (%s) and %s (%s) overlap on %s", p.First, p.FirstInterval, p.Second, p.SecondInterval, p.Date)
}

// ExternalCheckError records why a lesson's availability could not be confirmed.
type ExternalCheckError struct {
	LessonID string
	Err      error
}

func (e *ExternalCheckError) Error() string {
	return fmt.Sprintf("availability check for lesson %s failed: %v", e.LessonID, e.Err)
}

func (e *ExternalCheckError) Unwrap() error { return e.Err }

// Rejection lists why one lesson blocks a commit.
type Rejection struct {
	LessonID string   `json:"lesson_id"`
	Reasons  []string `json:"reasons"`
}

// CommitRejectedError is returned instead of committing when any selected edit is not ok.
type CommitRejectedError struct {
	Rejections []Rejection
	Err        error
}

func (e *CommitRejectedError) Error() string {
	if len(e.Rejections) == 0 {
		if e.Err != nil {
			return "reschedule rejected: " + e.Err.Error()
		}
		return "reschedule rejected"
	}
	ids := make([]string, len(e.Rejections))
	for i, r := range e.Rejections {
		ids[i] = r.LessonID
	}
	return fmt.Sprintf("reschedule rejected for lessons %s", strings.Join(ids, ", "))
}

func (e *CommitRejectedError) Unwrap() error { return e.Err }
