package service

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
)

// Commit outcomes reported to metrics.
const (
	CommitOutcomeCommitted = "committed"
	CommitOutcomeRejected  = "rejected"
	CommitOutcomeFailed    = "failed"
)

// FieldError names the request field that failed to parse.
type FieldError struct {
	LessonID string `json:"lesson_id,omitempty"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

func validationFailure(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, len(verrs))
		for i, fe := range verrs {
			details[i] = FieldError{Field: fe.Namespace(), Message: fmt.Sprintf("failed %s validation", fe.Tag())}
		}
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid request"), details)
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
}

func parseFailure(lessonID, field string, err error) error {
	detail := FieldError{LessonID: lessonID, Field: field, Message: err.Error()}
	return appErrors.WithDetails(appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid %s", field)), []FieldError{detail})
}

func notFoundOr(err error, message, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func rejectionFailure(err *scheduling.CommitRejectedError) error {
	if errors.Is(err, scheduling.ErrNothingToCommit) {
		return appErrors.Clone(appErrors.ErrValidation, "select at least one lesson to reschedule")
	}
	return appErrors.WithDetails(appErrors.Wrap(err, appErrors.ErrCommitRejected.Code, appErrors.ErrCommitRejected.Status, appErrors.ErrCommitRejected.Message), err.Rejections)
}

func conflictFailure(err *models.ScheduleConflictError) error {
	details := err.Errors
	if len(details) == 0 {
		details = []models.ScheduleConflict{err.Conflict}
	}
	return appErrors.WithDetails(appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("schedule conflict: %s", err.Message)), details)
}
