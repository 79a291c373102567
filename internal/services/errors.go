package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curriculum-planner/internal/timeline"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// ConfirmationRequiredError asks the client to repeat the request with an
// explicit confirmation flag.
type ConfirmationRequiredError struct{ Message string }

func (e *ConfirmationRequiredError) Error() string { return e.Message }

func notFoundOr(err error, message string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: message}
	}
	return err
}

// planInputError turns a scheduler input error into a field-level
// validation error. Index errors become 404s since indexes come from the
// URL or a move request.
func planInputError(field string, err error) error {
	var actErr *timeline.ActivityError
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &actErr):
		key := fmt.Sprintf("units[%d].activities[%d].duration_hours", actErr.Unit, actErr.Activity)
		if errors.Is(err, timeline.ErrInvalidDate) {
			key = fmt.Sprintf("units[%d].activities[%d].fixed_date", actErr.Unit, actErr.Activity)
		}
		return &ValidationError{Fields: map[string]string{key: actErr.Err.Error()}}
	case errors.Is(err, timeline.ErrIndexOutOfRange):
		return &NotFoundError{Message: err.Error()}
	case errors.Is(err, timeline.ErrInvalidDate),
		errors.Is(err, timeline.ErrInvalidRange),
		errors.Is(err, timeline.ErrInvalidWeeklyHours),
		errors.Is(err, timeline.ErrInvalidDuration):
		return &ValidationError{Fields: map[string]string{field: err.Error()}}
	case errors.As(err, &typeErr), errors.As(err, &syntaxErr):
		return &ValidationError{Fields: map[string]string{field: "malformed document"}}
	}
	return err
}
