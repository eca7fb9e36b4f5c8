// Package errs classifies the failures returned by the ledger, feasibility and
// work-order services. Callers branch on the sentinels with errors.Is.
//
// Stock insufficiency is deliberately absent: it is reported as warnings, never
// as an error.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnavailable       = errors.New("store unavailable")
	ErrBusy              = errors.New("already running")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError names the current and requested states of a rejected
// state change.
type TransitionError struct {
	From string
	To   string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, entity, id)
}

// Unavailable wraps a store failure as retryable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// IsNotFound returns true if err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidTransition returns true if err is an illegal state change.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// Busy reports an operation refused because another run of it is in flight.
func Busy(op string) error {
	return fmt.Errorf("%w: %s", ErrBusy, op)
}

// IsBusy returns true if err is a refused overlapping run.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsRetryable returns true if the operation may be retried by the caller.
// Nothing in this module retries on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// ErrorOrNil returns nil when nothing was collected.
func (e MultiError) ErrorOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}
