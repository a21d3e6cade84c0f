package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrDuplicatePeriod indicates that a closure bulletin already seals the requested period.
var ErrDuplicatePeriod = errors.New("closure already exists for period")

// AppError carries an HTTP-ish status code alongside a wrapped cause.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError builds an AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewNotFoundError wraps ErrNotFound with the name of the missing resource.
func NewNotFoundError(resource string) error {
	return fmt.Errorf("%s: %w", resource, ErrNotFound)
}

// NewValidationError wraps ErrValidation with a description of the invalid input.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// DuplicatePeriodError is returned when a closure already exists for
// (ClosureType, Start, End). It matches ErrDuplicatePeriod under errors.Is.
type DuplicatePeriodError struct {
	ClosureType string
	Start       time.Time
	End         time.Time
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("%s closure already exists for period %s - %s",
		e.ClosureType, e.Start.UTC().Format(time.RFC3339Nano), e.End.UTC().Format(time.RFC3339Nano))
}

func (e *DuplicatePeriodError) Unwrap() error {
	return ErrDuplicatePeriod
}
