package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidID and related errors describe validation failures.
var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrTitleTooLong       = errors.New("title too long")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrInvalidEstimate    = errors.New("invalid estimated hours")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidPriority    = errors.New("invalid priority")
	ErrInvalidPosition    = errors.New("invalid position")
	ErrInvalidTimeSpent   = errors.New("invalid time spent")
)

// ValidationError reports which task field rejected its value.
type ValidationError struct {
	Field string
	Err   error
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalidField(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
