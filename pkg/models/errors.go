package models

import (
	"errors"
	"fmt"
)

// ErrValidation is the sentinel wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports a malformed task. It is never retried.
type ValidationError struct {
	// TaskID is the offending task, if it has one.
	TaskID string
	// Field is the missing or invalid field.
	Field string
	// Reason describes what is wrong.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed for task %s: %s: %s", e.TaskID, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError.
func NewValidationError(taskID, field, reason string) *ValidationError {
	return &ValidationError{TaskID: taskID, Field: field, Reason: reason}
}
