package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so callers can decide between
// retrying, rejecting input, and surfacing a server fault.
type ErrorKind string

const (
	// ErrKindIngest marks an unreadable source, fatal for the run.
	ErrKindIngest ErrorKind = "ingest"
	// ErrKindParse marks a malformed row, recovered locally by dropping it.
	ErrKindParse ErrorKind = "parse"
	// ErrKindDataValidation marks non-finite values that survived
	// sanitization or reached the trainer, fatal for the run.
	ErrKindDataValidation ErrorKind = "data_validation"
	// ErrKindShapeMismatch marks inconsistent feature-vector arity.
	ErrKindShapeMismatch ErrorKind = "shape_mismatch"
	// ErrKindTraining marks numerical divergence or a backend failure
	// during fit.
	ErrKindTraining ErrorKind = "training"
	// ErrKindCancelled marks explicit caller cancellation; the whole run
	// may be retried.
	ErrKindCancelled ErrorKind = "cancelled"
	// ErrKindNetwork marks an upstream I/O failure; retryable.
	ErrKindNetwork ErrorKind = "network"
)

// PipelineError is the structured error crossing the API boundary.
// Callers receive kind + message, never stack traces.
type PipelineError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError builds a PipelineError with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a PipelineError around an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the error kind, or empty string for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
