package engine

import (
	"context"
	"errors"
	"fmt"
)

// CommitError represents an error detected while committing a session.
//
// Commit errors include:
//   - Validation: unsupported save mode
//   - Remote failure: a batch entry or a single call was rejected
//   - Cancelled: the context was cancelled mid-commit
//
// CommitError carries the last phase reached so callers can tell how much
// of the commit was applied remotely.
type CommitError struct {
	// Code identifies the error category.
	Code CommitErrorCode

	// Phase is the last phase reached before the failure.
	Phase Phase

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// CommitErrorCode categorizes commit errors.
type CommitErrorCode string

const (
	// ErrCodeValidation indicates an unsupported save mode was requested.
	ErrCodeValidation CommitErrorCode = "VALIDATION"

	// ErrCodeRemoteFailure indicates the remote store rejected a call.
	ErrCodeRemoteFailure CommitErrorCode = "REMOTE_FAILURE"

	// ErrCodeCancelled indicates the commit was cancelled.
	ErrCodeCancelled CommitErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *CommitError) Error() string {
	msg := fmt.Sprintf("%s: %s (phase=%s)", e.Code, e.Message, e.Phase)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *CommitError) Unwrap() error {
	return e.Err
}

// IsValidationError returns true if the error is a save mode validation error.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsRemoteFailure returns true if the error is a remote failure.
func IsRemoteFailure(err error) bool {
	return hasCode(err, ErrCodeRemoteFailure)
}

// IsCancelled returns true if the commit was cancelled.
func IsCancelled(err error) bool {
	return hasCode(err, ErrCodeCancelled)
}

func hasCode(err error, code CommitErrorCode) bool {
	var ce *CommitError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// NewValidationError creates a CommitError for an unsupported save mode.
func NewValidationError(message string) *CommitError {
	return &CommitError{
		Code:    ErrCodeValidation,
		Phase:   PhaseNotStarted,
		Message: message,
	}
}

// newRemoteError classifies err raised at phase. Context cancellation and
// deadlines become ErrCodeCancelled; everything else is a remote failure.
func newRemoteError(phase Phase, message string, err error) *CommitError {
	code := ErrCodeRemoteFailure
	if isContextError(err) {
		code = ErrCodeCancelled
		message = "commit cancelled"
	}
	return &CommitError{
		Code:    code,
		Phase:   phase,
		Message: message,
		Err:     err,
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
