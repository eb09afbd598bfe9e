package store

import (
	"errors"
	"net/http"

	"github.com/roach88/witsync/internal/wit"
)

var (
	// ErrInvalidOperation is returned for a patch operation the store cannot apply.
	ErrInvalidOperation = errors.New("invalid patch operation")

	// ErrRevisionMismatch is returned when a test /rev guard fails.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrUnknownTarget is returned when a relation points at a missing work item.
	ErrUnknownTarget = errors.New("relation target does not exist")

	// ErrDeleted is returned when updating a work item in the recycle bin.
	ErrDeleted = errors.New("work item is deleted")
)

// statusFor maps a store error to the HTTP status reported in batch entries.
func statusFor(err error) int {
	switch {
	case errors.Is(err, wit.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRevisionMismatch):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrUnknownTarget), errors.Is(err, ErrDeleted):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
