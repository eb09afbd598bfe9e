package azdo

import (
	"fmt"
	"net/http"

	"github.com/roach88/witsync/internal/wit"
)

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("azure devops returned status %d: %s", e.StatusCode, e.Body)
}

// Is matches wit.ErrNotFound for 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == wit.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether retrying the call may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
