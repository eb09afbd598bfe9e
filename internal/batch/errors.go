package batch

import (
	"errors"
	"fmt"
	"strings"
)

// EntryFailure describes one batch entry with a non-success status.
type EntryFailure struct {
	Index int    // position in the request sequence
	Code  int    // HTTP status of the entry
	Body  string // body returned by the store
}

// RemoteFailure reports a rejected batch. The whole batch counts as failed
// even if only one entry was rejected.
type RemoteFailure struct {
	Message  string
	Failures []EntryFailure
}

// Error implements the error interface.
func (e *RemoteFailure) Error() string {
	if len(e.Failures) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("[%d] %d: %s", f.Index, f.Code, f.Body)
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}

// IsRemoteFailure returns true if err wraps a *RemoteFailure.
func IsRemoteFailure(err error) bool {
	var rf *RemoteFailure
	return errors.As(err, &rf)
}
