package testutil

import (
	"github.com/roach88/witsync/internal/tracker"
)

// FixedSessionID is the session id used by deterministic tests.
const FixedSessionID = "00000000-0000-7000-8000-000000000001"

// NewTracker returns a tracker with FixedSessionID for the given base URL
// and default project.
func NewTracker(baseURL, project string) *tracker.Tracker {
	return tracker.New(baseURL, project, tracker.WithSessionID(FixedSessionID))
}
