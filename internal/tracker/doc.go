// Package tracker implements the per-session identity map of work item
// wrappers and their change tracking.
//
// A Tracker owns exactly one Wrapper per work item id for its lifetime.
// Every other reference to a work item (relation targets in particular) is a
// URL resolved by id through the Tracker, never a pointer between wrappers.
//
// Temporary ids are negative and strictly decreasing within a session.
// Permanent ids are assigned by the remote store and swapped in with
// Wrapper.ReplaceIdAndResetChanges.
//
// A Tracker is not safe for concurrent use. It is owned by one commit at a
// time by convention.
package tracker
