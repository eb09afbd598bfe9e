// Package engine implements the commit orchestrator of a tracking session.
//
// A Store wraps one tracker.Tracker and one wit.Client. Callers load or
// create work items through the Store, mutate the returned wrappers, then
// call Commit once to push every change to the remote side.
//
// SAVE MODES:
//
// ByItem: one remote call per work item. Creates go first, then deletes and
// restores, then updates. A failed call does not stop the calls after it;
// failures are reported together when the commit ends.
//
// Batch: deletes and restores first, then a single batch with every created
// and updated work item. The remote side cannot resolve a relation to an id
// created in the same batch, so such a commit fails.
//
// TwoPhases (default): creates are sent without relations in a first batch,
// temporary ids are swapped for permanent ones, deletes and restores run,
// and a second batch carries the remaining operations including the
// relations, now pointing at permanent ids.
//
// Updated work items carry a test on /rev in every mode, so a remote edit
// made after loading fails the commit. Items marked for deletion send no
// patch; their pending edits are dropped with a warning.
//
// EXECUTION MODEL:
//
// Commit is sequential: one remote call at a time, each awaited before the
// next. The Tracker is owned by the Store for the duration of a commit and
// must not be mutated concurrently. Cancelling the context aborts the call
// in flight; calls that completed before stay applied remotely.
//
// No retry happens here. Retry policy belongs to the caller and wraps the
// whole Commit.
package engine
