// Package wit provides the wire model shared by the change tracker, the batch
// protocol and the tracking store backends.
//
// This package contains type definitions and encoding helpers only. All other
// internal packages import wit; wit imports nothing internal.
//
// Key constraints:
//   - Patch operations are {op, path, value} with op one of add|replace|remove|test
//   - Paths are /fields/<name>, /relations/- (append only, never indexed), /id or /rev
//   - Relation targets are weak references (work item URLs), never pointers
//   - Batch responses are correlated with requests by position only
package wit
