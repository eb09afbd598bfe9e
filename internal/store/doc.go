// Package store provides a SQLite-backed sandbox tracking store.
//
// The sandbox implements every wit.Client capability locally so the change
// tracker and commit strategies can run without a remote organization:
//   - Work items: id, revision, type, project, recycle bin flag, fields
//   - Relations: ordered per work item, target id extracted from the URL
//   - Batch calls: entries applied in request order, one transaction each,
//     one response per entry in the same order
//
// # Remote behaviour reproduced
//
//   - Ids come from AUTOINCREMENT and are never reused
//   - test /rev operations guard against concurrent updates (412)
//   - A relation to a work item that does not exist is rejected (400);
//     temporary ids never exist, so a batch that links two items created
//     in the same batch fails
//   - Deleted work items stay in the recycle bin until restored
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
