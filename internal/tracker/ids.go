package tracker

import "sync/atomic"

// idAllocator hands out temporary work item ids: -1, -2, -3, ...
//
// Every id returned by Next is strictly less than all ids returned before it.
// Safe for concurrent use.
type idAllocator struct {
	last atomic.Int64
}

// Next returns the next temporary id.
func (a *idAllocator) Next() int {
	return int(a.last.Add(-1))
}

// Current returns the most recently allocated id, or 0 if none.
func (a *idAllocator) Current() int {
	return int(a.last.Load())
}
