// Package testutil provides test doubles shared by the engine, harness and
// CLI tests.
package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/witsync/internal/wit"
)

// Remote call method names recorded by RecordingClient.
const (
	MethodGetWorkItem     = "GetWorkItem"
	MethodGetWorkItems    = "GetWorkItems"
	MethodCreateWorkItem  = "CreateWorkItem"
	MethodUpdateWorkItem  = "UpdateWorkItem"
	MethodDeleteWorkItem  = "DeleteWorkItem"
	MethodRestoreWorkItem = "RestoreWorkItem"
	MethodExecuteBatch    = "ExecuteBatch"
)

// Call is one recorded invocation of a wit.Client method.
type Call struct {
	Seq     int                `json:"seq"`
	Method  string             `json:"method"`
	ID      int                `json:"id,omitempty"`
	IDs     []int              `json:"ids,omitempty"`
	Project string             `json:"project,omitempty"`
	Type    string             `json:"type,omitempty"`
	Doc     wit.PatchDocument  `json:"doc,omitempty"`
	Batch   []wit.BatchRequest `json:"batch,omitempty"`
	Err     string             `json:"error,omitempty"`
}

// IsWrite reports whether the call changes remote state.
func (c Call) IsWrite() bool {
	return c.Method != MethodGetWorkItem && c.Method != MethodGetWorkItems
}

// Hook runs before a call is forwarded. A non-nil error is returned to the
// caller instead of forwarding.
type Hook func(ctx context.Context, call Call) error

// RecordingClient wraps a wit.Client and records every call in order.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingClient struct {
	inner wit.Client

	mu         sync.Mutex
	calls      []Call
	beforeCall Hook
}

// NewRecordingClient wraps inner.
func NewRecordingClient(inner wit.Client) *RecordingClient {
	return &RecordingClient{inner: inner}
}

// BeforeCall installs a hook used for fault injection and cancellation.
func (c *RecordingClient) BeforeCall(h Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeCall = h
}

// Calls returns a copy of the recorded calls.
func (c *RecordingClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// WriteCalls returns the recorded calls that change remote state.
func (c *RecordingClient) WriteCalls() []Call {
	var out []Call
	for _, call := range c.Calls() {
		if call.IsWrite() {
			out = append(out, call)
		}
	}
	return out
}

// Count returns how many calls were made to the given methods, or to any
// method when none are given.
func (c *RecordingClient) Count(methods ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(methods) == 0 {
		return len(c.calls)
	}
	n := 0
	for _, call := range c.calls {
		if slices.Contains(methods, call.Method) {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls. The hook stays installed.
func (c *RecordingClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// record appends call and runs the hook outside the lock.
func (c *RecordingClient) record(ctx context.Context, call Call) (int, error) {
	c.mu.Lock()
	call.Seq = len(c.calls) + 1
	c.calls = append(c.calls, call)
	idx := len(c.calls) - 1
	hook := c.beforeCall
	c.mu.Unlock()

	if hook == nil {
		return idx, nil
	}
	if err := hook(ctx, call); err != nil {
		c.fail(idx, err)
		return idx, err
	}
	return idx, nil
}

func (c *RecordingClient) fail(idx int, err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[idx].Err = err.Error()
}

// BaseURL implements wit.Client.
func (c *RecordingClient) BaseURL() string {
	return c.inner.BaseURL()
}

// GetWorkItem implements wit.Client.
func (c *RecordingClient) GetWorkItem(ctx context.Context, id int) (*wit.WorkItem, error) {
	idx, err := c.record(ctx, Call{Method: MethodGetWorkItem, ID: id})
	if err != nil {
		return nil, err
	}
	wi, err := c.inner.GetWorkItem(ctx, id)
	c.fail(idx, err)
	return wi, err
}

// GetWorkItems implements wit.Client.
func (c *RecordingClient) GetWorkItems(ctx context.Context, ids []int) ([]*wit.WorkItem, error) {
	idx, err := c.record(ctx, Call{Method: MethodGetWorkItems, IDs: slices.Clone(ids)})
	if err != nil {
		return nil, err
	}
	items, err := c.inner.GetWorkItems(ctx, ids)
	c.fail(idx, err)
	return items, err
}

// CreateWorkItem implements wit.Client.
func (c *RecordingClient) CreateWorkItem(ctx context.Context, project, workItemType string, doc wit.PatchDocument) (*wit.WorkItem, error) {
	idx, err := c.record(ctx, Call{Method: MethodCreateWorkItem, Project: project, Type: workItemType, Doc: slices.Clone(doc)})
	if err != nil {
		return nil, err
	}
	wi, err := c.inner.CreateWorkItem(ctx, project, workItemType, doc)
	c.fail(idx, err)
	return wi, err
}

// UpdateWorkItem implements wit.Client.
func (c *RecordingClient) UpdateWorkItem(ctx context.Context, id int, doc wit.PatchDocument) (*wit.WorkItem, error) {
	idx, err := c.record(ctx, Call{Method: MethodUpdateWorkItem, ID: id, Doc: slices.Clone(doc)})
	if err != nil {
		return nil, err
	}
	wi, err := c.inner.UpdateWorkItem(ctx, id, doc)
	c.fail(idx, err)
	return wi, err
}

// DeleteWorkItem implements wit.Client.
func (c *RecordingClient) DeleteWorkItem(ctx context.Context, id int) error {
	idx, err := c.record(ctx, Call{Method: MethodDeleteWorkItem, ID: id})
	if err != nil {
		return err
	}
	err = c.inner.DeleteWorkItem(ctx, id)
	c.fail(idx, err)
	return err
}

// RestoreWorkItem implements wit.Client.
func (c *RecordingClient) RestoreWorkItem(ctx context.Context, id int) error {
	idx, err := c.record(ctx, Call{Method: MethodRestoreWorkItem, ID: id})
	if err != nil {
		return err
	}
	err = c.inner.RestoreWorkItem(ctx, id)
	c.fail(idx, err)
	return err
}

// ExecuteBatch implements wit.Client.
func (c *RecordingClient) ExecuteBatch(ctx context.Context, requests []wit.BatchRequest) ([]wit.BatchResponse, error) {
	idx, err := c.record(ctx, Call{Method: MethodExecuteBatch, Batch: cloneRequests(requests)})
	if err != nil {
		return nil, err
	}
	responses, err := c.inner.ExecuteBatch(ctx, requests)
	c.fail(idx, err)
	return responses, err
}

func cloneRequests(requests []wit.BatchRequest) []wit.BatchRequest {
	out := make([]wit.BatchRequest, len(requests))
	for i, r := range requests {
		r.Body = slices.Clone(r.Body)
		out[i] = r
	}
	return out
}

// FailNth returns a hook that fails the nth call (1-based) to method with err.
func FailNth(method string, n int, err error) Hook {
	var mu sync.Mutex
	seen := 0
	return func(_ context.Context, call Call) error {
		if call.Method != method {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen == n {
			return err
		}
		return nil
	}
}

// CancelOn returns a hook that calls cancel when method is first invoked and
// then reports the context error, like a transport noticing cancellation.
func CancelOn(method string, cancel context.CancelFunc) Hook {
	return func(ctx context.Context, call Call) error {
		if call.Method != method {
			return nil
		}
		cancel()
		return ctx.Err()
	}
}
