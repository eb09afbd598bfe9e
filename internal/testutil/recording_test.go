package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witsync/internal/store"
	"github.com/roach88/witsync/internal/wit"
)

func newSandbox(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "sandbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordingClient_RecordsInOrder(t *testing.T) {
	ctx := context.Background()
	rc := NewRecordingClient(newSandbox(t))

	wi, err := rc.CreateWorkItem(ctx, "Demo", "Task", wit.PatchDocument{
		{Op: wit.OpAdd, Path: wit.FieldPath(wit.FieldTitle), Value: "x"},
	})
	require.NoError(t, err)
	_, err = rc.GetWorkItem(ctx, wi.ID)
	require.NoError(t, err)
	require.NoError(t, rc.DeleteWorkItem(ctx, wi.ID))

	calls := rc.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, MethodCreateWorkItem, calls[0].Method)
	assert.Equal(t, "Demo", calls[0].Project)
	assert.Equal(t, 1, calls[0].Seq)
	assert.Equal(t, MethodGetWorkItem, calls[1].Method)
	assert.Equal(t, MethodDeleteWorkItem, calls[2].Method)
	assert.Equal(t, wi.ID, calls[2].ID)

	assert.Equal(t, 3, rc.Count())
	assert.Equal(t, 1, rc.Count(MethodGetWorkItem))
	assert.Len(t, rc.WriteCalls(), 2)
	assert.Equal(t, rc.BaseURL(), store.DefaultBaseURL)
}

func TestRecordingClient_RecordsErrors(t *testing.T) {
	rc := NewRecordingClient(newSandbox(t))

	_, err := rc.GetWorkItem(context.Background(), 99)
	require.ErrorIs(t, err, wit.ErrNotFound)

	calls := rc.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Err, "not found")
}

func TestRecordingClient_FailNth(t *testing.T) {
	ctx := context.Background()
	rc := NewRecordingClient(newSandbox(t))
	boom := errors.New("boom")
	rc.BeforeCall(FailNth(MethodCreateWorkItem, 2, boom))

	_, err := rc.CreateWorkItem(ctx, "Demo", "Task", nil)
	require.NoError(t, err)
	_, err = rc.CreateWorkItem(ctx, "Demo", "Task", nil)
	require.ErrorIs(t, err, boom)
	_, err = rc.CreateWorkItem(ctx, "Demo", "Task", nil)
	require.NoError(t, err)

	calls := rc.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "boom", calls[1].Err)
}

func TestRecordingClient_CancelOn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rc := NewRecordingClient(newSandbox(t))
	rc.BeforeCall(CancelOn(MethodExecuteBatch, cancel))

	_, err := rc.ExecuteBatch(ctx, []wit.BatchRequest{{Method: "PATCH", URI: "/_apis/wit/workitems/1"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestRecordingClient_Reset(t *testing.T) {
	rc := NewRecordingClient(newSandbox(t))
	_, _ = rc.GetWorkItem(context.Background(), 1)
	require.Equal(t, 1, rc.Count())

	rc.Reset()
	assert.Equal(t, 0, rc.Count())
	assert.Empty(t, rc.Calls())
}

func TestNewTracker_FixedSession(t *testing.T) {
	tr := NewTracker(store.DefaultBaseURL, "Demo")
	assert.Equal(t, FixedSessionID, tr.SessionID())
	assert.Equal(t, "Demo", tr.DefaultProject())
}
