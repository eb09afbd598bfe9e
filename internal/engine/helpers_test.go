package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/witsync/internal/store"
	"github.com/roach88/witsync/internal/testutil"
	"github.com/roach88/witsync/internal/tracker"
	"github.com/roach88/witsync/internal/wit"
)

const (
	relRelated = "System.LinkTypes.Related"
	relParent  = "System.LinkTypes.Hierarchy-Reverse"
)

// fixture is one session over a fresh sandbox.
type fixture struct {
	sandbox *store.Store
	client  *testutil.RecordingClient
	store   *Store
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sandbox, err := store.Open(filepath.Join(t.TempDir(), "sandbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sandbox.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	client := testutil.NewRecordingClient(sandbox)
	tr := testutil.NewTracker(sandbox.BaseURL(), "Demo")

	return &fixture{
		sandbox: sandbox,
		client:  client,
		store:   New(client, tr, zap.New(core)),
		logs:    logs,
	}
}

// seed creates Tasks with the given titles and returns their ids.
func (f *fixture) seed(t *testing.T, titles ...string) []int {
	t.Helper()
	items := make([]store.SeedItem, len(titles))
	for i, title := range titles {
		items[i] = store.SeedItem{Type: "Task", Project: "Demo", Fields: map[string]any{wit.FieldTitle: title}}
	}
	ids, err := f.sandbox.Seed(context.Background(), items)
	require.NoError(t, err)
	return ids
}

// seedDeleted creates a Task already in the recycle bin.
func (f *fixture) seedDeleted(t *testing.T, title string) int {
	t.Helper()
	ids, err := f.sandbox.Seed(context.Background(), []store.SeedItem{
		{Type: "Task", Project: "Demo", Fields: map[string]any{wit.FieldTitle: title}, Deleted: true},
	})
	require.NoError(t, err)
	return ids[0]
}

func (f *fixture) load(t *testing.T, id int) *tracker.Wrapper {
	t.Helper()
	w, err := f.store.GetWorkItem(context.Background(), id)
	require.NoError(t, err)
	return w
}

// remote reads a work item straight from the sandbox.
func (f *fixture) remote(t *testing.T, id int) *wit.WorkItem {
	t.Helper()
	wi, err := f.sandbox.GetWorkItem(context.Background(), id)
	require.NoError(t, err)
	return wi
}

func newTask(f *fixture, title string) *tracker.Wrapper {
	w := f.store.NewWorkItem("Task", "")
	w.SetField(wit.FieldTitle, title)
	return w
}

func relationTargets(relations []wit.Relation) []int {
	var ids []int
	for _, r := range relations {
		if id, err := wit.ParseWorkItemURL(r.URL); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
