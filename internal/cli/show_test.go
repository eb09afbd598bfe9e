package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/witsync/internal/wit"
)

func linkedSandbox(t *testing.T) string {
	t.Helper()
	db := seedSandbox(t, task("first"), task("second"))
	sandbox := openSandbox(t, db)
	_, err := sandbox.UpdateWorkItem(context.Background(), 1, wit.PatchDocument{
		{Op: wit.OpAdd, Path: wit.PathRelations, Value: wit.Relation{
			Rel: "System.LinkTypes.Related",
			URL: wit.WorkItemURL(sandbox.BaseURL(), 2),
		}},
	})
	require.NoError(t, err)
	require.NoError(t, sandbox.Close())
	return db
}

func TestShow_Text(t *testing.T) {
	clearEnv(t)
	db := linkedSandbox(t)

	run := execute(t, "show", "1", "--db", db, "--related")
	require.Equal(t, ExitSuccess, run.code, "stderr: %s", run.stderr)
	assert.Contains(t, run.stdout, "#1 rev 2 Task in Demo")
	assert.Contains(t, run.stdout, "System.Title: first")
	assert.Contains(t, run.stdout, `-> System.LinkTypes.Related 2 "second"`)
}

func TestShow_JSON(t *testing.T) {
	clearEnv(t)
	db := linkedSandbox(t)

	run := execute(t, "show", "1", "--db", db, "--format", "json")
	require.Equal(t, ExitSuccess, run.code, "stderr: %s", run.stderr)

	var view WorkItemView
	decode(t, run.stdout, &view)
	assert.Equal(t, 1, view.ID)
	assert.Equal(t, 2, view.Rev)
	assert.Equal(t, "Demo", view.Project)
	assert.Equal(t, "first", view.Fields[wit.FieldTitle])
	require.Len(t, view.Relations, 1)
	assert.Equal(t, 2, view.Relations[0].TargetID)
	assert.Empty(t, view.Relations[0].TargetTitle)
}

func TestShow_Deleted(t *testing.T) {
	clearEnv(t)
	item := task("gone")
	item.Deleted = true
	db := seedSandbox(t, item)

	run := execute(t, "show", "1", "--db", db)
	require.Equal(t, ExitSuccess, run.code, "stderr: %s", run.stderr)
	assert.Contains(t, run.stdout, "(deleted)")
}

func TestShow_NotFound(t *testing.T) {
	clearEnv(t)
	db := seedSandbox(t)

	run := execute(t, "show", "5", "--db", db)
	assert.Equal(t, ExitFailure, run.code)
	assert.Contains(t, run.stderr, "Error [E_NOT_FOUND]: work item 5 not found")
}

func TestShow_InvalidID(t *testing.T) {
	for _, arg := range []string{"abc", "0", "-3"} {
		run := execute(t, "show", "--", arg)
		assert.Equal(t, ExitCommandError, run.code, arg)
	}
}
