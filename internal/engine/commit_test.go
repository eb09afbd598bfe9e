package engine

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/witsync/internal/batch"
	"github.com/roach88/witsync/internal/store"
	"github.com/roach88/witsync/internal/testutil"
	"github.com/roach88/witsync/internal/tracker"
	"github.com/roach88/witsync/internal/wit"
)

var allModes = []SaveMode{SaveModeItem, SaveModeBatch, SaveModeTwoPhases}

func TestCommit_UnsupportedMode(t *testing.T) {
	f := newFixture(t)
	newTask(f, "x")

	_, _, err := f.store.Commit(context.Background(), SaveMode(42), true)

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Equal(t, 0, f.client.Count())
}

func TestCommit_DefaultModeIsTwoPhases(t *testing.T) {
	f := newFixture(t)
	newTask(f, "x")

	created, updated, err := f.store.Commit(context.Background(), SaveModeDefault, true)
	require.NoError(t, err)

	assert.Equal(t, 1, created)
	assert.Equal(t, 0, updated)
	assert.Equal(t, 1, f.logs.FilterMessage("No save mode specified, assuming TwoPhases").Len())
	// Nothing left for phase 2.
	assert.Equal(t, 1, f.client.Count(testutil.MethodExecuteBatch))
	assert.Equal(t, PhaseDone, f.store.Phase())
}

func TestCommit_NothingToCommit(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t)
			ids := f.seed(t, "clean")
			f.load(t, ids[0])
			f.client.Reset()

			created, updated, err := f.store.Commit(context.Background(), mode, true)
			require.NoError(t, err)

			assert.Zero(t, created)
			assert.Zero(t, updated)
			assert.Zero(t, f.client.Count())
			assert.Equal(t, PhaseDone, f.store.Phase())
		})
	}
}

func TestCommit_TwoPhases_RemapsRelationToCreatedItem(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "B")
	b := f.load(t, ids[0])
	a := newTask(f, "A")
	tempID := a.ID()
	require.True(t, b.AddRelation(relRelated, a))

	created, updated, err := f.store.Commit(context.Background(), SaveModeTwoPhases, true)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)

	assert.Greater(t, a.ID(), 0)
	assert.False(t, a.IsDirty())
	assert.False(t, b.IsDirty())
	got, ok := f.store.Tracker().Get(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = f.store.Tracker().Get(tempID)
	assert.False(t, ok)

	batches := f.client.Calls()
	var submitted []testutil.Call
	for _, c := range batches {
		if c.Method == testutil.MethodExecuteBatch {
			submitted = append(submitted, c)
		}
	}
	require.Len(t, submitted, 2)

	// Phase 1 creates A without relations.
	require.Len(t, submitted[0].Batch, 1)
	for _, op := range submitted[0].Batch[0].Body {
		assert.False(t, op.IsRelation())
	}

	// Phase 2 updates B with a relation to A's permanent id, guarded by B's revision.
	require.Len(t, submitted[1].Batch, 1)
	assert.Equal(t, batch.UpdateRequest(b.ID(), nil).URI, submitted[1].Batch[0].URI)
	body := submitted[1].Batch[0].Body
	require.NotEmpty(t, body)
	assert.Equal(t, wit.PatchOperation{Op: wit.OpTest, Path: wit.PathRev, Value: 1}, body[0])
	var targets []int
	for _, op := range body {
		if r, ok := op.RelationValue(); ok {
			targets = append(targets, relationTargets([]wit.Relation{r})...)
		}
	}
	assert.Equal(t, []int{a.ID()}, targets)

	assert.Equal(t, []int{a.ID()}, relationTargets(f.remote(t, b.ID()).Relations))
	assert.Equal(t, []int{a.ID()}, relationTargets(b.Relations()))
}

// createdPair builds two new items where the second links to the first.
func createdPair(f *fixture) (parent, child *tracker.Wrapper) {
	parent = newTask(f, "parent")
	child = newTask(f, "child")
	child.AddRelation(relParent, parent)
	return parent, child
}

func TestCommit_Batch_CreatedToCreatedRelationFails(t *testing.T) {
	f := newFixture(t)
	_, child := createdPair(f)

	_, _, err := f.store.Commit(context.Background(), SaveModeBatch, true)

	require.Error(t, err)
	assert.True(t, IsRemoteFailure(err))
	var rf *batch.RemoteFailure
	require.ErrorAs(t, err, &rf)
	require.Len(t, rf.Failures, 1)
	assert.Equal(t, 1, rf.Failures[0].Index)
	assert.Equal(t, http.StatusBadRequest, rf.Failures[0].Code)
	assert.Contains(t, rf.Failures[0].Body, "does not exist")

	assert.True(t, child.IsNew())
	assert.True(t, child.IsDirty())
	assert.Equal(t, 1, f.logs.FilterMessage("Save failed").Len())
}

func TestCommit_TwoPhases_CreatedToCreatedRelationSucceeds(t *testing.T) {
	f := newFixture(t)
	parent, child := createdPair(f)

	created, updated, err := f.store.Commit(context.Background(), SaveModeTwoPhases, true)
	require.NoError(t, err)

	assert.Equal(t, 2, created)
	assert.Equal(t, 0, updated)
	assert.False(t, parent.IsNew())
	assert.False(t, child.IsNew())
	assert.Equal(t, []int{parent.ID()}, relationTargets(f.remote(t, child.ID()).Relations))
}

func TestCommit_ByItem_CreatedToCreatedRelationSucceeds(t *testing.T) {
	f := newFixture(t)
	parent, child := createdPair(f)

	created, _, err := f.store.Commit(context.Background(), SaveModeItem, true)
	require.NoError(t, err)

	assert.Equal(t, 2, created)
	assert.Equal(t, 2, f.client.Count(testutil.MethodCreateWorkItem))
	assert.Equal(t, 1, f.client.Count(testutil.MethodUpdateWorkItem))
	assert.Zero(t, f.client.Count(testutil.MethodExecuteBatch))
	assert.Equal(t, []int{parent.ID()}, relationTargets(f.remote(t, child.ID()).Relations))
	assert.False(t, child.IsDirty())
}

func TestCommit_ByItem_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "first", "second")
	first := f.load(t, ids[0])
	second := f.load(t, ids[1])
	first.SetField(wit.FieldTitle, "first*")
	second.SetField(wit.FieldTitle, "second*")
	boom := errors.New("service unavailable")
	f.client.BeforeCall(testutil.FailNth(testutil.MethodUpdateWorkItem, 1, boom))

	_, _, err := f.store.Commit(context.Background(), SaveModeItem, true)

	require.Error(t, err)
	assert.True(t, IsRemoteFailure(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 of 2 calls failed")

	assert.True(t, first.IsDirty())
	assert.False(t, second.IsDirty())
	assert.Equal(t, "first", f.remote(t, ids[0]).Fields[wit.FieldTitle])
	assert.Equal(t, "second*", f.remote(t, ids[1]).Fields[wit.FieldTitle])
}

func TestCommit_DeleteAndRestore(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t)
			ids := f.seed(t, "keep")
			deletedID := f.seedDeleted(t, "back")
			alive := f.load(t, ids[0])
			recycled := f.load(t, deletedID)

			require.True(t, f.store.DeleteWorkItem(alive))
			require.True(t, f.store.RestoreWorkItem(recycled))
			recycled.SetField(wit.FieldState, "Active")

			created, updated, err := f.store.Commit(context.Background(), mode, true)
			require.NoError(t, err)

			assert.Zero(t, created)
			assert.Equal(t, 2, updated)
			assert.True(t, alive.IsDeleted())
			assert.False(t, recycled.IsDeleted())
			assert.False(t, alive.IsDirty())
			assert.False(t, recycled.IsDirty())

			assert.True(t, f.remote(t, ids[0]).IsDeleted)
			back := f.remote(t, deletedID)
			assert.False(t, back.IsDeleted)
			assert.Equal(t, "Active", back.Fields[wit.FieldState])
		})
	}
}

func TestCommit_DeleteOfNeverCreatedItemIsSkipped(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t)
			w := newTask(f, "draft")
			require.True(t, f.store.DeleteWorkItem(w))

			created, updated, err := f.store.Commit(context.Background(), mode, true)
			require.NoError(t, err)

			assert.Zero(t, created)
			assert.Equal(t, 1, updated)
			assert.Zero(t, f.client.Count(testutil.MethodDeleteWorkItem))
			assert.Equal(t, 1, f.logs.FilterMessage("Skipping delete of a work item never created").Len())
			assert.False(t, w.IsDirty())
		})
	}
}

func TestCommit_DryRunMatchesApply(t *testing.T) {
	build := func(t *testing.T) *fixture {
		f := newFixture(t)
		ids := f.seed(t, "updated", "deleted")
		restoredID := f.seedDeleted(t, "restored")
		u := f.load(t, ids[0])
		d := f.load(t, ids[1])
		r := f.load(t, restoredID)

		u.SetField(wit.FieldTitle, "updated*")
		f.store.DeleteWorkItem(d)
		f.store.RestoreWorkItem(r)
		newTask(f, "new")
		f.client.Reset()
		return f
	}

	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			dry := build(t)
			dc, du, err := dry.store.Commit(context.Background(), mode, false)
			require.NoError(t, err)

			assert.Zero(t, dry.client.Count())
			assert.Equal(t, PhasePreviewed, dry.store.Phase())
			assert.Equal(t, 1, dry.logs.FilterMessage("Dry-run mode: should create a Task workitem in Demo").Len())
			warn := dry.logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("Dry-run mode: no updates sent to the remote store")
			assert.Equal(t, 1, warn.Len())
			assert.False(t, dry.store.Tracker().GetChangedWorkItems().IsEmpty())

			live := build(t)
			lc, lu, err := live.store.Commit(context.Background(), mode, true)
			require.NoError(t, err)

			assert.Equal(t, lc, dc)
			assert.Equal(t, lu, du)
			assert.Equal(t, 1, dc)
			assert.Equal(t, 3, du)
			assert.True(t, live.store.Tracker().GetChangedWorkItems().IsEmpty())
		})
	}
}

func TestCommit_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	newTask(f, "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.store.Commit(ctx, SaveModeTwoPhases, true)

	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.client.Count())
}

func TestCommit_CancelledMidCommit(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "B")
	b := f.load(t, ids[0])
	a := newTask(f, "A")
	b.AddRelation(relRelated, a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.client.BeforeCall(testutil.CancelOn(testutil.MethodExecuteBatch, cancel))

	_, _, err := f.store.Commit(ctx, SaveModeTwoPhases, true)

	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.False(t, IsRemoteFailure(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseNotStarted, f.store.Phase())
	assert.True(t, a.IsNew())
	assert.True(t, b.IsDirty())
	assert.Equal(t, 1, f.client.Count(testutil.MethodExecuteBatch))
}

func TestCommit_ByItem_CancellationStopsImmediately(t *testing.T) {
	f := newFixture(t)
	newTask(f, "one")
	newTask(f, "two")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.client.BeforeCall(testutil.CancelOn(testutil.MethodCreateWorkItem, cancel))

	_, _, err := f.store.Commit(ctx, SaveModeItem, true)

	assert.True(t, IsCancelled(err))
	assert.Equal(t, 1, f.client.Count(testutil.MethodCreateWorkItem))
}

func TestCommit_RevisionGuard(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t)
			ids := f.seed(t, "original")
			w := f.load(t, ids[0])

			// Someone else edits the item after it was loaded.
			_, err := f.sandbox.UpdateWorkItem(context.Background(), ids[0], wit.PatchDocument{
				{Op: wit.OpReplace, Path: wit.FieldPath(wit.FieldTitle), Value: "theirs"},
			})
			require.NoError(t, err)

			w.SetField(wit.FieldTitle, "mine")
			_, _, err = f.store.Commit(context.Background(), mode, true)

			require.Error(t, err)
			assert.True(t, IsRemoteFailure(err))
			var rf *batch.RemoteFailure
			if errors.As(err, &rf) {
				require.Len(t, rf.Failures, 1)
				assert.Equal(t, http.StatusPreconditionFailed, rf.Failures[0].Code)
			} else {
				assert.ErrorIs(t, err, store.ErrRevisionMismatch)
			}
			assert.True(t, w.IsDirty())
			assert.Equal(t, "theirs", f.remote(t, ids[0]).Fields[wit.FieldTitle])
		})
	}
}

func TestCommit_Batch_RecyclePhaseOnFailure(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "one", "two")
	first := f.load(t, ids[0])
	second := f.load(t, ids[1])
	require.True(t, f.store.DeleteWorkItem(first))
	require.True(t, f.store.DeleteWorkItem(second))
	boom := errors.New("service unavailable")
	f.client.BeforeCall(testutil.FailNth(testutil.MethodDeleteWorkItem, 2, boom))

	_, _, err := f.store.Commit(context.Background(), SaveModeBatch, true)

	require.Error(t, err)
	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, PhaseRecycleStarted, ce.Phase)
	assert.Equal(t, PhaseRecycleStarted, f.store.Phase())
	assert.True(t, f.remote(t, ids[0]).IsDeleted)
	assert.False(t, f.remote(t, ids[1]).IsDeleted)
}

func TestCommit_DeleteDropsPendingEdits(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t)
			ids := f.seed(t, "original")
			w := f.load(t, ids[0])
			w.SetField(wit.FieldTitle, "edited")
			require.True(t, f.store.DeleteWorkItem(w))

			_, updated, err := f.store.Commit(context.Background(), mode, true)
			require.NoError(t, err)
			assert.Equal(t, 1, updated)

			assert.True(t, w.IsDeleted())
			assert.False(t, w.IsDirty())
			title, _ := w.Field(wit.FieldTitle)
			assert.Equal(t, "original", title)

			remote := f.remote(t, ids[0])
			assert.True(t, remote.IsDeleted)
			assert.Equal(t, "original", remote.Fields[wit.FieldTitle])

			warned := f.logs.FilterMessage("Dropping pending changes of a deleted work item").All()
			require.Len(t, warned, 1)
			assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
		})
	}
}

func TestCommit_UpdatesRevisionAfterCommit(t *testing.T) {
	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t)
			ids := f.seed(t, "a")
			w := f.load(t, ids[0])
			require.Equal(t, 1, w.Rev())

			w.SetField(wit.FieldTitle, "b")
			_, _, err := f.store.Commit(context.Background(), mode, true)
			require.NoError(t, err)
			assert.Equal(t, 2, w.Rev())

			// A second commit passes the guard with the new revision.
			w.SetField(wit.FieldTitle, "c")
			_, _, err = f.store.Commit(context.Background(), mode, true)
			require.NoError(t, err)
			assert.Equal(t, "c", f.remote(t, ids[0]).Fields[wit.FieldTitle])
		})
	}
}
