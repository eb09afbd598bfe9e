package changeset

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/witsync/internal/engine"
	"github.com/roach88/witsync/internal/tracker"
)

// Apply loads or creates every item of cs through st and records the
// edits on the returned wrappers. Nothing is sent until st.Commit.
//
// The result maps each declared ref to its wrapper.
func Apply(ctx context.Context, st *engine.Store, cs *ChangeSet) (map[string]*tracker.Wrapper, error) {
	wrappers, err := resolve(ctx, st, cs)
	if err != nil {
		return nil, err
	}

	refs := make(map[string]*tracker.Wrapper)
	for i, item := range cs.Items {
		if item.Ref != "" {
			refs[item.Ref] = wrappers[i]
		}
	}

	for i, item := range cs.Items {
		w := wrappers[i]
		for _, name := range slices.Sorted(maps.Keys(item.Fields)) {
			w.SetField(name, item.Fields[name])
		}
		for _, r := range item.Relations {
			if err := applyRelation(w, r, refs); err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
		}
		if item.Delete {
			st.DeleteWorkItem(w)
		}
		if item.Restore {
			st.RestoreWorkItem(w)
		}
	}
	return refs, nil
}

// resolve returns one wrapper per item. Existing items are loaded in a
// single call; new items get temporary ids in document order.
func resolve(ctx context.Context, st *engine.Store, cs *ChangeSet) ([]*tracker.Wrapper, error) {
	var ids []int
	for _, item := range cs.Items {
		if item.New == nil {
			ids = append(ids, item.ID)
		}
	}
	loaded, err := st.GetWorkItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	wrappers := make([]*tracker.Wrapper, len(cs.Items))
	next := 0
	for i, item := range cs.Items {
		if item.New == nil {
			wrappers[i] = loaded[next]
			next++
			continue
		}
		project := item.New.Project
		if project == "" {
			project = cs.Project
		}
		wrappers[i] = st.NewWorkItem(item.New.Type, project)
	}
	return wrappers, nil
}

func applyRelation(w *tracker.Wrapper, r RelationChange, refs map[string]*tracker.Wrapper) error {
	targetID := r.To.ID
	if r.To.Ref != "" {
		target, ok := refs[r.To.Ref]
		if !ok {
			return fmt.Errorf("%w: unknown ref %q", ErrInvalid, r.To.Ref)
		}
		targetID = target.ID()
	}

	switch r.Op {
	case OpAdd, "":
		w.AddRelationTo(r.Rel, targetID)
	case OpRemove:
		if !w.RemoveRelation(r.Rel, targetID) {
			return fmt.Errorf("%w: no %s relation to %s", ErrInvalid, r.Rel, r.To)
		}
	default:
		return fmt.Errorf("%w: unknown relation op %q", ErrInvalid, r.Op)
	}
	return nil
}
