package tracker

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/witsync/internal/wit"
)

// RecycleStatus is a pending recycle bin transition.
type RecycleStatus int

const (
	RecycleNone RecycleStatus = iota
	RecycleToDelete
	RecycleToRestore
)

func (s RecycleStatus) String() string {
	switch s {
	case RecycleNone:
		return "None"
	case RecycleToDelete:
		return "ToDelete"
	case RecycleToRestore:
		return "ToRestore"
	default:
		return fmt.Sprintf("RecycleStatus(%d)", int(s))
	}
}

// Wrapper is a mutable proxy over one remote work item.
//
// Mutations are recorded as pending patch operations diffed against the
// snapshot the wrapper was created from. IsDirty is derived from that state:
// a wrapper is dirty iff it has a pending operation or a recycle transition.
type Wrapper struct {
	tracker *Tracker

	id           int
	rev          int
	workItemType string
	project      string

	original  map[string]any
	current   map[string]any
	relations []wit.Relation

	isDeleted bool
	recycle   RecycleStatus

	pending wit.PatchDocument
}

func newWrapper(t *Tracker, wi *wit.WorkItem) *Wrapper {
	fields := maps.Clone(wi.Fields)
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Wrapper{
		tracker:      t,
		id:           wi.ID,
		rev:          wi.Rev,
		workItemType: wi.WorkItemType(),
		project:      wi.TeamProject(),
		original:     fields,
		current:      maps.Clone(fields),
		relations:    slices.Clone(wi.Relations),
		isDeleted:    wi.IsDeleted,
	}
}

// ID returns the current id: negative until the item is persisted.
func (w *Wrapper) ID() int { return w.id }

// Rev returns the last known revision, 0 when unknown.
func (w *Wrapper) Rev() int { return w.rev }

// WorkItemType returns the type fixed at creation.
func (w *Wrapper) WorkItemType() string { return w.workItemType }

// Project returns the team project fixed at creation.
func (w *Wrapper) Project() string { return w.project }

// URL returns the weak reference other wrappers use to point at this one.
func (w *Wrapper) URL() string {
	return wit.WorkItemURL(w.tracker.baseURL, w.id)
}

// IsNew reports whether the wrapper still holds a temporary id.
func (w *Wrapper) IsNew() bool { return wit.IsTemporaryID(w.id) }

// RecycleStatus returns the pending recycle transition.
func (w *Wrapper) RecycleStatus() RecycleStatus { return w.recycle }

// IsDirty reports whether the wrapper has anything to commit.
func (w *Wrapper) IsDirty() bool {
	return len(w.pending) > 0 || w.recycle != RecycleNone
}

// IsDeleted reports the effective deleted state including pending marks.
func (w *Wrapper) IsDeleted() bool {
	switch w.recycle {
	case RecycleToDelete:
		return true
	case RecycleToRestore:
		return false
	default:
		return w.isDeleted
	}
}

// Field returns the current value of a field.
func (w *Wrapper) Field(name string) (any, bool) {
	v, ok := w.current[name]
	return v, ok
}

// Fields returns a copy of the current field values.
func (w *Wrapper) Fields() map[string]any {
	return maps.Clone(w.current)
}

// SetField sets a field value; nil removes the field.
// A patch operation is pending only while the value differs from the
// original snapshot. Returns false when the value is already current.
func (w *Wrapper) SetField(name string, value any) bool {
	cur, exists := w.current[name]
	if exists && value != nil && wit.ValuesEqual(cur, value) {
		return false
	}
	if !exists && value == nil {
		return false
	}

	if value == nil {
		delete(w.current, name)
	} else {
		w.current[name] = value
	}

	path := wit.FieldPath(name)
	idx := slices.IndexFunc(w.pending, func(op wit.PatchOperation) bool { return op.Path == path })
	orig, had := w.original[name]

	if (had && value != nil && wit.ValuesEqual(orig, value)) || (!had && value == nil) {
		if idx >= 0 {
			w.pending = slices.Delete(w.pending, idx, idx+1)
		}
		return true
	}

	op := wit.PatchOperation{Path: path, Value: value}
	switch {
	case !had:
		op.Op = wit.OpAdd
	case value == nil:
		op.Op = wit.OpRemove
	default:
		op.Op = wit.OpReplace
	}
	if idx >= 0 {
		w.pending[idx] = op
	} else {
		w.pending = append(w.pending, op)
	}
	return true
}

// Relations returns the current relations, including pending additions.
func (w *Wrapper) Relations() []wit.Relation {
	return slices.Clone(w.relations)
}

// AddRelation links this wrapper to target using target's current id.
func (w *Wrapper) AddRelation(rel string, target *Wrapper) bool {
	return w.AddRelationTo(rel, target.ID())
}

// AddRelationTo links this wrapper to the work item with the given id.
// A temporary id stays unresolved until RemapIdReferences rewrites it.
func (w *Wrapper) AddRelationTo(rel string, id int) bool {
	r := wit.Relation{Rel: rel, URL: wit.WorkItemURL(w.tracker.baseURL, id)}
	if slices.ContainsFunc(w.relations, func(x wit.Relation) bool { return sameRelation(x, r) }) {
		return false
	}
	w.relations = append(w.relations, r)
	if idx := w.pendingRelation(wit.OpRemove, r); idx >= 0 {
		w.pending = slices.Delete(w.pending, idx, idx+1)
		return true
	}
	w.pending = append(w.pending, wit.PatchOperation{Op: wit.OpAdd, Path: wit.PathRelations, Value: r})
	return true
}

// RemoveRelation unlinks this wrapper from the work item with the given id.
// Removing a pending addition cancels it; removing a persisted relation
// records an append-only remove operation.
func (w *Wrapper) RemoveRelation(rel string, id int) bool {
	target := wit.Relation{Rel: rel, URL: wit.WorkItemURL(w.tracker.baseURL, id)}
	idx := slices.IndexFunc(w.relations, func(x wit.Relation) bool { return sameRelation(x, target) })
	if idx < 0 {
		return false
	}
	existing := w.relations[idx]
	w.relations = slices.Delete(w.relations, idx, idx+1)

	if p := w.pendingRelation(wit.OpAdd, target); p >= 0 {
		w.pending = slices.Delete(w.pending, p, p+1)
		return true
	}
	w.pending = append(w.pending, wit.PatchOperation{Op: wit.OpRemove, Path: wit.PathRelations, Value: existing})
	return true
}

func (w *Wrapper) pendingRelation(op wit.Op, r wit.Relation) int {
	return slices.IndexFunc(w.pending, func(p wit.PatchOperation) bool {
		if p.Op != op || !p.IsRelation() {
			return false
		}
		v, ok := p.RelationValue()
		return ok && sameRelation(v, r)
	})
}

// sameRelation compares relation type and target id; URLs built from
// different base addresses still match when they name the same id.
func sameRelation(a, b wit.Relation) bool {
	if a.Rel != b.Rel {
		return false
	}
	if a.URL == b.URL {
		return true
	}
	ai, errA := wit.ParseWorkItemURL(a.URL)
	bi, errB := wit.ParseWorkItemURL(b.URL)
	return errA == nil && errB == nil && ai == bi
}

// ChangeRecycleStatus marks the wrapper for deletion or restoration.
//
// ToDelete on an already deleted wrapper and ToRestore on a wrapper that is
// not deleted return false and change nothing. A mark that undoes the
// opposite pending mark returns the status to None.
func (w *Wrapper) ChangeRecycleStatus(to RecycleStatus) bool {
	switch to {
	case RecycleToDelete:
		if w.IsDeleted() {
			return false
		}
		if w.recycle == RecycleToRestore {
			w.recycle = RecycleNone
		} else {
			w.recycle = RecycleToDelete
		}
	case RecycleToRestore:
		if !w.IsDeleted() {
			return false
		}
		if w.recycle == RecycleToDelete {
			w.recycle = RecycleNone
		} else {
			w.recycle = RecycleToRestore
		}
	default:
		return false
	}
	return true
}

// Changes returns the patch document to submit for this wrapper.
// Persisted wrappers with a known revision get a leading test operation on
// /rev as an optimistic concurrency guard.
func (w *Wrapper) Changes() wit.PatchDocument {
	if len(w.pending) == 0 {
		return nil
	}
	doc := make(wit.PatchDocument, 0, len(w.pending)+1)
	if !w.IsNew() && w.rev > 0 {
		doc = append(doc, wit.PatchOperation{Op: wit.OpTest, Path: wit.PathRev, Value: w.rev})
	}
	return append(doc, w.pending...)
}

// ReplaceIdAndResetChanges swaps a temporary id for the permanent one after
// a create that carried every pending operation except relations.
// Relation operations stay pending for a follow-up update.
func (w *Wrapper) ReplaceIdAndResetChanges(oldID, newID int) error {
	if w.id != oldID {
		return fmt.Errorf("replace id: wrapper has id %d, not %d", w.id, oldID)
	}
	if err := w.tracker.reindex(w, oldID, newID); err != nil {
		return err
	}
	w.id = newID
	w.original = maps.Clone(w.current)
	w.pending = w.pending.Without(func(op wit.PatchOperation) bool { return !op.IsRelation() })
	return nil
}

// RemapIdReferences rewrites relation targets found in idMap (temporary id
// to permanent id), in both pending operations and current relations.
// Returns the number of pending operations rewritten.
func (w *Wrapper) RemapIdReferences(idMap map[int]int) int {
	remapped := 0
	for i, op := range w.pending {
		if !op.IsRelation() {
			continue
		}
		r, ok := op.RelationValue()
		if !ok {
			continue
		}
		if nr, changed := remapRelation(r, idMap); changed {
			w.pending[i].Value = nr
			remapped++
		}
	}
	for i, r := range w.relations {
		if nr, changed := remapRelation(r, idMap); changed {
			w.relations[i] = nr
		}
	}
	return remapped
}

func remapRelation(r wit.Relation, idMap map[int]int) (wit.Relation, bool) {
	id, err := wit.ParseWorkItemURL(r.URL)
	if err != nil {
		return r, false
	}
	newID, ok := idMap[id]
	if !ok {
		return r, false
	}
	r.URL = wit.RebaseWorkItemURL(r.URL, newID)
	return r, true
}

// ResetChanges records that every pending change has been committed: the
// current state becomes the new snapshot and recycle marks are applied.
// A wrapper marked ToDelete sends no patch, so its pending operations are
// rolled back instead and it keeps its snapshot.
func (w *Wrapper) ResetChanges() {
	switch w.recycle {
	case RecycleToDelete:
		w.discardPending()
		w.isDeleted = true
	case RecycleToRestore:
		w.isDeleted = false
	}
	w.original = maps.Clone(w.current)
	w.pending = nil
	w.recycle = RecycleNone
}

// PendingOperations returns the number of pending patch operations,
// excluding the revision guard.
func (w *Wrapper) PendingOperations() int {
	return len(w.pending)
}

// discardPending undoes pending operations on the current state.
func (w *Wrapper) discardPending() {
	w.current = maps.Clone(w.original)
	for _, op := range slices.Backward(w.pending) {
		if !op.IsRelation() {
			continue
		}
		r, ok := op.RelationValue()
		if !ok {
			continue
		}
		switch op.Op {
		case wit.OpAdd:
			w.relations = slices.DeleteFunc(w.relations, func(x wit.Relation) bool { return sameRelation(x, r) })
		case wit.OpRemove:
			w.relations = append(w.relations, r)
		}
	}
	w.pending = nil
}

// UpdateRev records the revision returned by the store.
func (w *Wrapper) UpdateRev(rev int) {
	if rev > 0 {
		w.rev = rev
	}
}
