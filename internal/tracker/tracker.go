package tracker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/witsync/internal/wit"
)

// FetchOne loads one work item snapshot from the remote store.
type FetchOne func(ctx context.Context, id int) (*wit.WorkItem, error)

// FetchMany loads several work item snapshots from the remote store.
// The result may be in any order; missing ids are an error for the caller.
type FetchMany func(ctx context.Context, ids []int) ([]*wit.WorkItem, error)

// Tracker is the identity map of one session.
type Tracker struct {
	sessionID      string
	baseURL        string
	defaultProject string

	items map[int]*Wrapper
	order []*Wrapper // tracking order, stable across id swaps
	ids   idAllocator
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSessionID fixes the session id (for deterministic tests and logs).
func WithSessionID(id string) Option {
	return func(t *Tracker) {
		t.sessionID = id
	}
}

// New creates an empty session. baseURL is the prefix of work item URLs used
// as relation targets; defaultProject is used by NewEntity when none is given.
func New(baseURL, defaultProject string, opts ...Option) *Tracker {
	t := &Tracker{
		baseURL:        baseURL,
		defaultProject: defaultProject,
		items:          make(map[int]*Wrapper),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.sessionID == "" {
		t.sessionID = uuid.Must(uuid.NewV7()).String()
	}
	return t
}

// SessionID identifies this session in logs.
func (t *Tracker) SessionID() string { return t.sessionID }

// BaseURL returns the work item URL prefix.
func (t *Tracker) BaseURL() string { return t.baseURL }

// DefaultProject returns the project used when NewEntity gets none.
func (t *Tracker) DefaultProject() string { return t.defaultProject }

// Len returns the number of tracked wrappers.
func (t *Tracker) Len() int { return len(t.order) }

// Get returns the tracked wrapper for id without loading it.
func (t *Tracker) Get(id int) (*Wrapper, bool) {
	w, ok := t.items[id]
	return w, ok
}

// Resolve returns the tracked wrapper a relation points at.
func (t *Tracker) Resolve(r wit.Relation) (*Wrapper, bool) {
	id, err := wit.ParseWorkItemURL(r.URL)
	if err != nil {
		return nil, false
	}
	return t.Get(id)
}

// Wrap registers an already fetched snapshot and returns its wrapper.
// If the id is tracked the existing wrapper wins and the snapshot is ignored.
func (t *Tracker) Wrap(wi *wit.WorkItem) *Wrapper {
	if w, ok := t.items[wi.ID]; ok {
		return w
	}
	w := newWrapper(t, wi)
	t.register(w)
	return w
}

// LoadOne returns the wrapper for id, calling fetch only if the id is not
// tracked yet. The same instance is returned for the session's lifetime.
func (t *Tracker) LoadOne(ctx context.Context, id int, fetch FetchOne) (*Wrapper, error) {
	if w, ok := t.items[id]; ok {
		return w, nil
	}
	wi, err := fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load work item %d: %w", id, err)
	}
	if wi == nil {
		return nil, fmt.Errorf("load work item %d: %w", id, wit.ErrNotFound)
	}
	if wi.ID == 0 {
		wi.ID = id
	}
	if wi.ID != id {
		return nil, fmt.Errorf("load work item %d: store returned id %d", id, wi.ID)
	}
	return t.Wrap(wi), nil
}

// LoadMany returns wrappers for ids in input order. Tracked ids are served
// from the map; only the remaining ids are passed to fetch, once each.
func (t *Tracker) LoadMany(ctx context.Context, ids []int, fetch FetchMany) ([]*Wrapper, error) {
	var missing []int
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if _, ok := t.items[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		items, err := fetch(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load work items %v: %w", missing, err)
		}
		byID := make(map[int]*wit.WorkItem, len(items))
		for _, wi := range items {
			if wi != nil {
				byID[wi.ID] = wi
			}
		}
		for _, id := range missing {
			wi, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("load work item %d: %w", id, wit.ErrNotFound)
			}
			t.Wrap(wi)
		}
	}

	result := make([]*Wrapper, len(ids))
	for i, id := range ids {
		result[i] = t.items[id]
	}
	return result, nil
}

// NewEntity registers a wrapper for a work item that does not exist yet.
// Its temporary id is strictly less than every id allocated before.
func (t *Tracker) NewEntity(workItemType, project string) *Wrapper {
	if project == "" {
		project = t.defaultProject
	}
	id := t.ids.Next()
	wi := &wit.WorkItem{
		ID: id,
		Fields: map[string]any{
			wit.FieldWorkItemType: workItemType,
			wit.FieldTeamProject:  project,
		},
		URL: wit.WorkItemURL(t.baseURL, id),
	}
	w := newWrapper(t, wi)
	t.register(w)
	return w
}

// All returns every tracked wrapper in tracking order.
func (t *Tracker) All() []*Wrapper {
	out := make([]*Wrapper, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Tracker) register(w *Wrapper) {
	t.items[w.id] = w
	t.order = append(t.order, w)
}

func (t *Tracker) reindex(w *Wrapper, oldID, newID int) error {
	if cur, ok := t.items[oldID]; !ok || cur != w {
		return fmt.Errorf("reindex: id %d is not tracked by this wrapper", oldID)
	}
	if other, ok := t.items[newID]; ok && other != w {
		return fmt.Errorf("reindex: id %d is already tracked", newID)
	}
	delete(t.items, oldID)
	t.items[newID] = w
	return nil
}
