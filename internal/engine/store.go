package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/witsync/internal/batch"
	"github.com/roach88/witsync/internal/tracker"
	"github.com/roach88/witsync/internal/wit"
)

// Store is the entry point of a tracking session: it loads and creates
// work items through the tracker and commits their changes.
type Store struct {
	client   wit.Client
	tracker  *tracker.Tracker
	protocol *batch.Protocol
	logger   *zap.Logger

	phase Phase
}

// New creates a Store over client and tr.
func New(client wit.Client, tr *tracker.Tracker, logger *zap.Logger) *Store {
	return &Store{
		client:   client,
		tracker:  tr,
		protocol: batch.New(client, logger),
		logger:   logger.Named("engine").With(zap.String("session", tr.SessionID())),
	}
}

// Tracker returns the session's identity map.
func (s *Store) Tracker() *tracker.Tracker {
	return s.tracker
}

// Phase returns the last phase reached by the most recent Commit.
func (s *Store) Phase() Phase {
	return s.phase
}

// GetWorkItem returns the tracked wrapper for id, fetching it once.
func (s *Store) GetWorkItem(ctx context.Context, id int) (*tracker.Wrapper, error) {
	return s.tracker.LoadOne(ctx, id, s.client.GetWorkItem)
}

// GetWorkItems returns tracked wrappers for ids in input order.
func (s *Store) GetWorkItems(ctx context.Context, ids []int) ([]*tracker.Wrapper, error) {
	return s.tracker.LoadMany(ctx, ids, s.client.GetWorkItems)
}

// GetRelatedWorkItem resolves the work item a relation points at.
// Temporary targets are served from the tracker only.
func (s *Store) GetRelatedWorkItem(ctx context.Context, r wit.Relation) (*tracker.Wrapper, error) {
	id, err := wit.ParseWorkItemURL(r.URL)
	if err != nil {
		return nil, fmt.Errorf("related work item: %w", err)
	}
	if wit.IsTemporaryID(id) {
		w, ok := s.tracker.Get(id)
		if !ok {
			return nil, fmt.Errorf("related work item %d: %w", id, wit.ErrNotFound)
		}
		return w, nil
	}
	return s.GetWorkItem(ctx, id)
}

// NewWorkItem registers a work item to create on the next commit.
// An empty project falls back to the tracker's default project.
func (s *Store) NewWorkItem(workItemType, project string) *tracker.Wrapper {
	w := s.tracker.NewEntity(workItemType, project)
	s.logger.Debug("New work item",
		zap.Int("id", w.ID()),
		zap.String("type", w.WorkItemType()),
		zap.String("project", w.Project()))
	return w
}

// DeleteWorkItem marks w for the recycle bin.
// Returns false if w is already deleted.
func (s *Store) DeleteWorkItem(w *tracker.Wrapper) bool {
	return w.ChangeRecycleStatus(tracker.RecycleToDelete)
}

// RestoreWorkItem marks w to come out of the recycle bin.
// Returns false if w is not deleted.
func (s *Store) RestoreWorkItem(w *tracker.Wrapper) bool {
	return w.ChangeRecycleStatus(tracker.RecycleToRestore)
}
