package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/witsync/internal/batch"
	"github.com/roach88/witsync/internal/tracker"
	"github.com/roach88/witsync/internal/wit"
)

// Commit pushes every pending change of the session to the remote store.
//
// With apply false, Commit is a dry run: it logs the intended actions,
// issues no remote call and returns the counts a real commit would return.
// created counts created work items; updated counts updated, deleted and
// restored ones.
//
// On success every committed wrapper is clean. Errors are *CommitError.
func (s *Store) Commit(ctx context.Context, mode SaveMode, apply bool) (created, updated int, err error) {
	s.phase = PhaseNotStarted

	if mode == SaveModeDefault {
		s.logger.Debug("No save mode specified, assuming TwoPhases")
		mode = SaveModeTwoPhases
	}
	switch mode {
	case SaveModeItem, SaveModeBatch, SaveModeTwoPhases:
	default:
		return 0, 0, NewValidationError(fmt.Sprintf("unsupported save mode: %s", mode))
	}

	changes := s.tracker.GetChangedWorkItems()
	created = len(changes.Created)
	updated = len(changes.Updated) + len(changes.Deleted) + len(changes.Restored)

	if !apply {
		s.preview(mode, changes)
		s.phase = PhasePreviewed
		return created, updated, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, 0, newRemoteError(s.phase, "commit", err)
	}

	s.logger.Info("Committing changes",
		zap.Stringer("mode", mode),
		zap.Int("created", created),
		zap.Int("updated", len(changes.Updated)),
		zap.Int("deleted", len(changes.Deleted)),
		zap.Int("restored", len(changes.Restored)))

	switch mode {
	case SaveModeItem:
		err = s.saveByItem(ctx, changes)
	case SaveModeBatch:
		err = s.saveBatch(ctx, changes)
	default:
		err = s.saveTwoPhases(ctx, changes)
	}
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// preview logs what a commit in mode would do.
func (s *Store) preview(mode SaveMode, c tracker.ChangedWorkItems) {
	for _, w := range c.Created {
		s.logger.Info(fmt.Sprintf("Dry-run mode: should create a %s workitem in %s", w.WorkItemType(), w.Project()),
			zap.Int("id", w.ID()))
	}
	if len(c.Deleted) > 0 || len(c.Restored) > 0 {
		s.logger.Info(fmt.Sprintf("Dry-run mode: should restore: %s and delete %s workitems",
			formatIDs(c.Restored), formatIDs(c.Deleted)))
	}
	for _, w := range c.Updated {
		s.logger.Info(fmt.Sprintf("Dry-run mode: should update workitem %d in %s", w.ID(), w.Project()),
			zap.Int("id", w.ID()))
	}
	s.logger.Warn("Dry-run mode: no updates sent to the remote store", zap.Stringer("mode", mode))
}

func formatIDs(items []*tracker.Wrapper) string {
	ids := make([]string, len(items))
	for i, w := range items {
		ids[i] = strconv.Itoa(w.ID())
	}
	return strings.Join(ids, ",")
}

// saveTwoPhases creates new work items without relations, swaps their ids,
// applies recycle transitions, then sends every remaining operation.
func (s *Store) saveTwoPhases(ctx context.Context, c tracker.ChangedWorkItems) error {
	requests := make([]wit.BatchRequest, 0, len(c.Created))
	for _, w := range c.Created {
		s.logger.Info(fmt.Sprintf("Found a request for a new %s workitem in %s", w.WorkItemType(), w.Project()),
			zap.Int("id", w.ID()))
		doc := w.Changes().WithoutTests().WithoutRelations()
		requests = append(requests, batch.CreateRequest(w.Project(), w.WorkItemType(), doc))
	}

	responses, err := s.protocol.Execute(ctx, requests)
	if err != nil {
		return newRemoteError(s.phase, "phase 1 batch failed", err)
	}
	s.phase = PhasePhase1Submitted

	idMap, err := s.adoptCreated(c.Created, responses)
	if err != nil {
		return err
	}
	s.remap(idMap)
	s.phase = PhaseIdsRemapped

	if err := s.deleteAndRestore(ctx, c); err != nil {
		return err
	}
	s.phase = PhaseDeletesApplied

	var pending []*tracker.Wrapper
	requests = nil
	for _, w := range concat(c.Created, c.Updated, c.Restored) {
		doc := w.Changes()
		// Created items were just written in phase 1 and restores bumped
		// the revision; only Updated items keep their guard.
		if w.RecycleStatus() == tracker.RecycleToRestore || slices.Contains(c.Created, w) {
			doc = doc.WithoutTests()
		}
		if len(doc) == 0 {
			continue
		}
		s.logger.Info(fmt.Sprintf("Found a request to update workitem %d in %s", w.ID(), w.Project()),
			zap.Int("id", w.ID()))
		pending = append(pending, w)
		requests = append(requests, batch.UpdateRequest(w.ID(), doc))
	}

	responses, err = s.protocol.Execute(ctx, requests)
	if err != nil {
		return newRemoteError(s.phase, "phase 2 batch failed", err)
	}
	s.phase = PhasePhase2Submitted
	s.updateRevs(pending, responses)

	s.resetAll(c)
	s.phase = PhaseDone
	return nil
}

// saveBatch applies recycle transitions, then sends every created and
// updated work item in one batch.
func (s *Store) saveBatch(ctx context.Context, c tracker.ChangedWorkItems) error {
	var requests []wit.BatchRequest
	for _, w := range c.Created {
		s.logger.Info(fmt.Sprintf("Found a request for a new %s workitem in %s", w.WorkItemType(), w.Project()),
			zap.Int("id", w.ID()))
		requests = append(requests, batch.CreateRequest(w.Project(), w.WorkItemType(), w.Changes()))
	}
	var pending []*tracker.Wrapper
	for _, w := range c.Updated {
		s.logger.Info(fmt.Sprintf("Found a request to update workitem %d in %s", w.ID(), w.Project()),
			zap.Int("id", w.ID()))
		pending = append(pending, w)
		requests = append(requests, batch.UpdateRequest(w.ID(), w.Changes()))
	}
	for _, w := range c.Restored {
		// The restore bumps the revision, so the guard would be stale.
		doc := w.Changes().WithoutTests()
		if len(doc) == 0 {
			continue
		}
		pending = append(pending, w)
		requests = append(requests, batch.UpdateRequest(w.ID(), doc))
	}

	if len(c.Deleted) > 0 || len(c.Restored) > 0 {
		s.phase = PhaseRecycleStarted
	}
	if err := s.deleteAndRestore(ctx, c); err != nil {
		return err
	}
	s.phase = PhaseDeletesApplied

	responses, err := s.protocol.Execute(ctx, requests)
	if err != nil {
		return newRemoteError(s.phase, "save failed", err)
	}
	s.phase = PhasePhase2Submitted

	idMap, err := s.adoptCreated(c.Created, responses[:len(c.Created)])
	if err != nil {
		return err
	}
	s.remap(idMap)
	s.updateRevs(pending, responses[len(c.Created):])

	s.resetAll(c)
	s.phase = PhaseDone
	return nil
}

// saveByItem issues one call per work item. Failed calls are collected and
// reported together; cancellation stops at once.
func (s *Store) saveByItem(ctx context.Context, c tracker.ChangedWorkItems) error {
	failed := make(map[*tracker.Wrapper]bool)
	var errs []error
	calls := 0

	// record returns a non-nil error only when the commit must stop.
	record := func(w *tracker.Wrapper, err error) error {
		calls++
		if err == nil {
			return nil
		}
		if isContextError(err) {
			return newRemoteError(s.phase, "commit cancelled", err)
		}
		s.logger.Error("Save failed", zap.Int("id", w.ID()), zap.Error(err))
		failed[w] = true
		errs = append(errs, fmt.Errorf("work item %d: %w", w.ID(), err))
		return nil
	}

	idMap := make(map[int]int, len(c.Created))
	for _, w := range c.Created {
		s.logger.Info(fmt.Sprintf("Creating a %s workitem in %s", w.WorkItemType(), w.Project()),
			zap.Int("id", w.ID()))
		// Relations follow in the update pass, once every id is permanent.
		doc := w.Changes().WithoutTests().WithoutRelations()
		wi, err := s.client.CreateWorkItem(ctx, w.Project(), w.WorkItemType(), doc)
		if stop := record(w, err); stop != nil {
			return stop
		}
		if err != nil {
			continue
		}
		oldID := w.ID()
		if err := w.ReplaceIdAndResetChanges(oldID, wi.ID); err != nil {
			return &CommitError{Code: ErrCodeRemoteFailure, Phase: s.phase, Message: "id swap failed", Err: err}
		}
		w.UpdateRev(wi.Rev)
		idMap[oldID] = wi.ID
	}
	s.phase = PhasePhase1Submitted

	s.remap(idMap)
	s.phase = PhaseIdsRemapped

	for _, w := range c.Deleted {
		if w.IsNew() {
			s.logger.Warn("Skipping delete of a work item never created", zap.Int("id", w.ID()))
			continue
		}
		s.logger.Info(fmt.Sprintf("Deleting workitem %d in %s", w.ID(), w.Project()), zap.Int("id", w.ID()))
		if stop := record(w, s.client.DeleteWorkItem(ctx, w.ID())); stop != nil {
			return stop
		}
	}
	for _, w := range c.Restored {
		s.logger.Info(fmt.Sprintf("Restoring workitem %d in %s", w.ID(), w.Project()), zap.Int("id", w.ID()))
		if stop := record(w, s.client.RestoreWorkItem(ctx, w.ID())); stop != nil {
			return stop
		}
	}
	s.phase = PhaseDeletesApplied

	for _, w := range concat(c.Created, c.Updated, c.Restored) {
		if failed[w] || w.IsNew() {
			continue
		}
		doc := w.Changes()
		if w.RecycleStatus() == tracker.RecycleToRestore {
			doc = doc.WithoutTests()
		}
		if len(doc) == 0 {
			continue
		}
		s.logger.Info(fmt.Sprintf("Updating workitem %d", w.ID()), zap.Int("id", w.ID()))
		wi, err := s.client.UpdateWorkItem(ctx, w.ID(), doc)
		if stop := record(w, err); stop != nil {
			return stop
		}
		if err == nil {
			w.UpdateRev(wi.Rev)
		}
	}
	s.phase = PhasePhase2Submitted

	s.warnDroppedEdits(c.Deleted)
	for _, w := range concat(c.Created, c.Updated, c.Deleted, c.Restored) {
		if !failed[w] {
			w.ResetChanges()
		}
	}

	if len(errs) > 0 {
		return &CommitError{
			Code:    ErrCodeRemoteFailure,
			Phase:   s.phase,
			Message: fmt.Sprintf("%d of %d calls failed", len(errs), calls),
			Err:     errors.Join(errs...),
		}
	}
	s.phase = PhaseDone
	return nil
}

// adoptCreated reads permanent ids back from create responses, matched to
// created wrappers by position, and swaps them in.
func (s *Store) adoptCreated(created []*tracker.Wrapper, responses []wit.BatchResponse) (map[int]int, error) {
	idMap := make(map[int]int, len(created))
	for i, w := range created {
		wi, err := batch.DecodeWorkItem(responses[i])
		if err != nil {
			return nil, &CommitError{Code: ErrCodeRemoteFailure, Phase: s.phase, Message: "unreadable create response", Err: err}
		}
		oldID := w.ID()
		if err := w.ReplaceIdAndResetChanges(oldID, wi.ID); err != nil {
			return nil, &CommitError{Code: ErrCodeRemoteFailure, Phase: s.phase, Message: "id swap failed", Err: err}
		}
		w.UpdateRev(wi.Rev)
		idMap[oldID] = wi.ID
		s.logger.Debug("Created work item", zap.Int("temporary_id", oldID), zap.Int("id", wi.ID))
	}
	return idMap, nil
}

// remap rewrites references to temporary ids across the whole session.
func (s *Store) remap(idMap map[int]int) {
	if len(idMap) == 0 {
		return
	}
	for _, w := range s.tracker.All() {
		if n := w.RemapIdReferences(idMap); n > 0 {
			s.logger.Debug("Remapped relations", zap.Int("id", w.ID()), zap.Int("operations", n))
		}
	}
}

// deleteAndRestore issues recycle bin calls, deletes first.
func (s *Store) deleteAndRestore(ctx context.Context, c tracker.ChangedWorkItems) error {
	for _, w := range c.Deleted {
		if w.IsNew() {
			s.logger.Warn("Skipping delete of a work item never created", zap.Int("id", w.ID()))
			continue
		}
		s.logger.Info(fmt.Sprintf("Deleting workitem %d in %s", w.ID(), w.Project()), zap.Int("id", w.ID()))
		if err := s.client.DeleteWorkItem(ctx, w.ID()); err != nil {
			return newRemoteError(s.phase, fmt.Sprintf("delete of work item %d failed", w.ID()), err)
		}
	}
	for _, w := range c.Restored {
		s.logger.Info(fmt.Sprintf("Restoring workitem %d in %s", w.ID(), w.Project()), zap.Int("id", w.ID()))
		if err := s.client.RestoreWorkItem(ctx, w.ID()); err != nil {
			return newRemoteError(s.phase, fmt.Sprintf("restore of work item %d failed", w.ID()), err)
		}
	}
	return nil
}

// updateRevs records the revisions returned for updated work items.
func (s *Store) updateRevs(items []*tracker.Wrapper, responses []wit.BatchResponse) {
	for i, w := range items {
		if wi, err := batch.DecodeWorkItem(responses[i]); err == nil {
			w.UpdateRev(wi.Rev)
		}
	}
}

// resetAll marks every committed wrapper clean.
func (s *Store) resetAll(c tracker.ChangedWorkItems) {
	s.warnDroppedEdits(c.Deleted)
	for _, w := range concat(c.Created, c.Updated, c.Deleted, c.Restored) {
		w.ResetChanges()
	}
}

// warnDroppedEdits reports deleted work items whose pending edits are
// discarded rather than sent.
func (s *Store) warnDroppedEdits(deleted []*tracker.Wrapper) {
	for _, w := range deleted {
		if n := w.PendingOperations(); n > 0 {
			s.logger.Warn("Dropping pending changes of a deleted work item",
				zap.Int("id", w.ID()),
				zap.Int("operations", n))
		}
	}
}

func concat(groups ...[]*tracker.Wrapper) []*tracker.Wrapper {
	var out []*tracker.Wrapper
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
