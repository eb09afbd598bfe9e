package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/witsync/internal/wit"
)

// itemState is the mutable image of one work item while a patch is applied.
type itemState struct {
	id        int
	rev       int
	fields    map[string]any
	relations []wit.Relation
}

// CreateWorkItem creates a work item of the given type in project.
// The new item gets the next AUTOINCREMENT id and revision 1.
func (s *Store) CreateWorkItem(ctx context.Context, project, workItemType string, doc wit.PatchDocument) (*wit.WorkItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create work item: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	wi, err := s.createInTx(ctx, tx, project, workItemType, doc)
	if err != nil {
		return nil, fmt.Errorf("create work item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create work item: commit: %w", err)
	}
	return wi, nil
}

func (s *Store) createInTx(ctx context.Context, tx *sql.Tx, project, workItemType string, doc wit.PatchDocument) (*wit.WorkItem, error) {
	if project == "" || workItemType == "" {
		return nil, fmt.Errorf("%w: project and work item type are required", ErrInvalidOperation)
	}

	st := &itemState{rev: 1, fields: make(map[string]any)}
	if err := applyPatch(ctx, tx, st, doc, true); err != nil {
		return nil, err
	}

	fieldsJSON, err := marshalFields(st.fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO work_items (rev, work_item_type, project, deleted, fields)
		VALUES (1, ?, ?, 0, ?)
	`, workItemType, project, fieldsJSON)
	if err != nil {
		return nil, fmt.Errorf("insert work item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get id: %w", err)
	}
	st.id = int(id)

	if err := writeRelations(ctx, tx, st); err != nil {
		return nil, err
	}
	return s.loadWorkItem(ctx, tx, st.id)
}

// UpdateWorkItem applies doc to an existing work item and bumps its revision.
func (s *Store) UpdateWorkItem(ctx context.Context, id int, doc wit.PatchDocument) (*wit.WorkItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update work item %d: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	wi, err := s.updateInTx(ctx, tx, id, doc)
	if err != nil {
		return nil, fmt.Errorf("update work item %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update work item %d: commit: %w", id, err)
	}
	return wi, nil
}

func (s *Store) updateInTx(ctx context.Context, tx *sql.Tx, id int, doc wit.PatchDocument) (*wit.WorkItem, error) {
	current, err := s.loadWorkItem(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.IsDeleted {
		return nil, ErrDeleted
	}

	st := &itemState{
		id:        id,
		rev:       current.Rev,
		fields:    current.Fields,
		relations: current.Relations,
	}
	if err := applyPatch(ctx, tx, st, doc, false); err != nil {
		return nil, err
	}

	fieldsJSON, err := marshalFields(st.fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE work_items SET rev = rev + 1, fields = ? WHERE id = ?
	`, fieldsJSON, id); err != nil {
		return nil, fmt.Errorf("update row: %w", err)
	}

	if err := writeRelations(ctx, tx, st); err != nil {
		return nil, err
	}
	return s.loadWorkItem(ctx, tx, id)
}

// DeleteWorkItem moves a work item to the recycle bin.
// Deleting an item already in the recycle bin is a no-op.
func (s *Store) DeleteWorkItem(ctx context.Context, id int) error {
	return s.setDeleted(ctx, id, true)
}

// RestoreWorkItem takes a work item out of the recycle bin.
// Restoring an item that is not deleted is a no-op.
func (s *Store) RestoreWorkItem(ctx context.Context, id int) error {
	return s.setDeleted(ctx, id, false)
}

func (s *Store) setDeleted(ctx context.Context, id int, deleted bool) error {
	verb := "restore"
	flag := 0
	if deleted {
		verb = "delete"
		flag = 1
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE work_items SET deleted = ?, rev = rev + 1
		WHERE id = ? AND deleted <> ?
	`, flag, id, flag)
	if err != nil {
		return fmt.Errorf("%s work item %d: %w", verb, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s work item %d: %w", verb, id, err)
	}
	if n > 0 {
		return nil
	}

	ok, err := exists(ctx, s.db, id)
	if err != nil {
		return fmt.Errorf("%s work item %d: %w", verb, id, err)
	}
	if !ok {
		return fmt.Errorf("%s work item %d: %w", verb, id, wit.ErrNotFound)
	}
	return nil
}

// applyPatch applies operations in document order onto st.
// Relation targets must exist in the store; temporary ids never do.
func applyPatch(ctx context.Context, q querier, st *itemState, doc wit.PatchDocument, creating bool) error {
	for i, op := range doc {
		if err := applyOperation(ctx, q, st, op, creating); err != nil {
			return fmt.Errorf("operation %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return nil
}

func applyOperation(ctx context.Context, q querier, st *itemState, op wit.PatchOperation, creating bool) error {
	switch {
	case op.Path == wit.PathRev:
		if op.Op != wit.OpTest {
			return ErrInvalidOperation
		}
		rev, ok := toInt(op.Value)
		if !ok {
			return ErrInvalidOperation
		}
		if rev != st.rev {
			return fmt.Errorf("%w: expected %d, found %d", ErrRevisionMismatch, rev, st.rev)
		}
		return nil

	case op.Path == wit.PathID:
		// Accepted on create to label an item with its temporary id.
		id, ok := toInt(op.Value)
		if !creating || op.Op != wit.OpAdd || !ok || !wit.IsTemporaryID(id) {
			return ErrInvalidOperation
		}
		return nil

	case op.IsRelation():
		return applyRelation(ctx, q, st, op)
	}

	name, ok := op.FieldName()
	if !ok || name == "" || slices.Contains(storedFields, name) {
		return ErrInvalidOperation
	}
	switch op.Op {
	case wit.OpAdd, wit.OpReplace:
		if op.Value == nil {
			return ErrInvalidOperation
		}
		st.fields[name] = op.Value
	case wit.OpRemove:
		delete(st.fields, name)
	case wit.OpTest:
		if !wit.ValuesEqual(st.fields[name], op.Value) {
			return fmt.Errorf("%w: field %s", ErrRevisionMismatch, name)
		}
	default:
		return ErrInvalidOperation
	}
	return nil
}

func applyRelation(ctx context.Context, q querier, st *itemState, op wit.PatchOperation) error {
	r, ok := op.RelationValue()
	if !ok {
		return ErrInvalidOperation
	}
	target, err := wit.ParseWorkItemURL(r.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	idx := slices.IndexFunc(st.relations, func(x wit.Relation) bool {
		if x.Rel != r.Rel {
			return false
		}
		id, err := wit.ParseWorkItemURL(x.URL)
		return err == nil && id == target
	})

	switch op.Op {
	case wit.OpAdd:
		if idx >= 0 {
			return fmt.Errorf("%w: relation %s to %d already exists", ErrInvalidOperation, r.Rel, target)
		}
		found := false
		if target > 0 {
			if found, err = exists(ctx, q, target); err != nil {
				return err
			}
		}
		if !found {
			return fmt.Errorf("%w: TF401232: Work item %d does not exist", ErrUnknownTarget, target)
		}
		st.relations = append(st.relations, wit.Relation{Rel: r.Rel, URL: r.URL, Attributes: r.Attributes})
	case wit.OpRemove:
		if idx < 0 {
			return fmt.Errorf("%w: relation %s to %d not found", ErrInvalidOperation, r.Rel, target)
		}
		st.relations = slices.Delete(st.relations, idx, idx+1)
	default:
		return ErrInvalidOperation
	}
	return nil
}

// writeRelations replaces the stored relations of st.id.
func writeRelations(ctx context.Context, tx *sql.Tx, st *itemState) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE work_item_id = ?`, st.id); err != nil {
		return fmt.Errorf("clear relations: %w", err)
	}
	for seq, r := range st.relations {
		target, err := wit.ParseWorkItemURL(r.URL)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relations (work_item_id, seq, rel, url, target_id)
			VALUES (?, ?, ?, ?, ?)
		`, st.id, seq, r.Rel, r.URL, target); err != nil {
			return fmt.Errorf("insert relation: %w", err)
		}
	}
	return nil
}

// toInt accepts the numeric shapes a patch value can take in process or
// after a JSON round trip.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
