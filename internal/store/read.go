package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/witsync/internal/wit"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// GetWorkItem returns the work item with the given id, including items in
// the recycle bin. Returns wit.ErrNotFound if the id was never created.
func (s *Store) GetWorkItem(ctx context.Context, id int) (*wit.WorkItem, error) {
	wi, err := s.loadWorkItem(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("get work item %d: %w", id, err)
	}
	return wi, nil
}

// GetWorkItems returns the work items with the given ids in input order.
// Fails with wit.ErrNotFound if any id is missing.
func (s *Store) GetWorkItems(ctx context.Context, ids []int) ([]*wit.WorkItem, error) {
	items := make([]*wit.WorkItem, 0, len(ids))
	for _, id := range ids {
		wi, err := s.loadWorkItem(ctx, s.db, id)
		if err != nil {
			return nil, fmt.Errorf("get work items: id %d: %w", id, err)
		}
		items = append(items, wi)
	}
	return items, nil
}

// loadWorkItem reads one row and its relations.
func (s *Store) loadWorkItem(ctx context.Context, q querier, id int) (*wit.WorkItem, error) {
	var (
		rev        int
		deleted    int
		fieldsJSON string
		witType    string
		project    string
	)
	err := q.QueryRowContext(ctx, `
		SELECT rev, work_item_type, project, deleted, fields
		FROM work_items
		WHERE id = ?
	`, id).Scan(&rev, &witType, &project, &deleted, &fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wit.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query work item: %w", err)
	}

	fields := make(map[string]any)
	dec := json.NewDecoder(bytesReader(fieldsJSON))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	normalizeNumbers(fields)
	fields[wit.FieldID] = id
	fields[wit.FieldWorkItemType] = witType
	fields[wit.FieldTeamProject] = project

	relations, err := loadRelations(ctx, q, id)
	if err != nil {
		return nil, err
	}

	return &wit.WorkItem{
		ID:        id,
		Rev:       rev,
		Fields:    fields,
		Relations: relations,
		URL:       wit.WorkItemURL(s.baseURL, id),
		IsDeleted: deleted != 0,
	}, nil
}

// loadRelations returns relations ordered by insertion sequence.
func loadRelations(ctx context.Context, q querier, id int) ([]wit.Relation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT rel, url
		FROM relations
		WHERE work_item_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()

	var relations []wit.Relation
	for rows.Next() {
		var r wit.Relation
		if err := rows.Scan(&r.Rel, &r.URL); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relations: %w", err)
	}
	return relations, nil
}

// exists reports whether a work item row exists, deleted or not.
func exists(ctx context.Context, q querier, id int) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_items WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query work item: %w", err)
	}
	return n > 0, nil
}
