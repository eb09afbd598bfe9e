package store

import (
	"context"
	"fmt"

	"github.com/roach88/witsync/internal/wit"
)

// SeedItem describes a fixture work item.
type SeedItem struct {
	Type    string         `yaml:"type"`
	Project string         `yaml:"project"`
	Fields  map[string]any `yaml:"fields"`
	Deleted bool           `yaml:"deleted"`
}

// Seed creates fixture work items in order and returns their ids.
// Items marked Deleted are moved to the recycle bin after creation.
func (s *Store) Seed(ctx context.Context, items []SeedItem) ([]int, error) {
	ids := make([]int, 0, len(items))
	for i, item := range items {
		doc := make(wit.PatchDocument, 0, len(item.Fields))
		for _, name := range sortedKeys(item.Fields) {
			doc = append(doc, wit.PatchOperation{Op: wit.OpAdd, Path: wit.FieldPath(name), Value: item.Fields[name]})
		}
		wi, err := s.CreateWorkItem(ctx, item.Project, item.Type, doc)
		if err != nil {
			return nil, fmt.Errorf("seed item %d: %w", i, err)
		}
		if item.Deleted {
			if err := s.DeleteWorkItem(ctx, wi.ID); err != nil {
				return nil, fmt.Errorf("seed item %d: %w", i, err)
			}
		}
		ids = append(ids, wi.ID)
	}
	return ids, nil
}
