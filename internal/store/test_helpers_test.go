package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/roach88/witsync/internal/wit"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestItem creates a Task in project "Demo" with the given title.
func createTestItem(t *testing.T, s *Store, title string) *wit.WorkItem {
	t.Helper()
	wi, err := s.CreateWorkItem(context.Background(), "Demo", "Task", wit.PatchDocument{
		{Op: wit.OpAdd, Path: wit.FieldPath(wit.FieldTitle), Value: title},
	})
	if err != nil {
		t.Fatalf("CreateWorkItem() failed: %v", err)
	}
	return wi
}

func relationTo(s *Store, rel string, id int) wit.Relation {
	return wit.Relation{Rel: rel, URL: wit.WorkItemURL(s.BaseURL(), id)}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
