package wit

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a work item does not exist in the store.
var ErrNotFound = errors.New("work item not found")

// Client is the set of capabilities consumed from a remote tracking store.
// Implemented by store.Store (SQLite sandbox) and azdo.Client (REST).
type Client interface {
	// BaseURL is the prefix used to build work item URLs for relations.
	BaseURL() string

	GetWorkItem(ctx context.Context, id int) (*WorkItem, error)
	GetWorkItems(ctx context.Context, ids []int) ([]*WorkItem, error)

	CreateWorkItem(ctx context.Context, project, workItemType string, doc PatchDocument) (*WorkItem, error)
	UpdateWorkItem(ctx context.Context, id int, doc PatchDocument) (*WorkItem, error)
	DeleteWorkItem(ctx context.Context, id int) error
	RestoreWorkItem(ctx context.Context, id int) error

	// ExecuteBatch runs requests in order and returns one response per request,
	// in the same order.
	ExecuteBatch(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error)
}
