package wit

import (
	"fmt"
	"strconv"
	"strings"
)

// Core field reference names.
const (
	FieldID           = "System.Id"
	FieldWorkItemType = "System.WorkItemType"
	FieldTeamProject  = "System.TeamProject"
	FieldTitle        = "System.Title"
	FieldState        = "System.State"
)

// WorkItem is a snapshot of one remote work item as returned by the store.
type WorkItem struct {
	ID        int            `json:"id"`
	Rev       int            `json:"rev"`
	Fields    map[string]any `json:"fields"`
	Relations []Relation     `json:"relations,omitempty"`
	URL       string         `json:"url,omitempty"`
	IsDeleted bool           `json:"isDeleted,omitempty"`
}

// WorkItemType returns the System.WorkItemType field as a string.
func (w *WorkItem) WorkItemType() string {
	return stringField(w.Fields, FieldWorkItemType)
}

// TeamProject returns the System.TeamProject field as a string.
func (w *WorkItem) TeamProject() string {
	return stringField(w.Fields, FieldTeamProject)
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// Relation links a work item to another resource.
// URL is the weak reference to the target; use ParseWorkItemURL to resolve it.
type Relation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// workItemsSegment is the path segment preceding the id in work item URLs.
const workItemsSegment = "/_apis/wit/workitems/"

// WorkItemURL builds the canonical URL of a work item under baseURL.
func WorkItemURL(baseURL string, id int) string {
	return strings.TrimRight(baseURL, "/") + workItemsSegment + strconv.Itoa(id)
}

// ParseWorkItemURL extracts the work item id from the last URL segment.
func ParseWorkItemURL(url string) (int, error) {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return 0, fmt.Errorf("no work item id in url %q", url)
	}
	id, err := strconv.Atoi(url[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("no work item id in url %q: %w", url, err)
	}
	return id, nil
}

// RebaseWorkItemURL returns url with its trailing id replaced by id.
func RebaseWorkItemURL(url string, id int) string {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return url
	}
	return url[:idx+1] + strconv.Itoa(id)
}

// IsTemporaryID reports whether id denotes a work item not yet persisted.
func IsTemporaryID(id int) bool {
	return id < 0
}
