// Package batch builds, dispatches and validates batch calls against the
// tracking store.
//
// Responses are correlated with requests by position: the store guarantees
// the response sequence preserves request order. A backend without that
// guarantee needs an explicit correlation id per request instead.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/roach88/witsync/internal/wit"
)

// APIVersion is the REST api-version stamped on batch entry URIs.
const APIVersion = "7.1"

// ContentTypePatch is the media type of patch document bodies.
const ContentTypePatch = "application/json-patch+json"

// CreateRequest builds the batch entry that creates a work item.
func CreateRequest(project, workItemType string, doc wit.PatchDocument) wit.BatchRequest {
	return wit.BatchRequest{
		Method:  "PATCH",
		URI:     fmt.Sprintf("/%s/_apis/wit/workitems/$%s?api-version=%s", url.PathEscape(project), url.PathEscape(workItemType), APIVersion),
		Headers: map[string]string{"Content-Type": ContentTypePatch},
		Body:    doc,
	}
}

// UpdateRequest builds the batch entry that updates a work item.
func UpdateRequest(id int, doc wit.PatchDocument) wit.BatchRequest {
	return wit.BatchRequest{
		Method:  "PATCH",
		URI:     fmt.Sprintf("/_apis/wit/workitems/%d?api-version=%s", id, APIVersion),
		Headers: map[string]string{"Content-Type": ContentTypePatch},
		Body:    doc,
	}
}

// Protocol dispatches batch calls and validates their responses.
type Protocol struct {
	client wit.Client
	logger *zap.Logger
}

// New creates a Protocol over client.
func New(client wit.Client, logger *zap.Logger) *Protocol {
	return &Protocol{
		client: client,
		logger: logger.Named("batch"),
	}
}

// Execute sends requests as one batch call.
//
// An empty request sequence issues no call. If any entry has a non-2xx
// status the whole batch is treated as failed and a *RemoteFailure listing
// every failing entry is returned; callers must not consume the responses
// in that case.
func (p *Protocol) Execute(ctx context.Context, requests []wit.BatchRequest) ([]wit.BatchResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	if ce := p.logger.Check(zap.DebugLevel, "Batch request"); ce != nil {
		body, _ := json.MarshalIndent(requests, "", "  ")
		ce.Write(zap.Int("entries", len(requests)), zap.ByteString("body", body))
	}

	responses, err := p.client.ExecuteBatch(ctx, requests)
	if err != nil {
		return nil, err
	}
	if len(responses) != len(requests) {
		return nil, &RemoteFailure{
			Message: fmt.Sprintf("batch returned %d responses for %d requests", len(responses), len(requests)),
		}
	}

	var failures []EntryFailure
	for i, resp := range responses {
		if !resp.IsSuccess() {
			failures = append(failures, EntryFailure{Index: i, Code: resp.Code, Body: resp.Body})
		}
	}
	if len(failures) > 0 {
		if ce := p.logger.Check(zap.DebugLevel, "Batch response"); ce != nil {
			body, _ := json.MarshalIndent(responses, "", "  ")
			ce.Write(zap.ByteString("body", body))
		}
		for _, f := range failures {
			p.logger.Error("Save failed",
				zap.Int("index", f.Index),
				zap.Int("code", f.Code),
				zap.String("body", f.Body))
		}
		return nil, &RemoteFailure{Message: "save failed", Failures: failures}
	}

	return responses, nil
}

// DecodeWorkItem parses the work item carried by a successful entry.
func DecodeWorkItem(resp wit.BatchResponse) (*wit.WorkItem, error) {
	var wi wit.WorkItem
	if err := json.Unmarshal([]byte(resp.Body), &wi); err != nil {
		return nil, fmt.Errorf("decode batch entry: %w", err)
	}
	if wi.ID == 0 {
		return nil, fmt.Errorf("decode batch entry: missing work item id")
	}
	return &wi, nil
}
