package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/witsync/internal/wit"
)

const workItemsPath = "/_apis/wit/workitems/"

// ExecuteBatch applies each request in its own transaction, in request
// order, and returns one response per request in the same order.
// A failing entry does not stop the entries after it.
func (s *Store) ExecuteBatch(ctx context.Context, requests []wit.BatchRequest) ([]wit.BatchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	responses := make([]wit.BatchResponse, len(requests))
	for i, req := range requests {
		wi, err := s.executeEntry(ctx, req)
		if err != nil {
			responses[i] = errorResponse(err)
			continue
		}
		body, err := json.Marshal(wi)
		if err != nil {
			responses[i] = errorResponse(err)
			continue
		}
		responses[i] = wit.BatchResponse{
			Code:    http.StatusOK,
			Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
			Body:    string(body),
		}
	}
	return responses, nil
}

func (s *Store) executeEntry(ctx context.Context, req wit.BatchRequest) (*wit.WorkItem, error) {
	if !strings.EqualFold(req.Method, http.MethodPatch) {
		return nil, fmt.Errorf("%w: method %s", ErrInvalidOperation, req.Method)
	}
	target, err := parseURI(req.URI)
	if err != nil {
		return nil, err
	}
	if target.create {
		return s.CreateWorkItem(ctx, target.project, target.workItemType, req.Body)
	}
	return s.UpdateWorkItem(ctx, target.id, req.Body)
}

type entryTarget struct {
	create       bool
	project      string
	workItemType string
	id           int
}

// parseURI understands the two entry shapes the batch protocol builds:
//
//	/<project>/_apis/wit/workitems/$<type>?api-version=...
//	/_apis/wit/workitems/<id>?api-version=...
func parseURI(uri string) (entryTarget, error) {
	path, _, _ := strings.Cut(uri, "?")
	prefix, last, ok := strings.Cut(path, workItemsPath)
	if !ok || last == "" || strings.Contains(last, "/") {
		return entryTarget{}, fmt.Errorf("%w: uri %q", ErrInvalidOperation, uri)
	}

	if typ, isCreate := strings.CutPrefix(last, "$"); isCreate {
		project, err := url.PathUnescape(strings.Trim(prefix, "/"))
		if err != nil {
			return entryTarget{}, fmt.Errorf("%w: uri %q: %v", ErrInvalidOperation, uri, err)
		}
		workItemType, err := url.PathUnescape(typ)
		if err != nil {
			return entryTarget{}, fmt.Errorf("%w: uri %q: %v", ErrInvalidOperation, uri, err)
		}
		return entryTarget{create: true, project: project, workItemType: workItemType}, nil
	}

	id, err := strconv.Atoi(last)
	if err != nil {
		return entryTarget{}, fmt.Errorf("%w: uri %q: %v", ErrInvalidOperation, uri, err)
	}
	return entryTarget{id: id}, nil
}

func errorResponse(err error) wit.BatchResponse {
	body, _ := json.Marshal(map[string]string{"message": err.Error()})
	return wit.BatchResponse{
		Code:    statusFor(err),
		Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
		Body:    string(body),
	}
}
