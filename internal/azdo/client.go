// Package azdo provides a wit.Client for the Azure DevOps work item
// tracking REST API.
package azdo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/witsync/internal/wit"
)

// APIVersion is the REST api-version sent with every request.
const APIVersion = "7.1"

// DefaultTimeout is the maximum time to wait for one HTTP round trip.
const DefaultTimeout = 30 * time.Second

// maxIDsPerRequest is the server-side limit of the work items list endpoint.
const maxIDsPerRequest = 200

// Client talks to one organization. Implements wit.Client.
type Client struct {
	orgURL     string
	project    string
	pat        string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a client for the organization at orgURL.
// project scopes delete and restore calls; pat is a personal access token.
func NewClient(orgURL, project, pat string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		orgURL:     strings.TrimRight(orgURL, "/"),
		project:    project,
		pat:        pat,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger.Named("azdo"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL implements wit.Client.
func (c *Client) BaseURL() string {
	return c.orgURL
}

// GetWorkItem implements wit.Client.
func (c *Client) GetWorkItem(ctx context.Context, id int) (*wit.WorkItem, error) {
	endpoint, err := c.buildURL(query{"$expand": "all"}, "_apis", "wit", "workitems", strconv.Itoa(id))
	if err != nil {
		return nil, err
	}

	var wi wit.WorkItem
	if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &wi); err != nil {
		return nil, fmt.Errorf("get work item %d: %w", id, err)
	}
	return &wi, nil
}

// GetWorkItems implements wit.Client. Ids are fetched in pages of 200.
func (c *Client) GetWorkItems(ctx context.Context, ids []int) ([]*wit.WorkItem, error) {
	items := make([]*wit.WorkItem, 0, len(ids))
	for start := 0; start < len(ids); start += maxIDsPerRequest {
		end := min(start+maxIDsPerRequest, len(ids))
		page := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			page = append(page, strconv.Itoa(id))
		}

		endpoint, err := c.buildURL(query{"ids": strings.Join(page, ","), "$expand": "all"}, "_apis", "wit", "workitems")
		if err != nil {
			return nil, err
		}

		var list struct {
			Count int             `json:"count"`
			Value []*wit.WorkItem `json:"value"`
		}
		if err := c.do(ctx, http.MethodGet, endpoint, "", nil, &list); err != nil {
			return nil, fmt.Errorf("get work items: %w", err)
		}
		items = append(items, list.Value...)
	}
	return items, nil
}

// CreateWorkItem implements wit.Client.
func (c *Client) CreateWorkItem(ctx context.Context, project, workItemType string, doc wit.PatchDocument) (*wit.WorkItem, error) {
	endpoint, err := c.buildURL(nil, project, "_apis", "wit", "workitems", "$"+workItemType)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Creating work item",
		zap.String("project", project),
		zap.String("type", workItemType))

	var wi wit.WorkItem
	if err := c.do(ctx, http.MethodPatch, endpoint, contentTypePatch, doc, &wi); err != nil {
		return nil, fmt.Errorf("create %s in %s: %w", workItemType, project, err)
	}
	return &wi, nil
}

// UpdateWorkItem implements wit.Client.
func (c *Client) UpdateWorkItem(ctx context.Context, id int, doc wit.PatchDocument) (*wit.WorkItem, error) {
	endpoint, err := c.buildURL(nil, "_apis", "wit", "workitems", strconv.Itoa(id))
	if err != nil {
		return nil, err
	}

	c.logger.Info("Updating work item", zap.Int("id", id))

	var wi wit.WorkItem
	if err := c.do(ctx, http.MethodPatch, endpoint, contentTypePatch, doc, &wi); err != nil {
		return nil, fmt.Errorf("update work item %d: %w", id, err)
	}
	return &wi, nil
}

// DeleteWorkItem implements wit.Client. The item goes to the recycle bin.
func (c *Client) DeleteWorkItem(ctx context.Context, id int) error {
	endpoint, err := c.buildURL(nil, c.project, "_apis", "wit", "workitems", strconv.Itoa(id))
	if err != nil {
		return err
	}

	c.logger.Info("Deleting work item", zap.Int("id", id), zap.String("project", c.project))

	if err := c.do(ctx, http.MethodDelete, endpoint, "", nil, nil); err != nil {
		return fmt.Errorf("delete work item %d: %w", id, err)
	}
	return nil
}

// RestoreWorkItem implements wit.Client.
func (c *Client) RestoreWorkItem(ctx context.Context, id int) error {
	endpoint, err := c.buildURL(nil, c.project, "_apis", "wit", "recyclebin", strconv.Itoa(id))
	if err != nil {
		return err
	}

	c.logger.Info("Restoring work item", zap.Int("id", id), zap.String("project", c.project))

	body := map[string]bool{"IsDeleted": false}
	if err := c.do(ctx, http.MethodPatch, endpoint, contentTypeJSON, body, nil); err != nil {
		return fmt.Errorf("restore work item %d: %w", id, err)
	}
	return nil
}

// ExecuteBatch implements wit.Client.
func (c *Client) ExecuteBatch(ctx context.Context, requests []wit.BatchRequest) ([]wit.BatchResponse, error) {
	endpoint, err := c.buildURL(nil, "_apis", "wit", "$batch")
	if err != nil {
		return nil, err
	}

	var result struct {
		Count int                 `json:"count"`
		Value []wit.BatchResponse `json:"value"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, contentTypeJSON, requests, &result); err != nil {
		return nil, fmt.Errorf("execute batch: %w", err)
	}
	return result.Value, nil
}

const (
	contentTypeJSON  = "application/json"
	contentTypePatch = "application/json-patch+json"
)

// do sends one request and decodes a JSON response into out, if non-nil.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Accept", contentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("Calling Azure DevOps",
		zap.String("method", method),
		zap.String("url", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Azure DevOps: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Azure DevOps returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("url", endpoint),
			zap.String("body", string(data)))
		return &StatusError{StatusCode: resp.StatusCode, URL: endpoint, Body: string(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

type query map[string]string

// buildURL joins path segments under the organization URL and appends the
// api-version with any extra query parameters. Empty segments are skipped.
func (c *Client) buildURL(params query, segments ...string) (string, error) {
	u, err := url.Parse(c.orgURL)
	if err != nil {
		return "", fmt.Errorf("invalid organization URL: %w", err)
	}

	parts := []string{"/", u.Path}
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	u.Path = path.Join(parts...)

	q := url.Values{}
	q.Set("api-version", APIVersion)
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
