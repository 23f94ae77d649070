// Package client provides the HTTP client for the Quarry REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/quarrydata/quarry/internal/logging"
	"github.com/quarrydata/quarry/internal/metrics"
	"github.com/quarrydata/quarry/pkg/models"
	"github.com/quarrydata/quarry/pkg/protocol"
	"github.com/quarrydata/quarry/pkg/retry"

	"go.uber.org/zap"
)

// Client talks to a Quarry server. Mutating calls are single-shot:
// a failed bulk operation is surfaced to the caller and retried only by
// an explicit user action.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pingConfig retry.Config

	mu        sync.RWMutex
	authToken string
	online    bool

	// Listing fetches are cancellable as a group: navigating away from a
	// view cancels every in-flight fetch started for it.
	fetchMu     sync.Mutex
	fetchCtx    context.Context
	fetchCancel context.CancelFunc
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	AuthToken  string
	PingConfig retry.Config
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PingConfig.MaxAttempts == 0 {
		cfg.PingConfig = retry.DefaultConfig()
	}

	fetchCtx, fetchCancel := context.WithCancel(context.Background())
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		pingConfig:  cfg.PingConfig,
		authToken:   cfg.AuthToken,
		online:      true,
		fetchCtx:    fetchCtx,
		fetchCancel: fetchCancel,
	}
}

// APIError is a non-2xx response from the server. Field is set for
// validation errors that relate to a single input.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api error %d on field %q: %s", e.Status, e.Field, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// AsAPIError checks if an error is an APIError and returns it.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// SetAuthToken sets the bearer token for subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current bearer token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// IsOnline returns true if the server was reachable on the last call.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online != online {
		if online {
			logging.Info("server is back online")
		} else {
			logging.Warn("server is offline")
		}
	}
	c.online = online
}

// CancelFetches aborts every in-flight listing fetch. Mutating requests
// are unaffected.
func (c *Client) CancelFetches() {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()
	c.fetchCancel()
	c.fetchCtx, c.fetchCancel = context.WithCancel(context.Background())
}

// fetchContext derives a context that is cancelled when either the
// caller's context or the fetch group is cancelled.
func (c *Client) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	c.fetchMu.Lock()
	group := c.fetchCtx
	c.fetchMu.Unlock()

	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(group, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// Ping checks if the server is reachable, retrying transient failures.
func (c *Client) Ping(ctx context.Context) error {
	return retry.Do(ctx, c.pingConfig, func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/system/check", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.setOnline(false)
			return retry.Retryable(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			c.setOnline(false)
			return retry.Retryable(fmt.Errorf("server returned %d", resp.StatusCode))
		}
		c.setOnline(true)
		return nil
	})
}

// do issues a request and decodes the JSON response into out (if non-nil).
// Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, route string, query url.Values, body any, header http.Header, out any) error {
	return c.doLabeled(ctx, method, route, route, query, body, header, out)
}

// doLabeled is do with a separate metrics label. Callers that embed a
// resource id in the path pass a templated label such as
// "/folder/{id}" so the route label set stays bounded.
func (c *Client) doLabeled(ctx context.Context, method, route, label string, query url.Values, body any, header http.Header, out any) error {
	u := c.baseURL + "/api/v1" + route
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	c.applyAuth(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		metrics.RecordRequest(method, label, 0, time.Since(start))
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	metrics.RecordRequest(method, label, resp.StatusCode, time.Since(start))
	c.setOnline(true)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp protocol.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
			apiErr.Field = errResp.Field
		}
		logging.Debug("request failed",
			zap.String("method", method),
			zap.String("route", route),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ListFolders fetches one page of child folders of a parent resource.
func (c *Client) ListFolders(ctx context.Context, parent models.ParentRef, limit, offset int) (*protocol.ListResponse, error) {
	fctx, cancel := c.fetchContext(ctx)
	defer cancel()

	q := url.Values{}
	q.Set("parentType", string(parent.Kind))
	q.Set("parentId", parent.ID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out protocol.ListResponse
	if err := c.do(fctx, "GET", "/folder", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListItems fetches one page of items inside a folder.
func (c *Client) ListItems(ctx context.Context, folderID string, limit, offset int) (*protocol.ListResponse, error) {
	fctx, cancel := c.fetchContext(ctx)
	defer cancel()

	q := url.Values{}
	q.Set("folderId", folderID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out protocol.ListResponse
	if err := c.do(fctx, "GET", "/item", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetResource fetches a single resource by kind and id.
func (c *Client) GetResource(ctx context.Context, kind models.Kind, id string) (*models.Resource, error) {
	var out models.Resource
	if err := c.doLabeled(ctx, "GET", "/"+string(kind)+"/"+id, "/"+string(kind)+"/{id}", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// moveCopyBody is the payload for bulk move and copy.
type moveCopyBody struct {
	Resources  protocol.ResourceMap `json:"resources"`
	ParentKind models.Kind          `json:"parentType"`
	ParentID   string               `json:"parentId"`
}

// Move moves the whole resource set into a new parent in one call.
func (c *Client) Move(ctx context.Context, resources protocol.ResourceMap, parent models.ParentRef) (*protocol.MoveResult, error) {
	body := moveCopyBody{Resources: resources, ParentKind: parent.Kind, ParentID: parent.ID}
	var out protocol.MoveResult
	if err := c.do(ctx, "PUT", "/resource/move", nil, body, nil, &out); err != nil {
		return nil, err
	}
	metrics.RecordBulkOp("move", resources.Count())
	return &out, nil
}

// Copy copies the whole resource set into a new parent in one call.
func (c *Client) Copy(ctx context.Context, resources protocol.ResourceMap, parent models.ParentRef) (*protocol.MoveResult, error) {
	body := moveCopyBody{Resources: resources, ParentKind: parent.Kind, ParentID: parent.ID}
	var out protocol.MoveResult
	if err := c.do(ctx, "POST", "/resource/copy", nil, body, nil, &out); err != nil {
		return nil, err
	}
	metrics.RecordBulkOp("copy", resources.Count())
	return &out, nil
}

// Delete deletes the whole resource set in one call. The API uses POST
// with a method-override header so the id map can travel in the body.
func (c *Client) Delete(ctx context.Context, resources protocol.ResourceMap) (*protocol.DeleteResult, error) {
	header := http.Header{}
	header.Set("X-HTTP-Method-Override", "DELETE")
	body := struct {
		Resources protocol.ResourceMap `json:"resources"`
	}{resources}

	var out protocol.DeleteResult
	if err := c.do(ctx, "POST", "/resource", nil, body, header, &out); err != nil {
		return nil, err
	}
	metrics.RecordBulkOp("delete", resources.Count())
	return &out, nil
}

// Download streams an archive of the resource set. The caller must close
// the reader.
func (c *Client) Download(ctx context.Context, resources protocol.ResourceMap) (io.ReadCloser, error) {
	encoded, err := json.Marshal(resources)
	if err != nil {
		return nil, fmt.Errorf("encode resources: %w", err)
	}

	q := url.Values{}
	q.Set("resources", string(encoded))
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/resource/download?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp protocol.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
		}
		return nil, apiErr
	}
	c.setOnline(true)
	metrics.RecordBulkOp("download", resources.Count())
	return resp.Body, nil
}

// Rename changes a resource's display name via PUT /<kind>/<id>.
func (c *Client) Rename(ctx context.Context, kind models.Kind, id, name string) (*models.Resource, error) {
	if name == "" {
		return nil, &APIError{Status: http.StatusBadRequest, Message: "name must not be empty", Field: "name"}
	}
	body := struct {
		Name string `json:"name"`
	}{name}

	var out models.Resource
	if err := c.doLabeled(ctx, "PUT", "/"+string(kind)+"/"+id, "/"+string(kind)+"/{id}", nil, body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload uploads file content into a folder, creating one item.
func (c *Client) Upload(ctx context.Context, folderID, name string, content io.Reader, size int64) (*protocol.UploadResponse, error) {
	q := url.Values{}
	q.Set("folderId", folderID)
	q.Set("name", name)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/file?"+q.Encode(), content)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setOnline(false)
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp protocol.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
			apiErr.Field = errResp.Field
		}
		return nil, apiErr
	}
	c.setOnline(true)

	var out protocol.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &out, nil
}
