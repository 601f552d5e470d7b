// Package client implements the stateless HTTP primitives against the
// bridge: submit, status, fetch-result, cancel, plus connection and style
// queries. It holds no job state of its own.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genbridge/pkg/types"
)

// APIError represents a non-success response from the bridge, carrying the
// backend's message when one was provided.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Client talks to one bridge instance. Paths are relative to BaseURL plus
// the mode-dependent prefix (the standalone bridge serves under /api).
type Client struct {
	BaseURL    string
	Prefix     string
	HTTPClient *http.Client
}

// New creates a client for the given base URL, e.g. "http://127.0.0.1:7860".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Prefix:  "/api",
		// No per-call deadline beyond transport sanity: job polling runs
		// until a terminal status, per the reference behavior.
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + c.Prefix + path
}

// do runs one request and decodes the JSON response into out (when non-nil).
// Non-2xx responses become an *APIError with the backend's error message.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage extracts the bridge's {"error": ...} message, falling back to
// the raw body.
func errorMessage(body []byte) string {
	var payload types.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if len(body) == 0 {
		return "unknown error"
	}
	return string(body)
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/health", nil, &resp)
}

// Connection fetches the bridge's backend connection state.
func (c *Client) Connection(ctx context.Context) (*types.ConnectionStatus, error) {
	var resp types.ConnectionStatus
	if err := c.do(ctx, http.MethodGet, "/connection", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Connect asks the bridge to (re)connect to a compute backend.
func (c *Client) Connect(ctx context.Context, req types.ConnectionRequest) (*types.ConnectionStatus, error) {
	var resp types.ConnectionStatus
	if err := c.do(ctx, http.MethodPost, "/connection", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Generate submits a generation job and returns its id.
func (c *Client) Generate(ctx context.Context, req *types.GenerateRequest) (string, error) {
	var resp types.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// Upscale submits an upscale job and returns its id.
func (c *Client) Upscale(ctx context.Context, req *types.UpscaleRequest) (string, error) {
	var resp types.GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/upscale", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// Custom submits a raw workflow graph and returns the job id.
func (c *Client) Custom(ctx context.Context, workflow map[string]any) (string, error) {
	var resp types.GenerateResponse
	req := types.CustomWorkflowRequest{Workflow: workflow}
	if err := c.do(ctx, http.MethodPost, "/custom", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// JobStatus polls one job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*types.JobStatusResponse, error) {
	var resp types.JobStatusResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobImages fetches the finished job's images and per-image seeds.
func (c *Client) JobImages(ctx context.Context, jobID string) (*types.JobImagesResponse, error) {
	var resp types.JobImagesResponse
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/images", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelJob asks the bridge to cancel a job. Best effort; the bridge
// responds even when the job already reached a terminal state.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+jobID+"/cancel", nil, nil)
}

// Styles lists the styles available on the bridge.
func (c *Client) Styles(ctx context.Context) ([]types.StyleSummary, error) {
	var resp types.StylesResponse
	if err := c.do(ctx, http.MethodGet, "/styles", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Styles, nil
}
