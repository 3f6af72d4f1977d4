package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests. Sprints run
// the executor inline, so the sprint call gets SprintClientTimeout instead.
const (
	DefaultClientTimeout = 10 * time.Second
	SprintClientTimeout  = 15 * time.Minute
)

// Client calls the daemon's JSON-RPC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a client for the daemon at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// Call invokes method with params and decodes the result into out. A
// JSON-RPC error is returned as *RPCError.
func (c *Client) Call(ctx context.Context, method Method, params, out any) error {
	timeout := DefaultClientTimeout
	if method == MethodSprint {
		timeout = SprintClientTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	id, _ := json.Marshal(c.nextID.Add(1))
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: string(method), Params: raw})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var rpcResp Response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// Health fetches /health. The payload is returned alongside the error on a
// non-200 status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultClientTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("health check failed (status %d): %s", resp.StatusCode, health.DB)
	}
	return &health, nil
}

// Init starts a session.
func (c *Client) Init(ctx context.Context, call InitCall) (*InitResult, error) {
	return invoke[InitResult](ctx, c, MethodInit, call)
}

// Status reads a session summary.
func (c *Client) Status(ctx context.Context, call StatusCall) (*StatusResult, error) {
	return invoke[StatusResult](ctx, c, MethodStatus, call)
}

// Sprint runs the next sprint.
func (c *Client) Sprint(ctx context.Context, call SprintCall) (*SprintResult, error) {
	return invoke[SprintResult](ctx, c, MethodSprint, call)
}

// Checkpoint snapshots a session.
func (c *Client) Checkpoint(ctx context.Context, call CheckpointCall) (*CheckpointResult, error) {
	return invoke[CheckpointResult](ctx, c, MethodCheckpoint, call)
}

// Restore reads a checkpoint's state.
func (c *Client) Restore(ctx context.Context, call RestoreCall) (*RestoreResult, error) {
	return invoke[RestoreResult](ctx, c, MethodRestore, call)
}

// List lists sessions or checkpoints.
func (c *Client) List(ctx context.Context, call ListCall) (*ListResult, error) {
	return invoke[ListResult](ctx, c, MethodList, call)
}

// Cancel cancels a session.
func (c *Client) Cancel(ctx context.Context, call CancelCall) (*CancelResult, error) {
	return invoke[CancelResult](ctx, c, MethodCancel, call)
}

// Metrics aggregates a session's sprints.
func (c *Client) Metrics(ctx context.Context, call MetricsCall) (*MetricsResult, error) {
	return invoke[MetricsResult](ctx, c, MethodMetrics, call)
}

func invoke[T any](ctx context.Context, c *Client, method Method, params any) (*T, error) {
	var out T
	if err := c.Call(ctx, method, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
