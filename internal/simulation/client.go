package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/dutyqueue/internal/domain/fairness"
	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/types"
)

// API header names.
const (
	headerAdminToken     = "X-Admin-Token"
	headerIdempotencyKey = "Idempotency-Key"
)

// Client is a small JSON client for the dutyqueue HTTP API.
type Client struct {
	baseURL    string
	adminToken string
	http       *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL, adminToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		http:       &http.Client{Timeout: timeout},
	}
}

// apiError mirrors the service's error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends a request and decodes a JSON body into out when the status is
// one of want. The status is returned either way.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, in, out any, want ...int) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	for _, w := range want {
		if resp.StatusCode != w {
			continue
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
			}
		}
		return resp.StatusCode, nil
	}

	var e apiError
	_ = json.Unmarshal(data, &e)
	return resp.StatusCode, fmt.Errorf("%w: %s %s returned %d %s %s",
		ErrUnexpectedStatus, method, path, resp.StatusCode, e.Code, e.Message)
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil, http.StatusOK)
	return err
}

// AddAgent creates an agent named name.
func (c *Client) AddAgent(ctx context.Context, name string) (model.Agent, error) {
	var a model.Agent
	_, err := c.do(ctx, http.MethodPost, "/agents",
		map[string]string{headerAdminToken: c.adminToken},
		map[string]string{"name": name}, &a, http.StatusCreated)
	return a, err
}

// Cycle fetches the cycle around today.
func (c *Client) Cycle(ctx context.Context) (types.CycleView, error) {
	var v types.CycleView
	_, err := c.do(ctx, http.MethodGet, "/cycle", nil, nil, &v, http.StatusOK)
	return v, err
}

// Queue fetches the queue for the current cycle.
func (c *Client) Queue(ctx context.Context) (types.QueueView, error) {
	var q types.QueueView
	_, err := c.do(ctx, http.MethodGet, "/queue", nil, nil, &q, http.StatusOK)
	return q, err
}

// Next fetches the suggested agent.
func (c *Client) Next(ctx context.Context) (fairness.Standing, error) {
	var s fairness.Standing
	status, err := c.do(ctx, http.MethodGet, "/queue/next", nil, nil, &s, http.StatusOK)
	if status == http.StatusNotFound {
		return s, ErrEmptyRoster
	}
	return s, err
}

// Ack is the service's answer to POST /assignments.
type Ack struct {
	Status     string                `json:"status"`
	Duplicate  bool                  `json:"duplicate"`
	Assignment model.AssignmentEvent `json:"assignment"`
}

// Record posts one outcome under the given idempotency key.
func (c *Client) Record(ctx context.Context, key string, r Round) (Ack, error) {
	var ack Ack
	in := map[string]string{
		"agent_id": r.AgentID,
		"date":     r.Date.String(),
		"shift":    string(r.Shift),
		"status":   string(r.Status),
	}
	_, err := c.do(ctx, http.MethodPost, "/assignments",
		map[string]string{headerIdempotencyKey: key},
		in, &ack, http.StatusCreated, http.StatusOK)
	return ack, err
}
