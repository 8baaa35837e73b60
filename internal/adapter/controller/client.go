// Package controller provides an HTTP client for the run controller API.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ShawnNotFound/20251115GreatAgent/internal/domain"
)

// Client is an HTTP client for the run controller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new controller client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the controller base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// StartRun creates a run and returns its identity.
func (c *Client) StartRun(ctx context.Context, req *domain.StartRunRequest) (*domain.StartRunResponse, error) {
	var resp domain.StartRunResponse
	if err := c.do(ctx, http.MethodPost, "/run", req, &resp); err != nil {
		return nil, err
	}
	if resp.RunID == "" {
		return nil, fmt.Errorf("controller returned no run_id")
	}
	return &resp, nil
}

// PauseRun pauses a run.
func (c *Client) PauseRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/pause/"+url.PathEscape(runID), nil, nil)
}

// ResumeRun resumes a paused run.
func (c *Client) ResumeRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/resume/"+url.PathEscape(runID), nil, nil)
}

// StopRun stops a run.
func (c *Client) StopRun(ctx context.Context, runID string) error {
	return c.do(ctx, http.MethodPost, "/stop/"+url.PathEscape(runID), nil, nil)
}

// SubmitSelection submits a human decision for a checkpoint node.
func (c *Client) SubmitSelection(ctx context.Context, req *domain.SelectionRequest) error {
	return c.do(ctx, http.MethodPost, "/select", req, nil)
}

// GetWorkflowPlan loads the persisted pipeline plan.
func (c *Client) GetWorkflowPlan(ctx context.Context) ([]string, error) {
	var resp domain.WorkflowPlanResponse
	if err := c.do(ctx, http.MethodGet, "/workflow", nil, &resp); err != nil {
		return nil, err
	}
	return resp.WorkflowPlan, nil
}

// SaveWorkflowPlan persists a pipeline plan and returns the stored copy.
func (c *Client) SaveWorkflowPlan(ctx context.Context, steps []string) ([]string, error) {
	var resp domain.WorkflowPlanResponse
	if err := c.do(ctx, http.MethodPost, "/workflow", &domain.WorkflowPlanRequest{Steps: steps}, &resp); err != nil {
		return nil, err
	}
	return resp.WorkflowPlan, nil
}

// GetGraph loads the graph blueprint.
func (c *Client) GetGraph(ctx context.Context) (*domain.GraphBlueprint, error) {
	var resp domain.GraphBlueprint
	if err := c.do(ctx, http.MethodGet, "/workflow_graph", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveGraph persists a graph blueprint and returns the stored copy.
func (c *Client) SaveGraph(ctx context.Context, graph *domain.GraphBlueprint) (*domain.GraphBlueprint, error) {
	var resp domain.GraphBlueprint
	if err := c.do(ctx, http.MethodPost, "/workflow_graph", graph, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAgentSettings loads per-agent settings.
func (c *Client) GetAgentSettings(ctx context.Context) (domain.AgentSettings, error) {
	var resp domain.AgentSettingsEnvelope
	if err := c.do(ctx, http.MethodGet, "/agent_settings", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Agents == nil {
		resp.Agents = domain.AgentSettings{}
	}
	return resp.Agents, nil
}

// SaveAgentSettings persists per-agent settings and returns the stored copy.
func (c *Client) SaveAgentSettings(ctx context.Context, agents domain.AgentSettings) (domain.AgentSettings, error) {
	var resp domain.AgentSettingsEnvelope
	if err := c.do(ctx, http.MethodPost, "/agent_settings", &domain.AgentSettingsEnvelope{Agents: agents}, &resp); err != nil {
		return nil, err
	}
	if resp.Agents == nil {
		resp.Agents = domain.AgentSettings{}
	}
	return resp.Agents, nil
}

// ListTraces returns up to limit recent traces.
func (c *Client) ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error) {
	var resp domain.TracesResponse
	path := "/traces?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Traces, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Error is a non-2xx reply from the controller.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("controller error (%d): %s", e.StatusCode, e.Message)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := strings.TrimSpace(string(body))

	var errResp domain.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error != "":
			msg = errResp.Error
		case errResp.Detail != nil:
			if s, ok := errResp.Detail.(string); ok {
				msg = s
			} else if b, err := json.Marshal(errResp.Detail); err == nil {
				msg = string(b)
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}
