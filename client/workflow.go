package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// StartOptions configures StartRun.
type StartOptions struct {
	// Steps restricts the run to exactly the named steps. The set must be
	// dependency-closed: the server rejects a step named without its
	// dependencies. Empty means the full workflow.
	Steps []string
}

// ListOptions configures ListRuns.
type ListOptions struct {
	Limit  int
	Offset int
	State  workflow.RunState
}

// ListWorkflows returns the names of workflows registered on the server.
func (c *Client) ListWorkflows(ctx context.Context) ([]string, error) {
	var resp struct {
		Names []string `json:"names"`
	}
	if err := c.get(ctx, "/v1/workflows", &resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// StartRun starts a workflow run and blocks until it finishes. The returned
// run carries the final state, so a run whose step failed comes back with
// State "failed" and a nil error.
func (c *Client) StartRun(ctx context.Context, name string, opts StartOptions) (*workflow.Run, error) {
	var body any
	if len(opts.Steps) > 0 {
		body = map[string]any{"steps": opts.Steps}
	}

	var run workflow.Run
	if err := c.post(ctx, "/v1/workflows/"+url.PathEscape(name)+"/runs", body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run by ID.
func (c *Client) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	var run workflow.Run
	if err := c.get(ctx, "/v1/runs/"+runID.String(), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns lists runs, most recent first.
func (c *Client) ListRuns(ctx context.Context, opts ListOptions) ([]*workflow.Run, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.State != "" {
		q.Set("state", string(opts.State))
	}

	path := "/v1/runs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Runs []*workflow.Run `json:"runs"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// ListResumable lists runs that were interrupted and can be resumed.
func (c *Client) ListResumable(ctx context.Context) ([]*workflow.Run, error) {
	var resp struct {
		Runs []*workflow.Run `json:"runs"`
	}
	if err := c.get(ctx, "/v1/runs/resumable", &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// ListStepRuns lists per-step execution records for a run, in declaration order.
func (c *Client) ListStepRuns(ctx context.Context, runID id.RunID) ([]*workflow.StepRun, error) {
	var resp struct {
		Steps []*workflow.StepRun `json:"steps"`
	}
	if err := c.get(ctx, fmt.Sprintf("/v1/runs/%s/steps", runID), &resp); err != nil {
		return nil, err
	}
	return resp.Steps, nil
}

// ResumeRun re-executes a run, skipping steps that already completed, and
// blocks until it finishes.
func (c *Client) ResumeRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	var run workflow.Run
	if err := c.post(ctx, fmt.Sprintf("/v1/runs/%s/resume", runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// PauseRun marks an in-flight run paused so it can be resumed later.
func (c *Client) PauseRun(ctx context.Context, runID id.RunID) error {
	return c.post(ctx, fmt.Sprintf("/v1/runs/%s/pause", runID), nil, nil)
}

// StopRun terminally stops a run.
func (c *Client) StopRun(ctx context.Context, runID id.RunID) error {
	return c.post(ctx, fmt.Sprintf("/v1/runs/%s/stop", runID), nil, nil)
}
