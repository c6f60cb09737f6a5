package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcppman/kurasu-manta-sub000/ext"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*Extension)(nil)
	_ ext.RunStarted    = (*Extension)(nil)
	_ ext.RunCompleted  = (*Extension)(nil)
	_ ext.RunFailed     = (*Extension)(nil)
	_ ext.StepStarted   = (*Extension)(nil)
	_ ext.StepCompleted = (*Extension)(nil)
	_ ext.StepFailed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audit_hook package does not depend on
// any particular audit system — callers inject the concrete backend at
// wiring time, typically through a [RecorderFunc] adapter.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is the structured record emitted for each lifecycle event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges orchestrator lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Run lifecycle hooks ─────────────────────────────

// OnRunStarted implements ext.RunStarted.
func (e *Extension) OnRunStarted(ctx context.Context, r *workflow.Run) error {
	return e.record(ctx, runEvent(ActionRunStarted, SeverityInfo, OutcomeSuccess, r), nil,
		"workflow_name", r.WorkflowName,
		"total_steps", r.TotalSteps,
	)
}

// OnRunCompleted implements ext.RunCompleted.
func (e *Extension) OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	return e.record(ctx, runEvent(ActionRunCompleted, SeverityInfo, OutcomeSuccess, r), nil,
		"workflow_name", r.WorkflowName,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnRunFailed implements ext.RunFailed.
func (e *Extension) OnRunFailed(ctx context.Context, r *workflow.Run, runErr error) error {
	return e.record(ctx, runEvent(ActionRunFailed, SeverityCritical, OutcomeFailure, r), runErr,
		"workflow_name", r.WorkflowName,
		"current_step", r.CurrentStep,
	)
}

// ── Step lifecycle hooks ────────────────────────────

// OnStepStarted implements ext.StepStarted.
func (e *Extension) OnStepStarted(ctx context.Context, r *workflow.Run, stepName string) error {
	return e.record(ctx, stepEvent(ActionStepStarted, SeverityInfo, OutcomeSuccess, r), nil,
		"workflow_name", r.WorkflowName,
		"step_name", stepName,
	)
}

// OnStepCompleted implements ext.StepCompleted.
func (e *Extension) OnStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error {
	return e.record(ctx, stepEvent(ActionStepCompleted, SeverityInfo, OutcomeSuccess, r), nil,
		"workflow_name", r.WorkflowName,
		"step_name", stepName,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStepFailed implements ext.StepFailed.
func (e *Extension) OnStepFailed(ctx context.Context, r *workflow.Run, stepName string, stepErr error) error {
	return e.record(ctx, stepEvent(ActionStepFailed, SeverityWarning, OutcomeFailure, r), stepErr,
		"workflow_name", r.WorkflowName,
		"step_name", stepName,
	)
}

// ── Internal helpers ────────────────────────────────

func runEvent(action, severity, outcome string, r *workflow.Run) *AuditEvent {
	return &AuditEvent{
		Action:     action,
		Resource:   ResourceRun,
		Category:   CategoryRun,
		ResourceID: r.ID.String(),
		Severity:   severity,
		Outcome:    outcome,
	}
}

func stepEvent(action, severity, outcome string, r *workflow.Run) *AuditEvent {
	return &AuditEvent{
		Action:     action,
		Resource:   ResourceStep,
		Category:   CategoryStep,
		ResourceID: r.ID.String(),
		Severity:   severity,
		Outcome:    outcome,
	}
}

// record fills in metadata and sends the event when its action is enabled.
// Recorder failures are logged, never propagated: a broken audit backend
// must not fail runs.
func (e *Extension) record(ctx context.Context, evt *AuditEvent, cause error, kvPairs ...any) error {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return nil
	}

	evt.Metadata = make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		evt.Metadata[key] = kvPairs[i+1]
	}
	if cause != nil {
		evt.Reason = cause.Error()
		evt.Metadata["error"] = cause.Error()
	}

	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
			"error", err,
		)
	}
	return nil
}
