// Package ext defines the extension system for the orchestrator.
// Extensions are notified of run and step lifecycle events and can react
// to them — recording metrics, streaming progress, writing audit logs.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when a workflow run begins or is resumed.
type RunStarted interface {
	OnRunStarted(ctx context.Context, r *workflow.Run) error
}

// RunCompleted is called after a workflow run finishes successfully.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// RunFailed is called when a workflow run aborts on a step failure.
type RunFailed interface {
	OnRunFailed(ctx context.Context, r *workflow.Run, err error) error
}

// ──────────────────────────────────────────────────
// Step lifecycle hooks
// ──────────────────────────────────────────────────

// StepStarted is called when the runner begins executing a step.
type StepStarted interface {
	OnStepStarted(ctx context.Context, r *workflow.Run, stepName string) error
}

// StepProgress is called whenever a step reports progress.
type StepProgress interface {
	OnStepProgress(ctx context.Context, r *workflow.Run, stepName string, percent int, message string) error
}

// StepCompleted is called after a step completes.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error
}

// StepFailed is called when a step fails.
type StepFailed interface {
	OnStepFailed(ctx context.Context, r *workflow.Run, stepName string, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
