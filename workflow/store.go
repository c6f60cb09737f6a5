package workflow

import (
	"context"
	"time"

	"github.com/jcppman/kurasu-manta-sub000/id"
)

// ListOpts controls pagination for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
}

// Store defines the persistence contract for workflow runs and their
// per-step records. No cross-call atomicity is guaranteed beyond each
// single operation.
type Store interface {
	// CreateRun persists a new run plus one pending StepRun per name in
	// stepNames (the full workflow's steps, filter notwithstanding).
	CreateRun(ctx context.Context, run *Run, stepNames []string) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// ListRuns returns runs matching the given options, most recent first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// ListResumable returns runs left in the running state, most recent
	// first. Zero limit means no limit.
	ListResumable(ctx context.Context, limit int) ([]*Run, error)

	// SetRunState transitions a run's state. For a terminal state the
	// completion timestamp is recorded if not already set.
	SetRunState(ctx context.Context, runID id.RunID, state RunState) error

	// CompleteRun marks a run completed, recomputes CompletedSteps, clears
	// CurrentStep, and records the completion time, replacing the
	// timestamp of an earlier failed attempt.
	CompleteRun(ctx context.Context, runID id.RunID) error

	// BeginStep transitions the run to running with CurrentStep set, and
	// the StepRun to running as a fresh attempt: StartedAt is reset and
	// the error, duration and completion time of a previous failed attempt
	// are cleared, on the run record too. It is a no-op — the record is
	// returned unchanged — when the StepRun is already completed.
	BeginStep(ctx context.Context, runID id.RunID, stepName string) (*StepRun, error)

	// CompleteStep marks a StepRun completed with progress 100 and the
	// measured duration, then recomputes the run's CompletedSteps by
	// counting completed step rows.
	CompleteStep(ctx context.Context, runID id.RunID, stepName string, elapsed time.Duration) error

	// FailStep marks the StepRun failed with the given error text, and
	// marks the run failed.
	FailStep(ctx context.Context, runID id.RunID, stepName, errMsg string, elapsed time.Duration) error

	// UpdateStepProgress records a step's progress percentage (clamped to
	// [0, 100]) and optional message.
	UpdateStepProgress(ctx context.Context, runID id.RunID, stepName string, percent int, message string) error

	// GetStepRun retrieves the StepRun for (run, step).
	GetStepRun(ctx context.Context, runID id.RunID, stepName string) (*StepRun, error)

	// ListStepRuns returns all StepRuns of a run in creation order.
	ListStepRuns(ctx context.Context, runID id.RunID) ([]*StepRun, error)

	// SaveCheckpoint persists an opaque checkpoint payload on the StepRun.
	// An existing checkpoint is replaced.
	SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error

	// GetCheckpoint retrieves a step's checkpoint payload. Returns nil
	// data, and no error, if none was saved.
	GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error)
}
