package workflow

import (
	"time"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateStarted means the run record exists but no step has begun.
	RunStateStarted RunState = "started"
	// RunStateRunning means a step is currently executing (or the process
	// crashed mid-step; such runs are resumable).
	RunStateRunning RunState = "running"
	// RunStatePaused means an operator asked for the run not to be
	// resumed automatically.
	RunStatePaused RunState = "paused"
	// RunStateCompleted means every step finished successfully.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means a step failed and the run was aborted.
	RunStateFailed RunState = "failed"
)

// Terminal reports whether the state admits no further transitions by the
// runner. A failed run stays resumable by an operator; completed does not.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// StepState represents the lifecycle state of one step within a run.
type StepState string

const (
	// StepStatePending means the step has not started in this run.
	StepStatePending StepState = "pending"
	// StepStateRunning means the step is executing.
	StepStateRunning StepState = "running"
	// StepStateCompleted means the step finished; it is skipped, never
	// replayed, on resume.
	StepStateCompleted StepState = "completed"
	// StepStateFailed means the step failed and aborted its run.
	StepStateFailed StepState = "failed"
)

// Run is one durable execution attempt of a workflow. The Runner
// exclusively owns State and CurrentStep. Runs are never deleted by the
// engine.
type Run struct {
	manta.Entity

	ID             id.RunID   `json:"id"`
	WorkflowName   string     `json:"workflow_name"`
	State          RunState   `json:"state"`
	TotalSteps     int        `json:"total_steps"`
	CompletedSteps int        `json:"completed_steps"`
	CurrentStep    string     `json:"current_step,omitempty"`
	Config         []byte     `json:"config,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// StepRun is the persisted record of one step within one run. A row exists
// for every step of the full workflow — including steps excluded by a run's
// filter — so a resume with a different filter always finds a placeholder.
// A running step exclusively owns its own Progress, Message, and Checkpoint
// through the StepContext it was handed.
type StepRun struct {
	manta.Entity

	ID          id.StepRunID  `json:"id"`
	RunID       id.RunID      `json:"run_id"`
	StepName    string        `json:"step_name"`
	State       StepState     `json:"state"`
	Progress    int           `json:"progress"`
	Message     string        `json:"message,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration_ms"`
	Error       string        `json:"error,omitempty"`
	Checkpoint  []byte        `json:"checkpoint,omitempty"`
}

// RunOptions controls a single RunWorkflow invocation. It is persisted on
// the Run's Config column so a bare resume can reuse the same filter.
type RunOptions struct {
	// StepFilter selects the steps to execute. Nil means all. A filter
	// that includes a step but excludes one of its dependencies is
	// rejected before any step executes.
	StepFilter map[string]bool `json:"step_filter,omitempty"`

	// ResumeRunID re-enters an existing run instead of creating one.
	ResumeRunID id.RunID `json:"resume_run_id,omitempty"`
}

// ClampProgress clamps a progress percentage into [0, 100].
func ClampProgress(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
