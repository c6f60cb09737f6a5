package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// ── Run model ─────────────────────────────────────────────────────

type runModel struct {
	bun.BaseModel `bun:"table:manta_workflow_runs"`

	ID             string     `bun:"id,pk"`
	WorkflowName   string     `bun:"workflow_name,notnull"`
	State          string     `bun:"state,notnull,default:'started'"`
	TotalSteps     int        `bun:"total_steps,notnull,default:0"`
	CompletedSteps int        `bun:"completed_steps,notnull,default:0"`
	CurrentStep    string     `bun:"current_step"`
	Config         []byte     `bun:"config,type:bytea"`
	StartedAt      time.Time  `bun:"started_at,notnull"`
	CompletedAt    *time.Time `bun:"completed_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toRunModel(r *workflow.Run) *runModel {
	return &runModel{
		ID:             r.ID.String(),
		WorkflowName:   r.WorkflowName,
		State:          string(r.State),
		TotalSteps:     r.TotalSteps,
		CompletedSteps: r.CompletedSteps,
		CurrentStep:    r.CurrentStep,
		Config:         r.Config,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func fromRunModel(m *runModel) (*workflow.Run, error) {
	parsedID, err := id.ParseRunID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("manta/bun: parse run id %q: %w", m.ID, err)
	}

	return &workflow.Run{
		Entity: manta.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             parsedID,
		WorkflowName:   m.WorkflowName,
		State:          workflow.RunState(m.State),
		TotalSteps:     m.TotalSteps,
		CompletedSteps: m.CompletedSteps,
		CurrentStep:    m.CurrentStep,
		Config:         m.Config,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
	}, nil
}

// ── Step model ────────────────────────────────────────────────────

type stepModel struct {
	bun.BaseModel `bun:"table:manta_workflow_steps"`

	ID          string     `bun:"id,pk"`
	RunID       string     `bun:"run_id,notnull"`
	StepName    string     `bun:"step_name,notnull"`
	State       string     `bun:"state,notnull,default:'pending'"`
	Progress    int        `bun:"progress,notnull,default:0"`
	Message     string     `bun:"message"`
	StartedAt   *time.Time `bun:"started_at"`
	CompletedAt *time.Time `bun:"completed_at"`
	Duration    int64      `bun:"duration,notnull,default:0"`
	Error       string     `bun:"error"`
	Checkpoint  []byte     `bun:"checkpoint,type:bytea"`
	Ordinal     int        `bun:"ordinal,notnull,default:0"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toStepModel(sr *workflow.StepRun, ordinal int) *stepModel {
	return &stepModel{
		ID:          sr.ID.String(),
		RunID:       sr.RunID.String(),
		StepName:    sr.StepName,
		State:       string(sr.State),
		Progress:    sr.Progress,
		Message:     sr.Message,
		StartedAt:   sr.StartedAt,
		CompletedAt: sr.CompletedAt,
		Duration:    sr.Duration.Nanoseconds(),
		Error:       sr.Error,
		Checkpoint:  sr.Checkpoint,
		Ordinal:     ordinal,
		CreatedAt:   sr.CreatedAt,
		UpdatedAt:   sr.UpdatedAt,
	}
}

func fromStepModel(m *stepModel) (*workflow.StepRun, error) {
	parsedStep, err := id.ParseStepRunID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("manta/bun: parse step run id %q: %w", m.ID, err)
	}
	parsedRun, err := id.ParseRunID(m.RunID)
	if err != nil {
		return nil, fmt.Errorf("manta/bun: parse run id %q: %w", m.RunID, err)
	}

	return &workflow.StepRun{
		Entity: manta.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedStep,
		RunID:       parsedRun,
		StepName:    m.StepName,
		State:       workflow.StepState(m.State),
		Progress:    m.Progress,
		Message:     m.Message,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Duration:    time.Duration(m.Duration),
		Error:       m.Error,
		Checkpoint:  m.Checkpoint,
	}, nil
}
