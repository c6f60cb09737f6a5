package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

const runColumns = `id, workflow_name, state, total_steps, completed_steps,
	current_step, config, started_at, completed_at, created_at, updated_at`

const stepColumns = `id, run_id, step_name, state, progress, message,
	started_at, completed_at, duration, error, checkpoint, created_at, updated_at`

func scanRun(row pgx.Row) (*workflow.Run, error) {
	var (
		m           workflow.Run
		runID       string
		state       string
		completedAt *time.Time
	)

	err := row.Scan(
		&runID, &m.WorkflowName, &state, &m.TotalSteps, &m.CompletedSteps,
		&m.CurrentStep, &m.Config, &m.StartedAt, &completedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := id.ParseRunID(runID)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	m.ID = parsed
	m.State = workflow.RunState(state)
	m.CompletedAt = completedAt

	return &m, nil
}

func collectRuns(rows pgx.Rows) ([]*workflow.Run, error) {
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanStepRun(row pgx.Row) (*workflow.StepRun, error) {
	var (
		m        workflow.StepRun
		stepID   string
		runID    string
		state    string
		duration int64
	)

	err := row.Scan(
		&stepID, &runID, &m.StepName, &state, &m.Progress, &m.Message,
		&m.StartedAt, &m.CompletedAt, &duration, &m.Error, &m.Checkpoint,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedStep, err := id.ParseStepRunID(stepID)
	if err != nil {
		return nil, fmt.Errorf("parse step run id %q: %w", stepID, err)
	}
	parsedRun, err := id.ParseRunID(runID)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runID, err)
	}
	m.ID = parsedStep
	m.RunID = parsedRun
	m.State = workflow.StepState(state)
	m.Duration = time.Duration(duration)

	return &m, nil
}

func collectStepRuns(rows pgx.Rows) ([]*workflow.StepRun, error) {
	defer rows.Close()

	var steps []*workflow.StepRun
	for rows.Next() {
		sr, err := scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, sr)
	}
	return steps, rows.Err()
}
