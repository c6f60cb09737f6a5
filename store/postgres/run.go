package postgres

import (
	"context"
	"fmt"
	"strconv"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// CreateRun persists a new run plus one pending step row per name in
// stepNames, all within a single transaction.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run, stepNames []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("manta/postgres: begin create run: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO manta_workflow_runs (
			id, workflow_name, state, total_steps, completed_steps,
			current_step, config, started_at, completed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID.String(), run.WorkflowName, string(run.State),
		run.TotalSteps, run.CompletedSteps, run.CurrentStep,
		run.Config, run.StartedAt, run.CompletedAt,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return manta.ErrRunAlreadyExists
		}
		return fmt.Errorf("manta/postgres: create run: %w", err)
	}

	for ordinal, name := range stepNames {
		entity := manta.NewEntity()
		_, err = tx.Exec(ctx, `
			INSERT INTO manta_workflow_steps (
				id, run_id, step_name, state, ordinal, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id.NewStepRunID().String(), run.ID.String(), name,
			string(workflow.StepStatePending), ordinal,
			entity.CreatedAt, entity.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("manta/postgres: create step row %q: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("manta/postgres: commit create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM manta_workflow_runs WHERE id = $1`,
		runID.String(),
	)

	run, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, manta.ErrRunNotFound
		}
		return nil, fmt.Errorf("manta/postgres: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs matching the given options, most recent first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	query := `SELECT ` + runColumns + ` FROM manta_workflow_runs`
	args := []any{}

	if opts.State != "" {
		args = append(args, string(opts.State))
		query += ` WHERE state = $1`
	}

	query += ` ORDER BY started_at DESC`

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manta/postgres: list runs: %w", err)
	}
	return collectRuns(rows)
}

// ListResumable returns runs left in the running state, most recent first.
func (s *Store) ListResumable(ctx context.Context, limit int) ([]*workflow.Run, error) {
	return s.ListRuns(ctx, workflow.ListOpts{
		Limit: limit,
		State: workflow.RunStateRunning,
	})
}

// SetRunState transitions a run's state. A terminal state records the
// completion timestamp unless one is already set.
func (s *Store) SetRunState(ctx context.Context, runID id.RunID, state workflow.RunState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE manta_workflow_runs SET
			state = $2,
			completed_at = CASE WHEN $3 AND completed_at IS NULL THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1`,
		runID.String(), string(state), state.Terminal(),
	)
	if err != nil {
		return fmt.Errorf("manta/postgres: set run state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return manta.ErrRunNotFound
	}
	return nil
}

// CompleteRun marks a run completed, recounting CompletedSteps from the
// step rows rather than trusting the running total.
func (s *Store) CompleteRun(ctx context.Context, runID id.RunID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE manta_workflow_runs SET
			state = $2,
			current_step = '',
			completed_steps = (
				SELECT COUNT(*) FROM manta_workflow_steps
				WHERE run_id = $1 AND state = $3
			),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1`,
		runID.String(), string(workflow.RunStateCompleted), string(workflow.StepStateCompleted),
	)
	if err != nil {
		return fmt.Errorf("manta/postgres: complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return manta.ErrRunNotFound
	}
	return nil
}
