package bunstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// CreateRun persists a new run plus one pending step row per name in
// stepNames, all within a single transaction.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run, stepNames []string) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(toRunModel(run)).Exec(ctx); err != nil {
			return err
		}

		for ordinal, name := range stepNames {
			sr := &workflow.StepRun{
				Entity:   manta.NewEntity(),
				ID:       id.NewStepRunID(),
				RunID:    run.ID,
				StepName: name,
				State:    workflow.StepStatePending,
			}
			if _, err := tx.NewInsert().Model(toStepModel(sr, ordinal)).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKey(err) {
			return manta.ErrRunAlreadyExists
		}
		return fmt.Errorf("manta/bun: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	m := new(runModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", runID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, manta.ErrRunNotFound
		}
		return nil, fmt.Errorf("manta/bun: get run: %w", err)
	}
	return fromRunModel(m)
}

// ListRuns returns runs matching the given options, most recent first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	var models []runModel
	q := s.db.NewSelect().Model(&models)

	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	q = q.OrderExpr("started_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("manta/bun: list runs: %w", err)
	}

	runs := make([]*workflow.Run, 0, len(models))
	for i := range models {
		r, convErr := fromRunModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("manta/bun: list runs convert: %w", convErr)
		}
		runs = append(runs, r)
	}
	return runs, nil
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
	res, err := s.db.NewUpdate().Model((*runModel)(nil)).
		Set("state = ?", string(state)).
		Set("completed_at = CASE WHEN ? AND completed_at IS NULL THEN NOW() ELSE completed_at END", state.Terminal()).
		Set("updated_at = NOW()").
		Where("id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("manta/bun: set run state: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return manta.ErrRunNotFound
	}
	return nil
}

// CompleteRun marks a run completed, recounting CompletedSteps from the
// step rows rather than trusting the running total.
func (s *Store) CompleteRun(ctx context.Context, runID id.RunID) error {
	res, err := s.db.NewUpdate().Model((*runModel)(nil)).
		Set("state = ?", string(workflow.RunStateCompleted)).
		Set("current_step = ''").
		Set(`completed_steps = (
			SELECT COUNT(*) FROM manta_workflow_steps
			WHERE run_id = ? AND state = ?
		)`, runID.String(), string(workflow.StepStateCompleted)).
		Set("completed_at = NOW()").
		Set("updated_at = NOW()").
		Where("id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("manta/bun: complete run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return manta.ErrRunNotFound
	}
	return nil
}
