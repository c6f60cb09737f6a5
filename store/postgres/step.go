package postgres

import (
	"context"
	"fmt"
	"time"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// BeginStep transitions the run to running with CurrentStep set, and the
// step row to running with a fresh attempt: the start time is reset and
// the error, duration and completion time of any previous failed attempt
// are cleared. A completed step row is returned unchanged.
func (s *Store) BeginStep(ctx context.Context, runID id.RunID, stepName string) (*workflow.StepRun, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE manta_workflow_steps SET
			state = CASE WHEN state = $3 THEN state ELSE $4 END,
			started_at = CASE WHEN state = $3 THEN started_at ELSE NOW() END,
			completed_at = CASE WHEN state = $3 THEN completed_at ELSE NULL END,
			error = CASE WHEN state = $3 THEN error ELSE '' END,
			duration = CASE WHEN state = $3 THEN duration ELSE 0 END,
			updated_at = CASE WHEN state = $3 THEN updated_at ELSE NOW() END
		WHERE run_id = $1 AND step_name = $2
		RETURNING `+stepColumns,
		runID.String(), stepName,
		string(workflow.StepStateCompleted), string(workflow.StepStateRunning),
	)

	sr, err := scanStepRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, manta.ErrStepRunNotFound
		}
		return nil, fmt.Errorf("manta/postgres: begin step: %w", err)
	}

	if sr.State == workflow.StepStateCompleted {
		return sr, nil
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE manta_workflow_runs SET
			state = $2, current_step = $3, completed_at = NULL, updated_at = NOW()
		WHERE id = $1`,
		runID.String(), string(workflow.RunStateRunning), stepName,
	)
	if err != nil {
		return nil, fmt.Errorf("manta/postgres: begin step run update: %w", err)
	}
	return sr, nil
}

// CompleteStep marks a step row completed with progress 100 and the
// measured duration, then recounts the run's CompletedSteps.
func (s *Store) CompleteStep(ctx context.Context, runID id.RunID, stepName string, elapsed time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE manta_workflow_steps SET
			state = $3, progress = 100, duration = $4,
			completed_at = NOW(), updated_at = NOW()
		WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName,
		string(workflow.StepStateCompleted), elapsed.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("manta/postgres: complete step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return manta.ErrStepRunNotFound
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE manta_workflow_runs SET
			completed_steps = (
				SELECT COUNT(*) FROM manta_workflow_steps
				WHERE run_id = $1 AND state = $2
			),
			updated_at = NOW()
		WHERE id = $1`,
		runID.String(), string(workflow.StepStateCompleted),
	)
	if err != nil {
		return fmt.Errorf("manta/postgres: complete step recount: %w", err)
	}
	return nil
}

// FailStep marks the step row failed with the given error text, and marks
// the run failed.
func (s *Store) FailStep(ctx context.Context, runID id.RunID, stepName, errMsg string, elapsed time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE manta_workflow_steps SET
			state = $3, error = $4, duration = $5,
			completed_at = NOW(), updated_at = NOW()
		WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName,
		string(workflow.StepStateFailed), errMsg, elapsed.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("manta/postgres: fail step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return manta.ErrStepRunNotFound
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE manta_workflow_runs SET
			state = $2,
			completed_at = COALESCE(completed_at, NOW()),
			updated_at = NOW()
		WHERE id = $1`,
		runID.String(), string(workflow.RunStateFailed),
	)
	if err != nil {
		return fmt.Errorf("manta/postgres: fail step run update: %w", err)
	}
	return nil
}

// UpdateStepProgress records a step's progress percentage and message.
func (s *Store) UpdateStepProgress(ctx context.Context, runID id.RunID, stepName string, percent int, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE manta_workflow_steps SET
			progress = $3, message = $4, updated_at = NOW()
		WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName,
		workflow.ClampProgress(percent), message,
	)
	if err != nil {
		return fmt.Errorf("manta/postgres: update step progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return manta.ErrStepRunNotFound
	}
	return nil
}

// GetStepRun retrieves the step row for (run, step).
func (s *Store) GetStepRun(ctx context.Context, runID id.RunID, stepName string) (*workflow.StepRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM manta_workflow_steps WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName,
	)

	sr, err := scanStepRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, manta.ErrStepRunNotFound
		}
		return nil, fmt.Errorf("manta/postgres: get step run: %w", err)
	}
	return sr, nil
}

// ListStepRuns returns all step rows of a run in creation order.
func (s *Store) ListStepRuns(ctx context.Context, runID id.RunID) ([]*workflow.StepRun, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM manta_workflow_runs WHERE id = $1)`,
		runID.String(),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("manta/postgres: list step runs: %w", err)
	}
	if !exists {
		return nil, manta.ErrRunNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM manta_workflow_steps WHERE run_id = $1 ORDER BY ordinal ASC`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("manta/postgres: list step runs: %w", err)
	}
	return collectStepRuns(rows)
}

// SaveCheckpoint persists an opaque checkpoint payload on the step row,
// replacing any existing one.
func (s *Store) SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE manta_workflow_steps SET
			checkpoint = $3, updated_at = NOW()
		WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName, data,
	)
	if err != nil {
		return fmt.Errorf("manta/postgres: save checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return manta.ErrStepRunNotFound
	}
	return nil
}

// GetCheckpoint retrieves a step's checkpoint payload. Returns nil data,
// and no error, when none was saved.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT checkpoint FROM manta_workflow_steps WHERE run_id = $1 AND step_name = $2`,
		runID.String(), stepName,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, manta.ErrStepRunNotFound
		}
		return nil, fmt.Errorf("manta/postgres: get checkpoint: %w", err)
	}
	return data, nil
}
