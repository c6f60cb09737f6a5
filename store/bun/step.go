package bunstore

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
	sr, err := s.GetStepRun(ctx, runID, stepName)
	if err != nil {
		return nil, err
	}
	if sr.State == workflow.StepStateCompleted {
		return sr, nil
	}

	now := time.Now().UTC()
	sr.State = workflow.StepStateRunning
	sr.StartedAt = &now
	sr.CompletedAt = nil
	sr.Error = ""
	sr.Duration = 0
	sr.Touch()

	_, err = s.db.NewUpdate().Model((*stepModel)(nil)).
		Set("state = ?", string(sr.State)).
		Set("started_at = ?", sr.StartedAt).
		Set("completed_at = NULL").
		Set("error = ''").
		Set("duration = 0").
		Set("updated_at = NOW()").
		Where("run_id = ? AND step_name = ?", runID.String(), stepName).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("manta/bun: begin step: %w", err)
	}

	_, err = s.db.NewUpdate().Model((*runModel)(nil)).
		Set("state = ?", string(workflow.RunStateRunning)).
		Set("current_step = ?", stepName).
		Set("completed_at = NULL").
		Set("updated_at = NOW()").
		Where("id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("manta/bun: begin step run update: %w", err)
	}
	return sr, nil
}

// CompleteStep marks a step row completed with progress 100 and the
// measured duration, then recounts the run's CompletedSteps.
func (s *Store) CompleteStep(ctx context.Context, runID id.RunID, stepName string, elapsed time.Duration) error {
	res, err := s.db.NewUpdate().Model((*stepModel)(nil)).
		Set("state = ?", string(workflow.StepStateCompleted)).
		Set("progress = 100").
		Set("duration = ?", elapsed.Nanoseconds()).
		Set("completed_at = NOW()").
		Set("updated_at = NOW()").
		Where("run_id = ? AND step_name = ?", runID.String(), stepName).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("manta/bun: complete step: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return manta.ErrStepRunNotFound
	}

	_, err = s.db.NewUpdate().Model((*runModel)(nil)).
		Set(`completed_steps = (
			SELECT COUNT(*) FROM manta_workflow_steps
			WHERE run_id = ? AND state = ?
		)`, runID.String(), string(workflow.StepStateCompleted)).
		Set("updated_at = NOW()").
		Where("id = ?", runID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("manta/bun: complete step recount: %w", err)
	}
	return nil
}

// FailStep marks the step row failed with the given error text, and marks
// the run failed.
func (s *Store) FailStep(ctx context.Context, runID id.RunID, stepName, errMsg string, elapsed time.Duration) error {
	res, err := s.db.NewUpdate().Model((*stepModel)(nil)).
		Set("state = ?", string(workflow.StepStateFailed)).
		Set("error = ?", errMsg).
		Set("duration = ?", elapsed.Nanoseconds()).
		Set("completed_at = NOW()").
		Set("updated_at = NOW()").
		Where("run_id = ? AND step_name = ?", runID.String(), stepName).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("manta/bun: fail step: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return manta.ErrStepRunNotFound
	}

	return s.SetRunState(ctx, runID, workflow.RunStateFailed)
}

// UpdateStepProgress records a step's progress percentage and message.
func (s *Store) UpdateStepProgress(ctx context.Context, runID id.RunID, stepName string, percent int, message string) error {
	res, err := s.db.NewUpdate().Model((*stepModel)(nil)).
		Set("progress = ?", workflow.ClampProgress(percent)).
		Set("message = ?", message).
		Set("updated_at = NOW()").
		Where("run_id = ? AND step_name = ?", runID.String(), stepName).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("manta/bun: update step progress: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return manta.ErrStepRunNotFound
	}
	return nil
}

// GetStepRun retrieves the step row for (run, step).
func (s *Store) GetStepRun(ctx context.Context, runID id.RunID, stepName string) (*workflow.StepRun, error) {
	m := new(stepModel)
	err := s.db.NewSelect().Model(m).
		Where("run_id = ? AND step_name = ?", runID.String(), stepName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, manta.ErrStepRunNotFound
		}
		return nil, fmt.Errorf("manta/bun: get step run: %w", err)
	}
	return fromStepModel(m)
}

// ListStepRuns returns all step rows of a run in creation order.
func (s *Store) ListStepRuns(ctx context.Context, runID id.RunID) ([]*workflow.StepRun, error) {
	exists, err := s.db.NewSelect().Model((*runModel)(nil)).
		Where("id = ?", runID.String()).
		Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("manta/bun: list step runs: %w", err)
	}
	if !exists {
		return nil, manta.ErrRunNotFound
	}

	var models []stepModel
	err = s.db.NewSelect().Model(&models).
		Where("run_id = ?", runID.String()).
		OrderExpr("ordinal ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("manta/bun: list step runs: %w", err)
	}

	steps := make([]*workflow.StepRun, 0, len(models))
	for i := range models {
		sr, convErr := fromStepModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("manta/bun: list step runs convert: %w", convErr)
		}
		steps = append(steps, sr)
	}
	return steps, nil
}

// SaveCheckpoint persists an opaque checkpoint payload on the step row,
// replacing any existing one.
func (s *Store) SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error {
	res, err := s.db.NewUpdate().Model((*stepModel)(nil)).
		Set("checkpoint = ?", data).
		Set("updated_at = NOW()").
		Where("run_id = ? AND step_name = ?", runID.String(), stepName).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("manta/bun: save checkpoint: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return manta.ErrStepRunNotFound
	}
	return nil
}

// GetCheckpoint retrieves a step's checkpoint payload. Returns nil data,
// and no error, when none was saved.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error) {
	var data []byte
	err := s.db.NewSelect().Model((*stepModel)(nil)).
		Column("checkpoint").
		Where("run_id = ? AND step_name = ?", runID.String(), stepName).
		Limit(1).
		Scan(ctx, &data)
	if err != nil {
		if isNoRows(err) {
			return nil, manta.ErrStepRunNotFound
		}
		return nil, fmt.Errorf("manta/bun: get checkpoint: %w", err)
	}
	return data, nil
}
