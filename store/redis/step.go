package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

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

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sr.State = workflow.StepStateRunning
	sr.StartedAt = &now
	sr.CompletedAt = nil
	sr.Error = ""
	sr.Duration = 0
	sr.Touch()

	run.State = workflow.RunStateRunning
	run.CurrentStep = stepName
	run.CompletedAt = nil
	run.Touch()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, stepKey(runID.String(), stepName), stepToMap(sr))
	pipe.HSet(ctx, runKey(runID.String()), runToMap(run))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("manta/redis: begin step: %w", err)
	}
	return sr, nil
}

// CompleteStep marks a step row completed with progress 100 and the
// measured duration, then recounts the run's CompletedSteps.
func (s *Store) CompleteStep(ctx context.Context, runID id.RunID, stepName string, elapsed time.Duration) error {
	sr, err := s.GetStepRun(ctx, runID, stepName)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sr.State = workflow.StepStateCompleted
	sr.Progress = 100
	sr.Duration = elapsed
	sr.CompletedAt = &now
	sr.Touch()

	if _, err := s.client.HSet(ctx, stepKey(runID.String(), stepName), stepToMap(sr)).Result(); err != nil {
		return fmt.Errorf("manta/redis: complete step: %w", err)
	}

	completed, err := s.countCompleted(ctx, runID)
	if err != nil {
		return err
	}
	if _, err := s.client.HSet(ctx, runKey(runID.String()),
		"completed_steps", completed,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result(); err != nil {
		return fmt.Errorf("manta/redis: complete step recount: %w", err)
	}
	return nil
}

// FailStep marks the step row failed with the given error text, and marks
// the run failed.
func (s *Store) FailStep(ctx context.Context, runID id.RunID, stepName, errMsg string, elapsed time.Duration) error {
	sr, err := s.GetStepRun(ctx, runID, stepName)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sr.State = workflow.StepStateFailed
	sr.Error = errMsg
	sr.Duration = elapsed
	sr.CompletedAt = &now
	sr.Touch()

	if _, err := s.client.HSet(ctx, stepKey(runID.String(), stepName), stepToMap(sr)).Result(); err != nil {
		return fmt.Errorf("manta/redis: fail step: %w", err)
	}

	return s.SetRunState(ctx, runID, workflow.RunStateFailed)
}

// UpdateStepProgress records a step's progress percentage and message.
func (s *Store) UpdateStepProgress(ctx context.Context, runID id.RunID, stepName string, percent int, message string) error {
	key := stepKey(runID.String(), stepName)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("manta/redis: update step progress exists: %w", err)
	}
	if exists == 0 {
		return manta.ErrStepRunNotFound
	}

	if _, err := s.client.HSet(ctx, key,
		"progress", workflow.ClampProgress(percent),
		"message", message,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result(); err != nil {
		return fmt.Errorf("manta/redis: update step progress: %w", err)
	}
	return nil
}

// GetStepRun retrieves the step row for (run, step).
func (s *Store) GetStepRun(ctx context.Context, runID id.RunID, stepName string) (*workflow.StepRun, error) {
	vals, err := s.client.HGetAll(ctx, stepKey(runID.String(), stepName)).Result()
	if err != nil {
		return nil, fmt.Errorf("manta/redis: get step run: %w", err)
	}
	if len(vals) == 0 {
		return nil, manta.ErrStepRunNotFound
	}
	return mapToStep(vals)
}

// ListStepRuns returns all step rows of a run in creation order.
func (s *Store) ListStepRuns(ctx context.Context, runID id.RunID) ([]*workflow.StepRun, error) {
	rID := runID.String()

	exists, err := s.client.Exists(ctx, runKey(rID)).Result()
	if err != nil {
		return nil, fmt.Errorf("manta/redis: list step runs exists: %w", err)
	}
	if exists == 0 {
		return nil, manta.ErrRunNotFound
	}

	names, err := s.client.LRange(ctx, stepOrderKey(rID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("manta/redis: list step runs: %w", err)
	}

	steps := make([]*workflow.StepRun, 0, len(names))
	for _, name := range names {
		sr, getErr := s.GetStepRun(ctx, runID, name)
		if getErr != nil {
			continue
		}
		steps = append(steps, sr)
	}
	return steps, nil
}

// SaveCheckpoint persists an opaque checkpoint payload on the step row,
// replacing any existing one.
func (s *Store) SaveCheckpoint(ctx context.Context, runID id.RunID, stepName string, data []byte) error {
	key := stepKey(runID.String(), stepName)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("manta/redis: save checkpoint exists: %w", err)
	}
	if exists == 0 {
		return manta.ErrStepRunNotFound
	}

	if _, err := s.client.HSet(ctx, key,
		"checkpoint", string(data),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Result(); err != nil {
		return fmt.Errorf("manta/redis: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a step's checkpoint payload. Returns nil data,
// and no error, when none was saved.
func (s *Store) GetCheckpoint(ctx context.Context, runID id.RunID, stepName string) ([]byte, error) {
	key := stepKey(runID.String(), stepName)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("manta/redis: get checkpoint exists: %w", err)
	}
	if exists == 0 {
		return nil, manta.ErrStepRunNotFound
	}

	data, err := s.client.HGet(ctx, key, "checkpoint").Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil // no checkpoint is not an error
		}
		return nil, fmt.Errorf("manta/redis: get checkpoint: %w", err)
	}
	return []byte(data), nil
}
