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

// CreateRun persists a new run plus one pending step row per name in
// stepNames.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run, stepNames []string) error {
	rID := run.ID.String()
	key := runKey(rID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("manta/redis: create run exists: %w", err)
	}
	if exists > 0 {
		return manta.ErrRunAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, runToMap(run))
	pipe.ZAdd(ctx, runsByStartKey, goredis.Z{
		Score:  float64(run.StartedAt.UnixNano()),
		Member: rID,
	})
	for _, name := range stepNames {
		sr := &workflow.StepRun{
			Entity:   manta.NewEntity(),
			ID:       id.NewStepRunID(),
			RunID:    run.ID,
			StepName: name,
			State:    workflow.StepStatePending,
		}
		pipe.HSet(ctx, stepKey(rID, name), stepToMap(sr))
		pipe.RPush(ctx, stepOrderKey(rID), name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("manta/redis: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	vals, err := s.client.HGetAll(ctx, runKey(runID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("manta/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, manta.ErrRunNotFound
	}
	return mapToRun(vals)
}

// ListRuns returns runs matching the given options, most recent first.
// The recency Sorted Set gives the ordering; state filtering happens after
// the loads.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	ids, err := s.client.ZRevRange(ctx, runsByStartKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("manta/redis: list runs zrevrange: %w", err)
	}

	var runs []*workflow.Run
	for _, rID := range ids {
		vals, getErr := s.client.HGetAll(ctx, runKey(rID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		r, convErr := mapToRun(vals)
		if convErr != nil {
			continue
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		runs = append(runs, r)
	}

	if opts.Offset >= len(runs) {
		return nil, nil
	}
	if opts.Offset > 0 {
		runs = runs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(runs) {
		runs = runs[:opts.Limit]
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
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	run.State = state
	if state.Terminal() && run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	run.Touch()

	if _, err := s.client.HSet(ctx, runKey(runID.String()), runToMap(run)).Result(); err != nil {
		return fmt.Errorf("manta/redis: set run state: %w", err)
	}
	return nil
}

// CompleteRun marks a run completed, recounting CompletedSteps from the
// step rows rather than trusting the running total.
func (s *Store) CompleteRun(ctx context.Context, runID id.RunID) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	completed, err := s.countCompleted(ctx, runID)
	if err != nil {
		return err
	}

	run.State = workflow.RunStateCompleted
	run.CurrentStep = ""
	run.CompletedSteps = completed
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Touch()

	if _, err := s.client.HSet(ctx, runKey(runID.String()), runToMap(run)).Result(); err != nil {
		return fmt.Errorf("manta/redis: complete run: %w", err)
	}
	return nil
}

// countCompleted counts completed step rows for a run.
func (s *Store) countCompleted(ctx context.Context, runID id.RunID) (int, error) {
	rID := runID.String()
	names, err := s.client.LRange(ctx, stepOrderKey(rID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("manta/redis: count completed steps: %w", err)
	}

	count := 0
	for _, name := range names {
		state, getErr := s.client.HGet(ctx, stepKey(rID, name), "state").Result()
		if getErr != nil {
			continue
		}
		if workflow.StepState(state) == workflow.StepStateCompleted {
			count++
		}
	}
	return count, nil
}
