package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	manta "github.com/jcppman/kurasu-manta-sub000"
)

// StepContext is the handle each unit of work receives to report progress,
// persist and retrieve a checkpoint, and log. Every call takes effect
// immediately against the store; there is no buffering.
//
// When a step's timeout wins the race against its work, the runner seals
// the context: subsequent writes return manta.ErrStepSealed and nothing is
// persisted. The work function itself keeps running — it is ignored, not
// cancelled.
type StepContext struct {
	ctx      context.Context
	run      *Run
	stepName string
	store    Store
	emitter  StepEmitter
	logger   *slog.Logger
	sealed   atomic.Bool
}

// newStepContext is called by the Runner, not by users.
func newStepContext(
	ctx context.Context,
	run *Run,
	stepName string,
	store Store,
	emitter StepEmitter,
	logger *slog.Logger,
) *StepContext {
	return &StepContext{
		ctx:      ctx,
		run:      run,
		stepName: stepName,
		store:    store,
		emitter:  emitter,
		logger: logger.With(
			slog.String("run_id", run.ID.String()),
			slog.String("step", stepName),
		),
	}
}

// Context returns the context governing this step's execution. Blocking
// work should select on its Done channel.
func (sc *StepContext) Context() context.Context { return sc.ctx }

// RunID returns the ID of the run this step belongs to.
func (sc *StepContext) RunID() string { return sc.run.ID.String() }

// StepName returns the executing step's name.
func (sc *StepContext) StepName() string { return sc.stepName }

// Logger returns a logger bound to (run_id, step).
func (sc *StepContext) Logger() *slog.Logger { return sc.logger }

// UpdateProgress records the step's progress percentage and an optional
// message on its StepRun. The percentage is clamped to [0, 100].
func (sc *StepContext) UpdateProgress(percent int, message string) error {
	if sc.sealed.Load() {
		return manta.ErrStepSealed
	}

	percent = ClampProgress(percent)
	if err := sc.store.UpdateStepProgress(sc.ctx, sc.run.ID, sc.stepName, percent, message); err != nil {
		return fmt.Errorf("step %q: update progress: %w", sc.stepName, err)
	}

	if sc.emitter != nil {
		sc.emitter.EmitStepProgress(sc.ctx, sc.run, sc.stepName, percent, message)
	}
	return nil
}

// SaveCheckpoint persists an opaque key-value payload on the StepRun,
// replacing any previous checkpoint. Step implementations decide the shape;
// the engine only round-trips it.
func (sc *StepContext) SaveCheckpoint(payload map[string]any) error {
	if sc.sealed.Load() {
		return manta.ErrStepSealed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("step %q: encode checkpoint: %w", sc.stepName, err)
	}
	if err := sc.store.SaveCheckpoint(sc.ctx, sc.run.ID, sc.stepName, data); err != nil {
		return fmt.Errorf("step %q: save checkpoint: %w", sc.stepName, err)
	}
	return nil
}

// LoadCheckpoint retrieves the step's checkpoint payload. Returns nil, and
// no error, if no checkpoint was saved.
func (sc *StepContext) LoadCheckpoint() (map[string]any, error) {
	if sc.sealed.Load() {
		return nil, manta.ErrStepSealed
	}

	data, err := sc.store.GetCheckpoint(sc.ctx, sc.run.ID, sc.stepName)
	if err != nil {
		return nil, fmt.Errorf("step %q: load checkpoint: %w", sc.stepName, err)
	}
	if data == nil {
		return nil, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("step %q: decode checkpoint: %w", sc.stepName, err)
	}
	return payload, nil
}

// seal discards all later writes through this context. Called by the
// Runner when a timeout wins the race against the work function.
func (sc *StepContext) seal() {
	sc.sealed.Store(true)
}
