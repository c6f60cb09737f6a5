package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/middleware"
)

// StepEmitter is called by the Runner and StepContext to emit step
// lifecycle events. The interface is satisfied by ext.Registry via an
// adapter in the engine package, which breaks the import cycle between
// workflow and ext.
type StepEmitter interface {
	EmitStepStarted(ctx context.Context, run *Run, stepName string)
	EmitStepProgress(ctx context.Context, run *Run, stepName string, percent int, message string)
	EmitStepCompleted(ctx context.Context, run *Run, stepName string, elapsed time.Duration)
	EmitStepFailed(ctx context.Context, run *Run, stepName string, err error)
}

// RunEmitter emits run-level lifecycle events on top of the step ones.
type RunEmitter interface {
	StepEmitter
	EmitRunStarted(ctx context.Context, run *Run)
	EmitRunCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	EmitRunFailed(ctx context.Context, run *Run, err error)
}

// Runner drives one workflow run at a time: it creates or resumes the run
// record, executes steps sequentially in scheduler order, applies per-step
// timeouts, and stops the run on the first unrecovered step failure. It
// exclusively owns Run.State and Run.CurrentStep.
type Runner struct {
	registry *Registry
	store    Store
	emitter  RunEmitter
	logger   *slog.Logger

	mw             middleware.Middleware
	defaultTimeout time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMiddleware wraps every work-function invocation with the given
// middleware (compose several with middleware.Chain).
func WithMiddleware(mw middleware.Middleware) RunnerOption {
	return func(r *Runner) { r.mw = mw }
}

// WithDefaultStepTimeout applies a timeout to steps that declare none.
// Zero (the default) lets such steps block their run indefinitely.
func WithDefaultStepTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.defaultTimeout = d }
}

// NewRunner creates a workflow runner.
func NewRunner(registry *Registry, store Store, emitter RunEmitter, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: registry,
		store:    store,
		emitter:  emitter,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the workflow registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Start executes a registered workflow. With a zero ResumeRunID it creates
// a fresh run (with one pending StepRun per step of the full workflow, the
// filter notwithstanding); otherwise it re-enters the named run, skipping
// steps already completed.
//
// An unsatisfiable step filter — a filter including a step whose dependency
// is excluded — is rejected before any step executes and before any record
// is written.
//
// The returned Run is always non-nil once a run record exists, even when
// execution failed; the error reflects the run's outcome.
func (r *Runner) Start(ctx context.Context, name string, opts RunOptions) (*Run, error) {
	wf, err := r.registry.Get(name)
	if err != nil {
		return nil, err
	}

	order, err := Order(wf.Steps(), opts.StepFilter)
	if err != nil {
		return nil, err
	}

	var run *Run
	if opts.ResumeRunID.IsNil() {
		run, err = r.createRun(ctx, wf, opts)
	} else {
		run, err = r.reopenRun(ctx, opts.ResumeRunID, name)
	}
	if err != nil {
		return nil, err
	}

	r.emitter.EmitRunStarted(ctx, run)

	return run, r.executeRun(ctx, run, wf, order)
}

// Resume re-enters a run using the options persisted when it was created.
// It fails with manta.ErrRunNotFound or manta.ErrRunCompleted when the run
// is missing or already completed; paused and failed runs are resumable.
func (r *Runner) Resume(ctx context.Context, runID id.RunID) (*Run, error) {
	run, err := r.reopenRun(ctx, runID, "")
	if err != nil {
		return nil, err
	}

	wf, err := r.registry.Get(run.WorkflowName)
	if err != nil {
		return nil, err
	}

	var opts RunOptions
	if len(run.Config) > 0 {
		if decErr := json.Unmarshal(run.Config, &opts); decErr != nil {
			return nil, fmt.Errorf("run %s: decode config: %w", runID, decErr)
		}
	}

	order, err := Order(wf.Steps(), opts.StepFilter)
	if err != nil {
		return nil, err
	}

	r.emitter.EmitRunStarted(ctx, run)

	return run, r.executeRun(ctx, run, wf, order)
}

// createRun persists a fresh run record plus one pending StepRun for every
// step of the full workflow, so a later resume with a different filter
// still finds a placeholder row.
func (r *Runner) createRun(ctx context.Context, wf *Workflow, opts RunOptions) (*Run, error) {
	cfg, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("workflow %q: encode run config: %w", wf.Name(), err)
	}

	run := &Run{
		Entity:       manta.NewEntity(),
		ID:           id.NewRunID(),
		WorkflowName: wf.Name(),
		State:        RunStateStarted,
		TotalSteps:   len(wf.Steps()),
		Config:       cfg,
		StartedAt:    time.Now().UTC(),
	}

	if err := r.store.CreateRun(ctx, run, wf.StepNames()); err != nil {
		return nil, fmt.Errorf("workflow %q: create run: %w", wf.Name(), err)
	}
	return run, nil
}

// reopenRun loads an existing run for resumption. wantWorkflow, when
// non-empty, guards against resuming a run under the wrong definition.
func (r *Runner) reopenRun(ctx context.Context, runID id.RunID, wantWorkflow string) (*Run, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.State == RunStateCompleted {
		return nil, fmt.Errorf("run %s: %w", runID, manta.ErrRunCompleted)
	}
	if wantWorkflow != "" && run.WorkflowName != wantWorkflow {
		return nil, fmt.Errorf("run %s is for workflow %q, not %q: %w",
			runID, run.WorkflowName, wantWorkflow, manta.ErrWorkflowMismatch)
	}
	return run, nil
}

// executeRun walks the ordered steps against the run record. Skipping
// StepRuns already marked completed is the entire resume mechanism.
func (r *Runner) executeRun(ctx context.Context, run *Run, wf *Workflow, order []string) error {
	start := time.Now()

	for _, stepName := range order {
		step, ok := wf.Step(stepName)
		if !ok {
			// Order only emits names from wf.Steps; reaching here is a
			// programming error.
			return fmt.Errorf("workflow %q: scheduler produced unknown step %q", wf.Name(), stepName)
		}

		sr, err := r.store.GetStepRun(ctx, run.ID, stepName)
		if err != nil {
			return fmt.Errorf("run %s: step %q: %w", run.ID, stepName, err)
		}
		if sr.State == StepStateCompleted {
			r.logger.Debug("skipping completed step",
				slog.String("run_id", run.ID.String()),
				slog.String("step", stepName),
			)
			continue
		}

		if _, err := r.store.BeginStep(ctx, run.ID, stepName); err != nil {
			return fmt.Errorf("run %s: begin step %q: %w", run.ID, stepName, err)
		}
		run.State = RunStateRunning
		run.CurrentStep = stepName
		r.emitter.EmitStepStarted(ctx, run, stepName)

		stepStart := time.Now()
		execErr := r.executeStep(ctx, run, step)
		elapsed := time.Since(stepStart)

		if execErr != nil {
			if failErr := r.store.FailStep(ctx, run.ID, stepName, execErr.Error(), elapsed); failErr != nil {
				r.logger.Error("failed to record step failure",
					slog.String("run_id", run.ID.String()),
					slog.String("step", stepName),
					slog.String("error", failErr.Error()),
				)
			}
			run.State = RunStateFailed
			r.refreshRun(ctx, run)
			r.emitter.EmitStepFailed(ctx, run, stepName, execErr)
			r.emitter.EmitRunFailed(ctx, run, execErr)
			return fmt.Errorf("workflow %q step %q: %w", run.WorkflowName, stepName, execErr)
		}

		if err := r.store.CompleteStep(ctx, run.ID, stepName, elapsed); err != nil {
			return fmt.Errorf("run %s: complete step %q: %w", run.ID, stepName, err)
		}
		r.emitter.EmitStepCompleted(ctx, run, stepName, elapsed)
	}

	if err := r.store.CompleteRun(ctx, run.ID); err != nil {
		return fmt.Errorf("run %s: complete run: %w", run.ID, err)
	}
	run.State = RunStateCompleted
	run.CurrentStep = ""
	r.refreshRun(ctx, run)
	r.emitter.EmitRunCompleted(ctx, run, time.Since(start))
	return nil
}

// refreshRun reloads the run record after the store finalized it, so the
// Run handed back to callers carries the persisted CompletedSteps and
// CompletedAt, not just the locally tracked state. On a reload failure the
// locally mutated record is kept.
func (r *Runner) refreshRun(ctx context.Context, run *Run) {
	fresh, err := r.store.GetRun(ctx, run.ID)
	if err != nil {
		r.logger.Warn("failed to reload run record",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	*run = *fresh
}

// executeStep invokes the step's work through the middleware chain, racing
// it against the step's timeout when one is set. The work goroutine is not
// cancelled when the timeout wins: its result is discarded and its late
// writes are rejected by the sealed StepContext. Until the work function
// observes ctx or returns on its own, that goroutine is leaked — the
// documented cost of not forcibly interrupting caller code.
func (r *Runner) executeStep(ctx context.Context, run *Run, step Step) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	workCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		// Cooperative only: work that honors its context stops early,
		// work that doesn't is merely ignored after the deadline.
		workCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sc := newStepContext(workCtx, run, step.Name, r.store, r.emitter, r.logger)

	invoke := func(hctx context.Context) error {
		if step.Run == nil {
			return fmt.Errorf("step %q has no work function", step.Name)
		}
		return step.Run(sc)
	}
	if r.mw != nil {
		inner := invoke
		info := middleware.StepInfo{RunID: run.ID, Workflow: run.WorkflowName, Step: step.Name}
		invoke = func(hctx context.Context) error {
			return r.mw(hctx, info, inner)
		}
	}

	if timeout <= 0 {
		return invoke(workCtx)
	}

	done := make(chan error, 1)
	go func() {
		done <- invoke(workCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		sc.seal()
		return fmt.Errorf("%w: step %q exceeded %s", manta.ErrStepTimeout, step.Name, timeout)
	case <-ctx.Done():
		sc.seal()
		return ctx.Err()
	}
}
