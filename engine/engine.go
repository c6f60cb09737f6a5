// Package engine wires all orchestrator subsystems together. It creates
// the extension registry, workflow registry, middleware chain, and runner,
// and provides the operator-facing execution and query operations.
//
// This package exists to break the import cycle: the root manta package
// defines Entity and the error taxonomy (imported by workflow, ext, etc.)
// and so cannot import those packages back. The engine package sits above
// all subsystem packages and below the application layer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/ext"
	"github.com/jcppman/kurasu-manta-sub000/id"
	mw "github.com/jcppman/kurasu-manta-sub000/middleware"
	"github.com/jcppman/kurasu-manta-sub000/observability"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// resumeConcurrency bounds how many interrupted runs are re-driven in
// parallel during crash recovery.
const resumeConcurrency = 4

// extRunEmitter adapts *ext.Registry to satisfy workflow.RunEmitter.
// This breaks the import cycle: workflow defines the interface,
// ext.Registry provides the implementation, and the engine layer
// plugs them together.
type extRunEmitter struct {
	r *ext.Registry
}

var _ workflow.RunEmitter = (*extRunEmitter)(nil)

func (a *extRunEmitter) EmitRunStarted(ctx context.Context, run *workflow.Run) {
	a.r.EmitRunStarted(ctx, run)
}

func (a *extRunEmitter) EmitRunCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	a.r.EmitRunCompleted(ctx, run, elapsed)
}

func (a *extRunEmitter) EmitRunFailed(ctx context.Context, run *workflow.Run, err error) {
	a.r.EmitRunFailed(ctx, run, err)
}

func (a *extRunEmitter) EmitStepStarted(ctx context.Context, run *workflow.Run, stepName string) {
	a.r.EmitStepStarted(ctx, run, stepName)
}

func (a *extRunEmitter) EmitStepProgress(ctx context.Context, run *workflow.Run, stepName string, percent int, message string) {
	a.r.EmitStepProgress(ctx, run, stepName, percent, message)
}

func (a *extRunEmitter) EmitStepCompleted(ctx context.Context, run *workflow.Run, stepName string, elapsed time.Duration) {
	a.r.EmitStepCompleted(ctx, run, stepName, elapsed)
}

func (a *extRunEmitter) EmitStepFailed(ctx context.Context, run *workflow.Run, stepName string, err error) {
	a.r.EmitStepFailed(ctx, run, stepName, err)
}

// Engine wraps an Orchestrator with the workflow registry, runner, and
// extension registry. Use Build() to create one.
type Engine struct {
	o          *manta.Orchestrator
	extensions *ext.Registry
	registry   *workflow.Registry
	runner     *workflow.Runner
	store      workflow.Store
	mws        []mw.Middleware
	logger     *slog.Logger

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain, after the default
// stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Orchestrator.
// The Orchestrator's store must implement workflow.Store.
func Build(o *manta.Orchestrator, opts ...Option) (*Engine, error) {
	logger := o.Logger()
	store := o.Store()

	if store == nil {
		return nil, manta.ErrNoStore
	}

	ws, ok := store.(workflow.Store)
	if !ok {
		return nil, fmt.Errorf("manta: store does not implement workflow.Store")
	}

	eng := &Engine{
		o:          o,
		extensions: ext.NewRegistry(logger),
		registry:   workflow.NewRegistry(),
		store:      ws,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/jcppman/kurasu-manta-sub000")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware and the observability extension (custom
	// provider or global).
	var metricsMw mw.Middleware
	var obsExt *observability.MetricsExtension
	var err error
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/jcppman/kurasu-manta-sub000"))
		obsExt, err = observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter("github.com/jcppman/kurasu-manta-sub000/observability"))
	} else {
		metricsMw = mw.Metrics()
		obsExt, err = observability.NewMetricsExtension()
	}
	if err != nil {
		return nil, fmt.Errorf("manta: build metrics extension: %w", err)
	}
	eng.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging.
	allMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	}
	allMws = append(allMws, eng.mws...)

	emitter := &extRunEmitter{r: eng.extensions}
	eng.runner = workflow.NewRunner(eng.registry, ws, emitter, logger,
		workflow.WithMiddleware(mw.Chain(allMws...)),
		workflow.WithDefaultStepTimeout(o.Config().DefaultStepTimeout),
	)

	// Wire back into the Orchestrator so Stop emits the shutdown hook.
	o.SetExtensions(eng.extensions)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Definition and execution
// ──────────────────────────────────────────────────

// RegisterWorkflow makes a workflow definition runnable by name.
// Re-registering a name replaces the previous definition.
func (eng *Engine) RegisterWorkflow(wf *workflow.Workflow) {
	eng.registry.Register(wf)
}

// RunWorkflow executes a registered workflow to completion and returns the
// run record. With opts.ResumeRunID set it re-enters an existing run.
func (eng *Engine) RunWorkflow(ctx context.Context, name string, opts workflow.RunOptions) (*workflow.Run, error) {
	return eng.runner.Start(ctx, name, opts)
}

// Resume re-enters an interrupted, failed, or paused run with the options
// it was created with.
func (eng *Engine) Resume(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	return eng.runner.Resume(ctx, runID)
}

// ResumeAll re-drives every run left in the running state (crash
// recovery). Individual run failures are logged, not propagated: a run
// that fails again is still durably recorded and stays resumable.
func (eng *Engine) ResumeAll(ctx context.Context) error {
	runs, err := eng.store.ListResumable(ctx, 0)
	if err != nil {
		return fmt.Errorf("list resumable runs: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(resumeConcurrency)
	for _, run := range runs {
		g.Go(func() error {
			if _, resumeErr := eng.runner.Resume(ctx, run.ID); resumeErr != nil {
				eng.logger.Warn("resume failed",
					slog.String("run_id", run.ID.String()),
					slog.String("workflow", run.WorkflowName),
					slog.String("error", resumeErr.Error()),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// Pause marks a started or running run as paused so operators (and
// ResumeAll) leave it alone until explicitly resumed.
func (eng *Engine) Pause(ctx context.Context, runID id.RunID) error {
	run, err := eng.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	switch run.State {
	case workflow.RunStateStarted, workflow.RunStateRunning:
		return eng.store.SetRunState(ctx, runID, workflow.RunStatePaused)
	case workflow.RunStateCompleted:
		return fmt.Errorf("run %s: %w", runID, manta.ErrRunCompleted)
	default:
		return fmt.Errorf("run %s: cannot pause a %s run", runID, run.State)
	}
}

// StopRun marks a non-terminal run as failed. The run stays resumable.
func (eng *Engine) StopRun(ctx context.Context, runID id.RunID) error {
	run, err := eng.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.State.Terminal() {
		return fmt.Errorf("run %s: %w", runID, manta.ErrRunCompleted)
	}
	return eng.store.SetRunState(ctx, runID, workflow.RunStateFailed)
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// GetRun returns a run by ID.
func (eng *Engine) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	return eng.store.GetRun(ctx, runID)
}

// ListRuns returns runs matching opts, most recent first.
func (eng *Engine) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	return eng.store.ListRuns(ctx, opts)
}

// ListResumable returns runs left in the running state, most recent first.
func (eng *Engine) ListResumable(ctx context.Context, limit int) ([]*workflow.Run, error) {
	return eng.store.ListResumable(ctx, limit)
}

// ListStepRuns returns the per-step records of a run in creation order.
func (eng *Engine) ListStepRuns(ctx context.Context, runID id.RunID) ([]*workflow.StepRun, error) {
	return eng.store.ListStepRuns(ctx, runID)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start prepares the engine: it migrates the store and, when configured,
// resumes interrupted runs.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.o.Start(ctx); err != nil {
		return err
	}
	if eng.o.Config().ResumeOnStart {
		if err := eng.ResumeAll(ctx); err != nil {
			eng.logger.Warn("crash recovery incomplete", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Stop gracefully shuts down the engine: extensions first, then the store.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.o.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the workflow registry.
func (eng *Engine) Registry() *workflow.Registry { return eng.registry }

// Runner returns the workflow runner.
func (eng *Engine) Runner() *workflow.Runner { return eng.runner }

// Orchestrator returns the underlying Orchestrator.
func (eng *Engine) Orchestrator() *manta.Orchestrator { return eng.o }
