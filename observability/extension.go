// Package observability provides an OpenTelemetry-based metrics extension.
// It implements lifecycle hooks to record system-wide counters for run and
// step events, plus a run duration histogram.
//
// For per-step tracing and timing, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jcppman/kurasu-manta-sub000/ext"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

const meterName = "github.com/jcppman/kurasu-manta-sub000/observability"

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.RunStarted   = (*MetricsExtension)(nil)
	_ ext.RunCompleted = (*MetricsExtension)(nil)
	_ ext.RunFailed    = (*MetricsExtension)(nil)
	_ ext.StepStarted  = (*MetricsExtension)(nil)
	_ ext.StepFailed   = (*MetricsExtension)(nil)
)

// MetricsExtension records run and step lifecycle counters. Register it as
// an extension to track start rates, completion counts, and failure rates
// per workflow.
type MetricsExtension struct {
	runsStarted   metric.Int64Counter
	runsCompleted metric.Int64Counter
	runsFailed    metric.Int64Counter
	stepsStarted  metric.Int64Counter
	stepsFailed   metric.Int64Counter
	runDuration   metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) (*MetricsExtension, error) {
	runsStarted, err := meter.Int64Counter("manta.run.started",
		metric.WithDescription("Workflow runs started or resumed"))
	if err != nil {
		return nil, err
	}
	runsCompleted, err := meter.Int64Counter("manta.run.completed",
		metric.WithDescription("Workflow runs completed successfully"))
	if err != nil {
		return nil, err
	}
	runsFailed, err := meter.Int64Counter("manta.run.failed",
		metric.WithDescription("Workflow runs aborted on a step failure"))
	if err != nil {
		return nil, err
	}
	stepsStarted, err := meter.Int64Counter("manta.run.step.started",
		metric.WithDescription("Workflow steps started"))
	if err != nil {
		return nil, err
	}
	stepsFailed, err := meter.Int64Counter("manta.run.step.failed",
		metric.WithDescription("Workflow steps failed"))
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("manta.run.duration",
		metric.WithDescription("Workflow run duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &MetricsExtension{
		runsStarted:   runsStarted,
		runsCompleted: runsCompleted,
		runsFailed:    runsFailed,
		stepsStarted:  stepsStarted,
		stepsFailed:   stepsFailed,
		runDuration:   runDuration,
	}, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func workflowAttr(r *workflow.Run) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("workflow", r.WorkflowName))
}

// OnRunStarted implements ext.RunStarted.
func (m *MetricsExtension) OnRunStarted(ctx context.Context, r *workflow.Run) error {
	m.runsStarted.Add(ctx, 1, workflowAttr(r))
	return nil
}

// OnRunCompleted implements ext.RunCompleted.
func (m *MetricsExtension) OnRunCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	m.runsCompleted.Add(ctx, 1, workflowAttr(r))
	m.runDuration.Record(ctx, elapsed.Seconds(), workflowAttr(r))
	return nil
}

// OnRunFailed implements ext.RunFailed.
func (m *MetricsExtension) OnRunFailed(ctx context.Context, r *workflow.Run, _ error) error {
	m.runsFailed.Add(ctx, 1, workflowAttr(r))
	return nil
}

// OnStepStarted implements ext.StepStarted.
func (m *MetricsExtension) OnStepStarted(ctx context.Context, r *workflow.Run, stepName string) error {
	m.stepsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", r.WorkflowName),
		attribute.String("step", stepName),
	))
	return nil
}

// OnStepFailed implements ext.StepFailed.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, r *workflow.Run, stepName string, _ error) error {
	m.stepsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", r.WorkflowName),
		attribute.String("step", stepName),
	))
	return nil
}
