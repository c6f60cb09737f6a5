package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/observability"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

func newTestExtension(t *testing.T) *observability.MetricsExtension {
	t.Helper()
	e, err := observability.NewMetricsExtensionWithMeter(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsExtensionWithMeter: %v", err)
	}
	return e
}

func newTestRun() *workflow.Run {
	return &workflow.Run{
		ID:           id.NewRunID(),
		WorkflowName: "ingest",
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_HooksReturnNil(t *testing.T) {
	e := newTestExtension(t)
	ctx := context.Background()
	run := newTestRun()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"OnRunStarted", func() error { return e.OnRunStarted(ctx, run) }},
		{"OnRunCompleted", func() error { return e.OnRunCompleted(ctx, run, time.Second) }},
		{"OnRunFailed", func() error { return e.OnRunFailed(ctx, run, errors.New("boom")) }},
		{"OnStepStarted", func() error { return e.OnStepStarted(ctx, run, "init") }},
		{"OnStepFailed", func() error { return e.OnStepFailed(ctx, run, "init", errors.New("boom")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
		})
	}
}
