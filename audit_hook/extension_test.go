package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	manta "github.com/jcppman/kurasu-manta-sub000"
	ah "github.com/jcppman/kurasu-manta-sub000/audit_hook"
	"github.com/jcppman/kurasu-manta-sub000/ext"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestRun() *workflow.Run {
	return &workflow.Run{
		Entity:       manta.NewEntity(),
		ID:           id.NewRunID(),
		WorkflowName: "order-flow",
		State:        workflow.RunStateRunning,
		TotalSteps:   3,
		CurrentStep:  "charge-payment",
		StartedAt:    time.Now().UTC(),
	}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

// ── Run lifecycle tests ──────────────────────────────

func TestExtension_RunStarted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	r := newTestRun()

	if err := e.OnRunStarted(context.Background(), r); err != nil {
		t.Fatalf("OnRunStarted: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionRunStarted {
		t.Errorf("Action: want %q, got %q", ah.ActionRunStarted, evt.Action)
	}
	if evt.Resource != ah.ResourceRun {
		t.Errorf("Resource: want %q, got %q", ah.ResourceRun, evt.Resource)
	}
	if evt.Category != ah.CategoryRun {
		t.Errorf("Category: want %q, got %q", ah.CategoryRun, evt.Category)
	}
	if evt.ResourceID != r.ID.String() {
		t.Errorf("ResourceID: want %q, got %q", r.ID.String(), evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["workflow_name"] != "order-flow" {
		t.Errorf("Metadata[workflow_name]: want %q, got %v", "order-flow", evt.Metadata["workflow_name"])
	}
	if evt.Metadata["total_steps"] != 3 {
		t.Errorf("Metadata[total_steps]: want %d, got %v", 3, evt.Metadata["total_steps"])
	}
}

func TestExtension_RunCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	r := newTestRun()

	if err := e.OnRunCompleted(context.Background(), r, 2*time.Second); err != nil {
		t.Fatalf("OnRunCompleted: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionRunCompleted {
		t.Errorf("Action: want %q, got %q", ah.ActionRunCompleted, evt.Action)
	}
	if evt.Metadata["elapsed_ms"] != int64(2000) {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", 2000, evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_RunFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	r := newTestRun()
	runErr := errors.New("step failed")

	if err := e.OnRunFailed(context.Background(), r, runErr); err != nil {
		t.Fatalf("OnRunFailed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionRunFailed {
		t.Errorf("Action: want %q, got %q", ah.ActionRunFailed, evt.Action)
	}
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", ah.SeverityCritical, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
	if evt.Reason != "step failed" {
		t.Errorf("Reason: want %q, got %q", "step failed", evt.Reason)
	}
	if evt.Metadata["error"] != "step failed" {
		t.Errorf("Metadata[error]: want %q, got %v", "step failed", evt.Metadata["error"])
	}
	if evt.Metadata["current_step"] != "charge-payment" {
		t.Errorf("Metadata[current_step]: want %q, got %v", "charge-payment", evt.Metadata["current_step"])
	}
}

// ── Step lifecycle tests ─────────────────────────────

func TestExtension_StepStarted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	r := newTestRun()

	if err := e.OnStepStarted(context.Background(), r, "validate-order"); err != nil {
		t.Fatalf("OnStepStarted: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionStepStarted {
		t.Errorf("Action: want %q, got %q", ah.ActionStepStarted, evt.Action)
	}
	if evt.Resource != ah.ResourceStep {
		t.Errorf("Resource: want %q, got %q", ah.ResourceStep, evt.Resource)
	}
	if evt.Category != ah.CategoryStep {
		t.Errorf("Category: want %q, got %q", ah.CategoryStep, evt.Category)
	}
	if evt.Metadata["step_name"] != "validate-order" {
		t.Errorf("Metadata[step_name]: want %q, got %v", "validate-order", evt.Metadata["step_name"])
	}
}

func TestExtension_StepCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	r := newTestRun()

	if err := e.OnStepCompleted(context.Background(), r, "validate-order", 200*time.Millisecond); err != nil {
		t.Fatalf("OnStepCompleted: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionStepCompleted {
		t.Errorf("Action: want %q, got %q", ah.ActionStepCompleted, evt.Action)
	}
	if evt.Metadata["elapsed_ms"] != int64(200) {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", 200, evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_StepFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	r := newTestRun()
	stepErr := errors.New("card declined")

	if err := e.OnStepFailed(context.Background(), r, "charge-payment", stepErr); err != nil {
		t.Fatalf("OnStepFailed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionStepFailed {
		t.Errorf("Action: want %q, got %q", ah.ActionStepFailed, evt.Action)
	}
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
	if evt.Reason != "card declined" {
		t.Errorf("Reason: want %q, got %q", "card declined", evt.Reason)
	}
}

// ── WithActions filter tests ─────────────────────────

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionRunFailed, ah.ActionStepFailed))

	ctx := context.Background()
	r := newTestRun()

	// RunStarted is NOT enabled — should be silently skipped.
	if err := e.OnRunStarted(ctx, r); err != nil {
		t.Fatalf("OnRunStarted: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 events (run.started disabled), got %d", rec.count())
	}

	// RunFailed IS enabled — should be recorded.
	if err := e.OnRunFailed(ctx, r, errors.New("boom")); err != nil {
		t.Fatalf("OnRunFailed: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 event (run.failed enabled), got %d", rec.count())
	}

	// StepFailed IS enabled — should be recorded.
	if err := e.OnStepFailed(ctx, r, "charge-payment", errors.New("bad")); err != nil {
		t.Fatalf("OnStepFailed: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 events, got %d", rec.count())
	}
}

// ── RecorderFunc adapter test ────────────────────────

func TestRecorderFunc(t *testing.T) {
	var captured *ah.AuditEvent
	fn := ah.RecorderFunc(func(_ context.Context, evt *ah.AuditEvent) error {
		captured = evt
		return nil
	})

	e := ah.New(fn)
	r := newTestRun()

	if err := e.OnRunStarted(context.Background(), r); err != nil {
		t.Fatalf("OnRunStarted: %v", err)
	}
	if captured == nil {
		t.Fatal("RecorderFunc was not called")
	}
	if captured.Action != ah.ActionRunStarted {
		t.Errorf("Action: want %q, got %q", ah.ActionRunStarted, captured.Action)
	}
}

// ── Recorder error handling test ─────────────────────

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failingRecorder := ah.RecorderFunc(func(_ context.Context, _ *ah.AuditEvent) error {
		return errors.New("audit backend down")
	})

	e := ah.New(failingRecorder, ah.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r := newTestRun()

	// Hook must NOT return an error — audit failures must not block the run.
	if err := e.OnRunStarted(context.Background(), r); err != nil {
		t.Fatalf("expected no error (audit failure swallowed), got: %v", err)
	}
}

// ── Registry integration test ────────────────────────

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := ext.NewRegistry(logger)
	reg.Register(e)

	ctx := context.Background()
	r := newTestRun()

	reg.EmitRunStarted(ctx, r)
	reg.EmitStepStarted(ctx, r, "step-1")
	reg.EmitStepCompleted(ctx, r, "step-1", time.Second)
	reg.EmitStepFailed(ctx, r, "step-2", errors.New("bad"))
	reg.EmitRunCompleted(ctx, r, 2*time.Second)
	reg.EmitRunFailed(ctx, r, errors.New("run fail"))

	allActions := ah.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d events, got %d", len(allActions), rec.count())
	}

	for _, action := range allActions {
		evt := rec.findByAction(action)
		if evt == nil {
			t.Errorf("missing event for action %q", action)
		}
	}
}

// ── AllActions test ──────────────────────────────────

func TestAllActions(t *testing.T) {
	actions := ah.AllActions()
	if len(actions) != 6 {
		t.Errorf("expected 6 actions, got %d", len(actions))
	}
}
