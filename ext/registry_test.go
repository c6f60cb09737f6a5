package ext_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jcppman/kurasu-manta-sub000/ext"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnRunStarted(_ context.Context, _ *workflow.Run) error {
	e.calls = append(e.calls, "OnRunStarted")
	return nil
}

func (e *allHooksExt) OnRunCompleted(_ context.Context, _ *workflow.Run, _ time.Duration) error {
	e.calls = append(e.calls, "OnRunCompleted")
	return nil
}

func (e *allHooksExt) OnRunFailed(_ context.Context, _ *workflow.Run, _ error) error {
	e.calls = append(e.calls, "OnRunFailed")
	return nil
}

func (e *allHooksExt) OnStepStarted(_ context.Context, _ *workflow.Run, _ string) error {
	e.calls = append(e.calls, "OnStepStarted")
	return nil
}

func (e *allHooksExt) OnStepProgress(_ context.Context, _ *workflow.Run, _ string, _ int, _ string) error {
	e.calls = append(e.calls, "OnStepProgress")
	return nil
}

func (e *allHooksExt) OnStepCompleted(_ context.Context, _ *workflow.Run, _ string, _ time.Duration) error {
	e.calls = append(e.calls, "OnStepCompleted")
	return nil
}

func (e *allHooksExt) OnStepFailed(_ context.Context, _ *workflow.Run, _ string, _ error) error {
	e.calls = append(e.calls, "OnStepFailed")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// runOnlyExt only implements run-level hooks.
type runOnlyExt struct {
	calls []string
}

func (e *runOnlyExt) Name() string { return "run-only" }

func (e *runOnlyExt) OnRunStarted(_ context.Context, _ *workflow.Run) error {
	e.calls = append(e.calls, "OnRunStarted")
	return nil
}

func (e *runOnlyExt) OnRunCompleted(_ context.Context, _ *workflow.Run, _ time.Duration) error {
	e.calls = append(e.calls, "OnRunCompleted")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnRunStarted(_ context.Context, _ *workflow.Run) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	r.Register(all)

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	ro := &runOnlyExt{}
	r.Register(all)
	r.Register(ro)

	ctx := context.Background()
	run := &workflow.Run{WorkflowName: "ingest"}

	// Both implement OnRunStarted → both called.
	r.EmitRunStarted(ctx, run)
	if len(all.calls) != 1 || all.calls[0] != "OnRunStarted" {
		t.Fatalf("all: expected [OnRunStarted], got %v", all.calls)
	}
	if len(ro.calls) != 1 || ro.calls[0] != "OnRunStarted" {
		t.Fatalf("ro: expected [OnRunStarted], got %v", ro.calls)
	}

	// Only all implements OnStepStarted → ro not called.
	r.EmitStepStarted(ctx, run, "init")
	if len(all.calls) != 2 || all.calls[1] != "OnStepStarted" {
		t.Fatalf("all: expected OnStepStarted as 2nd, got %v", all.calls)
	}
	if len(ro.calls) != 1 {
		t.Fatalf("ro: should still have 1 call, got %v", ro.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	run := &workflow.Run{WorkflowName: "ingest"}

	r.EmitRunStarted(ctx, run)
	r.EmitStepStarted(ctx, run, "init")
	r.EmitStepProgress(ctx, run, "init", 50, "halfway")
	r.EmitStepCompleted(ctx, run, "init", time.Second)
	r.EmitStepFailed(ctx, run, "load", errors.New("step fail"))
	r.EmitRunCompleted(ctx, run, 2*time.Second)
	r.EmitRunFailed(ctx, run, errors.New("run fail"))
	r.EmitShutdown(ctx)

	expected := []string{
		"OnRunStarted", "OnStepStarted", "OnStepProgress", "OnStepCompleted",
		"OnStepFailed", "OnRunCompleted", "OnRunFailed", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	failing := &failingExt{}
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(failing)
	r.Register(all)

	ctx := context.Background()
	run := &workflow.Run{WorkflowName: "ingest"}

	// No panic, no error propagation. allHooksExt should still fire.
	r.EmitRunStarted(ctx, run)

	if len(all.calls) != 1 || all.calls[0] != "OnRunStarted" {
		t.Fatalf("all: expected [OnRunStarted] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(testLogger())
	ctx := context.Background()

	// None of these should panic or error.
	r.EmitRunStarted(ctx, &workflow.Run{})
	r.EmitStepStarted(ctx, &workflow.Run{}, "s")
	r.EmitStepProgress(ctx, &workflow.Run{}, "s", 1, "m")
	r.EmitStepCompleted(ctx, &workflow.Run{}, "s", time.Second)
	r.EmitStepFailed(ctx, &workflow.Run{}, "s", errors.New("x"))
	r.EmitRunCompleted(ctx, &workflow.Run{}, time.Second)
	r.EmitRunFailed(ctx, &workflow.Run{}, errors.New("x"))
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(testLogger())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	ctx := context.Background()
	r.EmitRunStarted(ctx, &workflow.Run{})

	// Both should be called.
	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
