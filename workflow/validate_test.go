package workflow_test

import (
	"errors"
	"testing"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

func noWork(_ *workflow.StepContext) error { return nil }

func TestNewValidWorkflow(t *testing.T) {
	t.Parallel()

	wf, err := workflow.New("ingest", func(b *workflow.Builder) {
		b.Step("init", workflow.StepConfig{Run: noWork})
		b.Step("load", workflow.StepConfig{DependsOn: []string{"init"}, Run: noWork})
		b.Step("publish", workflow.StepConfig{DependsOn: []string{"load"}, Run: noWork})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if wf.Name() != "ingest" {
		t.Fatalf("got name %q", wf.Name())
	}
	if got := wf.StepNames(); len(got) != 3 || got[0] != "init" || got[2] != "publish" {
		t.Fatalf("step names out of declaration order: %v", got)
	}
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		register func(b *workflow.Builder)
		wantErr  error
	}{
		{
			name: "duplicate step name",
			register: func(b *workflow.Builder) {
				b.Step("init", workflow.StepConfig{Run: noWork})
				b.Step("init", workflow.StepConfig{Run: noWork})
			},
			wantErr: manta.ErrDuplicateStep,
		},
		{
			name: "self dependency",
			register: func(b *workflow.Builder) {
				b.Step("init", workflow.StepConfig{DependsOn: []string{"init"}, Run: noWork})
			},
			wantErr: manta.ErrSelfDependency,
		},
		{
			name: "unknown dependency",
			register: func(b *workflow.Builder) {
				b.Step("load", workflow.StepConfig{DependsOn: []string{"missing"}, Run: noWork})
			},
			wantErr: manta.ErrUnknownDependency,
		},
		{
			name: "two-step cycle",
			register: func(b *workflow.Builder) {
				b.Step("a", workflow.StepConfig{DependsOn: []string{"b"}, Run: noWork})
				b.Step("b", workflow.StepConfig{DependsOn: []string{"a"}, Run: noWork})
			},
			wantErr: manta.ErrCyclicDependency,
		},
		{
			name: "longer cycle behind a valid prefix",
			register: func(b *workflow.Builder) {
				b.Step("init", workflow.StepConfig{Run: noWork})
				b.Step("a", workflow.StepConfig{DependsOn: []string{"init", "c"}, Run: noWork})
				b.Step("b", workflow.StepConfig{DependsOn: []string{"a"}, Run: noWork})
				b.Step("c", workflow.StepConfig{DependsOn: []string{"b"}, Run: noWork})
			},
			wantErr: manta.ErrCyclicDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.New("bad", tt.register)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStepsReturnsCopy(t *testing.T) {
	t.Parallel()

	wf, err := workflow.New("ingest", func(b *workflow.Builder) {
		b.Step("init", workflow.StepConfig{Run: noWork})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	steps := wf.Steps()
	steps[0].Name = "mutated"

	if got := wf.StepNames()[0]; got != "init" {
		t.Fatalf("definition mutated through Steps copy: %q", got)
	}
}
