package workflow_test

import (
	"errors"
	"slices"
	"testing"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

func pipelineSteps(t *testing.T) []workflow.Step {
	t.Helper()
	wf, err := workflow.New("pipeline", func(b *workflow.Builder) {
		b.Step("init", workflow.StepConfig{Run: noWork})
		b.Step("fetch", workflow.StepConfig{DependsOn: []string{"init"}, Run: noWork})
		b.Step("parse", workflow.StepConfig{DependsOn: []string{"init"}, Run: noWork})
		b.Step("merge", workflow.StepConfig{DependsOn: []string{"fetch", "parse"}, Run: noWork})
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return wf.Steps()
}

func TestOrderFullWorkflow(t *testing.T) {
	t.Parallel()

	got, err := workflow.Order(pipelineSteps(t), nil)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	// Siblings keep declaration order within a round.
	want := []string{"init", "fetch", "parse", "merge"}
	if !slices.Equal(got, want) {
		t.Fatalf("got order %v, want %v", got, want)
	}
}

func TestOrderSubset(t *testing.T) {
	t.Parallel()
	steps := pipelineSteps(t)

	tests := []struct {
		name    string
		include map[string]bool
		want    []string
	}{
		{
			name:    "single root step",
			include: map[string]bool{"init": true},
			want:    []string{"init"},
		},
		{
			name:    "chain prefix",
			include: map[string]bool{"init": true, "parse": true},
			want:    []string{"init", "parse"},
		},
		{
			name:    "false entries are excluded, not included",
			include: map[string]bool{"init": true, "fetch": false, "parse": true},
			want:    []string{"init", "parse"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := workflow.Order(steps, tt.include)
			if err != nil {
				t.Fatalf("Order: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got order %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOrderRejectsUnsatisfiedSubset(t *testing.T) {
	t.Parallel()
	steps := pipelineSteps(t)

	tests := []struct {
		name    string
		include map[string]bool
	}{
		{
			name:    "dependency excluded explicitly",
			include: map[string]bool{"init": true, "fetch": false, "merge": true, "parse": true},
		},
		{
			name:    "dependency simply missing",
			include: map[string]bool{"merge": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.Order(steps, tt.include)
			if !errors.Is(err, manta.ErrUnsatisfiedSubset) {
				t.Fatalf("got error %v, want ErrUnsatisfiedSubset", err)
			}
		})
	}
}

func TestOrderEmptyInclude(t *testing.T) {
	t.Parallel()

	got, err := workflow.Order(pipelineSteps(t), map[string]bool{})
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty include ordered %v", got)
	}
}
