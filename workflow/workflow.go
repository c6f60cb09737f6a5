package workflow

import "time"

// WorkFunc is the unit of work a step executes. It is supplied by the
// caller at definition time and invoked by the Runner; the engine never
// inspects its internals. Blocking work should honor sc.Context.
type WorkFunc func(sc *StepContext) error

// Step is one named unit of work inside a workflow, with its declared
// dependencies and an optional timeout. Steps are created at definition
// time and immutable thereafter.
type Step struct {
	// Name uniquely identifies the step within its workflow.
	Name string

	// Description is free-form operator-facing text.
	Description string

	// DependsOn lists the names of steps that must complete before this
	// one may start.
	DependsOn []string

	// Timeout bounds a single execution of Run. Zero means no limit: the
	// step may block its run indefinitely.
	Timeout time.Duration

	// Run is the caller-supplied work.
	Run WorkFunc
}

// StepConfig carries the optional attributes of a step being defined.
type StepConfig struct {
	Description string
	DependsOn   []string
	Timeout     time.Duration
	Run         WorkFunc
}

// Workflow is an immutable, validated workflow definition: a name and an
// ordered list of steps. Construct one with New.
type Workflow struct {
	name  string
	steps []Step
}

// Builder accumulates step definitions during the registration callback
// passed to New. It owns its step list; no state survives past the New
// call that created it.
type Builder struct {
	name  string
	steps []Step
}

// Step defines a step. Declaration order is preserved and used as the
// scheduler's tie-break.
func (b *Builder) Step(name string, cfg StepConfig) {
	b.steps = append(b.steps, Step{
		Name:        name,
		Description: cfg.Description,
		DependsOn:   append([]string(nil), cfg.DependsOn...),
		Timeout:     cfg.Timeout,
		Run:         cfg.Run,
	})
}

// New builds a workflow definition. The register callback declares steps
// through the Builder; validation runs after the callback returns and
// before New returns, so an invalid workflow fails at definition time and
// never reaches the scheduler.
func New(name string, register func(b *Builder)) (*Workflow, error) {
	b := &Builder{name: name}
	register(b)

	if err := validate(name, b.steps); err != nil {
		return nil, err
	}

	return &Workflow{name: name, steps: b.steps}, nil
}

// Name returns the workflow's unique name.
func (w *Workflow) Name() string { return w.name }

// Steps returns the steps in declaration order. The returned slice is a
// copy; the definition stays immutable.
func (w *Workflow) Steps() []Step {
	return append([]Step(nil), w.steps...)
}

// StepNames returns the step names in declaration order.
func (w *Workflow) StepNames() []string {
	names := make([]string, len(w.steps))
	for i, s := range w.steps {
		names[i] = s.Name
	}
	return names
}

// Step returns the step with the given name.
func (w *Workflow) Step(name string) (Step, bool) {
	for _, s := range w.steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}
