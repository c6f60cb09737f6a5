package workflow

import (
	"fmt"
	"sync"

	manta "github.com/jcppman/kurasu-manta-sub000"
)

// Registry maps workflow names to validated definitions. Resuming a run
// looks its definition up here by the run's workflow name. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewRegistry creates an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{workflows: make(map[string]*Workflow)}
}

// Register adds a workflow definition. Registering the same name again
// replaces the previous definition; runs created against the old one
// resume against the new one, so replacements should keep step names
// compatible.
func (r *Registry) Register(wf *Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.Name()] = wf
}

// Get returns the workflow registered under the given name.
func (r *Registry) Get(name string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", manta.ErrWorkflowNotFound, name)
	}
	return wf, nil
}

// Names returns all registered workflow names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	return names
}
