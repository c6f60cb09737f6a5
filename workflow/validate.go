package workflow

import (
	"fmt"

	manta "github.com/jcppman/kurasu-manta-sub000"
)

// validate checks a workflow definition: step-name uniqueness, no
// self-dependencies, dependency existence, and acyclicity — in that order.
// The first violation found is returned.
func validate(workflowName string, steps []Step) error {
	names := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("workflow %q: %w: %q", workflowName, manta.ErrDuplicateStep, s.Name)
		}
		names[s.Name] = struct{}{}
	}

	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if dep == s.Name {
				return fmt.Errorf("workflow %q: %w: %q", workflowName, manta.ErrSelfDependency, s.Name)
			}
		}
	}

	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := names[dep]; !ok {
				return fmt.Errorf("workflow %q: %w: step %q depends on %q",
					workflowName, manta.ErrUnknownDependency, s.Name, dep)
			}
		}
	}

	if cycleStep := findCycle(steps); cycleStep != "" {
		return fmt.Errorf("workflow %q: %w involving step %q",
			workflowName, manta.ErrCyclicDependency, cycleStep)
	}

	return nil
}

// dfs traversal colors.
const (
	unvisited = iota
	onStack
	finished
)

// findCycle runs a depth-first search over the dependency edges and returns
// the name of a step on a cycle, or "" if the graph is acyclic. The
// traversal keeps an explicit frame stack instead of recursing, so deep
// dependency chains cannot overflow the call stack.
func findCycle(steps []Step) string {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.Name] = s.DependsOn
	}

	type frame struct {
		name string
		next int // index of the next dependency to visit
	}

	state := make(map[string]int, len(steps))

	for _, s := range steps {
		if state[s.Name] != unvisited {
			continue
		}

		stack := []frame{{name: s.Name}}
		state[s.Name] = onStack

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			edges := deps[top.name]

			if top.next < len(edges) {
				dep := edges[top.next]
				top.next++

				switch state[dep] {
				case onStack:
					// Revisiting a step still on the traversal stack
					// closes a cycle; dep is on it.
					return dep
				case unvisited:
					state[dep] = onStack
					stack = append(stack, frame{name: dep})
				}
				continue
			}

			state[top.name] = finished
			stack = stack[:len(stack)-1]
		}
	}

	return ""
}
