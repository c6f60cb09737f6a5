package workflow

import (
	"fmt"
	"strings"

	manta "github.com/jcppman/kurasu-manta-sub000"
)

// Order computes an execution order for the included subset of steps such
// that every ordered step appears after all of its dependencies. A nil
// include map means all steps are included; otherwise only names mapping
// to true are.
//
// Selection proceeds in rounds: each round picks every not-yet-ordered
// included step whose dependencies are all already ordered, appending them
// stable by declaration order. A step whose dependency is excluded by the
// filter is never selectable — Order refuses to produce a partial order
// that silently skips a declared dependency, and reports the unorderable
// remainder instead.
func Order(steps []Step, include map[string]bool) ([]string, error) {
	included := func(name string) bool {
		return include == nil || include[name]
	}

	total := 0
	for _, s := range steps {
		if included(s.Name) {
			total++
		}
	}

	ordered := make([]string, 0, total)
	done := make(map[string]bool, total)

	for len(ordered) < total {
		// Ready set for this round, judged against rounds already applied.
		var round []string
		for _, s := range steps {
			if !included(s.Name) || done[s.Name] {
				continue
			}
			ready := true
			for _, dep := range s.DependsOn {
				if !included(dep) || !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				round = append(round, s.Name)
			}
		}

		if len(round) == 0 {
			var remaining []string
			for _, s := range steps {
				if included(s.Name) && !done[s.Name] {
					remaining = append(remaining, s.Name)
				}
			}
			return nil, fmt.Errorf("%w: %s",
				manta.ErrUnsatisfiedSubset, strings.Join(remaining, ", "))
		}

		for _, name := range round {
			done[name] = true
		}
		ordered = append(ordered, round...)
	}

	return ordered, nil
}
