// Package manta is a durable workflow orchestration engine. An operator
// declares a named workflow as a set of uniquely-named steps with explicit
// dependencies; the engine validates the dependency graph, computes an
// execution order, and drives the steps one at a time against a persistent,
// resumable run record.
//
// Manta is designed as a library, not a service. Import it, configure a
// store, register workflows, and run them:
//
//	wf, err := workflow.New("course-pipeline", func(b *workflow.Builder) {
//	    b.Step("init", workflow.StepConfig{Run: initContent})
//	    b.Step("load", workflow.StepConfig{
//	        DependsOn: []string{"init"},
//	        Run:       loadSources,
//	    })
//	})
//
// A run survives process restarts: every step persists its own record with
// progress, an error message, and an opaque checkpoint. Resuming a run
// re-enters the same execution loop; steps already marked completed are
// skipped, never replayed.
//
// The root package holds the pieces shared by every subsystem: sentinel
// errors, the Entity timestamps mixin, configuration, and the Orchestrator
// coordinator. Domain logic lives in the subsystem packages:
//
//   - workflow — graph model, validation, scheduling, run state, execution
//   - store    — persistence backends (memory, postgres, redis, bun)
//   - engine   — wires registry, store, middleware and extensions together
//   - api      — operator-facing HTTP query surface
//   - ext      — lifecycle hook registry for extensions
//   - stream   — real-time run progress pub/sub for dashboards
//
// The root package deliberately imports none of the subsystem packages so
// that all of them can import it back for errors and shared types.
package manta
