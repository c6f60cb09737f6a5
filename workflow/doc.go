// Package workflow defines workflow graphs, runs, per-step records,
// checkpointing, and the persistence contract for both.
//
// A workflow is a named set of steps with explicit dependencies. The graph
// is validated at definition time (unique names, no self-dependencies, no
// unknown dependencies, no cycles) and an invalid workflow never escapes
// [New]. Execution order is computed by [Order], which respects an optional
// step-inclusion filter and refuses to produce an order that silently skips
// a declared dependency.
//
// # Defining a Workflow
//
//	wf, err := workflow.New("course-pipeline", func(b *workflow.Builder) {
//	    b.Step("init", workflow.StepConfig{Run: initContent})
//	    b.Step("load", workflow.StepConfig{
//	        DependsOn: []string{"init"},
//	        Timeout:   5 * time.Minute,
//	        Run:       loadSources,
//	    })
//	    b.Step("publish", workflow.StepConfig{
//	        DependsOn: []string{"load"},
//	        Run:       publishCourse,
//	    })
//	})
//
// # Runs and Resume
//
// Each execution attempt is a durable [Run] with one [StepRun] record per
// step of the full workflow. The [Runner] executes steps one at a time in
// scheduler order; a StepRun already marked completed is skipped, never
// replayed. That skip is the entire resume mechanism — there is no separate
// resume pointer. A failed run leaves an inspectable record of which step
// failed, why, and how far progress reached.
//
// # State Machine
//
// A [Run] moves through these states:
//
//	started → running → completed
//	started → running → failed
//	running → paused (operator-requested; not resumed automatically)
//
// A [StepRun] moves pending → running → completed | failed.
//
// # Timeouts
//
// A step with a timeout races its work function against a timer. Whichever
// resolves first decides the outcome. Work is never forcibly cancelled: a
// timed-out work function may still be running, and its late writes are
// discarded through the sealed [StepContext]. That goroutine is a known
// resource leak until the work function observes its context or returns.
package workflow
