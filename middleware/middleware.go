// Package middleware provides composable middleware for step execution.
// Middleware wraps each work-function call synchronously and can modify
// execution (recover from panics, log, record metrics, add tracing).
package middleware

import (
	"context"

	"github.com/jcppman/kurasu-manta-sub000/id"
)

// StepInfo identifies the step being executed. It is deliberately a plain
// value type so that this package stays below the workflow package in the
// import graph.
type StepInfo struct {
	RunID    id.RunID
	Workflow string
	Step     string
}

// Handler is the terminal function that executes step logic.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the step being executed, and the next handler to call.
// Middleware MUST call next to continue the chain (unless short-circuiting
// on error).
type Middleware func(ctx context.Context, info StepInfo, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, metrics) executes as:
//
//	logging → recover → metrics → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, info StepInfo, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, info, prev)
			}
		}
		return h(ctx)
	}
}
