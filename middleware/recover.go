package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that recovers from panics in the handler
// chain. A panic is converted to an error, so it surfaces as an ordinary
// step failure, and is logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info StepInfo, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("step work panicked",
					slog.String("workflow", info.Workflow),
					slog.String("run_id", info.RunID.String()),
					slog.String("step", info.Step),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in step %s: %v", info.Step, r)
			}
		}()
		return next(ctx)
	}
}
