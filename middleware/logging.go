package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, info StepInfo, next Handler) error {
		logger.Info("step started",
			slog.String("workflow", info.Workflow),
			slog.String("run_id", info.RunID.String()),
			slog.String("step", info.Step),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("workflow", info.Workflow),
				slog.String("run_id", info.RunID.String()),
				slog.String("step", info.Step),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step completed",
				slog.String("workflow", info.Workflow),
				slog.String("run_id", info.RunID.String()),
				slog.String("step", info.Step),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
