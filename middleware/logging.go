package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/pipeline"
)

// Logging returns middleware that logs step start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, in exec.Input, step pipeline.Step, next Handler) error {
		logger.Info("step started",
			slog.String("step", step.String()),
			slog.String("job_id", in.JobID.String()),
			slog.Int("retry_count", in.RetryCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("step", step.String()),
				slog.String("job_id", in.JobID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step completed",
				slog.String("step", step.String()),
				slog.String("job_id", in.JobID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
