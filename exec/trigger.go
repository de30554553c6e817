package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/job"
)

// Trigger starts, restarts, and stops executions on behalf of the
// submission service and the retry coordinator, recording the active
// execution ref on the job status.
type Trigger struct {
	engine  Engine
	tracker *job.Tracker
	logger  *slog.Logger
}

// NewTrigger creates a trigger over the given engine and tracker.
// A nil logger falls back to slog.Default().
func NewTrigger(engine Engine, tracker *job.Tracker, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Trigger{engine: engine, tracker: tracker, logger: logger}
}

// StartExecution starts an execution for the input and records its ref on
// the job status.
func (t *Trigger) StartExecution(ctx context.Context, in Input) (Ref, error) {
	name := Name(in.JobID, in.RetryCount)

	ref, err := t.engine.Start(ctx, name, in)
	if err != nil {
		return "", fmt.Errorf("start execution %s: %w", name, err)
	}

	if err := t.tracker.SetExecutionRef(ctx, in.JobID, string(ref)); err != nil {
		t.logger.Warn("execution started but ref not recorded",
			slog.String("job_id", in.JobID.String()),
			slog.String("execution_ref", string(ref)),
			slog.String("error", err.Error()),
		)
	}

	t.logger.Info("execution started",
		slog.String("job_id", in.JobID.String()),
		slog.String("execution_ref", string(ref)),
		slog.Bool("is_retry", in.IsRetry),
		slog.Int("retry_count", in.RetryCount),
	)

	return ref, nil
}

// RestartExecution stops the current execution (best effort) and starts a
// fresh one for the same job. An already-finished or unknown current
// execution is not an error: the point is that nothing old keeps running.
func (t *Trigger) RestartExecution(ctx context.Context, current Ref, in Input) (Ref, error) {
	if current != "" {
		if err := t.engine.Stop(ctx, current, "superseded by retry"); err != nil && !errors.Is(err, intake.ErrExecutionNotFound) {
			t.logger.Warn("stop of superseded execution failed",
				slog.String("job_id", in.JobID.String()),
				slog.String("execution_ref", string(current)),
				slog.String("error", err.Error()),
			)
		}
	}

	return t.StartExecution(ctx, in)
}

// StopExecution aborts a running execution. An unknown ref is treated as
// already stopped.
func (t *Trigger) StopExecution(ctx context.Context, ref Ref, cause string) error {
	if ref == "" {
		return nil
	}

	err := t.engine.Stop(ctx, ref, cause)
	if errors.Is(err, intake.ErrExecutionNotFound) {
		return nil
	}

	return err
}
