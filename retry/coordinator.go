// Package retry implements the coordinator that decides, for every step
// failure, whether the job gets another attempt or fails for good.
//
// The decision rules: a step is retried while its retry count is below the
// configured maximum and the job is still live. Retries restart the
// execution at the failed step after a backoff delay; exhausted or
// ineligible failures mark the job failed. Failure signals for cancelled
// or completed work are ignored, so late signals from executions that were
// superseded or stopped do not corrupt terminal state.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/backoff"
	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/hook"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/job"
	"github.com/mwerk/intake/pipeline"
	"github.com/mwerk/intake/submission"
	"github.com/mwerk/intake/workflow"
)

// Ensure Coordinator can be wired as the runner's failure reporter.
var _ workflow.FailureReporter = (*Coordinator)(nil)

// Signal is a step failure notification. Step is the wire name of the
// failed step; a name outside the pipeline fails the job terminally.
// RetryCount echoes the reporting engine's view of the attempt; the
// tracked step status stays authoritative for eligibility, so a stale
// or malicious count cannot buy extra attempts.
type Signal struct {
	JobID      id.JobID `json:"jobId"`
	Step       string   `json:"stepId"`
	Error      string   `json:"error"`
	RetryCount int      `json:"retryCount"`
}

// Coordinator applies the retry policy to failure signals.
type Coordinator struct {
	tracker  *job.Tracker
	trigger  *exec.Trigger
	subs     submission.Store
	strategy backoff.Strategy
	hooks    *hook.Registry
	logger   *slog.Logger

	maxRetries int
}

// NewCoordinator creates a coordinator. A nil strategy uses
// backoff.DefaultStrategy(); a nil hooks registry disables lifecycle
// notifications; a nil logger falls back to slog.Default().
func NewCoordinator(tracker *job.Tracker, trigger *exec.Trigger, subs submission.Store, strategy backoff.Strategy, cfg intake.Config, hooks *hook.Registry, logger *slog.Logger) *Coordinator {
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if hooks == nil {
		hooks = hook.NewRegistry(logger)
	}

	return &Coordinator{
		tracker:    tracker,
		trigger:    trigger,
		subs:       subs,
		strategy:   strategy,
		hooks:      hooks,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
	}
}

// HandleFailure processes one failure signal: no-op for dead or finished
// work, terminal failure when retries are exhausted or the step is
// unknown, otherwise a delayed restart of the execution at the failed
// step.
func (c *Coordinator) HandleFailure(ctx context.Context, sig Signal) error {
	st, err := c.tracker.Get(ctx, sig.JobID)
	if err != nil {
		return fmt.Errorf("retry: load job %s: %w", sig.JobID, err)
	}

	if st.State.Terminal() {
		c.logger.Info("failure signal for terminal job ignored",
			slog.String("job_id", sig.JobID.String()),
			slog.String("job_state", string(st.State)),
			slog.String("step", sig.Step),
		)
		return nil
	}

	cause := errors.New(sig.Error)
	if sig.Error == "" {
		cause = errors.New("unknown error")
	}

	step, err := pipeline.ParseStep(sig.Step)
	if err != nil {
		// A failure we cannot attribute to any pipeline step cannot be
		// retried; the job fails with the signal's error.
		c.logger.Warn("failure signal names unknown step",
			slog.String("job_id", sig.JobID.String()),
			slog.String("step", sig.Step),
		)
		return c.failJob(ctx, sig.JobID, cause)
	}

	ss, err := st.Step(step)
	if err != nil {
		return c.failJob(ctx, sig.JobID, cause)
	}

	if ss.State == pipeline.StateCompleted {
		// Late signal from a superseded execution; the step already
		// succeeded on another attempt.
		c.logger.Info("failure signal for completed step ignored",
			slog.String("job_id", sig.JobID.String()),
			slog.String("step", step.String()),
		)
		return nil
	}

	if ss.RetryCount >= c.maxRetries {
		c.logger.Warn("retries exhausted",
			slog.String("job_id", sig.JobID.String()),
			slog.String("step", step.String()),
			slog.Int("retry_count", ss.RetryCount),
		)

		wrapped := fmt.Errorf("%w: step %s failed after %d retries: %s",
			intake.ErrMaxRetriesExceeded, step, ss.RetryCount, sig.Error)
		if err := c.tracker.StepFailed(ctx, sig.JobID, step, wrapped); err != nil {
			return err
		}
		c.hooks.EmitJobFailed(ctx, hook.JobEvent{JobID: sig.JobID, State: pipeline.JobFailed, Err: wrapped})
		return nil
	}

	return c.scheduleRetry(ctx, st, step, cause)
}

// ReportStepFailure adapts the runner's failure callback to HandleFailure.
// Errors end up in the log; the execution reporting the failure has
// already ended and has no use for them.
func (c *Coordinator) ReportStepFailure(ctx context.Context, in exec.Input, step pipeline.Step, cause error) {
	if err := c.HandleFailure(ctx, Signal{
		JobID:      in.JobID,
		Step:       step.String(),
		Error:      cause.Error(),
		RetryCount: in.RetryCount,
	}); err != nil {
		c.logger.Error("failure signal not handled",
			slog.String("job_id", in.JobID.String()),
			slog.String("step", step.String()),
			slog.String("error", err.Error()),
		)
	}
}

// scheduleRetry bumps the step's retry count, waits out the backoff, and
// restarts the execution at the failed step.
func (c *Coordinator) scheduleRetry(ctx context.Context, st *job.Status, step pipeline.Step, cause error) error {
	attempt, err := c.tracker.StepRetrying(ctx, st.ID, step, cause)
	if err != nil {
		return fmt.Errorf("retry: record attempt for job %s: %w", st.ID, err)
	}

	delay := c.strategy.Delay(attempt)

	c.hooks.EmitJobRetrying(ctx, hook.RetryEvent{
		JobID:   st.ID,
		Step:    step,
		Attempt: attempt,
		Delay:   delay,
	})
	c.logger.Info("retry scheduled",
		slog.String("job_id", st.ID.String()),
		slog.String("step", step.String()),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
	)

	if err := sleep(ctx, delay); err != nil {
		return err
	}

	sub, err := c.subs.GetSubmission(ctx, st.SubmissionID)
	if err != nil {
		return fmt.Errorf("retry: load submission for job %s: %w", st.ID, err)
	}

	_, err = c.trigger.RestartExecution(ctx, exec.Ref(st.ExecutionRef), exec.Input{
		JobID:         st.ID,
		SubmissionID:  sub.ID,
		ApplicationID: sub.ApplicationID,
		UserID:        sub.UserID,
		Data:          sub.Data,
		StartStep:     step,
		RetryCount:    attempt,
		IsRetry:       true,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("retry: restart job %s: %w", st.ID, err)
	}

	return nil
}

func (c *Coordinator) failJob(ctx context.Context, jobID id.JobID, cause error) error {
	if err := c.tracker.Fail(ctx, jobID, cause); err != nil {
		return err
	}

	c.hooks.EmitJobFailed(ctx, hook.JobEvent{JobID: jobID, State: pipeline.JobFailed, Err: cause})
	return nil
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
