package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/pipeline"
)

// Tracker advances job statuses through the pipeline state machine.
// All transitions are validated; an illegal transition returns
// intake.ErrInvalidTransition and leaves the stored status untouched.
type Tracker struct {
	store  Store
	logger *slog.Logger
}

// NewTracker creates a tracker over the given store. A nil logger falls
// back to slog.Default().
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{store: store, logger: logger}
}

// Init creates and persists the initial status for a new job.
func (t *Tracker) Init(ctx context.Context, jobID id.JobID, submissionID id.SubmissionID, applicationID, userID string, ttl time.Duration) (*Status, error) {
	st := New(jobID, submissionID, applicationID, userID, ttl)
	if err := t.store.CreateStatus(ctx, st); err != nil {
		return nil, fmt.Errorf("init job %s: %w", jobID, err)
	}

	t.logger.Info("job initialized",
		slog.String("job_id", jobID.String()),
		slog.String("submission_id", submissionID.String()),
	)

	return st, nil
}

// Get loads a job status.
func (t *Tracker) Get(ctx context.Context, jobID id.JobID) (*Status, error) {
	return t.store.GetStatus(ctx, jobID)
}

// SetExecutionRef records the execution currently driving the job.
func (t *Tracker) SetExecutionRef(ctx context.Context, jobID id.JobID, ref string) error {
	st, err := t.store.GetStatus(ctx, jobID)
	if err != nil {
		return err
	}

	st.ExecutionRef = ref
	st.Touch()

	return t.store.UpdateStatus(ctx, st)
}

// StepRunning marks a step as running and makes it the job's current step.
// Progress reflects the number of steps fully completed before it.
func (t *Tracker) StepRunning(ctx context.Context, jobID id.JobID, step pipeline.Step) error {
	return t.mutateStep(ctx, jobID, func(st *Status) error {
		ss, err := st.Step(step)
		if err != nil {
			return err
		}
		if !pipeline.ValidTransition(ss.State, pipeline.StateRunning) {
			return transitionErr(jobID, step, ss.State, pipeline.StateRunning)
		}

		ss.State = pipeline.StateRunning
		st.CurrentStep = step
		st.Progress = pipeline.Progress(step.Index())
		st.State = pipeline.Derive(st.Steps)
		if st.StartedAt == nil {
			now := time.Now().UTC()
			st.StartedAt = &now
		}

		return nil
	})
}

// StepCompleted marks a step as completed. Completing the final step
// completes the job.
func (t *Tracker) StepCompleted(ctx context.Context, jobID id.JobID, step pipeline.Step) error {
	return t.mutateStep(ctx, jobID, func(st *Status) error {
		ss, err := st.Step(step)
		if err != nil {
			return err
		}
		if !pipeline.ValidTransition(ss.State, pipeline.StateCompleted) {
			return transitionErr(jobID, step, ss.State, pipeline.StateCompleted)
		}

		ss.State = pipeline.StateCompleted
		ss.Error = ""
		st.Progress = pipeline.Progress(step.Index() + 1)
		st.State = pipeline.Derive(st.Steps)

		if st.State == pipeline.JobCompleted {
			now := time.Now().UTC()
			st.CompletedAt = &now
			t.logger.Info("job completed", slog.String("job_id", jobID.String()))
		}

		return nil
	})
}

// StepFailed records a terminal step failure: the step and the job both
// move to failed, and no further processing will happen.
func (t *Tracker) StepFailed(ctx context.Context, jobID id.JobID, step pipeline.Step, cause error) error {
	return t.mutateStep(ctx, jobID, func(st *Status) error {
		ss, err := st.Step(step)
		if err != nil {
			return err
		}
		if !pipeline.ValidTransition(ss.State, pipeline.StateFailed) {
			return transitionErr(jobID, step, ss.State, pipeline.StateFailed)
		}

		msg := "unknown error"
		if cause != nil {
			msg = cause.Error()
		}

		ss.State = pipeline.StateFailed
		ss.Error = msg
		st.State = pipeline.JobFailed
		st.Error = msg
		now := time.Now().UTC()
		st.CompletedAt = &now

		t.logger.Warn("job failed",
			slog.String("job_id", jobID.String()),
			slog.String("step", step.String()),
			slog.String("error", msg),
		)

		return nil
	})
}

// StepRetrying records a retry of a running step: the retry count is
// incremented and the step stays running while the execution restarts.
// It returns the step's new retry count.
func (t *Tracker) StepRetrying(ctx context.Context, jobID id.JobID, step pipeline.Step, cause error) (int, error) {
	retryCount := 0
	err := t.mutateStep(ctx, jobID, func(st *Status) error {
		ss, err := st.Step(step)
		if err != nil {
			return err
		}
		if !pipeline.ValidTransition(ss.State, pipeline.StateRunning) {
			return transitionErr(jobID, step, ss.State, pipeline.StateRunning)
		}

		ss.State = pipeline.StateRunning
		ss.RetryCount++
		if cause != nil {
			ss.Error = cause.Error()
		}
		retryCount = ss.RetryCount
		st.CurrentStep = step
		st.State = pipeline.Derive(st.Steps)

		return nil
	})

	return retryCount, err
}

// Fail marks the job terminally failed without attributing the failure to
// a specific step, for failures that cannot be mapped to one (e.g. a
// failure signal naming a step outside the pipeline).
func (t *Tracker) Fail(ctx context.Context, jobID id.JobID, cause error) error {
	return t.mutate(ctx, jobID, func(st *Status) error {
		if st.State.Terminal() {
			return fmt.Errorf("%w: fail job %s in state %s", intake.ErrInvalidTransition, jobID, st.State)
		}

		msg := "unknown error"
		if cause != nil {
			msg = cause.Error()
		}

		st.State = pipeline.JobFailed
		st.Error = msg
		now := time.Now().UTC()
		st.CompletedAt = &now

		t.logger.Warn("job failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", msg),
		)

		return nil
	})
}

// Cancel moves the job to cancelled. Cancelling a job that already reached
// a terminal state returns intake.ErrInvalidTransition.
func (t *Tracker) Cancel(ctx context.Context, jobID id.JobID, reason string) error {
	return t.mutate(ctx, jobID, func(st *Status) error {
		if st.State.Terminal() {
			return fmt.Errorf("%w: cancel job %s in state %s", intake.ErrInvalidTransition, jobID, st.State)
		}

		st.State = pipeline.JobCancelled
		if reason != "" {
			st.Error = reason
		}
		now := time.Now().UTC()
		st.CompletedAt = &now

		t.logger.Info("job cancelled",
			slog.String("job_id", jobID.String()),
			slog.String("reason", reason),
		)

		return nil
	})
}

// mutate loads the status, applies fn, and persists the result.
func (t *Tracker) mutate(ctx context.Context, jobID id.JobID, fn func(*Status) error) error {
	st, err := t.store.GetStatus(ctx, jobID)
	if err != nil {
		return err
	}

	if err := fn(st); err != nil {
		return err
	}

	st.Touch()

	return t.store.UpdateStatus(ctx, st)
}

// mutateStep is mutate with the additional guard that terminal jobs admit
// no further step transitions.
func (t *Tracker) mutateStep(ctx context.Context, jobID id.JobID, fn func(*Status) error) error {
	st, err := t.store.GetStatus(ctx, jobID)
	if err != nil {
		return err
	}

	if st.State.Terminal() {
		return fmt.Errorf("%w: job %s is %s", intake.ErrInvalidTransition, jobID, st.State)
	}

	if err := fn(st); err != nil {
		return err
	}

	st.Touch()

	return t.store.UpdateStatus(ctx, st)
}

func transitionErr(jobID id.JobID, step pipeline.Step, from, to pipeline.State) error {
	return fmt.Errorf("%w: job %s step %s %s -> %s", intake.ErrInvalidTransition, jobID, step, from, to)
}
