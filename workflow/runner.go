package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/hook"
	"github.com/mwerk/intake/job"
	"github.com/mwerk/intake/middleware"
	"github.com/mwerk/intake/pipeline"
)

// Ensure Runner implements exec.Engine at compile time.
var _ exec.Engine = (*Runner)(nil)

// FailureReporter receives step failures so a retry decision can be made.
// The runner never retries on its own; it reports and ends the execution.
type FailureReporter interface {
	ReportStepFailure(ctx context.Context, in exec.Input, step pipeline.Step, cause error)
}

// Runner executes job pipelines in-process. Each Start launches one
// goroutine that walks the pipeline from the input's start step, invoking
// the registered handler for each step through the middleware chain and
// recording progress on the tracker.
type Runner struct {
	registry *Registry
	tracker  *job.Tracker
	chain    middleware.Middleware
	hooks    *hook.Registry
	logger   *slog.Logger

	// reporter is set after construction (SetReporter) because the retry
	// coordinator that implements it needs the runner's trigger first.
	reporterMu sync.RWMutex
	reporter   FailureReporter

	mu     sync.Mutex
	active map[exec.Ref]context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. Middleware are applied around every step in
// the order given. A nil hooks registry disables lifecycle notifications;
// a nil logger falls back to slog.Default().
func NewRunner(registry *Registry, tracker *job.Tracker, hooks *hook.Registry, logger *slog.Logger, mws ...middleware.Middleware) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if hooks == nil {
		hooks = hook.NewRegistry(logger)
	}

	return &Runner{
		registry: registry,
		tracker:  tracker,
		chain:    middleware.Chain(mws...),
		hooks:    hooks,
		logger:   logger,
		active:   make(map[exec.Ref]context.CancelFunc),
	}
}

// SetReporter wires the failure reporter. Without one, step failures are
// terminal immediately.
func (r *Runner) SetReporter(rep FailureReporter) {
	r.reporterMu.Lock()
	defer r.reporterMu.Unlock()

	r.reporter = rep
}

// Start launches an execution for the input. The returned ref equals the
// execution name. The execution runs detached from the caller's context:
// submitting a job from an HTTP request must not tie the pipeline's
// lifetime to that request.
func (r *Runner) Start(_ context.Context, name string, in exec.Input) (exec.Ref, error) {
	ref := exec.Ref(name)

	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if _, exists := r.active[ref]; exists {
		r.mu.Unlock()
		cancel()
		return "", fmt.Errorf("workflow: execution %s already running", ref)
	}
	r.active[ref] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(ref)
		r.run(runCtx, ref, in)
	}()

	return ref, nil
}

// Stop cancels a running execution. Returns intake.ErrExecutionNotFound
// when no execution with the ref is active.
func (r *Runner) Stop(_ context.Context, ref exec.Ref, cause string) error {
	r.mu.Lock()
	cancel, ok := r.active[ref]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", intake.ErrExecutionNotFound, ref)
	}

	r.logger.Info("execution stopping",
		slog.String("execution_ref", string(ref)),
		slog.String("cause", cause),
	)
	cancel()

	return nil
}

// Shutdown waits for all active executions to finish or the context to
// expire. It does not cancel them; call Stop per execution for that.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run walks the pipeline from the input's start step.
func (r *Runner) run(ctx context.Context, ref exec.Ref, in exec.Input) {
	step := in.StartStep

	for {
		if ctx.Err() != nil {
			// Stopped externally (cancel or supersede); the stopper owns
			// the job status from here.
			return
		}

		if !r.runStep(ctx, ref, in, step) {
			return
		}

		next, ok := step.Next()
		if !ok {
			r.hooks.EmitJobCompleted(ctx, hook.JobEvent{JobID: in.JobID, State: pipeline.JobCompleted})
			return
		}
		step = next
	}
}

// runStep executes one step and reports the outcome. It returns true when
// the pipeline should continue to the next step.
func (r *Runner) runStep(ctx context.Context, ref exec.Ref, in exec.Input, step pipeline.Step) bool {
	handler, ok := r.registry.Handler(step)
	if !ok {
		err := fmt.Errorf("%w: no handler for %s", intake.ErrStepNotFound, step)
		r.fail(ctx, in, step, err)
		return false
	}

	if err := r.tracker.StepRunning(ctx, in.JobID, step); err != nil {
		r.logger.Warn("step transition rejected, abandoning execution",
			slog.String("execution_ref", string(ref)),
			slog.String("step", step.String()),
			slog.String("error", err.Error()),
		)
		return false
	}

	start := time.Now()
	err := r.chain(ctx, in, step, func(ctx context.Context) error {
		return handler(ctx, in)
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			// The failure is a side effect of being stopped.
			return false
		}

		r.hooks.EmitStepFailed(ctx, hook.StepEvent{
			JobID:      in.JobID,
			Step:       step,
			RetryCount: in.RetryCount,
			Elapsed:    elapsed,
			Err:        err,
		})
		r.report(in, step, err)
		return false
	}

	if err := r.tracker.StepCompleted(ctx, in.JobID, step); err != nil {
		r.logger.Warn("step completion not recorded",
			slog.String("execution_ref", string(ref)),
			slog.String("step", step.String()),
			slog.String("error", err.Error()),
		)
		return false
	}

	r.hooks.EmitStepCompleted(ctx, hook.StepEvent{
		JobID:   in.JobID,
		Step:    step,
		Elapsed: elapsed,
	})

	return true
}

// report hands a step failure to the reporter, or fails the job terminally
// when none is wired. Reporting runs on a fresh context: the retry
// decision must survive this execution ending.
func (r *Runner) report(in exec.Input, step pipeline.Step, cause error) {
	r.reporterMu.RLock()
	rep := r.reporter
	r.reporterMu.RUnlock()

	if rep == nil {
		r.fail(context.Background(), in, step, cause)
		return
	}

	rep.ReportStepFailure(context.Background(), in, step, cause)
}

// fail marks the job terminally failed.
func (r *Runner) fail(ctx context.Context, in exec.Input, step pipeline.Step, cause error) {
	if err := r.tracker.StepFailed(ctx, in.JobID, step, cause); err != nil {
		r.logger.Error("terminal failure not recorded",
			slog.String("job_id", in.JobID.String()),
			slog.String("step", step.String()),
			slog.String("error", err.Error()),
		)
	}

	r.hooks.EmitJobFailed(ctx, hook.JobEvent{JobID: in.JobID, State: pipeline.JobFailed, Err: cause})
}

// release removes an execution from the active set.
func (r *Runner) release(ref exec.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.active[ref]; ok {
		cancel()
		delete(r.active, ref)
	}
}
