// Package hook defines the extension system for intake.
// Extensions are notified of lifecycle events (submission created, step
// failed, job retrying, etc.) and can react to them — logging, metrics,
// notifications.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about. Events carry plain identifiers rather
// than entity pointers, so extensions never mutate live state.
package hook

import (
	"context"
	"time"

	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/pipeline"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

// SubmissionEvent describes a submission lifecycle event.
type SubmissionEvent struct {
	SubmissionID   id.SubmissionID
	JobID          id.JobID
	ApplicationID  string
	UserID         string
	IdempotencyKey string
}

// StepEvent describes a step lifecycle event within a job.
type StepEvent struct {
	JobID      id.JobID
	Step       pipeline.Step
	RetryCount int
	Elapsed    time.Duration
	Err        error
}

// RetryEvent describes a scheduled retry of a failed step.
type RetryEvent struct {
	JobID   id.JobID
	Step    pipeline.Step
	Attempt int
	Delay   time.Duration
}

// JobEvent describes a terminal job lifecycle event.
type JobEvent struct {
	JobID id.JobID
	State pipeline.JobState
	Err   error
}

// ──────────────────────────────────────────────────
// Submission lifecycle hooks
// ──────────────────────────────────────────────────

// SubmissionCreated is called after a new submission is accepted and its
// job created.
type SubmissionCreated interface {
	OnSubmissionCreated(ctx context.Context, ev SubmissionEvent) error
}

// SubmissionDeduplicated is called when a submission is recognized as a
// duplicate of an earlier one and the stored result is returned instead.
type SubmissionDeduplicated interface {
	OnSubmissionDeduplicated(ctx context.Context, ev SubmissionEvent) error
}

// ──────────────────────────────────────────────────
// Step and job lifecycle hooks
// ──────────────────────────────────────────────────

// StepCompleted is called after a pipeline step completes.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, ev StepEvent) error
}

// StepFailed is called when a pipeline step fails, before any retry
// decision is made.
type StepFailed interface {
	OnStepFailed(ctx context.Context, ev StepEvent) error
}

// JobRetrying is called when a failed step is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, ev RetryEvent) error
}

// JobCompleted is called after every pipeline step of a job completes.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, ev JobEvent) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, ev JobEvent) error
}

// Shutdown is called when the system is shutting down, allowing
// extensions to flush buffers and release resources.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
