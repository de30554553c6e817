package hook

import (
	"context"
	"log/slog"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type submissionCreatedEntry struct {
	name string
	hook SubmissionCreated
}

type submissionDeduplicatedEntry struct {
	name string
	hook SubmissionDeduplicated
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	submissionCreated      []submissionCreatedEntry
	submissionDeduplicated []submissionDeduplicatedEntry
	stepCompleted          []stepCompletedEntry
	stepFailed             []stepFailedEntry
	jobRetrying            []jobRetryingEntry
	jobCompleted           []jobCompletedEntry
	jobFailed              []jobFailedEntry
	shutdown               []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
// A nil logger falls back to slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(SubmissionCreated); ok {
		r.submissionCreated = append(r.submissionCreated, submissionCreatedEntry{name, h})
	}
	if h, ok := e.(SubmissionDeduplicated); ok {
		r.submissionDeduplicated = append(r.submissionDeduplicated, submissionDeduplicatedEntry{name, h})
	}
	if h, ok := e.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitSubmissionCreated notifies all extensions that implement SubmissionCreated.
func (r *Registry) EmitSubmissionCreated(ctx context.Context, ev SubmissionEvent) {
	for _, e := range r.submissionCreated {
		if err := e.hook.OnSubmissionCreated(ctx, ev); err != nil {
			r.logHookError("OnSubmissionCreated", e.name, err)
		}
	}
}

// EmitSubmissionDeduplicated notifies all extensions that implement SubmissionDeduplicated.
func (r *Registry) EmitSubmissionDeduplicated(ctx context.Context, ev SubmissionEvent) {
	for _, e := range r.submissionDeduplicated {
		if err := e.hook.OnSubmissionDeduplicated(ctx, ev); err != nil {
			r.logHookError("OnSubmissionDeduplicated", e.name, err)
		}
	}
}

// EmitStepCompleted notifies all extensions that implement StepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, ev StepEvent) {
	for _, e := range r.stepCompleted {
		if err := e.hook.OnStepCompleted(ctx, ev); err != nil {
			r.logHookError("OnStepCompleted", e.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, ev StepEvent) {
	for _, e := range r.stepFailed {
		if err := e.hook.OnStepFailed(ctx, ev); err != nil {
			r.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, ev RetryEvent) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, ev); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, ev JobEvent) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, ev); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, ev JobEvent) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, ev); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block processing.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
