package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mwerk/intake/hook"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/pipeline"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnSubmissionCreated(_ context.Context, _ hook.SubmissionEvent) error {
	e.calls = append(e.calls, "OnSubmissionCreated")
	return nil
}

func (e *allHooksExt) OnSubmissionDeduplicated(_ context.Context, _ hook.SubmissionEvent) error {
	e.calls = append(e.calls, "OnSubmissionDeduplicated")
	return nil
}

func (e *allHooksExt) OnStepCompleted(_ context.Context, _ hook.StepEvent) error {
	e.calls = append(e.calls, "OnStepCompleted")
	return nil
}

func (e *allHooksExt) OnStepFailed(_ context.Context, _ hook.StepEvent) error {
	e.calls = append(e.calls, "OnStepFailed")
	return nil
}

func (e *allHooksExt) OnJobRetrying(_ context.Context, _ hook.RetryEvent) error {
	e.calls = append(e.calls, "OnJobRetrying")
	return nil
}

func (e *allHooksExt) OnJobCompleted(_ context.Context, _ hook.JobEvent) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ hook.JobEvent) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// failedOnlyExt opts in to a single hook.
type failedOnlyExt struct {
	failures int
}

func (e *failedOnlyExt) Name() string { return "failed-only" }

func (e *failedOnlyExt) OnStepFailed(_ context.Context, _ hook.StepEvent) error {
	e.failures++
	return nil
}

// erroringExt always returns an error from its hook.
type erroringExt struct{}

func (e *erroringExt) Name() string { return "erroring" }

func (e *erroringExt) OnJobFailed(_ context.Context, _ hook.JobEvent) error {
	return errors.New("hook exploded")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_EmitsAllHooks(t *testing.T) {
	ext := &allHooksExt{}
	r := hook.NewRegistry(slog.Default())
	r.Register(ext)

	ctx := context.Background()
	jobID := id.NewJobID()

	r.EmitSubmissionCreated(ctx, hook.SubmissionEvent{JobID: jobID})
	r.EmitSubmissionDeduplicated(ctx, hook.SubmissionEvent{JobID: jobID})
	r.EmitStepCompleted(ctx, hook.StepEvent{JobID: jobID, Step: pipeline.StepValidation})
	r.EmitStepFailed(ctx, hook.StepEvent{JobID: jobID, Step: pipeline.StepAnalysis})
	r.EmitJobRetrying(ctx, hook.RetryEvent{JobID: jobID, Step: pipeline.StepAnalysis, Attempt: 1})
	r.EmitJobCompleted(ctx, hook.JobEvent{JobID: jobID, State: pipeline.JobCompleted})
	r.EmitJobFailed(ctx, hook.JobEvent{JobID: jobID, State: pipeline.JobFailed})
	r.EmitShutdown(ctx)

	want := []string{
		"OnSubmissionCreated",
		"OnSubmissionDeduplicated",
		"OnStepCompleted",
		"OnStepFailed",
		"OnJobRetrying",
		"OnJobCompleted",
		"OnJobFailed",
		"OnShutdown",
	}
	if len(ext.calls) != len(want) {
		t.Fatalf("got %d calls %v, want %d", len(ext.calls), ext.calls, len(want))
	}
	for i, name := range want {
		if ext.calls[i] != name {
			t.Errorf("call %d = %q, want %q", i, ext.calls[i], name)
		}
	}
}

func TestRegistry_PartialExtensionOnlyReceivesItsHook(t *testing.T) {
	ext := &failedOnlyExt{}
	r := hook.NewRegistry(nil)
	r.Register(ext)

	ctx := context.Background()
	r.EmitStepCompleted(ctx, hook.StepEvent{})
	r.EmitJobCompleted(ctx, hook.JobEvent{})
	r.EmitStepFailed(ctx, hook.StepEvent{})
	r.EmitStepFailed(ctx, hook.StepEvent{})

	if ext.failures != 2 {
		t.Errorf("failed-only extension saw %d failures, want 2", ext.failures)
	}
}

func TestRegistry_HookErrorsDoNotPropagate(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	r.Register(&erroringExt{})

	// Must not panic and must keep notifying other extensions.
	other := &allHooksExt{}
	r.Register(other)

	r.EmitJobFailed(context.Background(), hook.JobEvent{State: pipeline.JobFailed})

	if len(other.calls) != 1 || other.calls[0] != "OnJobFailed" {
		t.Errorf("second extension calls = %v, want [OnJobFailed]", other.calls)
	}
}

func TestRegistry_Extensions(t *testing.T) {
	r := hook.NewRegistry(nil)
	if len(r.Extensions()) != 0 {
		t.Fatal("fresh registry should have no extensions")
	}

	r.Register(&failedOnlyExt{})
	r.Register(&erroringExt{})
	if len(r.Extensions()) != 2 {
		t.Errorf("got %d extensions, want 2", len(r.Extensions()))
	}
}
