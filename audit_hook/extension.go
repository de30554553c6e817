// Package audithook bridges intake lifecycle events to an audit trail
// backend. Each lifecycle hook emits a structured audit event through an
// injected Recorder, so the intake core stays free of any audit backend
// dependency.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mwerk/intake/hook"
)

// Compile-time interface checks.
var (
	_ hook.Extension              = (*Extension)(nil)
	_ hook.SubmissionCreated      = (*Extension)(nil)
	_ hook.SubmissionDeduplicated = (*Extension)(nil)
	_ hook.StepFailed             = (*Extension)(nil)
	_ hook.JobRetrying            = (*Extension)(nil)
	_ hook.JobCompleted           = (*Extension)(nil)
	_ hook.JobFailed              = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so this package does not depend on any particular audit
// system — callers inject their concrete backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit record.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges intake lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Submission lifecycle hooks ──────────────────────

// OnSubmissionCreated implements hook.SubmissionCreated.
func (e *Extension) OnSubmissionCreated(ctx context.Context, ev hook.SubmissionEvent) error {
	return e.record(ctx, ActionSubmissionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubmission, ev.SubmissionID.String(), CategorySubmission, nil,
		"job_id", ev.JobID.String(),
		"application_id", ev.ApplicationID,
		"user_id", ev.UserID,
	)
}

// OnSubmissionDeduplicated implements hook.SubmissionDeduplicated.
func (e *Extension) OnSubmissionDeduplicated(ctx context.Context, ev hook.SubmissionEvent) error {
	return e.record(ctx, ActionSubmissionDeduplicated, SeverityInfo, OutcomeSuccess,
		ResourceSubmission, ev.SubmissionID.String(), CategorySubmission, nil,
		"job_id", ev.JobID.String(),
		"application_id", ev.ApplicationID,
		"user_id", ev.UserID,
		"idempotency_key", ev.IdempotencyKey,
	)
}

// ── Job lifecycle hooks ─────────────────────────────

// OnStepFailed implements hook.StepFailed.
func (e *Extension) OnStepFailed(ctx context.Context, ev hook.StepEvent) error {
	return e.record(ctx, ActionStepFailed, SeverityWarning, OutcomeFailure,
		ResourceJob, ev.JobID.String(), CategoryJob, ev.Err,
		"step", ev.Step.String(),
		"retry_count", ev.RetryCount,
		"elapsed_ms", ev.Elapsed.Milliseconds(),
	)
}

// OnJobRetrying implements hook.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, ev hook.RetryEvent) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		ResourceJob, ev.JobID.String(), CategoryJob, nil,
		"step", ev.Step.String(),
		"attempt", ev.Attempt,
		"delay_ms", ev.Delay.Milliseconds(),
	)
}

// OnJobCompleted implements hook.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, ev hook.JobEvent) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, ev.JobID.String(), CategoryJob, nil,
	)
}

// OnJobFailed implements hook.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, ev hook.JobEvent) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, ev.JobID.String(), CategoryJob, ev.Err,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
