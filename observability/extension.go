// Package observability provides a lifecycle extension that records
// system-wide intake metrics via OpenTelemetry. Register it with the
// engine to track submission, retry, and terminal job counts without
// touching any subsystem code.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mwerk/intake/hook"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/mwerk/intake/observability"

// Compile-time interface checks.
var (
	_ hook.Extension              = (*MetricsExtension)(nil)
	_ hook.SubmissionCreated      = (*MetricsExtension)(nil)
	_ hook.SubmissionDeduplicated = (*MetricsExtension)(nil)
	_ hook.StepFailed             = (*MetricsExtension)(nil)
	_ hook.JobRetrying            = (*MetricsExtension)(nil)
	_ hook.JobCompleted           = (*MetricsExtension)(nil)
	_ hook.JobFailed              = (*MetricsExtension)(nil)
)

// MetricsExtension counts lifecycle events. All instruments degrade to
// noops when no MeterProvider is configured.
type MetricsExtension struct {
	submissionsCreated      metric.Int64Counter
	submissionsDeduplicated metric.Int64Counter
	stepsFailed             metric.Int64Counter
	jobsRetried             metric.Int64Counter
	jobsCompleted           metric.Int64Counter
	jobsFailed              metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// On error, the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m.submissionsCreated, _ = meter.Int64Counter(
		"intake.submission.created",
		metric.WithDescription("Total submissions accepted as new"),
		metric.WithUnit("{submission}"),
	)
	m.submissionsDeduplicated, _ = meter.Int64Counter(
		"intake.submission.deduplicated",
		metric.WithDescription("Total submissions resolved to an existing record"),
		metric.WithUnit("{submission}"),
	)
	m.stepsFailed, _ = meter.Int64Counter(
		"intake.step.failed",
		metric.WithDescription("Total step failures, before any retry decision"),
		metric.WithUnit("{failure}"),
	)
	m.jobsRetried, _ = meter.Int64Counter(
		"intake.job.retrying",
		metric.WithDescription("Total scheduled step retries"),
		metric.WithUnit("{retry}"),
	)
	m.jobsCompleted, _ = meter.Int64Counter(
		"intake.job.completed",
		metric.WithDescription("Total jobs that completed every pipeline step"),
		metric.WithUnit("{job}"),
	)
	m.jobsFailed, _ = meter.Int64Counter(
		"intake.job.failed",
		metric.WithDescription("Total jobs that failed terminally"),
		metric.WithUnit("{job}"),
	)

	return m
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnSubmissionCreated implements hook.SubmissionCreated.
func (m *MetricsExtension) OnSubmissionCreated(ctx context.Context, ev hook.SubmissionEvent) error {
	m.submissionsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("application_id", ev.ApplicationID),
	))
	return nil
}

// OnSubmissionDeduplicated implements hook.SubmissionDeduplicated.
func (m *MetricsExtension) OnSubmissionDeduplicated(ctx context.Context, ev hook.SubmissionEvent) error {
	m.submissionsDeduplicated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("application_id", ev.ApplicationID),
	))
	return nil
}

// OnStepFailed implements hook.StepFailed.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, ev hook.StepEvent) error {
	m.stepsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", ev.Step.String()),
	))
	return nil
}

// OnJobRetrying implements hook.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, ev hook.RetryEvent) error {
	m.jobsRetried.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", ev.Step.String()),
		attribute.Int("attempt", ev.Attempt),
	))
	return nil
}

// OnJobCompleted implements hook.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, _ hook.JobEvent) error {
	m.jobsCompleted.Add(ctx, 1)
	return nil
}

// OnJobFailed implements hook.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, _ hook.JobEvent) error {
	m.jobsFailed.Add(ctx, 1)
	return nil
}
