package observability_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mwerk/intake/hook"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/observability"
	"github.com/mwerk/intake/pipeline"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not a Sum[int64]", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtensionCountsLifecycle(t *testing.T) {
	ctx := context.Background()
	reader, mp := setupTestMeter()
	ext := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))

	reg := hook.NewRegistry(nil)
	reg.Register(ext)

	subEv := hook.SubmissionEvent{
		SubmissionID:  id.NewSubmissionID(),
		JobID:         id.NewJobID(),
		ApplicationID: "app-1",
	}
	reg.EmitSubmissionCreated(ctx, subEv)
	reg.EmitSubmissionDeduplicated(ctx, subEv)
	reg.EmitSubmissionDeduplicated(ctx, subEv)

	reg.EmitStepFailed(ctx, hook.StepEvent{
		JobID: subEv.JobID,
		Step:  pipeline.StepAnalysis,
		Err:   errors.New("boom"),
	})
	reg.EmitJobRetrying(ctx, hook.RetryEvent{
		JobID:   subEv.JobID,
		Step:    pipeline.StepAnalysis,
		Attempt: 1,
	})
	reg.EmitJobCompleted(ctx, hook.JobEvent{JobID: subEv.JobID, State: pipeline.JobCompleted})
	reg.EmitJobFailed(ctx, hook.JobEvent{JobID: subEv.JobID, State: pipeline.JobFailed})

	cases := []struct {
		name string
		want int64
	}{
		{"intake.submission.created", 1},
		{"intake.submission.deduplicated", 2},
		{"intake.step.failed", 1},
		{"intake.job.retrying", 1},
		{"intake.job.completed", 1},
		{"intake.job.failed", 1},
	}
	for _, tc := range cases {
		if got := counterValue(t, reader, tc.name); got != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, got, tc.want)
		}
	}
}
