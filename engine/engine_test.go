package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/engine"
	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/hook"
	"github.com/mwerk/intake/pipeline"
	"github.com/mwerk/intake/retry"
	"github.com/mwerk/intake/store/memory"
	"github.com/mwerk/intake/submission"
)

func testConfig() intake.Config {
	cfg := intake.DefaultConfig()
	cfg.RetryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	cfg.StepTimeout = time.Second
	return cfg
}

// stepLog records handler invocations across goroutines.
type stepLog struct {
	mu    sync.Mutex
	steps []pipeline.Step
}

func (l *stepLog) record(s pipeline.Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, s)
}

func (l *stepLog) all() []pipeline.Step {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]pipeline.Step, len(l.steps))
	copy(out, l.steps)
	return out
}

// registerAll binds a recording no-op handler to every pipeline step.
func registerAll(eng *engine.Engine, log *stepLog) {
	for _, s := range pipeline.Steps() {
		step := s
		eng.RegisterStep(step, func(_ context.Context, _ exec.Input) error {
			log.record(step)
			return nil
		})
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestBuildRequiresStore(t *testing.T) {
	if _, err := engine.Build(testConfig(), nil); !errors.Is(err, intake.ErrNoStore) {
		t.Fatalf("Build(nil store) error = %v, want ErrNoStore", err)
	}
}

// noisyExt is an extension whose hook always errors.
type noisyExt struct{}

func (noisyExt) Name() string { return "noisy" }

func (noisyExt) OnJobCompleted(context.Context, hook.JobEvent) error {
	return errors.New("sink unavailable")
}

func TestBuildWiresConfiguredLoggerIntoHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	eng, err := engine.Build(testConfig(), memory.New(),
		engine.WithLogger(logger),
		engine.WithExtension(noisyExt{}),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	eng.Hooks().EmitJobCompleted(context.Background(), hook.JobEvent{})

	if !strings.Contains(buf.String(), "extension hook error") {
		t.Errorf("hook error not logged through the configured logger: %q", buf.String())
	}
}

func TestSubmitRunsPipelineToCompletion(t *testing.T) {
	ctx := context.Background()

	eng, err := engine.Build(testConfig(), memory.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	log := &stepLog{}
	registerAll(eng, log)

	res, err := eng.Submit(ctx, submission.Request{
		ApplicationID: "app-1",
		UserID:        "user-1",
		Data:          json.RawMessage(`{"doc":"report"}`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Deduplicated {
		t.Fatal("first submission reported as deduplicated")
	}

	waitFor(t, func() bool {
		st, err := eng.JobStatus(ctx, res.JobID)
		return err == nil && st.State == pipeline.JobCompleted
	})

	st, err := eng.JobStatus(ctx, res.JobID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if st.Progress != 100 {
		t.Errorf("Progress = %d, want 100", st.Progress)
	}
	for _, ss := range st.Steps {
		if ss.State != pipeline.StateCompleted {
			t.Errorf("step %s state = %s, want completed", ss.Step, ss.State)
		}
	}
	if got := log.all(); len(got) != pipeline.TotalSteps {
		t.Errorf("handlers ran %d times, want %d", len(got), pipeline.TotalSteps)
	}
}

func TestSubmitDeduplicatesIdenticalContent(t *testing.T) {
	ctx := context.Background()

	eng, err := engine.Build(testConfig(), memory.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	log := &stepLog{}
	registerAll(eng, log)

	req := submission.Request{
		ApplicationID: "app-1",
		UserID:        "user-1",
		Data:          json.RawMessage(`{"doc":"report","pages":3}`),
	}

	first, err := eng.Submit(ctx, req)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	waitFor(t, func() bool {
		st, err := eng.JobStatus(ctx, first.JobID)
		return err == nil && st.State == pipeline.JobCompleted
	})

	// Key order must not matter.
	req.Data = json.RawMessage(`{"pages":3,"doc":"report"}`)
	second, err := eng.Submit(ctx, req)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if !second.Deduplicated {
		t.Error("second submission not deduplicated")
	}
	if second.SubmissionID != first.SubmissionID {
		t.Errorf("SubmissionID = %s, want %s", second.SubmissionID, first.SubmissionID)
	}
	if second.JobID != first.JobID {
		t.Errorf("JobID = %s, want %s", second.JobID, first.JobID)
	}
	if got := log.all(); len(got) != pipeline.TotalSteps {
		t.Errorf("handlers ran %d times after dedup, want %d", len(got), pipeline.TotalSteps)
	}
}

func TestRetryRecoversFlakyStep(t *testing.T) {
	ctx := context.Background()

	eng, err := engine.Build(testConfig(), memory.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	log := &stepLog{}
	registerAll(eng, log)

	var mu sync.Mutex
	failures := 0
	eng.RegisterStep(pipeline.StepAnalysis, func(_ context.Context, _ exec.Input) error {
		mu.Lock()
		defer mu.Unlock()
		if failures < 2 {
			failures++
			return fmt.Errorf("analysis backend unavailable (attempt %d)", failures)
		}
		log.record(pipeline.StepAnalysis)
		return nil
	})

	res, err := eng.Submit(ctx, submission.Request{
		ApplicationID: "app-1",
		UserID:        "user-1",
		Data:          json.RawMessage(`{"doc":"flaky"}`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool {
		st, err := eng.JobStatus(ctx, res.JobID)
		return err == nil && st.State == pipeline.JobCompleted
	})

	st, err := eng.JobStatus(ctx, res.JobID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	ss, err := st.Step(pipeline.StepAnalysis)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if ss.RetryCount != 2 {
		t.Errorf("analysis RetryCount = %d, want 2", ss.RetryCount)
	}
	if ss.State != pipeline.StateCompleted {
		t.Errorf("analysis state = %s, want completed", ss.State)
	}
}

func TestRetryExhaustionFailsJob(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	cfg.MaxRetries = 2

	eng, err := engine.Build(cfg, memory.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	log := &stepLog{}
	registerAll(eng, log)
	eng.RegisterStep(pipeline.StepGeneration, func(_ context.Context, _ exec.Input) error {
		return errors.New("generation model overloaded")
	})

	res, err := eng.Submit(ctx, submission.Request{
		ApplicationID: "app-1",
		UserID:        "user-1",
		Data:          json.RawMessage(`{"doc":"doomed"}`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool {
		st, err := eng.JobStatus(ctx, res.JobID)
		return err == nil && st.State == pipeline.JobFailed
	})

	st, err := eng.JobStatus(ctx, res.JobID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if !strings.Contains(st.Error, "max retries exceeded") {
		t.Errorf("Error = %q, want max retries mention", st.Error)
	}
	ss, err := st.Step(pipeline.StepGeneration)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if ss.RetryCount != cfg.MaxRetries {
		t.Errorf("RetryCount = %d, want %d", ss.RetryCount, cfg.MaxRetries)
	}
	if ss.State != pipeline.StateFailed {
		t.Errorf("generation state = %s, want failed", ss.State)
	}
}

func TestCancelJobStopsExecution(t *testing.T) {
	ctx := context.Background()

	eng, err := engine.Build(testConfig(), memory.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	log := &stepLog{}
	registerAll(eng, log)

	started := make(chan struct{})
	eng.RegisterStep(pipeline.StepAnalysis, func(ctx context.Context, _ exec.Input) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	res, err := eng.Submit(ctx, submission.Request{
		ApplicationID: "app-1",
		UserID:        "user-1",
		Data:          json.RawMessage(`{"doc":"cancel-me"}`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started
	if err := eng.CancelJob(ctx, res.JobID, "operator request"); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	st, err := eng.JobStatus(ctx, res.JobID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if st.State != pipeline.JobCancelled {
		t.Fatalf("State = %s, want cancelled", st.State)
	}

	// A late failure signal from the stopped execution is a no-op.
	if err := eng.HandleFailure(ctx, retry.Signal{
		JobID: res.JobID,
		Step:  pipeline.StepAnalysis.String(),
		Error: "context canceled",
	}); err != nil {
		t.Fatalf("HandleFailure after cancel: %v", err)
	}

	st, err = eng.JobStatus(ctx, res.JobID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if st.State != pipeline.JobCancelled {
		t.Errorf("State after late signal = %s, want cancelled", st.State)
	}

	// Cancelling again is rejected: the job is already terminal.
	if err := eng.CancelJob(ctx, res.JobID, "again"); !errors.Is(err, intake.ErrInvalidTransition) {
		t.Errorf("second CancelJob error = %v, want ErrInvalidTransition", err)
	}
}

func TestHandleFailureUnknownStepFailsJob(t *testing.T) {
	ctx := context.Background()

	eng, err := engine.Build(testConfig(), memory.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	log := &stepLog{}
	registerAll(eng, log)

	started := make(chan struct{})
	var once sync.Once
	eng.RegisterStep(pipeline.StepValidation, func(ctx context.Context, _ exec.Input) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	})

	res, err := eng.Submit(ctx, submission.Request{
		ApplicationID: "app-1",
		UserID:        "user-1",
		Data:          json.RawMessage(`{"doc":"unknown-step"}`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	if err := eng.HandleFailure(ctx, retry.Signal{
		JobID: res.JobID,
		Step:  "transmogrification",
		Error: "no such step",
	}); err != nil {
		t.Fatalf("HandleFailure: %v", err)
	}

	st, err := eng.JobStatus(ctx, res.JobID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if st.State != pipeline.JobFailed {
		t.Errorf("State = %s, want failed", st.State)
	}
}

func TestShutdownWaitsForExecutions(t *testing.T) {
	ctx := context.Background()

	eng, err := engine.Build(testConfig(), memory.New())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	log := &stepLog{}
	registerAll(eng, log)

	res, err := eng.Submit(ctx, submission.Request{
		ApplicationID: "app-1",
		UserID:        "user-1",
		Data:          json.RawMessage(`{"doc":"drain"}`),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	st, err := eng.JobStatus(ctx, res.JobID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if st.State != pipeline.JobCompleted {
		t.Errorf("State after shutdown = %s, want completed", st.State)
	}
}
