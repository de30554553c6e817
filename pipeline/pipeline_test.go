package pipeline_test

import (
	"errors"
	"testing"

	"github.com/mwerk/intake/pipeline"
)

func TestSteps_OrderAndNames(t *testing.T) {
	want := []string{"validation", "analysis", "generation", "export"}

	steps := pipeline.Steps()
	if len(steps) != pipeline.TotalSteps {
		t.Fatalf("Steps() returned %d steps, want %d", len(steps), pipeline.TotalSteps)
	}
	for i, s := range steps {
		if s.String() != want[i] {
			t.Errorf("step %d = %q, want %q", i, s.String(), want[i])
		}
		if s.Index() != i {
			t.Errorf("step %q Index() = %d, want %d", s, s.Index(), i)
		}
	}
}

func TestParseStep(t *testing.T) {
	for _, s := range pipeline.Steps() {
		parsed, err := pipeline.ParseStep(s.String())
		if err != nil {
			t.Fatalf("ParseStep(%q) error: %v", s, err)
		}
		if parsed != s {
			t.Errorf("ParseStep(%q) = %v, want %v", s, parsed, s)
		}
	}

	for _, name := range []string{"", "Validation", "deploy", "validation "} {
		if _, err := pipeline.ParseStep(name); !errors.Is(err, pipeline.ErrUnknownStep) {
			t.Errorf("ParseStep(%q) = %v, want ErrUnknownStep", name, err)
		}
	}
}

func TestStep_Next(t *testing.T) {
	next, ok := pipeline.StepValidation.Next()
	if !ok || next != pipeline.StepAnalysis {
		t.Errorf("validation.Next() = %v, %v; want analysis, true", next, ok)
	}

	if _, ok := pipeline.StepExport.Next(); ok {
		t.Error("export.Next() should report no next step")
	}
}

func TestStep_TextRoundTrip(t *testing.T) {
	data, err := pipeline.StepGeneration.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText error: %v", err)
	}

	var back pipeline.Step
	if err := back.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText error: %v", err)
	}
	if back != pipeline.StepGeneration {
		t.Errorf("round trip = %v, want generation", back)
	}

	if _, err := pipeline.Step(99).MarshalText(); err == nil {
		t.Error("MarshalText should reject an out-of-range step")
	}
}

func TestNewStepStatuses(t *testing.T) {
	statuses := pipeline.NewStepStatuses()
	if len(statuses) != pipeline.TotalSteps {
		t.Fatalf("got %d statuses, want %d", len(statuses), pipeline.TotalSteps)
	}
	for i, st := range statuses {
		if st.Step.Index() != i {
			t.Errorf("status %d holds step %v", i, st.Step)
		}
		if st.State != pipeline.StatePending {
			t.Errorf("status %d state = %q, want pending", i, st.State)
		}
		if st.RetryCount != 0 {
			t.Errorf("status %d retry count = %d, want 0", i, st.RetryCount)
		}
	}
}

func TestDerive(t *testing.T) {
	mk := func(states ...pipeline.State) []pipeline.StepStatus {
		out := pipeline.NewStepStatuses()
		for i, s := range states {
			out[i].State = s
		}
		return out
	}

	tests := []struct {
		name  string
		steps []pipeline.StepStatus
		want  pipeline.JobState
	}{
		{"all pending", mk(), pipeline.JobPending},
		{"first running", mk(pipeline.StateRunning), pipeline.JobRunning},
		{"partially complete", mk(pipeline.StateCompleted, pipeline.StateRunning), pipeline.JobRunning},
		{"completed but not all", mk(pipeline.StateCompleted, pipeline.StateCompleted), pipeline.JobRunning},
		{
			"all completed",
			mk(pipeline.StateCompleted, pipeline.StateCompleted, pipeline.StateCompleted, pipeline.StateCompleted),
			pipeline.JobCompleted,
		},
		{
			"failure dominates",
			mk(pipeline.StateCompleted, pipeline.StateFailed, pipeline.StateRunning),
			pipeline.JobFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pipeline.Derive(tt.steps); got != tt.want {
				t.Errorf("Derive() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		index int
		want  int
	}{
		{-1, 0},
		{0, 0},
		{1, 25},
		{2, 50},
		{3, 75},
		{4, 100},
		{9, 100},
	}

	for _, tt := range tests {
		if got := pipeline.Progress(tt.index); got != tt.want {
			t.Errorf("Progress(%d) = %d, want %d", tt.index, got, tt.want)
		}
	}
}

func TestJobState_Terminal(t *testing.T) {
	terminal := map[pipeline.JobState]bool{
		pipeline.JobPending:   false,
		pipeline.JobRunning:   false,
		pipeline.JobCompleted: true,
		pipeline.JobFailed:    true,
		pipeline.JobCancelled: true,
	}

	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%q.Terminal() = %v, want %v", state, got, want)
		}
	}
}

func TestValidTransition(t *testing.T) {
	allowed := []struct{ from, to pipeline.State }{
		{pipeline.StatePending, pipeline.StateRunning},
		{pipeline.StatePending, pipeline.StateFailed},
		{pipeline.StateRunning, pipeline.StateRunning},
		{pipeline.StateRunning, pipeline.StateCompleted},
		{pipeline.StateRunning, pipeline.StateFailed},
		{pipeline.StateFailed, pipeline.StateRunning},
	}
	for _, tr := range allowed {
		if !pipeline.ValidTransition(tr.from, tr.to) {
			t.Errorf("ValidTransition(%q, %q) = false, want true", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to pipeline.State }{
		{pipeline.StatePending, pipeline.StateCompleted},
		{pipeline.StateCompleted, pipeline.StateRunning},
		{pipeline.StateCompleted, pipeline.StateFailed},
	}
	for _, tr := range denied {
		if pipeline.ValidTransition(tr.from, tr.to) {
			t.Errorf("ValidTransition(%q, %q) = true, want false", tr.from, tr.to)
		}
	}
}
