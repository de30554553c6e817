// Package pipeline defines the fixed processing pipeline every job moves
// through and the state model for both individual steps and the job as a
// whole. The pipeline is closed: exactly four steps, always in the same
// order, and the set is part of the system's contract rather than runtime
// configuration.
package pipeline

import (
	"errors"
	"fmt"
	"math"
)

// Step identifies one stage of the processing pipeline.
type Step int

// Pipeline steps in execution order.
const (
	StepValidation Step = iota
	StepAnalysis
	StepGeneration
	StepExport
)

// TotalSteps is the number of steps in the pipeline.
const TotalSteps = 4

// ErrUnknownStep is returned when a step name does not identify any
// pipeline step.
var ErrUnknownStep = errors.New("pipeline: unknown step")

var stepNames = [TotalSteps]string{
	"validation",
	"analysis",
	"generation",
	"export",
}

// Steps returns all pipeline steps in execution order.
func Steps() [TotalSteps]Step {
	return [TotalSteps]Step{StepValidation, StepAnalysis, StepGeneration, StepExport}
}

// ParseStep resolves a step name to its Step. Returns ErrUnknownStep for
// any name outside the closed set.
func ParseStep(name string) (Step, error) {
	for i, n := range stepNames {
		if n == name {
			return Step(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownStep, name)
}

// String returns the step's wire name.
func (s Step) String() string {
	if s < 0 || int(s) >= TotalSteps {
		return fmt.Sprintf("step(%d)", int(s))
	}

	return stepNames[s]
}

// Index returns the step's zero-based position in the pipeline.
func (s Step) Index() int { return int(s) }

// Valid reports whether the step is one of the defined pipeline steps.
func (s Step) Valid() bool { return s >= 0 && int(s) < TotalSteps }

// Next returns the step that follows s, and false if s is the last step.
func (s Step) Next() (Step, bool) {
	if int(s)+1 >= TotalSteps {
		return s, false
	}

	return s + 1, true
}

// MarshalText implements encoding.TextMarshaler.
func (s Step) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStep, int(s))
	}

	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Step) UnmarshalText(data []byte) error {
	parsed, err := ParseStep(string(data))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// ──────────────────────────────────────────────────
// States
// ──────────────────────────────────────────────────

// State is the lifecycle state of a single pipeline step.
type State string

// Step states.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// JobState is the aggregate lifecycle state of a job. It is derived from
// the step states, except for cancellation which is imposed externally.
type JobState string

// Job states.
const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the job state admits no further processing.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ──────────────────────────────────────────────────
// Step status
// ──────────────────────────────────────────────────

// StepStatus tracks the progress of one pipeline step within a job.
type StepStatus struct {
	Step       Step   `json:"step"`
	State      State  `json:"state"`
	RetryCount int    `json:"retryCount"`
	Error      string `json:"error,omitempty"`
}

// NewStepStatuses returns the initial status slice for a fresh job: every
// pipeline step pending with zero retries.
func NewStepStatuses() []StepStatus {
	statuses := make([]StepStatus, 0, TotalSteps)
	for _, s := range Steps() {
		statuses = append(statuses, StepStatus{Step: s, State: StatePending})
	}

	return statuses
}

// Derive computes the aggregate job state from the step states.
// Precedence: any failed step fails the job; otherwise all completed
// completes it; otherwise any running or completed step means the job is
// running; otherwise pending.
func Derive(steps []StepStatus) JobState {
	completed := 0
	active := false

	for _, st := range steps {
		switch st.State {
		case StateFailed:
			return JobFailed
		case StateCompleted:
			completed++
			active = true
		case StateRunning:
			active = true
		}
	}

	if len(steps) > 0 && completed == len(steps) {
		return JobCompleted
	}
	if active {
		return JobRunning
	}

	return JobPending
}

// Progress returns the job's completion percentage given the index of the
// step currently being processed: round(index / TotalSteps * 100).
// A fully completed job reports 100.
func Progress(currentStepIndex int) int {
	if currentStepIndex < 0 {
		return 0
	}
	if currentStepIndex >= TotalSteps {
		return 100
	}

	return int(math.Round(float64(currentStepIndex) / float64(TotalSteps) * 100))
}

// ValidTransition reports whether a step may move from one state to
// another. Running to running is allowed once as the retry path: the step
// is restarted without ever having been marked completed or failed.
func ValidTransition(from, to State) bool {
	switch from {
	case StatePending:
		// pending -> failed covers steps that cannot start at all,
		// e.g. no handler is registered for them.
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateRunning || to == StateCompleted || to == StateFailed
	case StateFailed:
		return to == StateRunning
	default:
		return false
	}
}
