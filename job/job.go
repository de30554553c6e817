// Package job defines the job status entity and the tracker that advances
// it through the processing pipeline.
//
// A job is the unit of pipeline work created for an accepted submission.
// Its status records per-step progress, the aggregate state, and the
// reference to the execution currently driving it.
package job

import (
	"fmt"
	"time"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/pipeline"
)

// Status is the tracked state of one job.
type Status struct {
	intake.Entity

	ID           id.JobID        `json:"id"`
	SubmissionID id.SubmissionID `json:"submissionId"`

	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`

	State       pipeline.JobState     `json:"state"`
	Progress    int                   `json:"progress"`
	CurrentStep pipeline.Step         `json:"currentStep"`
	TotalSteps  int                   `json:"totalSteps"`
	Steps       []pipeline.StepStatus `json:"steps"`

	// ExecutionRef identifies the execution currently driving this job,
	// empty before the first start.
	ExecutionRef string `json:"executionRef,omitempty"`

	// Error holds the terminal failure message when State is failed.
	Error string `json:"error,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// ExpiresAt is when this status record may be purged.
	ExpiresAt time.Time `json:"expiresAt"`
}

// New creates the initial status for a fresh job: pending, zero progress,
// every pipeline step pending.
func New(jobID id.JobID, submissionID id.SubmissionID, applicationID, userID string, ttl time.Duration) *Status {
	return &Status{
		Entity:        intake.NewEntity(),
		ID:            jobID,
		SubmissionID:  submissionID,
		ApplicationID: applicationID,
		UserID:        userID,
		State:         pipeline.JobPending,
		Progress:      0,
		CurrentStep:   pipeline.StepValidation,
		TotalSteps:    pipeline.TotalSteps,
		Steps:         pipeline.NewStepStatuses(),
		ExpiresAt:     time.Now().UTC().Add(ttl),
	}
}

// Step returns a pointer to the status of the given pipeline step.
func (s *Status) Step(step pipeline.Step) (*pipeline.StepStatus, error) {
	for i := range s.Steps {
		if s.Steps[i].Step == step {
			return &s.Steps[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s in job %s", intake.ErrStepNotFound, step, s.ID)
}

// Clone returns a deep copy of the status. Stores hand out clones so
// callers never share mutable step slices.
func (s *Status) Clone() *Status {
	out := *s
	out.Steps = make([]pipeline.StepStatus, len(s.Steps))
	copy(out.Steps, s.Steps)

	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}

	return &out
}

// Expired reports whether the status record has passed its retention
// deadline at the given instant.
func (s *Status) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
