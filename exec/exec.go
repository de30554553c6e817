// Package exec abstracts the execution engine that drives jobs through
// the pipeline. The engine may be the built-in in-process runner or an
// adapter for an external orchestrator; the trigger and retry coordinator
// only see this interface.
package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/pipeline"
)

// Ref identifies one execution of a job's pipeline. A job that is retried
// gets a new ref per attempt.
type Ref string

// Input is the payload handed to the engine when an execution starts.
// Retries carry the same payload as the original run plus retry metadata,
// so a restarted execution resumes from the failed step instead of the
// beginning.
type Input struct {
	JobID         id.JobID        `json:"jobId"`
	SubmissionID  id.SubmissionID `json:"submissionId"`
	ApplicationID string          `json:"applicationId"`
	UserID        string          `json:"userId"`
	Data          json.RawMessage `json:"data,omitempty"`

	// StartStep is the pipeline step the execution begins at. Fresh runs
	// start at validation; retries resume at the failed step.
	StartStep pipeline.Step `json:"startStep"`

	// RetryCount is the failed step's retry count for this attempt,
	// zero for fresh runs.
	RetryCount int  `json:"retryCount"`
	IsRetry    bool `json:"isRetry"`

	Timestamp time.Time `json:"timestamp"`
}

// Engine starts and stops executions.
type Engine interface {
	// Start begins a new execution under the given unique name.
	Start(ctx context.Context, name string, in Input) (Ref, error)

	// Stop aborts a running execution. Implementations return
	// intake.ErrExecutionNotFound when no execution with the ref is
	// running; callers on the retry path treat that as success.
	Stop(ctx context.Context, ref Ref, cause string) error
}

// Name derives the unique execution name for a job attempt. Including the
// retry count keeps restarted executions from colliding with the original
// under engines that enforce name uniqueness.
func Name(jobID id.JobID, retryCount int) string {
	if retryCount <= 0 {
		return fmt.Sprintf("run-%s", jobID)
	}

	return fmt.Sprintf("run-%s-retry-%d", jobID, retryCount)
}
