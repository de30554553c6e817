package submission

import (
	"context"

	"github.com/mwerk/intake/id"
)

// Store is the persistence interface for submissions.
//
// PutSubmission is the dedup primitive: it must insert atomically and
// return intake.ErrSubmissionExists when a record with the same
// idempotency key already exists, without modifying the stored record.
// Under concurrent puts of the same key, exactly one caller succeeds.
type Store interface {
	// PutSubmission inserts a new submission, conditional on no record
	// existing for its idempotency key.
	PutSubmission(ctx context.Context, sub *Submission) error

	// GetSubmissionByKey loads the submission stored under an idempotency
	// key. Returns intake.ErrSubmissionNotFound when none exists.
	GetSubmissionByKey(ctx context.Context, key string) (*Submission, error)

	// GetSubmission loads a submission by ID.
	GetSubmission(ctx context.Context, subID id.SubmissionID) (*Submission, error)
}
