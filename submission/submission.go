// Package submission implements idempotent submission intake: validation,
// idempotency key derivation, deduplicated persistence, and kickoff of the
// processing job for accepted submissions.
package submission

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
)

// Submission is the durable record of one logical submission.
type Submission struct {
	intake.Entity

	ID    id.SubmissionID `json:"id"`
	JobID id.JobID        `json:"jobId"`

	// IdempotencyKey is the content-derived key that makes this submission
	// unique. Exactly one record exists per key.
	IdempotencyKey string `json:"idempotencyKey"`

	ApplicationID string          `json:"applicationId"`
	UserID        string          `json:"userId"`
	Data          json.RawMessage `json:"data,omitempty"`

	// ExpiresAt is when this record may be purged. Until then, resubmitting
	// identical content returns this record instead of creating a new one.
	ExpiresAt time.Time `json:"expiresAt"`
}

// New creates a submission record with fresh IDs.
func New(key, applicationID, userID string, data json.RawMessage, ttl time.Duration) *Submission {
	return &Submission{
		Entity:         intake.NewEntity(),
		ID:             id.NewSubmissionID(),
		JobID:          id.NewJobID(),
		IdempotencyKey: key,
		ApplicationID:  applicationID,
		UserID:         userID,
		Data:           data,
		ExpiresAt:      time.Now().UTC().Add(ttl),
	}
}

// Clone returns a copy of the submission with its own payload buffer.
func (s *Submission) Clone() *Submission {
	out := *s
	if s.Data != nil {
		out.Data = make(json.RawMessage, len(s.Data))
		copy(out.Data, s.Data)
	}

	return &out
}

// Expired reports whether the record has passed its retention deadline at
// the given instant.
func (s *Submission) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// ValidationError reports the required fields missing from a request.
type ValidationError struct {
	Fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("submission: missing or invalid fields: %s", strings.Join(e.Fields, ", "))
}
