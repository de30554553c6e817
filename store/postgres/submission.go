package postgres

import (
	"context"
	"fmt"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/submission"
)

// PutSubmission inserts the record under its idempotency key. The unique
// constraint arbitrates concurrent writers; ON CONFLICT reclaims rows whose
// retention deadline has passed so expired keys behave as absent. A conflict
// with a live row returns intake.ErrSubmissionExists.
func (s *Store) PutSubmission(ctx context.Context, sub *submission.Submission) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO intake_submissions
			(idempotency_key, id, job_id, application_id, user_id, data,
			 expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			id             = EXCLUDED.id,
			job_id         = EXCLUDED.job_id,
			application_id = EXCLUDED.application_id,
			user_id        = EXCLUDED.user_id,
			data           = EXCLUDED.data,
			expires_at     = EXCLUDED.expires_at,
			created_at     = EXCLUDED.created_at,
			updated_at     = EXCLUDED.updated_at
		WHERE intake_submissions.expires_at <= NOW()
	`,
		sub.IdempotencyKey, sub.ID, sub.JobID, sub.ApplicationID, sub.UserID,
		[]byte(sub.Data), sub.ExpiresAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("intake/postgres: put submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return intake.ErrSubmissionExists
	}

	return nil
}

// GetSubmissionByKey loads the live submission stored under an idempotency key.
func (s *Store) GetSubmissionByKey(ctx context.Context, key string) (*submission.Submission, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT idempotency_key, id, job_id, application_id, user_id, data,
		       expires_at, created_at, updated_at
		FROM intake_submissions
		WHERE idempotency_key = $1 AND expires_at > NOW()
	`, key)

	return scanSubmission(row)
}

// GetSubmission loads a live submission by ID.
func (s *Store) GetSubmission(ctx context.Context, subID id.SubmissionID) (*submission.Submission, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT idempotency_key, id, job_id, application_id, user_id, data,
		       expires_at, created_at, updated_at
		FROM intake_submissions
		WHERE id = $1 AND expires_at > NOW()
	`, subID)

	return scanSubmission(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*submission.Submission, error) {
	var sub submission.Submission
	var data []byte

	err := row.Scan(
		&sub.IdempotencyKey, &sub.ID, &sub.JobID, &sub.ApplicationID,
		&sub.UserID, &data, &sub.ExpiresAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, intake.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intake/postgres: scan submission: %w", err)
	}

	sub.Data = data

	return &sub, nil
}
