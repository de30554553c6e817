package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/submission"
)

// PutSubmission inserts the record under its idempotency key using SETNX.
// The first writer wins; everyone else gets intake.ErrSubmissionExists.
func (s *Store) PutSubmission(ctx context.Context, sub *submission.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("intake/redis: marshal submission: %w", err)
	}

	ttl := ttlUntil(sub.ExpiresAt)

	ok, err := s.client.SetNX(ctx, submissionKey(sub.IdempotencyKey), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("intake/redis: put submission: %w", err)
	}
	if !ok {
		return intake.ErrSubmissionExists
	}

	// Secondary index for lookup by ID, same lifetime as the record.
	if err := s.client.Set(ctx, submissionIDKey(sub.ID.String()), sub.IdempotencyKey, ttl).Err(); err != nil {
		return fmt.Errorf("intake/redis: index submission id: %w", err)
	}

	return nil
}

// GetSubmissionByKey loads the submission stored under an idempotency key.
func (s *Store) GetSubmissionByKey(ctx context.Context, key string) (*submission.Submission, error) {
	raw, err := s.client.Get(ctx, submissionKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, intake.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intake/redis: get submission by key: %w", err)
	}

	var sub submission.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("intake/redis: unmarshal submission: %w", err)
	}

	return &sub, nil
}

// GetSubmission loads a submission by ID via the ID index.
func (s *Store) GetSubmission(ctx context.Context, subID id.SubmissionID) (*submission.Submission, error) {
	idemKey, err := s.client.Get(ctx, submissionIDKey(subID.String())).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, intake.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intake/redis: resolve submission id: %w", err)
	}

	return s.GetSubmissionByKey(ctx, idemKey)
}
