package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/job"
)

// CreateStatus inserts a new job status, failing if one already exists.
func (s *Store) CreateStatus(ctx context.Context, st *job.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("intake/redis: marshal status: %w", err)
	}

	ok, err := s.client.SetNX(ctx, jobKey(st.ID.String()), payload, ttlUntil(st.ExpiresAt)).Result()
	if err != nil {
		return fmt.Errorf("intake/redis: create status: %w", err)
	}
	if !ok {
		return intake.ErrJobExists
	}

	return nil
}

// GetStatus loads a job status by ID.
func (s *Store) GetStatus(ctx context.Context, jobID id.JobID) (*job.Status, error) {
	raw, err := s.client.Get(ctx, jobKey(jobID.String())).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, intake.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intake/redis: get status: %w", err)
	}

	var st job.Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("intake/redis: unmarshal status: %w", err)
	}

	return &st, nil
}

// UpdateStatus overwrites an existing status, preserving its TTL.
func (s *Store) UpdateStatus(ctx context.Context, st *job.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("intake/redis: marshal status: %w", err)
	}

	// XX: only set if the key exists, keeping the original expiry.
	res, err := s.client.SetArgs(ctx, jobKey(st.ID.String()), payload, goredis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Result()
	if errors.Is(err, goredis.Nil) || res == "" {
		return intake.ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("intake/redis: update status: %w", err)
	}

	return nil
}
