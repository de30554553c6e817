// Package redis implements store.Store using Redis. Records are stored as
// JSON values with native Redis expiry carrying the retention policy, and
// submission dedup rides on SETNX: the first writer of an idempotency key
// wins, atomically, across all processes sharing the Redis instance.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mwerk/intake/job"
	"github.com/mwerk/intake/submission"
)

// Compile-time interface checks.
var (
	_ submission.Store = (*Store)(nil)
	_ job.Store        = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// PurgeExpired is a no-op for Redis: native key expiry enforces retention.
func (s *Store) PurgeExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ttlUntil converts a retention deadline into a Redis TTL. A zero deadline
// means no expiry.
func ttlUntil(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Already past the deadline; expire immediately rather than never.
		return time.Millisecond
	}
	return ttl
}
