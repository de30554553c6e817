// Package store defines the aggregate persistence interface. Each subsystem
// (submission, job) defines its own store interface; the composite Store
// composes them all. Backends: Postgres, Redis, and Memory.
package store

import (
	"context"
	"time"

	"github.com/mwerk/intake/job"
	"github.com/mwerk/intake/submission"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, redis, memory) implements all of them.
type Store interface {
	submission.Store
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// PurgeExpired deletes submissions and job statuses whose retention
	// deadline has passed, returning how many records were removed.
	// Backends with native expiry may return 0 unconditionally.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// Close closes the store connection.
	Close() error
}
