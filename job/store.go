package job

import (
	"context"

	"github.com/mwerk/intake/id"
)

// Store is the persistence interface for job statuses.
//
// Implementations must return intake.ErrJobExists from CreateStatus when a
// status with the same ID already exists, and intake.ErrJobNotFound from
// GetStatus and UpdateStatus when no status exists for the ID.
type Store interface {
	// CreateStatus persists the initial status of a new job.
	CreateStatus(ctx context.Context, st *Status) error

	// GetStatus loads a job status by ID.
	GetStatus(ctx context.Context, jobID id.JobID) (*Status, error)

	// UpdateStatus overwrites an existing job status.
	UpdateStatus(ctx context.Context, st *Status) error
}
