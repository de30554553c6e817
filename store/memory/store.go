// Package memory provides a fully in-memory store backend.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/job"
	"github.com/mwerk/intake/submission"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ submission.Store = (*Store)(nil)
	_ job.Store        = (*Store)(nil)
)

// Store is an in-memory implementation of store.Store. Expiry is lazy:
// expired records are invisible to reads and reclaimed by PurgeExpired.
type Store struct {
	mu sync.RWMutex

	// submissions by idempotency key; byID maps submission ID to key.
	submissions map[string]*submission.Submission
	byID        map[string]string

	statuses map[string]*job.Status
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		submissions: make(map[string]*submission.Submission),
		byID:        make(map[string]string),
		statuses:    make(map[string]*job.Status),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// PurgeExpired removes all records past their retention deadline.
func (m *Store) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for key, sub := range m.submissions {
		if sub.Expired(now) {
			delete(m.submissions, key)
			delete(m.byID, sub.ID.String())
			purged++
		}
	}
	for key, st := range m.statuses {
		if st.Expired(now) {
			delete(m.statuses, key)
			purged++
		}
	}

	return purged, nil
}

// ──────────────────────────────────────────────────
// Submission Store
// ──────────────────────────────────────────────────

// PutSubmission inserts a submission if its idempotency key is unclaimed.
// An existing live record wins; an expired one is replaced.
func (m *Store) PutSubmission(_ context.Context, sub *submission.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.submissions[sub.IdempotencyKey]; ok {
		if !existing.Expired(time.Now().UTC()) {
			return intake.ErrSubmissionExists
		}
		delete(m.byID, existing.ID.String())
	}

	m.submissions[sub.IdempotencyKey] = sub.Clone()
	m.byID[sub.ID.String()] = sub.IdempotencyKey

	return nil
}

// GetSubmissionByKey loads the live submission stored under a key.
func (m *Store) GetSubmissionByKey(_ context.Context, key string) (*submission.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.submissions[key]
	if !ok || sub.Expired(time.Now().UTC()) {
		return nil, intake.ErrSubmissionNotFound
	}

	return sub.Clone(), nil
}

// GetSubmission loads a live submission by ID.
func (m *Store) GetSubmission(_ context.Context, subID id.SubmissionID) (*submission.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.byID[subID.String()]
	if !ok {
		return nil, intake.ErrSubmissionNotFound
	}

	sub, ok := m.submissions[key]
	if !ok || sub.Expired(time.Now().UTC()) {
		return nil, intake.ErrSubmissionNotFound
	}

	return sub.Clone(), nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateStatus persists the initial status of a new job.
func (m *Store) CreateStatus(_ context.Context, st *job.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := st.ID.String()
	if _, exists := m.statuses[key]; exists {
		return intake.ErrJobExists
	}
	m.statuses[key] = st.Clone()

	return nil
}

// GetStatus loads a live job status by ID.
func (m *Store) GetStatus(_ context.Context, jobID id.JobID) (*job.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.statuses[jobID.String()]
	if !ok || st.Expired(time.Now().UTC()) {
		return nil, intake.ErrJobNotFound
	}

	return st.Clone(), nil
}

// UpdateStatus overwrites an existing job status.
func (m *Store) UpdateStatus(_ context.Context, st *job.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := st.ID.String()
	if _, exists := m.statuses[key]; !exists {
		return intake.ErrJobNotFound
	}
	m.statuses[key] = st.Clone()

	return nil
}
