package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/job"
	"github.com/mwerk/intake/pipeline"
)

// CreateStatus inserts a new job status, failing if one already exists.
func (s *Store) CreateStatus(ctx context.Context, st *job.Status) error {
	steps, err := json.Marshal(st.Steps)
	if err != nil {
		return fmt.Errorf("intake/postgres: marshal steps: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO intake_jobs
			(id, submission_id, application_id, user_id, state, progress,
			 current_step, total_steps, steps, execution_ref, last_error,
			 started_at, completed_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		st.ID, st.SubmissionID, st.ApplicationID, st.UserID,
		string(st.State), st.Progress, st.CurrentStep.String(), st.TotalSteps,
		steps, st.ExecutionRef, st.Error,
		st.StartedAt, st.CompletedAt, st.ExpiresAt, st.CreatedAt, st.UpdatedAt,
	)
	if isDuplicateKey(err) {
		return intake.ErrJobExists
	}
	if err != nil {
		return fmt.Errorf("intake/postgres: create status: %w", err)
	}

	return nil
}

// GetStatus loads a live job status by ID.
func (s *Store) GetStatus(ctx context.Context, jobID id.JobID) (*job.Status, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, submission_id, application_id, user_id, state, progress,
		       current_step, total_steps, steps,
		       COALESCE(execution_ref, ''), COALESCE(last_error, ''),
		       started_at, completed_at, expires_at, created_at, updated_at
		FROM intake_jobs
		WHERE id = $1 AND expires_at > NOW()
	`, jobID)

	var st job.Status
	var state, currentStep string
	var steps []byte

	err := row.Scan(
		&st.ID, &st.SubmissionID, &st.ApplicationID, &st.UserID,
		&state, &st.Progress, &currentStep, &st.TotalSteps, &steps,
		&st.ExecutionRef, &st.Error,
		&st.StartedAt, &st.CompletedAt, &st.ExpiresAt, &st.CreatedAt, &st.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, intake.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("intake/postgres: scan status: %w", err)
	}

	st.State = pipeline.JobState(state)

	step, err := pipeline.ParseStep(currentStep)
	if err != nil {
		return nil, fmt.Errorf("intake/postgres: job %s: %w", st.ID, err)
	}
	st.CurrentStep = step

	if err := json.Unmarshal(steps, &st.Steps); err != nil {
		return nil, fmt.Errorf("intake/postgres: unmarshal steps: %w", err)
	}

	return &st, nil
}

// UpdateStatus overwrites an existing live status row.
func (s *Store) UpdateStatus(ctx context.Context, st *job.Status) error {
	steps, err := json.Marshal(st.Steps)
	if err != nil {
		return fmt.Errorf("intake/postgres: marshal steps: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE intake_jobs SET
			state         = $2,
			progress      = $3,
			current_step  = $4,
			steps         = $5,
			execution_ref = $6,
			last_error    = $7,
			started_at    = $8,
			completed_at  = $9,
			updated_at    = $10
		WHERE id = $1 AND expires_at > NOW()
	`,
		st.ID, string(st.State), st.Progress, st.CurrentStep.String(),
		steps, st.ExecutionRef, st.Error,
		st.StartedAt, st.CompletedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("intake/postgres: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return intake.ErrJobNotFound
	}

	return nil
}
