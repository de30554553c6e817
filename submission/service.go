package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/hook"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/idempotency"
	"github.com/mwerk/intake/job"
	"github.com/mwerk/intake/pipeline"
)

// Request is one submission attempt from a client.
type Request struct {
	ApplicationID string          `json:"applicationId"`
	UserID        string          `json:"userId"`
	Data          json.RawMessage `json:"submissionData,omitempty"`
}

// Result is the outcome of a submission attempt. A deduplicated result
// carries the IDs of the original submission, so clients retrying a
// request observe exactly the response they would have gotten the first
// time.
type Result struct {
	SubmissionID   id.SubmissionID `json:"submissionId"`
	JobID          id.JobID        `json:"jobId"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Deduplicated   bool            `json:"deduplicated"`
}

// Service accepts submissions idempotently and starts the processing job
// for each new one.
type Service struct {
	store   Store
	tracker *job.Tracker
	trigger *exec.Trigger
	hooks   *hook.Registry
	cfg     intake.Config
	logger  *slog.Logger
}

// NewService creates a submission service. A nil hooks registry disables
// lifecycle notifications; a nil logger falls back to slog.Default().
func NewService(store Store, tracker *job.Tracker, trigger *exec.Trigger, hooks *hook.Registry, cfg intake.Config, logger *slog.Logger) *Service {
	if hooks == nil {
		hooks = hook.NewRegistry(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:   store,
		tracker: tracker,
		trigger: trigger,
		hooks:   hooks,
		cfg:     cfg,
		logger:  logger,
	}
}

// Submit accepts a submission. Identical content from the same application
// and user maps to the already-stored submission and its job; new content
// creates a record, initializes job tracking, and starts an execution.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	key, err := idempotency.Key(req.ApplicationID, req.UserID, req.Data)
	if err != nil {
		return nil, err
	}

	sub := New(key, req.ApplicationID, req.UserID, req.Data, s.cfg.SubmissionTTL)

	err = s.store.PutSubmission(ctx, sub)
	if errors.Is(err, intake.ErrSubmissionExists) {
		return s.deduplicate(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("store submission: %w", err)
	}

	if _, err := s.tracker.Init(ctx, sub.JobID, sub.ID, sub.ApplicationID, sub.UserID, s.cfg.JobTTL); err != nil {
		return nil, fmt.Errorf("init job for submission %s: %w", sub.ID, err)
	}

	if _, err := s.trigger.StartExecution(ctx, exec.Input{
		JobID:         sub.JobID,
		SubmissionID:  sub.ID,
		ApplicationID: sub.ApplicationID,
		UserID:        sub.UserID,
		Data:          sub.Data,
		StartStep:     pipeline.StepValidation,
		Timestamp:     time.Now().UTC(),
	}); err != nil {
		// The record and job status exist; the job just never started.
		// Surface the failure so the client can retry, which dedups onto
		// this submission and can be recovered via the retry endpoint.
		return nil, fmt.Errorf("start job %s: %w", sub.JobID, err)
	}

	s.hooks.EmitSubmissionCreated(ctx, hook.SubmissionEvent{
		SubmissionID:   sub.ID,
		JobID:          sub.JobID,
		ApplicationID:  sub.ApplicationID,
		UserID:         sub.UserID,
		IdempotencyKey: key,
	})

	s.logger.Info("submission created",
		slog.String("submission_id", sub.ID.String()),
		slog.String("job_id", sub.JobID.String()),
		slog.String("application_id", sub.ApplicationID),
	)

	return &Result{
		SubmissionID:   sub.ID,
		JobID:          sub.JobID,
		IdempotencyKey: key,
	}, nil
}

// Get loads a submission by ID.
func (s *Service) Get(ctx context.Context, subID id.SubmissionID) (*Submission, error) {
	return s.store.GetSubmission(ctx, subID)
}

// deduplicate resolves a conflicting put to the stored original.
func (s *Service) deduplicate(ctx context.Context, key string) (*Result, error) {
	existing, err := s.store.GetSubmissionByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load deduplicated submission: %w", err)
	}

	s.hooks.EmitSubmissionDeduplicated(ctx, hook.SubmissionEvent{
		SubmissionID:   existing.ID,
		JobID:          existing.JobID,
		ApplicationID:  existing.ApplicationID,
		UserID:         existing.UserID,
		IdempotencyKey: key,
	})

	s.logger.Info("submission deduplicated",
		slog.String("submission_id", existing.ID.String()),
		slog.String("job_id", existing.JobID.String()),
	)

	return &Result{
		SubmissionID:   existing.ID,
		JobID:          existing.JobID,
		IdempotencyKey: key,
		Deduplicated:   true,
	}, nil
}

func validate(req Request) error {
	var missing []string
	if strings.TrimSpace(req.ApplicationID) == "" {
		missing = append(missing, "applicationId")
	}
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "userId")
	}
	if len(req.Data) > 0 && !json.Valid(req.Data) {
		missing = append(missing, "submissionData")
	}

	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	return nil
}
