package intake

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("intake: no store configured")
	ErrNoEngine    = errors.New("intake: no execution engine configured")
	ErrStoreClosed = errors.New("intake: store closed")

	// Not found errors.
	ErrSubmissionNotFound = errors.New("intake: submission not found")
	ErrJobNotFound        = errors.New("intake: job not found")
	ErrStepNotFound       = errors.New("intake: step not found")
	ErrExecutionNotFound  = errors.New("intake: execution not found")

	// Conflict errors. ErrSubmissionExists signals the dedup guard fired;
	// callers treat it as success, not failure.
	ErrSubmissionExists = errors.New("intake: submission already exists")
	ErrJobExists        = errors.New("intake: job already exists")

	// State errors.
	ErrInvalidTransition  = errors.New("intake: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("intake: max retries exceeded")
)
