package intake

import "time"

// Config holds tuning knobs for the intake subsystem.
type Config struct {
	// MaxRetries is the number of automatic retries per pipeline step
	// after the initial attempt. A step that has failed MaxRetries+1
	// times in total is terminal.
	MaxRetries int

	// RetryDelays is the backoff schedule indexed by retry attempt.
	// Attempts beyond the table length reuse the last entry.
	RetryDelays []time.Duration

	// StepTimeout bounds a single step execution in the in-process
	// engine. Zero means no deadline.
	StepTimeout time.Duration

	// SubmissionTTL is how long submission records are retained before
	// they are eligible for garbage collection.
	SubmissionTTL time.Duration

	// JobTTL is how long job-status records are retained.
	JobTTL time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		RetryDelays:     []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
		StepTimeout:     2 * time.Minute,
		SubmissionTTL:   30 * 24 * time.Hour,
		JobTTL:          7 * 24 * time.Hour,
		ShutdownTimeout: 30 * time.Second,
	}
}
