package middleware

import (
	"context"
	"time"

	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/pipeline"
)

// Timeout returns middleware that enforces a per-step execution deadline.
// With a non-zero duration, a context.WithTimeout wraps the handler call.
// When the deadline is exceeded the context is cancelled and the handler
// should return context.DeadlineExceeded.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ exec.Input, _ pipeline.Step, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
