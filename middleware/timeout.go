package middleware

import (
	"context"
	"time"

	"github.com/hestami-ai/steward"
)

// Timeout returns middleware that enforces a per-action execution
// deadline. A zero duration disables the deadline. When the deadline is
// exceeded the context is cancelled and the handler returns
// context.DeadlineExceeded, which classifies as an infrastructure error
// and leaves the run resumable.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, req *steward.Request, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
