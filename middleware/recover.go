package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/hestami-ai/steward"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to infrastructure errors and logged with a
// stack trace, so a panicking handler leaves its run resumable instead
// of taking down the caller.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *steward.Request, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("action handler panicked",
					slog.String("action", req.Action),
					slog.String("tenant_id", req.TenantID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = steward.Infra(fmt.Errorf("panic: %v", r), "action %s", req.Action)
			}
		}()
		return next(ctx)
	}
}
