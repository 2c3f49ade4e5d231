package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/hestami-ai/steward"
)

// Logging returns middleware that logs action start and completion.
// Business failures are part of normal operation and log at info level;
// everything else logs at error level.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *steward.Request, next Handler) error {
		logger.Info("action started",
			slog.String("action", req.Action),
			slog.String("tenant_id", req.TenantID),
			slog.String("idempotency_key", req.IdempotencyKey),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			logger.Info("action completed",
				slog.String("action", req.Action),
				slog.String("tenant_id", req.TenantID),
				slog.Duration("elapsed", elapsed),
			)
		case steward.IsBusiness(err):
			logger.Info("action rejected",
				slog.String("action", req.Action),
				slog.String("tenant_id", req.TenantID),
				slog.String("kind", steward.KindOf(err).String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		default:
			logger.Error("action failed",
				slog.String("action", req.Action),
				slog.String("tenant_id", req.TenantID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		}

		return err
	}
}
