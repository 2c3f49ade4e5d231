package steward

import "time"

// Config holds configuration for the orchestration engine.
type Config struct {
	// IdempotencyTTL is how long a completed or reserved idempotency
	// record remains valid. A retry after expiry re-executes the
	// operation (at-least-once across the TTL boundary).
	IdempotencyTTL time.Duration

	// SweepSchedule is the cron expression for the out-of-band expiry
	// sweep of the idempotency ledger.
	SweepSchedule string

	// ActionTimeout bounds a single action execution. Zero disables
	// the deadline.
	ActionTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		IdempotencyTTL: 24 * time.Hour,
		SweepSchedule:  "@hourly",
		ActionTimeout:  30 * time.Second,
	}
}
