package idempotency

import (
	"context"
	"fmt"
	"log/slog"

	cronlib "github.com/robfig/cron/v3"
)

// Sweeper runs the scheduled expiry sweep that bounds ledger growth.
// Expired records are also purged lazily on lookup; the sweep catches
// keys that are never looked up again.
type Sweeper struct {
	store    Store
	cron     *cronlib.Cron
	schedule string
	logger   *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSchedule sets the cron expression (default "@hourly").
// Standard 5-field specs and descriptors like "@every 30m" are accepted.
func WithSchedule(spec string) SweeperOption {
	return func(s *Sweeper) { s.schedule = spec }
}

// WithSweeperLogger sets the logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// NewSweeper creates a sweeper over the given ledger.
func NewSweeper(store Store, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		schedule: "@hourly",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the sweep and begins the cron loop.
func (s *Sweeper) Start() error {
	s.cron = cronlib.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, sweepErr := s.SweepNow(context.Background()); sweepErr != nil {
			s.logger.Error("idempotency sweep failed",
				slog.String("error", sweepErr.Error()),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule idempotency sweep %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("idempotency sweeper started", slog.String("schedule", s.schedule))
	return nil
}

// Stop halts the cron loop, waiting for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("idempotency sweeper stopped")
}

// SweepNow runs one sweep immediately and returns the purge count.
func (s *Sweeper) SweepNow(ctx context.Context) (int, error) {
	count, err := s.store.SweepExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep expired idempotency records: %w", err)
	}
	if count > 0 {
		s.logger.Info("swept expired idempotency records", slog.Int("count", count))
	}
	return count, nil
}
