package workflow

import "context"

// ListOpts controls filtering and pagination for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
}

// Store defines the persistence contract for workflow runs and
// checkpoints.
type Store interface {
	// CreateRun persists a new run. Returns steward.ErrRunExists if a
	// run with the same key already exists (two requests raced past the
	// idempotency reservation; the loser must re-read and follow the
	// winner's run).
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by key. Returns steward.ErrRunNotFound if
	// absent.
	GetRun(ctx context.Context, runKey string) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs matching the given options.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)

	// SaveCheckpoint persists checkpoint data for a step. If a
	// checkpoint already exists for the same run/step, it is replaced.
	SaveCheckpoint(ctx context.Context, runKey, stepName string, data []byte) error

	// GetCheckpoint retrieves checkpoint data for a specific step.
	// Returns nil data (and nil error) if no checkpoint exists.
	GetCheckpoint(ctx context.Context, runKey, stepName string) ([]byte, error)

	// ListCheckpoints returns all checkpoints for a run in creation order.
	ListCheckpoints(ctx context.Context, runKey string) ([]*Checkpoint, error)
}
