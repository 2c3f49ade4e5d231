package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/workflow"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steward_workflow_runs (
			key, name, state, input, output, error, error_kind,
			tenant_id, actor_id, started_at, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13
		)`,
		run.Key, run.Name, string(run.State), run.Input, run.Output,
		run.Error, run.ErrorKind, run.TenantID, run.ActorID,
		run.StartedAt, run.CompletedAt, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return steward.ErrRunExists
		}
		return fmt.Errorf("steward/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by key.
func (s *Store) GetRun(ctx context.Context, runKey string) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, name, state, input, output, error, error_kind,
			tenant_id, actor_id, started_at, completed_at, created_at, updated_at
		FROM steward_workflow_runs
		WHERE key = $1`,
		runKey,
	)

	var run workflow.Run
	err := row.Scan(
		&run.Key, &run.Name, &run.State, &run.Input, &run.Output,
		&run.Error, &run.ErrorKind, &run.TenantID, &run.ActorID,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, steward.ErrRunNotFound
		}
		return nil, fmt.Errorf("steward/postgres: get run: %w", err)
	}
	return &run, nil
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE steward_workflow_runs SET
			name = $2, state = $3, input = $4, output = $5,
			error = $6, error_kind = $7, tenant_id = $8, actor_id = $9,
			started_at = $10, completed_at = $11, updated_at = NOW()
		WHERE key = $1`,
		run.Key, run.Name, string(run.State), run.Input, run.Output,
		run.Error, run.ErrorKind, run.TenantID, run.ActorID,
		run.StartedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steward.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching the given options.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT key, name, state, input, output, error, error_kind,
			tenant_id, actor_id, started_at, completed_at, created_at, updated_at
		FROM steward_workflow_runs`)

	args := make([]any, 0, 3)
	if opts.State != "" {
		args = append(args, string(opts.State))
		fmt.Fprintf(&sb, " WHERE state = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at ASC")
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("steward/postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		var run workflow.Run
		if scanErr := rows.Scan(
			&run.Key, &run.Name, &run.State, &run.Input, &run.Output,
			&run.Error, &run.ErrorKind, &run.TenantID, &run.ActorID,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("steward/postgres: scan run: %w", scanErr)
		}
		runs = append(runs, &run)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("steward/postgres: list runs: %w", rowsErr)
	}
	return runs, nil
}

// SaveCheckpoint persists checkpoint data for a workflow step.
// If a checkpoint already exists for the same run/step, it is replaced.
func (s *Store) SaveCheckpoint(ctx context.Context, runKey, stepName string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steward_workflow_checkpoints (id, run_key, step_name, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_key, step_name) DO UPDATE SET
			data = EXCLUDED.data,
			created_at = EXCLUDED.created_at`,
		id.NewCheckpointID().String(), runKey, stepName, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific workflow step.
// Returns nil data if no checkpoint exists.
func (s *Store) GetCheckpoint(ctx context.Context, runKey, stepName string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM steward_workflow_checkpoints
		WHERE run_key = $1 AND step_name = $2`,
		runKey, stepName,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, nil // no checkpoint is not an error
		}
		return nil, fmt.Errorf("steward/postgres: get checkpoint: %w", err)
	}
	return data, nil
}

// ListCheckpoints returns all checkpoints for a workflow run.
func (s *Store) ListCheckpoints(ctx context.Context, runKey string) ([]*workflow.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_key, step_name, data, created_at
		FROM steward_workflow_checkpoints
		WHERE run_key = $1
		ORDER BY created_at ASC`,
		runKey,
	)
	if err != nil {
		return nil, fmt.Errorf("steward/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*workflow.Checkpoint
	for rows.Next() {
		var ckpt workflow.Checkpoint
		if scanErr := rows.Scan(&ckpt.ID, &ckpt.RunKey, &ckpt.StepName, &ckpt.Data, &ckpt.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("steward/postgres: scan checkpoint: %w", scanErr)
		}
		checkpoints = append(checkpoints, &ckpt)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("steward/postgres: list checkpoints: %w", rowsErr)
	}
	return checkpoints, nil
}
