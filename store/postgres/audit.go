package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hestami-ai/steward/audit"
)

// AppendEvent persists an audit event. Events are immutable once written.
func (s *Store) AppendEvent(ctx context.Context, event *audit.Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("steward/postgres: encode audit metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO steward_audit_events (
			id, tenant_id, entity_type, entity_id, action_type, category,
			summary, actor_id, previous_state, new_state, metadata, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID.String(), event.TenantID, event.EntityType, event.EntityID,
		event.ActionType, event.Category, event.Summary, event.ActorID,
		event.PreviousState, event.NewState, metadata, event.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: append audit event: %w", err)
	}
	return nil
}

// ListEvents returns events matching the given options, oldest first.
func (s *Store) ListEvents(ctx context.Context, opts audit.ListOpts) ([]*audit.Event, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, tenant_id, entity_type, entity_id, action_type, category,
			summary, actor_id, previous_state, new_state, metadata, recorded_at
		FROM steward_audit_events`)

	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if opts.TenantID != "" {
		add("tenant_id = $%d", opts.TenantID)
	}
	if opts.EntityType != "" {
		add("entity_type = $%d", opts.EntityType)
	}
	if opts.EntityID != "" {
		add("entity_id = $%d", opts.EntityID)
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY recorded_at ASC")
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("steward/postgres: list audit events: %w", err)
	}
	defer rows.Close()

	var events []*audit.Event
	for rows.Next() {
		var ev audit.Event
		var metadata []byte
		if scanErr := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.EntityType, &ev.EntityID,
			&ev.ActionType, &ev.Category, &ev.Summary, &ev.ActorID,
			&ev.PreviousState, &ev.NewState, &metadata, &ev.RecordedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("steward/postgres: scan audit event: %w", scanErr)
		}
		if len(metadata) > 0 {
			if decodeErr := json.Unmarshal(metadata, &ev.Metadata); decodeErr != nil {
				return nil, fmt.Errorf("steward/postgres: decode audit metadata: %w", decodeErr)
			}
		}
		events = append(events, &ev)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("steward/postgres: list audit events: %w", rowsErr)
	}
	return events, nil
}
