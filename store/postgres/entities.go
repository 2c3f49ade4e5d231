package postgres

import (
	"context"
	"fmt"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/violation"
	"github.com/hestami-ai/steward/workorder"
)

// ──────────────────────────────────────────────────
// Work orders
// ──────────────────────────────────────────────────

// UpsertWorkOrder inserts or replaces a work order keyed on its ID.
func (s *Store) UpsertWorkOrder(ctx context.Context, wo *workorder.WorkOrder) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steward_work_orders (
			id, tenant_id, title, description, property_ref, status,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			property_ref = EXCLUDED.property_ref,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		wo.ID.String(), wo.TenantID, wo.Title, wo.Description,
		wo.PropertyRef, string(wo.Status), wo.CreatedBy,
		wo.CreatedAt, wo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: upsert work order: %w", err)
	}
	return nil
}

// GetWorkOrder retrieves a work order by ID within the tenant scope.
func (s *Store) GetWorkOrder(ctx context.Context, tenantID string, workOrderID id.ID) (*workorder.WorkOrder, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, description, property_ref, status,
			created_by, created_at, updated_at
		FROM steward_work_orders
		WHERE id = $1 AND tenant_id = $2`,
		workOrderID.String(), tenantID,
	)

	var wo workorder.WorkOrder
	err := row.Scan(
		&wo.ID, &wo.TenantID, &wo.Title, &wo.Description, &wo.PropertyRef,
		&wo.Status, &wo.CreatedBy, &wo.CreatedAt, &wo.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, steward.ErrWorkOrderNotFound
		}
		return nil, fmt.Errorf("steward/postgres: get work order: %w", err)
	}
	return &wo, nil
}

// DeleteWorkOrder removes a work order within the tenant scope.
func (s *Store) DeleteWorkOrder(ctx context.Context, tenantID string, workOrderID id.ID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM steward_work_orders
		WHERE id = $1 AND tenant_id = $2`,
		workOrderID.String(), tenantID,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: delete work order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steward.ErrWorkOrderNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Service jobs
// ──────────────────────────────────────────────────

// UpsertServiceJob inserts or replaces a job keyed on its ID.
func (s *Store) UpsertServiceJob(ctx context.Context, j *servicejob.ServiceJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steward_service_jobs (
			id, tenant_id, title, description, property_ref, status,
			created_by, work_order_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			property_ref = EXCLUDED.property_ref,
			status = EXCLUDED.status,
			work_order_id = EXCLUDED.work_order_id,
			updated_at = EXCLUDED.updated_at`,
		j.ID.String(), j.TenantID, j.Title, j.Description,
		j.PropertyRef, string(j.Status), j.CreatedBy, j.WorkOrderID,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: upsert service job: %w", err)
	}
	return nil
}

// GetServiceJob retrieves a job by ID within the tenant scope.
func (s *Store) GetServiceJob(ctx context.Context, tenantID string, jobID id.ID) (*servicejob.ServiceJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, description, property_ref, status,
			created_by, work_order_id, created_at, updated_at
		FROM steward_service_jobs
		WHERE id = $1 AND tenant_id = $2`,
		jobID.String(), tenantID,
	)
	return scanServiceJob(row)
}

// FindByWorkOrder returns the job linked to the given work order.
func (s *Store) FindByWorkOrder(ctx context.Context, tenantID string, workOrderID id.ID) (*servicejob.ServiceJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, title, description, property_ref, status,
			created_by, work_order_id, created_at, updated_at
		FROM steward_service_jobs
		WHERE tenant_id = $1 AND work_order_id = $2`,
		tenantID, workOrderID.String(),
	)
	return scanServiceJob(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServiceJob(row rowScanner) (*servicejob.ServiceJob, error) {
	var j servicejob.ServiceJob
	err := row.Scan(
		&j.ID, &j.TenantID, &j.Title, &j.Description, &j.PropertyRef,
		&j.Status, &j.CreatedBy, &j.WorkOrderID, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, steward.ErrServiceJobNotFound
		}
		return nil, fmt.Errorf("steward/postgres: scan service job: %w", err)
	}
	return &j, nil
}

// DeleteServiceJob removes a job within the tenant scope.
func (s *Store) DeleteServiceJob(ctx context.Context, tenantID string, jobID id.ID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM steward_service_jobs
		WHERE id = $1 AND tenant_id = $2`,
		jobID.String(), tenantID,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: delete service job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steward.ErrServiceJobNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Violations
// ──────────────────────────────────────────────────

// UpsertViolation inserts or replaces a violation keyed on its ID.
func (s *Store) UpsertViolation(ctx context.Context, v *violation.Violation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steward_violations (
			id, tenant_id, rule_ref, description, property_ref, status,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			rule_ref = EXCLUDED.rule_ref,
			description = EXCLUDED.description,
			property_ref = EXCLUDED.property_ref,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		v.ID.String(), v.TenantID, v.RuleRef, v.Description,
		v.PropertyRef, string(v.Status), v.CreatedBy,
		v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: upsert violation: %w", err)
	}
	return nil
}

// GetViolation retrieves a violation by ID within the tenant scope.
func (s *Store) GetViolation(ctx context.Context, tenantID string, violationID id.ID) (*violation.Violation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, rule_ref, description, property_ref, status,
			created_by, created_at, updated_at
		FROM steward_violations
		WHERE id = $1 AND tenant_id = $2`,
		violationID.String(), tenantID,
	)

	var v violation.Violation
	err := row.Scan(
		&v.ID, &v.TenantID, &v.RuleRef, &v.Description, &v.PropertyRef,
		&v.Status, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, steward.ErrViolationNotFound
		}
		return nil, fmt.Errorf("steward/postgres: get violation: %w", err)
	}
	return &v, nil
}

// DeleteViolation removes a violation within the tenant scope.
func (s *Store) DeleteViolation(ctx context.Context, tenantID string, violationID id.ID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM steward_violations
		WHERE id = $1 AND tenant_id = $2`,
		violationID.String(), tenantID,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: delete violation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steward.ErrViolationNotFound
	}
	return nil
}

// ──────────────────────────────────────────────────
// Status history
// ──────────────────────────────────────────────────

// AppendHistory records a status change. Re-appending the same row ID is
// a no-op, so a re-executed persist step writes exactly one row.
func (s *Store) AppendHistory(ctx context.Context, change *steward.StatusChange) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO steward_status_history (
			id, tenant_id, entity_type, entity_id, from_status, to_status,
			actor_id, changed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		change.ID, change.TenantID, change.EntityType, change.EntityID,
		change.From, change.To, change.ActorID, change.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: append status history: %w", err)
	}
	return nil
}

// ListHistory returns an entity's status changes, oldest first.
func (s *Store) ListHistory(ctx context.Context, tenantID, entityID string) ([]*steward.StatusChange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, entity_type, entity_id, from_status, to_status,
			actor_id, changed_at
		FROM steward_status_history
		WHERE tenant_id = $1 AND entity_id = $2
		ORDER BY changed_at ASC`,
		tenantID, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("steward/postgres: list status history: %w", err)
	}
	defer rows.Close()

	var changes []*steward.StatusChange
	for rows.Next() {
		var change steward.StatusChange
		if scanErr := rows.Scan(
			&change.ID, &change.TenantID, &change.EntityType, &change.EntityID,
			&change.From, &change.To, &change.ActorID, &change.ChangedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("steward/postgres: scan status change: %w", scanErr)
		}
		changes = append(changes, &change)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("steward/postgres: list status history: %w", rowsErr)
	}
	return changes, nil
}
