package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/idempotency"
)

// Reserve atomically inserts a reserved record. The insert claims the
// (key, tenant_id) primary key; an expired loser row is taken over in
// place. Exactly one concurrent reservation wins either way.
func (s *Store) Reserve(ctx context.Context, key, tenantID string, ttl time.Duration) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO steward_idempotency_records (
			key, tenant_id, status, expires_at, created_at, updated_at
		) VALUES ($1, $2, 'reserved', $3, $4, $4)
		ON CONFLICT (key, tenant_id) DO UPDATE SET
			status = 'reserved',
			response = NULL,
			status_code = 0,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		WHERE steward_idempotency_records.expires_at <= NOW()`,
		key, tenantID, now.Add(ttl), now,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: reserve idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steward.ErrKeyReserved
	}
	return nil
}

// LookupRecord retrieves the record for (key, tenant), purging it lazily
// when expired.
func (s *Store) LookupRecord(ctx context.Context, key, tenantID string) (*idempotency.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, tenant_id, status, response, status_code, expires_at, created_at, updated_at
		FROM steward_idempotency_records
		WHERE key = $1 AND tenant_id = $2`,
		key, tenantID,
	)

	var rec idempotency.Record
	err := row.Scan(
		&rec.Key, &rec.TenantID, &rec.Status, &rec.Response,
		&rec.StatusCode, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, steward.ErrRecordNotFound
		}
		return nil, fmt.Errorf("steward/postgres: lookup idempotency record: %w", err)
	}

	if rec.Expired(time.Now().UTC()) {
		//nolint:errcheck // lazy purge; the sweep catches leftovers
		s.pool.Exec(ctx, `
			DELETE FROM steward_idempotency_records
			WHERE key = $1 AND tenant_id = $2 AND expires_at <= NOW()`,
			key, tenantID,
		)
		return nil, steward.ErrRecordNotFound
	}
	return &rec, nil
}

// CompleteRecord transitions a reserved record to completed, caching the
// response and refreshing the TTL window.
func (s *Store) CompleteRecord(ctx context.Context, key, tenantID string, response []byte, statusCode int, ttl time.Duration) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE steward_idempotency_records SET
			status = 'completed',
			response = $3,
			status_code = $4,
			expires_at = $5,
			updated_at = $6
		WHERE key = $1 AND tenant_id = $2`,
		key, tenantID, response, statusCode, now.Add(ttl), now,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: complete idempotency record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steward.ErrRecordNotFound
	}
	return nil
}

// DeleteRecord removes a record unconditionally.
func (s *Store) DeleteRecord(ctx context.Context, key, tenantID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM steward_idempotency_records
		WHERE key = $1 AND tenant_id = $2`,
		key, tenantID,
	)
	if err != nil {
		return fmt.Errorf("steward/postgres: delete idempotency record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return steward.ErrRecordNotFound
	}
	return nil
}

// SweepExpired bulk-deletes expired records and returns the count.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM steward_idempotency_records
		WHERE expires_at <= NOW()`,
	)
	if err != nil {
		return 0, fmt.Errorf("steward/postgres: sweep idempotency records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
