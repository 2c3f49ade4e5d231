package idempotency

import (
	"context"
	"time"
)

// Store defines the persistence contract for the idempotency ledger.
// Backends must make Reserve atomic: two concurrent reservations for the
// same (key, tenant) must resolve to exactly one winner.
type Store interface {
	// Reserve atomically inserts a reserved record with the given TTL.
	// Returns steward.ErrKeyReserved if a non-expired record already
	// exists; the caller must then inspect the existing record.
	Reserve(ctx context.Context, key, tenantID string, ttl time.Duration) error

	// LookupRecord retrieves the record for (key, tenant). Expired
	// records are treated as absent, purged lazily, and reported as
	// steward.ErrRecordNotFound.
	LookupRecord(ctx context.Context, key, tenantID string) (*Record, error)

	// CompleteRecord transitions a reserved record to completed,
	// caching the response and refreshing the TTL window.
	CompleteRecord(ctx context.Context, key, tenantID string, response []byte, statusCode int, ttl time.Duration) error

	// DeleteRecord removes a record unconditionally. Administrative
	// use only (forced retry of a stranded reservation).
	DeleteRecord(ctx context.Context, key, tenantID string) error

	// SweepExpired bulk-deletes records past their expiry and returns
	// the count. Intended for the scheduled sweep, not the request path.
	SweepExpired(ctx context.Context) (int, error)
}
