// Package idempotency implements the persistent key/value ledger that
// converts client retries and concurrent duplicate submissions into
// cached replays and conflicts. The unique constraint on (key, tenant)
// is the orchestration layer's sole concurrency primitive.
package idempotency

import (
	"time"

	"github.com/hestami-ai/steward"
)

// Status is the lifecycle state of an idempotency record.
type Status string

const (
	// StatusReserved marks an in-flight operation with no response yet.
	StatusReserved Status = "reserved"
	// StatusCompleted marks an operation whose response is cached.
	StatusCompleted Status = "completed"
)

// Record is one row of the idempotency ledger. At most one reserved or
// completed record exists per (key, tenant) at any time.
type Record struct {
	steward.Entity

	Key        string    `json:"key"`
	TenantID   string    `json:"tenant_id"`
	Status     Status    `json:"status"`
	Response   []byte    `json:"response,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its TTL at the given time.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
