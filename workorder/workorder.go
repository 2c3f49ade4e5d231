// Package workorder defines the governance-side Work Order entity: the
// HOA-approved unit of work a service job may be twinned with.
package workorder

import (
	"context"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/id"
)

// Status is the lifecycle state of a work order.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusApproved   Status = "APPROVED"
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOnHold     Status = "ON_HOLD"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusClosed     Status = "CLOSED"
)

// transitions is the legal status machine. Twin syncs go through the
// same table, so states reachable by sync (completion or cancellation
// propagated from the service job) are reachable from every active
// state.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusApproved, StatusCancelled},
	StatusApproved:   {StatusScheduled, StatusInProgress, StatusOnHold, StatusCancelled},
	StatusScheduled:  {StatusInProgress, StatusOnHold, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusOnHold, StatusCompleted, StatusCancelled},
	StatusOnHold:     {StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusClosed},
	StatusCancelled:  {StatusClosed},
	StatusClosed:     {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether s → to is a legal transition.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Rank orders statuses along the draft → active → closed lifecycle.
// Status mapping tables must be monotone with respect to this order.
func (s Status) Rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusApproved:
		return 1
	case StatusScheduled:
		return 2
	case StatusInProgress, StatusOnHold:
		return 3
	case StatusCompleted, StatusCancelled:
		return 4
	case StatusClosed:
		return 5
	default:
		return -1
	}
}

// WorkOrder is a governance-approved unit of work, scoped to a tenant.
type WorkOrder struct {
	steward.Entity

	ID          id.ID  `json:"id"`
	TenantID    string `json:"tenant_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PropertyRef string `json:"property_ref,omitempty"`
	Status      Status `json:"status"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// Store defines the persistence contract for work orders.
type Store interface {
	// UpsertWorkOrder inserts or replaces a work order keyed on its ID.
	// Upsert semantics make the persist step safe to re-run.
	UpsertWorkOrder(ctx context.Context, wo *WorkOrder) error

	// GetWorkOrder retrieves a work order by ID within the tenant
	// scope. Returns steward.ErrWorkOrderNotFound if absent.
	GetWorkOrder(ctx context.Context, tenantID string, workOrderID id.ID) (*WorkOrder, error)

	// DeleteWorkOrder removes a work order within the tenant scope.
	DeleteWorkOrder(ctx context.Context, tenantID string, workOrderID id.ID) error

	// AppendHistory records a status change, idempotently by row ID.
	AppendHistory(ctx context.Context, change *steward.StatusChange) error

	// ListHistory returns an entity's status changes, oldest first.
	ListHistory(ctx context.Context, tenantID, entityID string) ([]*steward.StatusChange, error)
}
