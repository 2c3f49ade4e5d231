// Package servicejob defines the operations-side Service Job entity:
// the unit of contractor field work. A service job may be twinned with a
// governance work order; the twin link (WorkOrderID) lives here, on the
// dependent entity.
package servicejob

import (
	"context"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/id"
)

// Status is the lifecycle state of a service job.
type Status string

const (
	StatusSubmitted  Status = "SUBMITTED"
	StatusTriaged    Status = "TRIAGED"
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOnHold     Status = "ON_HOLD"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusClosed     Status = "CLOSED"
)

// transitions is the legal status machine. Twin syncs go through the
// same table, so target states reachable by sync (completion or
// cancellation propagated from the work order) are reachable from every
// active state.
var transitions = map[Status][]Status{
	StatusSubmitted:  {StatusTriaged, StatusCancelled},
	StatusTriaged:    {StatusScheduled, StatusOnHold, StatusCancelled},
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
	case StatusSubmitted:
		return 0
	case StatusTriaged:
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

// ServiceJob is one unit of contractor field work, scoped to a tenant.
type ServiceJob struct {
	steward.Entity

	ID          id.ID  `json:"id"`
	TenantID    string `json:"tenant_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PropertyRef string `json:"property_ref,omitempty"`
	Status      Status `json:"status"`
	CreatedBy   string `json:"created_by,omitempty"`

	// WorkOrderID is the twin link to the governance work order.
	// Nil until a twin is created; set exactly once.
	WorkOrderID id.ID `json:"work_order_id,omitempty"`
}

// Store defines the persistence contract for service jobs.
type Store interface {
	// UpsertServiceJob inserts or replaces a job keyed on its ID.
	// Upsert semantics make the persist step safe to re-run.
	UpsertServiceJob(ctx context.Context, j *ServiceJob) error

	// GetServiceJob retrieves a job by ID within the tenant scope.
	// Returns steward.ErrServiceJobNotFound if absent.
	GetServiceJob(ctx context.Context, tenantID string, jobID id.ID) (*ServiceJob, error)

	// FindByWorkOrder returns the job linked to the given work order,
	// or steward.ErrServiceJobNotFound if no twin link exists.
	FindByWorkOrder(ctx context.Context, tenantID string, workOrderID id.ID) (*ServiceJob, error)

	// DeleteServiceJob removes a job within the tenant scope.
	DeleteServiceJob(ctx context.Context, tenantID string, jobID id.ID) error

	// AppendHistory records a status change, idempotently by row ID.
	AppendHistory(ctx context.Context, change *steward.StatusChange) error

	// ListHistory returns an entity's status changes, oldest first.
	ListHistory(ctx context.Context, tenantID, entityID string) ([]*steward.StatusChange, error)
}
