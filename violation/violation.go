// Package violation defines the governance Violation entity: a recorded
// breach of community rules that moves through notice, cure, hearing and
// appeal stages.
package violation

import (
	"context"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/id"
)

// Status is the lifecycle state of a violation.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusOpen             Status = "OPEN"
	StatusNoticeSent       Status = "NOTICE_SENT"
	StatusCurePeriod       Status = "CURE_PERIOD"
	StatusCured            Status = "CURED"
	StatusEscalated        Status = "ESCALATED"
	StatusHearingScheduled Status = "HEARING_SCHEDULED"
	StatusHearingHeld      Status = "HEARING_HELD"
	StatusFineAssessed     Status = "FINE_ASSESSED"
	StatusDismissed        Status = "DISMISSED"
	StatusAppealed         Status = "APPEALED"
	StatusClosed           Status = "CLOSED"
)

// transitions is the legal status machine. The cure and hearing stages
// are strictly ordered; outcome states may be appealed or closed.
var transitions = map[Status][]Status{
	StatusDraft:            {StatusOpen, StatusClosed},
	StatusOpen:             {StatusNoticeSent, StatusClosed},
	StatusNoticeSent:       {StatusCurePeriod},
	StatusCurePeriod:       {StatusCured, StatusEscalated},
	StatusCured:            {StatusClosed},
	StatusEscalated:        {StatusHearingScheduled},
	StatusHearingScheduled: {StatusHearingHeld},
	StatusHearingHeld:      {StatusFineAssessed, StatusDismissed},
	StatusFineAssessed:     {StatusAppealed, StatusClosed},
	StatusDismissed:        {StatusAppealed, StatusClosed},
	StatusAppealed:         {StatusClosed},
	StatusClosed:           {},
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

// Violation is one recorded rule breach, scoped to a tenant.
type Violation struct {
	steward.Entity

	ID          id.ID  `json:"id"`
	TenantID    string `json:"tenant_id"`
	RuleRef     string `json:"rule_ref"`
	Description string `json:"description,omitempty"`
	PropertyRef string `json:"property_ref,omitempty"`
	Status      Status `json:"status"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// Store defines the persistence contract for violations.
type Store interface {
	// UpsertViolation inserts or replaces a violation keyed on its ID.
	// Upsert semantics make the persist step safe to re-run.
	UpsertViolation(ctx context.Context, v *Violation) error

	// GetViolation retrieves a violation by ID within the tenant scope.
	// Returns steward.ErrViolationNotFound if absent.
	GetViolation(ctx context.Context, tenantID string, violationID id.ID) (*Violation, error)

	// DeleteViolation removes a violation within the tenant scope.
	DeleteViolation(ctx context.Context, tenantID string, violationID id.ID) error

	// AppendHistory records a status change, idempotently by row ID.
	AppendHistory(ctx context.Context, change *steward.StatusChange) error

	// ListHistory returns an entity's status changes, oldest first.
	ListHistory(ctx context.Context, tenantID, entityID string) ([]*steward.StatusChange, error)
}
