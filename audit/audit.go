// Package audit defines the immutable activity trail the orchestration
// layer appends to. Recording is best-effort from the caller's
// perspective: a failure to record never rolls back the primary
// mutation, but the append is attempted synchronously within the same
// workflow step.
package audit

import (
	"context"
	"time"

	"github.com/hestami-ai/steward/id"
)

// Audit event action types.
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionStatusChanged = "status_changed"
	ActionDeleted       = "deleted"
	ActionTwinLinked    = "twin_linked"
)

// Audit event categories group related actions by domain.
const (
	CategoryGovernance = "governance"
	CategoryOperations = "operations"
)

// Event describes one thing that happened to one entity.
type Event struct {
	ID            id.ID          `json:"id" bson:"_id"`
	TenantID      string         `json:"tenant_id" bson:"tenant_id"`
	EntityType    string         `json:"entity_type" bson:"entity_type"`
	EntityID      string         `json:"entity_id" bson:"entity_id"`
	ActionType    string         `json:"action_type" bson:"action_type"`
	Category      string         `json:"category" bson:"category"`
	Summary       string         `json:"summary" bson:"summary"`
	ActorID       string         `json:"actor_id" bson:"actor_id"`
	PreviousState string         `json:"previous_state,omitempty" bson:"previous_state,omitempty"`
	NewState      string         `json:"new_state,omitempty" bson:"new_state,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	RecordedAt    time.Time      `json:"recorded_at" bson:"recorded_at"`
}

// Recorder is the collaborator interface action handlers record through.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordEvent appends an event and returns its assigned ID.
	RecordEvent(ctx context.Context, event *Event) (id.ID, error)
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) (id.ID, error)

func (f RecorderFunc) RecordEvent(ctx context.Context, event *Event) (id.ID, error) {
	return f(ctx, event)
}

// ListOpts filters audit event queries.
type ListOpts struct {
	TenantID   string
	EntityType string
	EntityID   string
	// Limit is the maximum number of events to return. Zero means no limit.
	Limit int
}

// Store defines the persistence contract for the audit trail.
type Store interface {
	// AppendEvent persists an event. Events are immutable once written.
	AppendEvent(ctx context.Context, event *Event) error

	// ListEvents returns events matching the given options, oldest first.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
}
