package steward

import "time"

// Entity is the embedded base for all persisted records: creation and
// last-update timestamps, always UTC.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity stamped with the current time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch updates the UpdatedAt timestamp.
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}

// Entity type names used for twin links, status history, and audit events.
const (
	EntityTypeWorkOrder  = "work_order"
	EntityTypeServiceJob = "service_job"
	EntityTypeViolation  = "violation"
)

// StatusChange is one row of an entity's status history, appended on
// every successful transition for replay and audit.
type StatusChange struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorID    string    `json:"actor_id"`
	ChangedAt  time.Time `json:"changed_at"`
}

// Request describes one action execution passing through the middleware
// chain.
type Request struct {
	Action         string
	TenantID       string
	ActorID        string
	IdempotencyKey string
}
