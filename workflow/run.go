package workflow

import (
	"time"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/id"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means the run is executing or resumable.
	RunStateRunning RunState = "running"
	// RunStateCompleted means the run finished successfully.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means the run failed with a handled business error.
	RunStateFailed RunState = "failed"
)

// Run represents a single logical execution of an action.
type Run struct {
	steward.Entity

	// Key identifies the run: the tenant-scoped idempotency key, or a
	// generated key when the caller supplied none.
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	State       RunState   `json:"state"`
	Input       []byte     `json:"input,omitempty"`
	Output      []byte     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	TenantID    string     `json:"tenant_id,omitempty"`
	ActorID     string     `json:"actor_id,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunKey derives the run key for a tenant-scoped idempotency key.
// The same (tenant, key) pair always addresses the same run.
func RunKey(tenantID, idempotencyKey string) string {
	return tenantID + "/" + idempotencyKey
}

// NewRunKey generates a unique run key for callers that supply no
// idempotency key. Such runs execute exactly once per call and nothing
// is cached.
func NewRunKey() string {
	return id.NewRunID().String()
}
