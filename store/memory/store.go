// Package memory provides a fully in-memory store backend. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/idempotency"
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/violation"
	"github.com/hestami-ai/steward/workflow"
	"github.com/hestami-ai/steward/workorder"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ idempotency.Store = (*Store)(nil)
	_ workflow.Store    = (*Store)(nil)
	_ workorder.Store   = (*Store)(nil)
	_ servicejob.Store  = (*Store)(nil)
	_ violation.Store   = (*Store)(nil)
	_ audit.Store       = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	records     map[string]*idempotency.Record // key: "tenantID/key"
	runs        map[string]*workflow.Run
	checkpoints map[string]*workflow.Checkpoint // key: "runKey:stepName"
	workorders  map[string]*workorder.WorkOrder // key: "tenantID/id"
	servicejobs map[string]*servicejob.ServiceJob
	violations  map[string]*violation.Violation
	history     []*steward.StatusChange
	events      []*audit.Event

	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		records:     make(map[string]*idempotency.Record),
		runs:        make(map[string]*workflow.Run),
		checkpoints: make(map[string]*workflow.Checkpoint),
		workorders:  make(map[string]*workorder.WorkOrder),
		servicejobs: make(map[string]*servicejob.ServiceJob),
		violations:  make(map[string]*violation.Violation),
	}
}

func scopedKey(tenantID, key string) string {
	return tenantID + "/" + key
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return steward.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Data is retained for post-close
// inspection in tests.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Idempotency ledger
// ──────────────────────────────────────────────────

// Reserve atomically inserts a reserved record. The mutex makes the
// check-and-insert a single step, so exactly one concurrent reservation
// wins.
func (m *Store) Reserve(_ context.Context, key, tenantID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedKey(tenantID, key)
	now := time.Now().UTC()
	if rec, ok := m.records[k]; ok && !rec.Expired(now) {
		return steward.ErrKeyReserved
	}

	m.records[k] = &idempotency.Record{
		Entity:    steward.NewEntity(),
		Key:       key,
		TenantID:  tenantID,
		Status:    idempotency.StatusReserved,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

// LookupRecord retrieves the record for (key, tenant), purging it lazily
// when expired.
func (m *Store) LookupRecord(_ context.Context, key, tenantID string) (*idempotency.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedKey(tenantID, key)
	rec, ok := m.records[k]
	if !ok {
		return nil, steward.ErrRecordNotFound
	}
	if rec.Expired(time.Now().UTC()) {
		delete(m.records, k)
		return nil, steward.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// CompleteRecord transitions a record to completed with the cached
// response, refreshing the TTL window.
func (m *Store) CompleteRecord(_ context.Context, key, tenantID string, response []byte, statusCode int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedKey(tenantID, key)
	rec, ok := m.records[k]
	if !ok {
		return steward.ErrRecordNotFound
	}
	now := time.Now().UTC()
	rec.Status = idempotency.StatusCompleted
	rec.Response = response
	rec.StatusCode = statusCode
	rec.ExpiresAt = now.Add(ttl)
	rec.UpdatedAt = now
	return nil
}

// DeleteRecord removes a record unconditionally.
func (m *Store) DeleteRecord(_ context.Context, key, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedKey(tenantID, key)
	if _, ok := m.records[k]; !ok {
		return steward.ErrRecordNotFound
	}
	delete(m.records, k)
	return nil
}

// SweepExpired bulk-deletes expired records and returns the count.
func (m *Store) SweepExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for k, rec := range m.records {
		if rec.Expired(now) {
			delete(m.records, k)
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Workflow runs and checkpoints
// ──────────────────────────────────────────────────

// CreateRun persists a new run, rejecting duplicates by key.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.Key]; exists {
		return steward.ErrRunExists
	}
	cp := *run
	m.runs[run.Key] = &cp
	return nil
}

// GetRun retrieves a run by key.
func (m *Store) GetRun(_ context.Context, runKey string) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runKey]
	if !ok {
		return nil, steward.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

// UpdateRun persists changes to an existing run.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.Key]; !ok {
		return steward.ErrRunNotFound
	}
	cp := *run
	cp.UpdatedAt = time.Now().UTC()
	m.runs[run.Key] = &cp
	return nil
}

// ListRuns returns runs matching the given options, oldest first.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, run := range m.runs {
		if opts.State != "" && run.State != opts.State {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// SaveCheckpoint persists checkpoint data, replacing any prior
// checkpoint for the same run and step.
func (m *Store) SaveCheckpoint(_ context.Context, runKey, stepName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[runKey+":"+stepName] = &workflow.Checkpoint{
		ID:        id.NewCheckpointID(),
		RunKey:    runKey,
		StepName:  stepName,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a step, nil if absent.
func (m *Store) GetCheckpoint(_ context.Context, runKey, stepName string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ckpt, ok := m.checkpoints[runKey+":"+stepName]
	if !ok {
		return nil, nil
	}
	return ckpt.Data, nil
}

// ListCheckpoints returns all checkpoints for a run in creation order.
func (m *Store) ListCheckpoints(_ context.Context, runKey string) ([]*workflow.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Checkpoint, 0)
	for _, ckpt := range m.checkpoints {
		if ckpt.RunKey != runKey {
			continue
		}
		cp := *ckpt
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Work orders
// ──────────────────────────────────────────────────

// UpsertWorkOrder inserts or replaces a work order keyed on its ID.
func (m *Store) UpsertWorkOrder(_ context.Context, wo *workorder.WorkOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *wo
	m.workorders[scopedKey(wo.TenantID, wo.ID.String())] = &cp
	return nil
}

// GetWorkOrder retrieves a work order by ID within the tenant scope.
func (m *Store) GetWorkOrder(_ context.Context, tenantID string, workOrderID id.ID) (*workorder.WorkOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wo, ok := m.workorders[scopedKey(tenantID, workOrderID.String())]
	if !ok {
		return nil, steward.ErrWorkOrderNotFound
	}
	cp := *wo
	return &cp, nil
}

// DeleteWorkOrder removes a work order within the tenant scope.
func (m *Store) DeleteWorkOrder(_ context.Context, tenantID string, workOrderID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedKey(tenantID, workOrderID.String())
	if _, ok := m.workorders[k]; !ok {
		return steward.ErrWorkOrderNotFound
	}
	delete(m.workorders, k)
	return nil
}

// ──────────────────────────────────────────────────
// Service jobs
// ──────────────────────────────────────────────────

// UpsertServiceJob inserts or replaces a job keyed on its ID.
func (m *Store) UpsertServiceJob(_ context.Context, j *servicejob.ServiceJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *j
	m.servicejobs[scopedKey(j.TenantID, j.ID.String())] = &cp
	return nil
}

// GetServiceJob retrieves a job by ID within the tenant scope.
func (m *Store) GetServiceJob(_ context.Context, tenantID string, jobID id.ID) (*servicejob.ServiceJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.servicejobs[scopedKey(tenantID, jobID.String())]
	if !ok {
		return nil, steward.ErrServiceJobNotFound
	}
	cp := *j
	return &cp, nil
}

// FindByWorkOrder returns the job linked to the given work order.
func (m *Store) FindByWorkOrder(_ context.Context, tenantID string, workOrderID id.ID) (*servicejob.ServiceJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target := workOrderID.String()
	if target == "" {
		return nil, steward.ErrServiceJobNotFound
	}
	for _, j := range m.servicejobs {
		if j.TenantID == tenantID && j.WorkOrderID.String() == target {
			cp := *j
			return &cp, nil
		}
	}
	return nil, steward.ErrServiceJobNotFound
}

// DeleteServiceJob removes a job within the tenant scope.
func (m *Store) DeleteServiceJob(_ context.Context, tenantID string, jobID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedKey(tenantID, jobID.String())
	if _, ok := m.servicejobs[k]; !ok {
		return steward.ErrServiceJobNotFound
	}
	delete(m.servicejobs, k)
	return nil
}

// ──────────────────────────────────────────────────
// Violations
// ──────────────────────────────────────────────────

// UpsertViolation inserts or replaces a violation keyed on its ID.
func (m *Store) UpsertViolation(_ context.Context, v *violation.Violation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *v
	m.violations[scopedKey(v.TenantID, v.ID.String())] = &cp
	return nil
}

// GetViolation retrieves a violation by ID within the tenant scope.
func (m *Store) GetViolation(_ context.Context, tenantID string, violationID id.ID) (*violation.Violation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.violations[scopedKey(tenantID, violationID.String())]
	if !ok {
		return nil, steward.ErrViolationNotFound
	}
	cp := *v
	return &cp, nil
}

// DeleteViolation removes a violation within the tenant scope.
func (m *Store) DeleteViolation(_ context.Context, tenantID string, violationID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedKey(tenantID, violationID.String())
	if _, ok := m.violations[k]; !ok {
		return steward.ErrViolationNotFound
	}
	delete(m.violations, k)
	return nil
}

// ──────────────────────────────────────────────────
// Status history
// ──────────────────────────────────────────────────

// AppendHistory records a status change. Re-appending the same row ID is
// a no-op, so a re-executed persist step writes exactly one row.
func (m *Store) AppendHistory(_ context.Context, change *steward.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.history {
		if existing.ID == change.ID {
			return nil
		}
	}
	cp := *change
	m.history = append(m.history, &cp)
	return nil
}

// ListHistory returns an entity's status changes, oldest first.
func (m *Store) ListHistory(_ context.Context, tenantID, entityID string) ([]*steward.StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*steward.StatusChange, 0)
	for _, change := range m.history {
		if change.TenantID != tenantID || change.EntityID != entityID {
			continue
		}
		cp := *change
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].ChangedAt.Before(result[k].ChangedAt)
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Audit trail
// ──────────────────────────────────────────────────

// AppendEvent persists an audit event.
func (m *Store) AppendEvent(_ context.Context, event *audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

// ListEvents returns events matching the given options, oldest first.
func (m *Store) ListEvents(_ context.Context, opts audit.ListOpts) ([]*audit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*audit.Event, 0)
	for _, ev := range m.events {
		if opts.TenantID != "" && ev.TenantID != opts.TenantID {
			continue
		}
		if opts.EntityType != "" && ev.EntityType != opts.EntityType {
			continue
		}
		if opts.EntityID != "" && ev.EntityID != opts.EntityID {
			continue
		}
		cp := *ev
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].RecordedAt.Before(result[k].RecordedAt)
	})
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}
