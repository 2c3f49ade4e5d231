package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hestami-ai/steward"
)

// Outcome is the cacheable result of an operation: the serialized
// response payload and its status code.
type Outcome struct {
	Response   []byte
	StatusCode int

	// FromCache is true when the outcome was replayed from a completed
	// record instead of executed.
	FromCache bool
}

// Operation executes the guarded work. It returns an Outcome describing
// the response to cache. When the operation fails with a handled
// business error it returns BOTH the outcome (the error payload to
// cache) and the classified error; an infrastructure failure returns a
// nil outcome and the error alone, which leaves the reservation in
// place for a later retry.
type Operation func(ctx context.Context) (*Outcome, error)

// Manager is the idempotency gatekeeper every mutating request passes
// through. It has no side effects beyond the ledger itself.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	// inflight tracks keys this process is currently executing. A
	// reserved record with no local execution belongs to a crashed or
	// infra-failed attempt and is safe to resume; one with a live local
	// execution is a concurrent duplicate.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL overrides the record TTL (default 24h).
func WithTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an idempotency manager over the given ledger.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		ttl:      steward.DefaultConfig().IdempotencyTTL,
		logger:   slog.Default(),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured record TTL.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Do guards op with the idempotency protocol for (key, tenant):
//
//  1. Empty key: execute op directly, cache nothing (the caller accepts
//     at-least-once semantics).
//  2. A completed record replays the cached outcome without running op.
//  3. A reserved record means a prior attempt reserved this key and did
//     not settle. If that attempt is still executing the duplicate gets
//     a Conflict; otherwise op runs and resumes the prior attempt's run
//     where its checkpoints left off.
//  4. An absent record is reserved; losing the reservation race
//     re-checks the winner's record and either replays it or reports a
//     Conflict for a genuinely concurrent duplicate.
//  5. A successful or business-failed op completes the record so
//     identical retries reproduce the identical response.
//  6. An infrastructure failure leaves the record reserved so a retry
//     with the same key resumes the same run, bounded by the TTL.
func (m *Manager) Do(ctx context.Context, key, tenantID string, op Operation) (*Outcome, error) {
	if key == "" {
		return op(ctx)
	}

	rec, err := m.store.LookupRecord(ctx, key, tenantID)
	switch {
	case err == nil && rec.Status == StatusCompleted:
		return m.replay(rec), nil
	case err == nil && rec.Status == StatusReserved:
		// An earlier attempt holds the reservation. If it is still
		// executing this is a concurrent duplicate; otherwise resume
		// its run under the existing reservation.
		return m.run(ctx, key, tenantID, op)
	case errors.Is(err, steward.ErrRecordNotFound):
		// Fall through to reserve.
	case err != nil:
		return nil, steward.Infra(err, "idempotency lookup for key %q", key)
	}

	if err := m.store.Reserve(ctx, key, tenantID, m.ttl); err != nil {
		if !errors.Is(err, steward.ErrKeyReserved) {
			return nil, steward.Infra(err, "idempotency reserve for key %q", key)
		}
		// Lost the reservation race. Re-lookup: the winner may already
		// have completed. Not cached: each concurrent observer gets a
		// fresh conflict check.
		rec, lookupErr := m.store.LookupRecord(ctx, key, tenantID)
		if lookupErr == nil && rec.Status == StatusCompleted {
			return m.replay(rec), nil
		}
		return nil, steward.Conflict("request with idempotency key %q is already in flight", key)
	}

	return m.run(ctx, key, tenantID, op)
}

// run executes op under a held reservation and settles the record. Only
// one execution per key runs at a time in this process; a second caller
// arriving while the first is live gets a Conflict instead of a
// duplicate execution.
func (m *Manager) run(ctx context.Context, key, tenantID string, op Operation) (*Outcome, error) {
	scoped := tenantID + "/" + key
	m.mu.Lock()
	if _, live := m.inflight[scoped]; live {
		m.mu.Unlock()
		return nil, steward.Conflict("request with idempotency key %q is already in flight", key)
	}
	m.inflight[scoped] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inflight, scoped)
		m.mu.Unlock()
	}()

	out, opErr := op(ctx)

	switch {
	case opErr == nil:
		m.complete(ctx, key, tenantID, out)
		return out, nil
	case steward.IsBusiness(opErr) && out != nil:
		// Handled business errors are cached too, so identical retries
		// reproduce the same error instead of reprocessing.
		m.complete(ctx, key, tenantID, out)
		return out, opErr
	default:
		// Unhandled or infrastructure failure: the record stays
		// reserved so a legitimate retry resumes the same run.
		return nil, opErr
	}
}

// complete caches the outcome. A completion failure is logged, not
// propagated: the operation's side effects are committed and its run
// output is replayable, so the caller still gets the result and a
// retry safely resumes the completed run.
func (m *Manager) complete(ctx context.Context, key, tenantID string, out *Outcome) {
	code := out.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	if err := m.store.CompleteRecord(ctx, key, tenantID, out.Response, code, m.ttl); err != nil {
		m.logger.Error("failed to complete idempotency record",
			slog.String("key", key),
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) replay(rec *Record) *Outcome {
	return &Outcome{
		Response:   rec.Response,
		StatusCode: rec.StatusCode,
		FromCache:  true,
	}
}

// Clear deletes a record regardless of status. It is the administrative
// override for a reservation stranded by a permanently failed
// dependency: the default remains resumability until TTL expiry, and
// Clear is never called on the request path.
func (m *Manager) Clear(ctx context.Context, key, tenantID string) error {
	m.logger.Warn("clearing idempotency record",
		slog.String("key", key),
		slog.String("tenant_id", tenantID),
	)
	if err := m.store.DeleteRecord(ctx, key, tenantID); err != nil {
		return fmt.Errorf("clear idempotency record %q: %w", key, err)
	}
	return nil
}
