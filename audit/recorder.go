package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hestami-ai/steward/id"
)

// StoreRecorder is the default Recorder: it assigns the event ID and
// timestamp and appends to a Store.
type StoreRecorder struct {
	store  Store
	logger *slog.Logger
}

// NewStoreRecorder creates a store-backed recorder.
func NewStoreRecorder(store Store, logger *slog.Logger) *StoreRecorder {
	return &StoreRecorder{store: store, logger: logger}
}

// RecordEvent assigns identity and appends the event.
func (r *StoreRecorder) RecordEvent(ctx context.Context, event *Event) (id.ID, error) {
	if event.ID.IsNil() {
		event.ID = id.NewAuditEventID()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		return id.Nil, fmt.Errorf("append audit event: %w", err)
	}
	return event.ID, nil
}

// Record appends an event best-effort: a recording failure is logged at
// warn level and swallowed, so the primary mutation is never rolled back
// for the sake of its audit trail.
func Record(ctx context.Context, rec Recorder, event *Event, logger *slog.Logger) id.ID {
	eventID, err := rec.RecordEvent(ctx, event)
	if err != nil {
		logger.Warn("failed to record audit event",
			slog.String("entity_type", event.EntityType),
			slog.String("entity_id", event.EntityID),
			slog.String("action_type", event.ActionType),
			slog.String("error", err.Error()),
		)
		return id.Nil
	}
	return eventID
}
