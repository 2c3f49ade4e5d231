// Package mongo implements the audit archive on MongoDB. Audit events
// are append-only documents, a natural fit for a document collection,
// and deployments with long retention windows keep them out of the
// relational store by pairing this backend with the postgres one.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/id"
)

// colAuditEvents is the audit event collection name.
const colAuditEvents = "steward_audit_events"

// Compile-time interface check.
var _ audit.Store = (*Store)(nil)

// Store implements audit.Store backed by MongoDB. The caller owns the
// client lifecycle; Store never closes it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB audit store over the given database.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the audit collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection(colAuditEvents).Indexes().CreateMany(ctx, []mongod.IndexModel{
		{Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "entity_id", Value: 1},
			{Key: "recorded_at", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "entity_type", Value: 1},
		}},
	})
	if err != nil {
		return fmt.Errorf("steward/mongo: migrate audit indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// eventModel is the BSON shape of an audit event. IDs are stored as
// their TypeID strings.
type eventModel struct {
	ID            string         `bson:"_id"`
	TenantID      string         `bson:"tenant_id"`
	EntityType    string         `bson:"entity_type"`
	EntityID      string         `bson:"entity_id"`
	ActionType    string         `bson:"action_type"`
	Category      string         `bson:"category"`
	Summary       string         `bson:"summary"`
	ActorID       string         `bson:"actor_id"`
	PreviousState string         `bson:"previous_state,omitempty"`
	NewState      string         `bson:"new_state,omitempty"`
	Metadata      map[string]any `bson:"metadata,omitempty"`
	RecordedAt    time.Time      `bson:"recorded_at"`
}

func toEventModel(ev *audit.Event) *eventModel {
	return &eventModel{
		ID:            ev.ID.String(),
		TenantID:      ev.TenantID,
		EntityType:    ev.EntityType,
		EntityID:      ev.EntityID,
		ActionType:    ev.ActionType,
		Category:      ev.Category,
		Summary:       ev.Summary,
		ActorID:       ev.ActorID,
		PreviousState: ev.PreviousState,
		NewState:      ev.NewState,
		Metadata:      ev.Metadata,
		RecordedAt:    ev.RecordedAt,
	}
}

func fromEventModel(m *eventModel) (*audit.Event, error) {
	eventID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("steward/mongo: parse event id: %w", err)
	}
	return &audit.Event{
		ID:            eventID,
		TenantID:      m.TenantID,
		EntityType:    m.EntityType,
		EntityID:      m.EntityID,
		ActionType:    m.ActionType,
		Category:      m.Category,
		Summary:       m.Summary,
		ActorID:       m.ActorID,
		PreviousState: m.PreviousState,
		NewState:      m.NewState,
		Metadata:      m.Metadata,
		RecordedAt:    m.RecordedAt,
	}, nil
}

// AppendEvent persists an audit event. Events are immutable once written.
func (s *Store) AppendEvent(ctx context.Context, event *audit.Event) error {
	_, err := s.db.Collection(colAuditEvents).InsertOne(ctx, toEventModel(event))
	if err != nil {
		return fmt.Errorf("steward/mongo: append audit event: %w", err)
	}
	return nil
}

// ListEvents returns events matching the given options, oldest first.
func (s *Store) ListEvents(ctx context.Context, opts audit.ListOpts) ([]*audit.Event, error) {
	filter := bson.M{}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if opts.EntityType != "" {
		filter["entity_type"] = opts.EntityType
	}
	if opts.EntityID != "" {
		filter["entity_id"] = opts.EntityID
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.db.Collection(colAuditEvents).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("steward/mongo: list audit events: %w", err)
	}
	defer cur.Close(ctx)

	var events []*audit.Event
	for cur.Next(ctx) {
		var m eventModel
		if decodeErr := cur.Decode(&m); decodeErr != nil {
			return nil, fmt.Errorf("steward/mongo: decode audit event: %w", decodeErr)
		}
		ev, convErr := fromEventModel(&m)
		if convErr != nil {
			return nil, convErr
		}
		events = append(events, ev)
	}
	if curErr := cur.Err(); curErr != nil {
		return nil, fmt.Errorf("steward/mongo: list audit events: %w", curErr)
	}
	return events, nil
}
