// Package redis implements the idempotency ledger on Redis. The atomic
// reservation maps directly onto SET NX PX, and record expiry rides on
// Redis key TTLs, so SweepExpired has nothing to do. Deployments that
// want the ledger separated from the relational store pair this backend
// with the postgres one for everything else.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	ledger := redisstore.New(client)
//	mgr := idempotency.NewManager(ledger)
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/idempotency"
)

// Compile-time interface check.
var _ idempotency.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix overrides the Redis key prefix (default "steward:idem:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store implements idempotency.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
}

// New creates a new Redis-backed idempotency ledger. The caller owns the
// Redis client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, prefix: "steward:idem:", logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

func (s *Store) recordKey(key, tenantID string) string {
	return s.prefix + tenantID + ":" + key
}

// Reserve atomically inserts a reserved record using SET NX with the TTL
// as the key expiry. Exactly one concurrent reservation wins.
func (s *Store) Reserve(ctx context.Context, key, tenantID string, ttl time.Duration) error {
	rec := &idempotency.Record{
		Entity:    steward.NewEntity(),
		Key:       key,
		TenantID:  tenantID,
		Status:    idempotency.StatusReserved,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("steward/redis: encode idempotency record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.recordKey(key, tenantID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("steward/redis: reserve idempotency key: %w", err)
	}
	if !ok {
		return steward.ErrKeyReserved
	}
	return nil
}

// LookupRecord retrieves the record for (key, tenant). Redis expires
// records itself, so an expired record is simply absent.
func (s *Store) LookupRecord(ctx context.Context, key, tenantID string) (*idempotency.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(key, tenantID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, steward.ErrRecordNotFound
		}
		return nil, fmt.Errorf("steward/redis: lookup idempotency record: %w", err)
	}

	var rec idempotency.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("steward/redis: decode idempotency record: %w", err)
	}
	return &rec, nil
}

// CompleteRecord transitions a reserved record to completed using SET XX
// so a missing (expired) record is not resurrected, refreshing the TTL.
func (s *Store) CompleteRecord(ctx context.Context, key, tenantID string, response []byte, statusCode int, ttl time.Duration) error {
	now := time.Now().UTC()
	rec := &idempotency.Record{
		Entity:     steward.Entity{CreatedAt: now, UpdatedAt: now},
		Key:        key,
		TenantID:   tenantID,
		Status:     idempotency.StatusCompleted,
		Response:   response,
		StatusCode: statusCode,
		ExpiresAt:  now.Add(ttl),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("steward/redis: encode idempotency record: %w", err)
	}

	set, err := s.client.SetXX(ctx, s.recordKey(key, tenantID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("steward/redis: complete idempotency record: %w", err)
	}
	if !set {
		return steward.ErrRecordNotFound
	}
	return nil
}

// DeleteRecord removes a record unconditionally.
func (s *Store) DeleteRecord(ctx context.Context, key, tenantID string) error {
	n, err := s.client.Del(ctx, s.recordKey(key, tenantID)).Result()
	if err != nil {
		return fmt.Errorf("steward/redis: delete idempotency record: %w", err)
	}
	if n == 0 {
		return steward.ErrRecordNotFound
	}
	return nil
}

// SweepExpired is a no-op: Redis evicts expired records itself.
func (s *Store) SweepExpired(_ context.Context) (int, error) {
	return 0, nil
}
