// Package store defines the aggregate persistence interface. Each
// subsystem (idempotency, workflow, workorder, servicejob, violation,
// audit) defines its own store interface; the composite Store composes
// them all. Backends: Postgres and Memory implement the full aggregate;
// Redis implements the idempotency ledger alone and Mongo the audit
// archive alone, for deployments that split those concerns out.
package store

import (
	"context"

	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/idempotency"
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/violation"
	"github.com/hestami-ai/steward/workflow"
	"github.com/hestami-ai/steward/workorder"
)

// Store is the aggregate persistence interface. Each subsystem store is
// a composable interface; a single backend implements all of them. The
// entity stores share identical AppendHistory/ListHistory signatures, so
// one implementation satisfies all three embeds.
type Store interface {
	idempotency.Store
	workflow.Store
	workorder.Store
	servicejob.Store
	violation.Store
	audit.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
