// Package steward provides the idempotent durable-workflow orchestration
// layer for a multi-tenant property/work management platform. Every
// mutating operation routes through it: a caller-supplied idempotency key
// addresses a checkpointed workflow run, guaranteeing at-most-one logical
// execution per key even under client retries, concurrent duplicate
// submissions, or process crashes.
//
// Steward is designed as a library, not a service. Construct an engine
// with a store, register action handlers as ordinary Go functions, and
// call Execute from your RPC layer.
//
// # Quick Start
//
//	st := memory.New()
//	eng, err := engine.New(st,
//	    engine.WithLogger(logger),
//	    engine.WithMiddleware(middleware.Logging(logger)),
//	)
//
// # Architecture
//
// Steward follows a composable store pattern where each subsystem
// (idempotency, workflow, work orders, service jobs, violations, audit)
// defines its own store interface. A single backend implements all of
// them; partial backends (a Redis idempotency ledger, a Mongo audit
// archive) implement only the interface they serve.
//
// Entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers. Workflow runs are keyed by the tenant-scoped idempotency
// key instead, so a retried request resumes the exact run its
// predecessor started.
package steward
