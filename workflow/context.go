package workflow

import (
	"context"
	"log/slog"
)

// Workflow is the execution context passed to action handler functions.
// It provides durable step execution: each step automatically
// checkpoints its result to enable crash recovery.
type Workflow struct {
	ctx    context.Context
	run    *Run
	store  Store
	logger *slog.Logger
}

// NewWorkflowContext creates a new Workflow execution context.
// This is called by the runner, not by users.
func NewWorkflowContext(ctx context.Context, run *Run, store Store, logger *slog.Logger) *Workflow {
	return &Workflow{
		ctx:    ctx,
		run:    run,
		store:  store,
		logger: logger,
	}
}

// Context returns the underlying context.Context.
func (w *Workflow) Context() context.Context { return w.ctx }

// Run returns the workflow run.
func (w *Workflow) Run() *Run { return w.run }

// Key returns the run key.
func (w *Workflow) Key() string { return w.run.Key }

// TenantID returns the tenant the run executes under.
func (w *Workflow) TenantID() string { return w.run.TenantID }

// ActorID returns the actor the run executes on behalf of.
func (w *Workflow) ActorID() string { return w.run.ActorID }
