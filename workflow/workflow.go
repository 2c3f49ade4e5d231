package workflow

import "github.com/hestami-ai/steward"

// Definition is a typed action definition with a handler function.
// T is the payload type (must be JSON-serializable for Run.Input
// storage); the payload is decoded exactly once, at registration-closure
// time, before the handler runs.
type Definition[T any] struct {
	// Name is the unique action name (e.g. "workorder.create").
	Name string

	// Handler executes the action as an ordered sequence of
	// checkpointed steps. It receives a *Workflow providing Step and
	// StepWithResult, and must derive its Result from checkpointed
	// step results so a resumed run reproduces the same outcome.
	Handler func(wf *Workflow, input T) (*steward.Result, error)
}

// NewDefinition creates a typed action definition.
func NewDefinition[T any](name string, handler func(wf *Workflow, input T) (*steward.Result, error)) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
	}
}
