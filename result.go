package steward

// Result is the uniform outcome every action handler produces. The
// orchestration layer serializes it into the workflow run output and the
// idempotency cache, so a replayed request observes a byte-identical
// payload.
type Result struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
	EntityID  string   `json:"entity_id,omitempty"`
	EntityIDs []string `json:"entity_ids,omitempty"`

	// ErrorKind is the wire name of the error's classification. It is
	// cached with the payload so a replayed failure reconstructs the
	// exact kind of the original, not an approximation from the status
	// code.
	ErrorKind string `json:"error_kind,omitempty"`

	// FromCache is set by the idempotency layer when the result was
	// replayed from a completed record instead of executed. It is not
	// serialized so cached responses stay byte-identical.
	FromCache bool `json:"-"`

	// Changed reports whether the operation mutated state. Sync
	// operations use it to signal a converged no-op.
	Changed bool `json:"changed,omitempty"`
}

// Succeed returns a successful result carrying the primary entity ID and
// any additional entity IDs produced by the same run.
func Succeed(entityID string, more ...string) *Result {
	return &Result{Success: true, EntityID: entityID, EntityIDs: more, Changed: true}
}

// Fail returns a failed result describing a handled business error.
func Fail(err error) *Result {
	return &Result{Success: false, Error: err.Error(), ErrorKind: KindOf(err).String()}
}
