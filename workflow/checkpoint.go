package workflow

import (
	"time"

	"github.com/hestami-ai/steward/id"
)

// Checkpoint stores the serialized result of a completed workflow step,
// enabling crash recovery: a resumed run skips checkpointed steps and
// replays their recorded results.
type Checkpoint struct {
	ID        id.ID     `json:"id"`
	RunKey    string    `json:"run_key"`
	StepName  string    `json:"step_name"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}
