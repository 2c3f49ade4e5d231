package workflow

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"time"
)

// Step executes a named step function. If a checkpoint exists for this
// step name, the step is skipped (idempotent replay). Otherwise the
// function is executed and a checkpoint is saved on success.
//
// The checkpoint commits after the side effect: a crash between the two
// re-runs that one step, so step bodies must tolerate at-most-one-extra
// execution, typically by writing via upsert on a pre-allocated key.
func (w *Workflow) Step(name string, fn func(ctx context.Context) error) error {
	data, err := w.store.GetCheckpoint(w.ctx, w.run.Key, name)
	if err != nil {
		return fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		w.logger.Debug("skipping checkpointed step",
			slog.String("run_key", w.run.Key),
			slog.String("step", name),
		)
		return nil
	}

	start := time.Now()
	stepErr := fn(w.ctx)
	elapsed := time.Since(start)

	if stepErr != nil {
		return fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, stepErr)
	}

	// Save checkpoint (empty data since Step has no result).
	if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.Key, name, []byte{}); saveErr != nil {
		return fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
	}

	w.logger.Debug("step completed",
		slog.String("run_key", w.run.Key),
		slog.String("step", name),
		slog.Duration("elapsed", elapsed),
	)
	return nil
}

// StepWithResult executes a named step that returns a typed value.
// The result is serialized via encoding/gob and saved as a checkpoint.
// On resume, the cached result is deserialized and returned without
// re-executing the step function.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func StepWithResult[T any](w *Workflow, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, err := w.store.GetCheckpoint(w.ctx, w.run.Key, name)
	if err != nil {
		return zero, fmt.Errorf("workflow %s: get checkpoint %q: %w", w.run.Name, name, err)
	}
	if data != nil {
		var result T
		dec := gob.NewDecoder(bytes.NewReader(data))
		if decErr := dec.Decode(&result); decErr != nil {
			return zero, fmt.Errorf("workflow %s: decode checkpoint %q: %w", w.run.Name, name, decErr)
		}
		w.logger.Debug("returning checkpointed result",
			slog.String("run_key", w.run.Key),
			slog.String("step", name),
		)
		return result, nil
	}

	start := time.Now()
	result, stepErr := fn(w.ctx)
	elapsed := time.Since(start)

	if stepErr != nil {
		return zero, fmt.Errorf("workflow %s step %q: %w", w.run.Name, name, stepErr)
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if encErr := enc.Encode(result); encErr != nil {
		return zero, fmt.Errorf("workflow %s: encode checkpoint %q: %w", w.run.Name, name, encErr)
	}

	if saveErr := w.store.SaveCheckpoint(w.ctx, w.run.Key, name, buf.Bytes()); saveErr != nil {
		return zero, fmt.Errorf("workflow %s: save checkpoint %q: %w", w.run.Name, name, saveErr)
	}

	w.logger.Debug("step completed",
		slog.String("run_key", w.run.Key),
		slog.String("step", name),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}
