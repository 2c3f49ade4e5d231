package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/scope"
)

// Runner orchestrates action execution: creating runs, building the
// Workflow context, invoking handlers, and managing run state.
type Runner struct {
	registry *Registry
	store    Store
	logger   *slog.Logger
}

// NewRunner creates a workflow runner.
func NewRunner(registry *Registry, store Store, logger *slog.Logger) *Runner {
	return &Runner{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// Registry returns the action registry.
func (r *Runner) Registry() *Registry { return r.registry }

// StartOrResume begins or resumes the run identified by runKey.
//
// An existing completed run replays its stored output without
// re-executing anything. An existing failed run replays its recorded
// business error. An existing running run (a prior attempt crashed, or
// its completion write was lost) is resumed: execution restarts at the
// first step without a checkpoint. An absent run is created and
// executed.
//
// Exactly one terminal outcome is ever emitted per run.
func (r *Runner) StartOrResume(ctx context.Context, runKey, name string, input []byte, tenantID, actorID string) (*steward.Result, error) {
	run, err := r.store.GetRun(ctx, runKey)
	switch {
	case err == nil:
		return r.settle(ctx, run)
	case errors.Is(err, steward.ErrRunNotFound):
		// Fall through to create.
	default:
		return nil, steward.Infra(err, "get run %q", runKey)
	}

	run = &Run{
		Entity:    steward.NewEntity(),
		Key:       runKey,
		Name:      name,
		State:     RunStateRunning,
		Input:     input,
		TenantID:  tenantID,
		ActorID:   actorID,
		StartedAt: time.Now().UTC(),
	}

	if createErr := r.store.CreateRun(ctx, run); createErr != nil {
		if errors.Is(createErr, steward.ErrRunExists) {
			// Raced past the idempotency reservation; follow the
			// winner's run instead of starting a second one.
			existing, getErr := r.store.GetRun(ctx, runKey)
			if getErr != nil {
				return nil, steward.Infra(getErr, "get raced run %q", runKey)
			}
			return r.settle(ctx, existing)
		}
		return nil, steward.Infra(createErr, "create run %q", runKey)
	}

	return r.execute(ctx, run)
}

// settle resolves an existing run: replay a terminal outcome, or resume
// a running one.
func (r *Runner) settle(ctx context.Context, run *Run) (*steward.Result, error) {
	switch run.State {
	case RunStateCompleted:
		result, err := decodeOutput(run)
		if err != nil {
			return nil, err
		}
		return result, nil
	case RunStateFailed:
		result, err := decodeOutput(run)
		if err != nil {
			return nil, err
		}
		return result, &steward.Error{
			Kind:    steward.KindFromString(run.ErrorKind),
			Message: run.Error,
		}
	default:
		r.logger.Info("resuming workflow run",
			slog.String("run_key", run.Key),
			slog.String("action", run.Name),
		)
		return r.execute(ctx, run)
	}
}

// execute runs the action handler and records the terminal outcome.
// A business error marks the run failed (one stable, replayable
// outcome); an infrastructure error leaves the run in running state so
// the next identical request resumes it.
func (r *Runner) execute(ctx context.Context, run *Run) (*steward.Result, error) {
	runner, ok := r.registry.Get(run.Name)
	if !ok {
		verr := steward.Validation("no action registered for %q", run.Name)
		return r.fail(ctx, run, steward.Fail(verr), verr)
	}

	ctx = scope.Restore(ctx, run.TenantID, run.ActorID)

	start := time.Now()
	wf := NewWorkflowContext(ctx, run, r.store, r.logger)
	result, err := runner(wf, run.Input)
	elapsed := time.Since(start)

	if err != nil {
		if steward.IsBusiness(err) {
			if result == nil {
				result = steward.Fail(err)
			}
			return r.fail(ctx, run, result, err)
		}
		// Infrastructure failure: the run stays running (resumable);
		// completed steps keep their checkpoints.
		r.logger.Error("workflow run interrupted",
			slog.String("run_key", run.Key),
			slog.String("action", run.Name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	output, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return nil, steward.Infra(marshalErr, "marshal output for run %q", run.Key)
	}

	now := time.Now().UTC()
	run.State = RunStateCompleted
	run.Output = output
	run.CompletedAt = &now
	run.Touch()
	if updateErr := r.store.UpdateRun(ctx, run); updateErr != nil {
		// Side effects are committed and checkpointed; surface a
		// transient failure so the retry resumes and replays cheaply.
		return nil, steward.Infra(updateErr, "record completion of run %q", run.Key)
	}

	r.logger.Info("workflow run completed",
		slog.String("run_key", run.Key),
		slog.String("action", run.Name),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

// fail records a handled business failure as the run's single terminal
// outcome and returns both the failure result and the classified error.
func (r *Runner) fail(ctx context.Context, run *Run, result *steward.Result, cause error) (*steward.Result, error) {
	result.ErrorKind = steward.KindOf(cause).String()
	output, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return nil, steward.Infra(marshalErr, "marshal failure output for run %q", run.Key)
	}

	now := time.Now().UTC()
	run.State = RunStateFailed
	run.Output = output
	run.Error = cause.Error()
	run.ErrorKind = steward.KindOf(cause).String()
	run.CompletedAt = &now
	run.Touch()
	if updateErr := r.store.UpdateRun(ctx, run); updateErr != nil {
		return nil, steward.Infra(updateErr, "record failure of run %q", run.Key)
	}

	r.logger.Info("workflow run failed",
		slog.String("run_key", run.Key),
		slog.String("action", run.Name),
		slog.String("error", cause.Error()),
	)
	return result, cause
}

// Resume resumes a single run left in running state (crash recovery).
// Completed steps are skipped via their checkpoints.
func (r *Runner) Resume(ctx context.Context, runKey string) error {
	run, err := r.store.GetRun(ctx, runKey)
	if err != nil {
		return fmt.Errorf("get run %q: %w", runKey, err)
	}
	if run.State != RunStateRunning {
		return fmt.Errorf("run %q is in state %q, not running", runKey, run.State)
	}

	_, execErr := r.execute(ctx, run)
	if execErr != nil && !steward.IsBusiness(execErr) {
		return execErr
	}
	return nil
}

// ResumeAll finds all runs in running state and resumes them
// concurrently. Called at startup for crash recovery; individual
// business failures settle their runs and are not resume errors.
func (r *Runner) ResumeAll(ctx context.Context) error {
	runs, err := r.store.ListRuns(ctx, ListOpts{State: RunStateRunning})
	if err != nil {
		return fmt.Errorf("list running workflow runs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range runs {
		key := run.Key
		g.Go(func() error {
			if resumeErr := r.Resume(gctx, key); resumeErr != nil {
				r.logger.Error("failed to resume workflow run",
					slog.String("run_key", key),
					slog.String("error", resumeErr.Error()),
				)
				return resumeErr
			}
			return nil
		})
	}
	return g.Wait()
}

func decodeOutput(run *Run) (*steward.Result, error) {
	var result steward.Result
	if len(run.Output) > 0 {
		if err := json.Unmarshal(run.Output, &result); err != nil {
			return nil, steward.Infra(err, "decode output of run %q", run.Key)
		}
	}
	return &result, nil
}
