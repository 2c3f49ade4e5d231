// Package workflow defines action definitions, runs, steps, checkpoints,
// the registry, the runner, and the workflow store interface.
//
// A run is addressed by a run key derived from the caller's idempotency
// key (tenant-scoped), so a retried request resumes the exact run its
// predecessor started: completed steps are skipped via checkpoints, a
// completed run replays its stored output, and a failed run replays its
// recorded business error.
package workflow
