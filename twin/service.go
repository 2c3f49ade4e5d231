package twin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/workorder"
)

// Executor runs a registered action through the orchestration engine
// under an idempotency key.
type Executor interface {
	Execute(ctx context.Context, action, tenantID, actorID string, payload any, idempotencyKey string) (*steward.Result, error)
}

// Service coordinates twin creation and status propagation between
// service jobs and work orders. All guards run before the engine is
// invoked: a no-op sync consumes no idempotency key, writes nothing and
// records no audit events.
type Service struct {
	exec       Executor
	jobs       servicejob.Store
	workorders workorder.Store
	logger     *slog.Logger
}

// NewService creates the twin sync service.
func NewService(exec Executor, jobs servicejob.Store, workorders workorder.Store, logger *slog.Logger) *Service {
	return &Service{exec: exec, jobs: jobs, workorders: workorders, logger: logger}
}

// unchanged reports an already-converged pair without consuming anything.
func unchanged(entityID string) *steward.Result {
	return &steward.Result{Success: true, EntityID: entityID, Changed: false}
}

// CreateTwin creates the governance work order twin for a service job.
// A read-only pre-check returns the existing twin without touching the
// engine; otherwise creation is delegated under the caller's idempotency
// key, so two racing creators converge on one work order.
func (s *Service) CreateTwin(ctx context.Context, tenantID, actorID, serviceJobID, idempotencyKey string) (*steward.Result, error) {
	jobID, err := id.ParseServiceJobID(serviceJobID)
	if err != nil {
		return nil, steward.Validation("invalid service job id %q", serviceJobID)
	}

	j, err := s.jobs.GetServiceJob(ctx, tenantID, jobID)
	if err != nil {
		if errors.Is(err, steward.ErrServiceJobNotFound) {
			return nil, steward.NotFound("service job %s not found", serviceJobID)
		}
		return nil, steward.Infra(err, "load service job %s", serviceJobID)
	}

	if !j.WorkOrderID.IsNil() {
		s.logger.Debug("twin already exists",
			slog.String("service_job_id", serviceJobID),
			slog.String("work_order_id", j.WorkOrderID.String()),
		)
		return unchanged(j.WorkOrderID.String()), nil
	}

	initial, ok := MapJobStatus(j.Status)
	if !ok {
		return nil, steward.IllegalTransition("service job status %s has no work order projection", j.Status)
	}

	return s.exec.Execute(ctx, workorder.ActionCreateFromJob, tenantID, actorID, workorder.CreateFromJobPayload{
		ServiceJobID:  serviceJobID,
		InitialStatus: initial,
	}, idempotencyKey)
}

// SyncJobStatus propagates a service job's current status onto its work
// order twin. Returns changed=false when the job has no twin, when the
// job's status has no work order projection, or when the twin is already
// at the target status.
func (s *Service) SyncJobStatus(ctx context.Context, tenantID, actorID, serviceJobID, idempotencyKey string) (*steward.Result, error) {
	jobID, err := id.ParseServiceJobID(serviceJobID)
	if err != nil {
		return nil, steward.Validation("invalid service job id %q", serviceJobID)
	}

	j, err := s.jobs.GetServiceJob(ctx, tenantID, jobID)
	if err != nil {
		if errors.Is(err, steward.ErrServiceJobNotFound) {
			return nil, steward.NotFound("service job %s not found", serviceJobID)
		}
		return nil, steward.Infra(err, "load service job %s", serviceJobID)
	}

	if j.WorkOrderID.IsNil() {
		return unchanged(""), nil
	}

	target, ok := MapJobStatus(j.Status)
	if !ok {
		return unchanged(j.WorkOrderID.String()), nil
	}

	wo, err := s.workorders.GetWorkOrder(ctx, tenantID, j.WorkOrderID)
	if err != nil {
		if errors.Is(err, steward.ErrWorkOrderNotFound) {
			return nil, steward.NotFound("work order %s not found", j.WorkOrderID)
		}
		return nil, steward.Infra(err, "load work order %s", j.WorkOrderID)
	}

	if wo.Status == target {
		return unchanged(wo.ID.String()), nil
	}

	return s.exec.Execute(ctx, workorder.ActionTransition, tenantID, actorID, workorder.TransitionPayload{
		WorkOrderID: wo.ID.String(),
		To:          target,
	}, idempotencyKey)
}

// SyncWorkOrderStatus propagates a work order's current status onto its
// linked service job. Returns changed=false when no job is linked, when
// the status is governance-internal and has no job projection, or when
// the job is already at the target status.
func (s *Service) SyncWorkOrderStatus(ctx context.Context, tenantID, actorID, workOrderID, idempotencyKey string) (*steward.Result, error) {
	woID, err := id.ParseWorkOrderID(workOrderID)
	if err != nil {
		return nil, steward.Validation("invalid work order id %q", workOrderID)
	}

	wo, err := s.workorders.GetWorkOrder(ctx, tenantID, woID)
	if err != nil {
		if errors.Is(err, steward.ErrWorkOrderNotFound) {
			return nil, steward.NotFound("work order %s not found", workOrderID)
		}
		return nil, steward.Infra(err, "load work order %s", workOrderID)
	}

	j, err := s.jobs.FindByWorkOrder(ctx, tenantID, woID)
	if err != nil {
		if errors.Is(err, steward.ErrServiceJobNotFound) {
			return unchanged(""), nil
		}
		return nil, steward.Infra(err, "find twin of work order %s", workOrderID)
	}

	target, ok := MapWorkOrderStatus(wo.Status)
	if !ok {
		return unchanged(j.ID.String()), nil
	}

	if j.Status == target {
		return unchanged(j.ID.String()), nil
	}

	return s.exec.Execute(ctx, servicejob.ActionTransition, tenantID, actorID, servicejob.TransitionPayload{
		ServiceJobID: j.ID.String(),
		To:           target,
	}, idempotencyKey)
}
