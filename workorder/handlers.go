package workorder

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/workflow"
)

// Action names for work order operations.
const (
	ActionCreate        = "workorder.create"
	ActionUpdate        = "workorder.update"
	ActionTransition    = "workorder.transition"
	ActionDelete        = "workorder.delete"
	ActionCreateFromJob = "workorder.create_from_job"
)

// CreatePayload is the typed payload for ActionCreate.
type CreatePayload struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PropertyRef string `json:"property_ref,omitempty"`
}

// UpdatePayload is the typed payload for ActionUpdate. Nil fields are
// left unchanged.
type UpdatePayload struct {
	WorkOrderID string  `json:"work_order_id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TransitionPayload is the typed payload for ActionTransition.
type TransitionPayload struct {
	WorkOrderID string `json:"work_order_id"`
	To          Status `json:"to"`
}

// DeletePayload is the typed payload for ActionDelete.
type DeletePayload struct {
	WorkOrderID string `json:"work_order_id"`
}

// CreateFromJobPayload is the typed payload for ActionCreateFromJob:
// the twin-creation workflow. The caller (the sync service) has already
// verified that no twin exists; the idempotency key prevents a second
// concurrent creation from racing past that pre-check.
type CreateFromJobPayload struct {
	ServiceJobID string `json:"service_job_id"`
	// InitialStatus is the mapped status the twin starts in. Defaults
	// to DRAFT.
	InitialStatus Status `json:"initial_status,omitempty"`
}

// Handlers implements the work order action handlers.
type Handlers struct {
	store    Store
	jobs     servicejob.Store
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewHandlers creates the work order handlers. The service job store is
// needed by the twin-creation workflow to write the twin link.
func NewHandlers(store Store, jobs servicejob.Store, recorder audit.Recorder, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, jobs: jobs, recorder: recorder, logger: logger}
}

// Register registers all work order actions.
func (h *Handlers) Register(reg *workflow.Registry) {
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionCreate, h.Create))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionUpdate, h.Update))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionTransition, h.Transition))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionDelete, h.Delete))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionCreateFromJob, h.CreateFromJob))
}

// Create creates a new work order in DRAFT status.
func (h *Handlers) Create(wf *workflow.Workflow, p CreatePayload) (*steward.Result, error) {
	if p.Title == "" {
		return nil, steward.Validation("work order title is required")
	}

	woID, err := workflow.StepWithResult(wf, "allocate-id", func(_ context.Context) (string, error) {
		return id.NewWorkOrderID().String(), nil
	})
	if err != nil {
		return nil, err
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		wo := &WorkOrder{
			Entity:      steward.NewEntity(),
			ID:          id.MustParse(woID),
			TenantID:    wf.TenantID(),
			Title:       p.Title,
			Description: p.Description,
			PropertyRef: p.PropertyRef,
			Status:      StatusDraft,
			CreatedBy:   wf.ActorID(),
		}
		return h.store.UpsertWorkOrder(ctx, wo)
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeWorkOrder,
			EntityID:   woID,
			ActionType: audit.ActionCreated,
			Category:   audit.CategoryGovernance,
			Summary:    "work order created: " + p.Title,
			ActorID:    wf.ActorID(),
			NewState:   string(StatusDraft),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(woID), nil
}

// Update modifies mutable fields of an existing work order.
func (h *Handlers) Update(wf *workflow.Workflow, p UpdatePayload) (*steward.Result, error) {
	woID, err := id.ParseWorkOrderID(p.WorkOrderID)
	if err != nil {
		return nil, steward.Validation("invalid work order id %q", p.WorkOrderID)
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		wo, getErr := h.store.GetWorkOrder(ctx, wf.TenantID(), woID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrWorkOrderNotFound) {
				return steward.NotFound("work order %s not found", p.WorkOrderID)
			}
			return getErr
		}
		if p.Title != nil {
			wo.Title = *p.Title
		}
		if p.Description != nil {
			wo.Description = *p.Description
		}
		wo.Touch()
		return h.store.UpsertWorkOrder(ctx, wo)
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeWorkOrder,
			EntityID:   p.WorkOrderID,
			ActionType: audit.ActionUpdated,
			Category:   audit.CategoryGovernance,
			Summary:    "work order updated",
			ActorID:    wf.ActorID(),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.WorkOrderID), nil
}

// Transition moves a work order to a new status, validating the move
// against the status machine. The previous status is checkpointed so a
// resumed run validates against the state the original attempt saw.
func (h *Handlers) Transition(wf *workflow.Workflow, p TransitionPayload) (*steward.Result, error) {
	woID, err := id.ParseWorkOrderID(p.WorkOrderID)
	if err != nil {
		return nil, steward.Validation("invalid work order id %q", p.WorkOrderID)
	}
	if !p.To.Valid() {
		return nil, steward.Validation("unknown work order status %q", p.To)
	}

	prev, err := workflow.StepWithResult(wf, "load", func(ctx context.Context) (string, error) {
		wo, getErr := h.store.GetWorkOrder(ctx, wf.TenantID(), woID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrWorkOrderNotFound) {
				return "", steward.NotFound("work order %s not found", p.WorkOrderID)
			}
			return "", getErr
		}
		return string(wo.Status), nil
	})
	if err != nil {
		return nil, err
	}

	from := Status(prev)
	if !from.CanTransition(p.To) {
		return nil, steward.IllegalTransition("work order cannot move from %s to %s", from, p.To)
	}

	histID, err := workflow.StepWithResult(wf, "allocate-history-id", func(_ context.Context) (string, error) {
		return id.NewHistoryID().String(), nil
	})
	if err != nil {
		return nil, err
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		wo, getErr := h.store.GetWorkOrder(ctx, wf.TenantID(), woID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrWorkOrderNotFound) {
				return steward.NotFound("work order %s not found", p.WorkOrderID)
			}
			return getErr
		}
		wo.Status = p.To
		wo.Touch()
		if upErr := h.store.UpsertWorkOrder(ctx, wo); upErr != nil {
			return upErr
		}
		return h.store.AppendHistory(ctx, &steward.StatusChange{
			ID:         histID,
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeWorkOrder,
			EntityID:   p.WorkOrderID,
			From:       string(from),
			To:         string(p.To),
			ActorID:    wf.ActorID(),
			ChangedAt:  wo.UpdatedAt,
		})
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:      wf.TenantID(),
			EntityType:    steward.EntityTypeWorkOrder,
			EntityID:      p.WorkOrderID,
			ActionType:    audit.ActionStatusChanged,
			Category:      audit.CategoryGovernance,
			Summary:       "work order moved from " + string(from) + " to " + string(p.To),
			ActorID:       wf.ActorID(),
			PreviousState: string(from),
			NewState:      string(p.To),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.WorkOrderID), nil
}

// Delete removes a work order.
func (h *Handlers) Delete(wf *workflow.Workflow, p DeletePayload) (*steward.Result, error) {
	woID, err := id.ParseWorkOrderID(p.WorkOrderID)
	if err != nil {
		return nil, steward.Validation("invalid work order id %q", p.WorkOrderID)
	}

	if _, err := workflow.StepWithResult(wf, "load", func(ctx context.Context) (string, error) {
		wo, getErr := h.store.GetWorkOrder(ctx, wf.TenantID(), woID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrWorkOrderNotFound) {
				return "", steward.NotFound("work order %s not found", p.WorkOrderID)
			}
			return "", getErr
		}
		return string(wo.Status), nil
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("delete", func(ctx context.Context) error {
		delErr := h.store.DeleteWorkOrder(ctx, wf.TenantID(), woID)
		if errors.Is(delErr, steward.ErrWorkOrderNotFound) {
			// Already deleted by a prior attempt of this same step.
			return nil
		}
		return delErr
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeWorkOrder,
			EntityID:   p.WorkOrderID,
			ActionType: audit.ActionDeleted,
			Category:   audit.CategoryGovernance,
			Summary:    "work order deleted",
			ActorID:    wf.ActorID(),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.WorkOrderID), nil
}

// CreateFromJob creates the governance twin for a service job and writes
// the twin link back onto the job. The link write is keyed on the job ID
// and the work order ID is pre-allocated in a checkpointed step, so
// every step tolerates one extra execution.
func (h *Handlers) CreateFromJob(wf *workflow.Workflow, p CreateFromJobPayload) (*steward.Result, error) {
	jobID, err := id.ParseServiceJobID(p.ServiceJobID)
	if err != nil {
		return nil, steward.Validation("invalid service job id %q", p.ServiceJobID)
	}

	initial := p.InitialStatus
	if initial == "" {
		initial = StatusDraft
	}
	if !initial.Valid() {
		return nil, steward.Validation("unknown work order status %q", initial)
	}

	type jobSnapshot struct {
		Title       string
		Description string
		PropertyRef string
	}

	snap, err := workflow.StepWithResult(wf, "load-job", func(ctx context.Context) (jobSnapshot, error) {
		j, getErr := h.jobs.GetServiceJob(ctx, wf.TenantID(), jobID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrServiceJobNotFound) {
				return jobSnapshot{}, steward.NotFound("service job %s not found", p.ServiceJobID)
			}
			return jobSnapshot{}, getErr
		}
		return jobSnapshot{Title: j.Title, Description: j.Description, PropertyRef: j.PropertyRef}, nil
	})
	if err != nil {
		return nil, err
	}

	woID, err := workflow.StepWithResult(wf, "allocate-id", func(_ context.Context) (string, error) {
		return id.NewWorkOrderID().String(), nil
	})
	if err != nil {
		return nil, err
	}

	if err := wf.Step("persist-workorder", func(ctx context.Context) error {
		wo := &WorkOrder{
			Entity:      steward.NewEntity(),
			ID:          id.MustParse(woID),
			TenantID:    wf.TenantID(),
			Title:       snap.Title,
			Description: snap.Description,
			PropertyRef: snap.PropertyRef,
			Status:      initial,
			CreatedBy:   wf.ActorID(),
		}
		return h.store.UpsertWorkOrder(ctx, wo)
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("link-job", func(ctx context.Context) error {
		j, getErr := h.jobs.GetServiceJob(ctx, wf.TenantID(), jobID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrServiceJobNotFound) {
				return steward.NotFound("service job %s not found", p.ServiceJobID)
			}
			return getErr
		}
		j.WorkOrderID = id.MustParse(woID)
		j.Touch()
		return h.jobs.UpsertServiceJob(ctx, j)
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeWorkOrder,
			EntityID:   woID,
			ActionType: audit.ActionTwinLinked,
			Category:   audit.CategoryGovernance,
			Summary:    "work order created as twin of service job " + p.ServiceJobID,
			ActorID:    wf.ActorID(),
			NewState:   string(initial),
			Metadata:   map[string]any{"service_job_id": p.ServiceJobID},
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(woID, p.ServiceJobID), nil
}
