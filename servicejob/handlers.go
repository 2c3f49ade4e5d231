package servicejob

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/workflow"
)

// Action names for service job operations.
const (
	ActionCreate     = "servicejob.create"
	ActionUpdate     = "servicejob.update"
	ActionTransition = "servicejob.transition"
	ActionDelete     = "servicejob.delete"
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
	ServiceJobID string  `json:"service_job_id"`
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
}

// TransitionPayload is the typed payload for ActionTransition.
type TransitionPayload struct {
	ServiceJobID string `json:"service_job_id"`
	To           Status `json:"to"`
}

// DeletePayload is the typed payload for ActionDelete.
type DeletePayload struct {
	ServiceJobID string `json:"service_job_id"`
}

// Handlers implements the service job action handlers. Each handler is
// an ordered sequence of checkpointed steps: load/validate in tenant
// scope, persist via upsert on a pre-allocated ID, record an audit
// event, return the entity ID.
type Handlers struct {
	store    Store
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewHandlers creates the service job handlers.
func NewHandlers(store Store, recorder audit.Recorder, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, recorder: recorder, logger: logger}
}

// Register registers all service job actions.
func (h *Handlers) Register(reg *workflow.Registry) {
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionCreate, h.Create))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionUpdate, h.Update))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionTransition, h.Transition))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionDelete, h.Delete))
}

// Create creates a new service job in SUBMITTED status.
func (h *Handlers) Create(wf *workflow.Workflow, p CreatePayload) (*steward.Result, error) {
	if p.Title == "" {
		return nil, steward.Validation("service job title is required")
	}

	jobID, err := workflow.StepWithResult(wf, "allocate-id", func(_ context.Context) (string, error) {
		return id.NewServiceJobID().String(), nil
	})
	if err != nil {
		return nil, err
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		j := &ServiceJob{
			Entity:      steward.NewEntity(),
			ID:          id.MustParse(jobID),
			TenantID:    wf.TenantID(),
			Title:       p.Title,
			Description: p.Description,
			PropertyRef: p.PropertyRef,
			Status:      StatusSubmitted,
			CreatedBy:   wf.ActorID(),
		}
		return h.store.UpsertServiceJob(ctx, j)
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeServiceJob,
			EntityID:   jobID,
			ActionType: audit.ActionCreated,
			Category:   audit.CategoryOperations,
			Summary:    "service job created: " + p.Title,
			ActorID:    wf.ActorID(),
			NewState:   string(StatusSubmitted),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(jobID), nil
}

// Update modifies mutable fields of an existing service job.
func (h *Handlers) Update(wf *workflow.Workflow, p UpdatePayload) (*steward.Result, error) {
	jobID, err := id.ParseServiceJobID(p.ServiceJobID)
	if err != nil {
		return nil, steward.Validation("invalid service job id %q", p.ServiceJobID)
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		j, getErr := h.store.GetServiceJob(ctx, wf.TenantID(), jobID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrServiceJobNotFound) {
				return steward.NotFound("service job %s not found", p.ServiceJobID)
			}
			return getErr
		}
		if p.Title != nil {
			j.Title = *p.Title
		}
		if p.Description != nil {
			j.Description = *p.Description
		}
		j.Touch()
		return h.store.UpsertServiceJob(ctx, j)
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeServiceJob,
			EntityID:   p.ServiceJobID,
			ActionType: audit.ActionUpdated,
			Category:   audit.CategoryOperations,
			Summary:    "service job updated",
			ActorID:    wf.ActorID(),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.ServiceJobID), nil
}

// Transition moves a service job to a new status, validating the move
// against the status machine. The previous status is checkpointed so a
// resumed run validates against the state the original attempt saw, not
// the state it already wrote.
func (h *Handlers) Transition(wf *workflow.Workflow, p TransitionPayload) (*steward.Result, error) {
	jobID, err := id.ParseServiceJobID(p.ServiceJobID)
	if err != nil {
		return nil, steward.Validation("invalid service job id %q", p.ServiceJobID)
	}
	if !p.To.Valid() {
		return nil, steward.Validation("unknown service job status %q", p.To)
	}

	prev, err := workflow.StepWithResult(wf, "load", func(ctx context.Context) (string, error) {
		j, getErr := h.store.GetServiceJob(ctx, wf.TenantID(), jobID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrServiceJobNotFound) {
				return "", steward.NotFound("service job %s not found", p.ServiceJobID)
			}
			return "", getErr
		}
		return string(j.Status), nil
	})
	if err != nil {
		return nil, err
	}

	from := Status(prev)
	if !from.CanTransition(p.To) {
		return nil, steward.IllegalTransition("service job cannot move from %s to %s", from, p.To)
	}

	histID, err := workflow.StepWithResult(wf, "allocate-history-id", func(_ context.Context) (string, error) {
		return id.NewHistoryID().String(), nil
	})
	if err != nil {
		return nil, err
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		j, getErr := h.store.GetServiceJob(ctx, wf.TenantID(), jobID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrServiceJobNotFound) {
				return steward.NotFound("service job %s not found", p.ServiceJobID)
			}
			return getErr
		}
		j.Status = p.To
		j.Touch()
		if upErr := h.store.UpsertServiceJob(ctx, j); upErr != nil {
			return upErr
		}
		return h.store.AppendHistory(ctx, &steward.StatusChange{
			ID:         histID,
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeServiceJob,
			EntityID:   p.ServiceJobID,
			From:       string(from),
			To:         string(p.To),
			ActorID:    wf.ActorID(),
			ChangedAt:  j.UpdatedAt,
		})
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:      wf.TenantID(),
			EntityType:    steward.EntityTypeServiceJob,
			EntityID:      p.ServiceJobID,
			ActionType:    audit.ActionStatusChanged,
			Category:      audit.CategoryOperations,
			Summary:       "service job moved from " + string(from) + " to " + string(p.To),
			ActorID:       wf.ActorID(),
			PreviousState: string(from),
			NewState:      string(p.To),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.ServiceJobID), nil
}

// Delete removes a service job.
func (h *Handlers) Delete(wf *workflow.Workflow, p DeletePayload) (*steward.Result, error) {
	jobID, err := id.ParseServiceJobID(p.ServiceJobID)
	if err != nil {
		return nil, steward.Validation("invalid service job id %q", p.ServiceJobID)
	}

	if _, err := workflow.StepWithResult(wf, "load", func(ctx context.Context) (string, error) {
		j, getErr := h.store.GetServiceJob(ctx, wf.TenantID(), jobID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrServiceJobNotFound) {
				return "", steward.NotFound("service job %s not found", p.ServiceJobID)
			}
			return "", getErr
		}
		return string(j.Status), nil
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("delete", func(ctx context.Context) error {
		delErr := h.store.DeleteServiceJob(ctx, wf.TenantID(), jobID)
		if errors.Is(delErr, steward.ErrServiceJobNotFound) {
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
			EntityType: steward.EntityTypeServiceJob,
			EntityID:   p.ServiceJobID,
			ActionType: audit.ActionDeleted,
			Category:   audit.CategoryOperations,
			Summary:    "service job deleted",
			ActorID:    wf.ActorID(),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.ServiceJobID), nil
}
