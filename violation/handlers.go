package violation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/workflow"
)

// Action names for violation operations.
const (
	ActionCreate     = "violation.create"
	ActionUpdate     = "violation.update"
	ActionTransition = "violation.transition"
	ActionDelete     = "violation.delete"
)

// CreatePayload is the typed payload for ActionCreate.
type CreatePayload struct {
	RuleRef     string `json:"rule_ref"`
	Description string `json:"description,omitempty"`
	PropertyRef string `json:"property_ref,omitempty"`
}

// UpdatePayload is the typed payload for ActionUpdate. Nil fields are
// left unchanged.
type UpdatePayload struct {
	ViolationID string  `json:"violation_id"`
	Description *string `json:"description,omitempty"`
	RuleRef     *string `json:"rule_ref,omitempty"`
}

// TransitionPayload is the typed payload for ActionTransition.
type TransitionPayload struct {
	ViolationID string `json:"violation_id"`
	To          Status `json:"to"`
}

// DeletePayload is the typed payload for ActionDelete.
type DeletePayload struct {
	ViolationID string `json:"violation_id"`
}

// Handlers implements the violation action handlers.
type Handlers struct {
	store    Store
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewHandlers creates the violation handlers.
func NewHandlers(store Store, recorder audit.Recorder, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, recorder: recorder, logger: logger}
}

// Register registers all violation actions.
func (h *Handlers) Register(reg *workflow.Registry) {
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionCreate, h.Create))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionUpdate, h.Update))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionTransition, h.Transition))
	workflow.RegisterDefinition(reg, workflow.NewDefinition(ActionDelete, h.Delete))
}

// Create creates a new violation in DRAFT status.
func (h *Handlers) Create(wf *workflow.Workflow, p CreatePayload) (*steward.Result, error) {
	if p.RuleRef == "" {
		return nil, steward.Validation("violation rule reference is required")
	}

	violID, err := workflow.StepWithResult(wf, "allocate-id", func(_ context.Context) (string, error) {
		return id.NewViolationID().String(), nil
	})
	if err != nil {
		return nil, err
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		v := &Violation{
			Entity:      steward.NewEntity(),
			ID:          id.MustParse(violID),
			TenantID:    wf.TenantID(),
			RuleRef:     p.RuleRef,
			Description: p.Description,
			PropertyRef: p.PropertyRef,
			Status:      StatusDraft,
			CreatedBy:   wf.ActorID(),
		}
		return h.store.UpsertViolation(ctx, v)
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeViolation,
			EntityID:   violID,
			ActionType: audit.ActionCreated,
			Category:   audit.CategoryGovernance,
			Summary:    "violation recorded against rule " + p.RuleRef,
			ActorID:    wf.ActorID(),
			NewState:   string(StatusDraft),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(violID), nil
}

// Update modifies mutable fields of an existing violation.
func (h *Handlers) Update(wf *workflow.Workflow, p UpdatePayload) (*steward.Result, error) {
	violID, err := id.ParseViolationID(p.ViolationID)
	if err != nil {
		return nil, steward.Validation("invalid violation id %q", p.ViolationID)
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		v, getErr := h.store.GetViolation(ctx, wf.TenantID(), violID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrViolationNotFound) {
				return steward.NotFound("violation %s not found", p.ViolationID)
			}
			return getErr
		}
		if p.RuleRef != nil {
			v.RuleRef = *p.RuleRef
		}
		if p.Description != nil {
			v.Description = *p.Description
		}
		v.Touch()
		return h.store.UpsertViolation(ctx, v)
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeViolation,
			EntityID:   p.ViolationID,
			ActionType: audit.ActionUpdated,
			Category:   audit.CategoryGovernance,
			Summary:    "violation updated",
			ActorID:    wf.ActorID(),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.ViolationID), nil
}

// Transition moves a violation to a new status, validating the move
// against the status machine. The previous status is checkpointed so a
// resumed run validates against the state the original attempt saw.
func (h *Handlers) Transition(wf *workflow.Workflow, p TransitionPayload) (*steward.Result, error) {
	violID, err := id.ParseViolationID(p.ViolationID)
	if err != nil {
		return nil, steward.Validation("invalid violation id %q", p.ViolationID)
	}
	if !p.To.Valid() {
		return nil, steward.Validation("unknown violation status %q", p.To)
	}

	prev, err := workflow.StepWithResult(wf, "load", func(ctx context.Context) (string, error) {
		v, getErr := h.store.GetViolation(ctx, wf.TenantID(), violID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrViolationNotFound) {
				return "", steward.NotFound("violation %s not found", p.ViolationID)
			}
			return "", getErr
		}
		return string(v.Status), nil
	})
	if err != nil {
		return nil, err
	}

	from := Status(prev)
	if !from.CanTransition(p.To) {
		return nil, steward.IllegalTransition("violation cannot move from %s to %s", from, p.To)
	}

	histID, err := workflow.StepWithResult(wf, "allocate-history-id", func(_ context.Context) (string, error) {
		return id.NewHistoryID().String(), nil
	})
	if err != nil {
		return nil, err
	}

	if err := wf.Step("persist", func(ctx context.Context) error {
		v, getErr := h.store.GetViolation(ctx, wf.TenantID(), violID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrViolationNotFound) {
				return steward.NotFound("violation %s not found", p.ViolationID)
			}
			return getErr
		}
		v.Status = p.To
		v.Touch()
		if upErr := h.store.UpsertViolation(ctx, v); upErr != nil {
			return upErr
		}
		return h.store.AppendHistory(ctx, &steward.StatusChange{
			ID:         histID,
			TenantID:   wf.TenantID(),
			EntityType: steward.EntityTypeViolation,
			EntityID:   p.ViolationID,
			From:       string(from),
			To:         string(p.To),
			ActorID:    wf.ActorID(),
			ChangedAt:  v.UpdatedAt,
		})
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("audit", func(ctx context.Context) error {
		audit.Record(ctx, h.recorder, &audit.Event{
			TenantID:      wf.TenantID(),
			EntityType:    steward.EntityTypeViolation,
			EntityID:      p.ViolationID,
			ActionType:    audit.ActionStatusChanged,
			Category:      audit.CategoryGovernance,
			Summary:       "violation moved from " + string(from) + " to " + string(p.To),
			ActorID:       wf.ActorID(),
			PreviousState: string(from),
			NewState:      string(p.To),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.ViolationID), nil
}

// Delete removes a violation.
func (h *Handlers) Delete(wf *workflow.Workflow, p DeletePayload) (*steward.Result, error) {
	violID, err := id.ParseViolationID(p.ViolationID)
	if err != nil {
		return nil, steward.Validation("invalid violation id %q", p.ViolationID)
	}

	if _, err := workflow.StepWithResult(wf, "load", func(ctx context.Context) (string, error) {
		v, getErr := h.store.GetViolation(ctx, wf.TenantID(), violID)
		if getErr != nil {
			if errors.Is(getErr, steward.ErrViolationNotFound) {
				return "", steward.NotFound("violation %s not found", p.ViolationID)
			}
			return "", getErr
		}
		return string(v.Status), nil
	}); err != nil {
		return nil, err
	}

	if err := wf.Step("delete", func(ctx context.Context) error {
		delErr := h.store.DeleteViolation(ctx, wf.TenantID(), violID)
		if errors.Is(delErr, steward.ErrViolationNotFound) {
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
			EntityType: steward.EntityTypeViolation,
			EntityID:   p.ViolationID,
			ActionType: audit.ActionDeleted,
			Category:   audit.CategoryGovernance,
			Summary:    "violation deleted",
			ActorID:    wf.ActorID(),
		}, h.logger)
		return nil
	}); err != nil {
		return nil, err
	}

	return steward.Succeed(p.ViolationID), nil
}
