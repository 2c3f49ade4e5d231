package violation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/store/memory"
	"github.com/hestami-ai/steward/violation"
	"github.com/hestami-ai/steward/workflow"
)

type testEnv struct {
	store  *memory.Store
	runner *workflow.Runner
	seq    int
}

func newTestEnv() *testEnv {
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := workflow.NewRegistry()
	violation.NewHandlers(s, audit.NewStoreRecorder(s, logger), logger).Register(reg)
	return &testEnv{
		store:  s,
		runner: workflow.NewRunner(reg, s, logger),
	}
}

func (e *testEnv) run(t *testing.T, action string, payload any) (*steward.Result, error) {
	t.Helper()
	e.seq++
	input, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	key := workflow.RunKey("tenant-1", fmt.Sprintf("%s-%d", t.Name(), e.seq))
	return e.runner.StartOrResume(context.Background(), key, action, input, "tenant-1", "actor-1")
}

func (e *testEnv) create(t *testing.T, ruleRef string) id.ID {
	t.Helper()
	result, err := e.run(t, violation.ActionCreate, violation.CreatePayload{RuleRef: ruleRef})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id.MustParse(result.EntityID)
}

func (e *testEnv) transition(t *testing.T, violID id.ID, to violation.Status) {
	t.Helper()
	if _, err := e.run(t, violation.ActionTransition, violation.TransitionPayload{
		ViolationID: violID.String(),
		To:          to,
	}); err != nil {
		t.Fatalf("transition to %s: %v", to, err)
	}
}

func TestCreate_PersistsDraftViolation(t *testing.T) {
	env := newTestEnv()

	result, err := env.run(t, violation.ActionCreate, violation.CreatePayload{
		RuleRef:     "CCR-4.2",
		Description: "Unapproved fence color",
		PropertyRef: "lot-22",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	violID, err := id.ParseViolationID(result.EntityID)
	if err != nil {
		t.Fatalf("entity id %q is not a violation id: %v", result.EntityID, err)
	}

	v, err := env.store.GetViolation(context.Background(), "tenant-1", violID)
	if err != nil {
		t.Fatalf("GetViolation: %v", err)
	}
	if v.Status != violation.StatusDraft {
		t.Errorf("status = %s, want DRAFT", v.Status)
	}
	if v.RuleRef != "CCR-4.2" {
		t.Errorf("rule ref = %q, not persisted", v.RuleRef)
	}
}

func TestCreate_RequiresRuleRef(t *testing.T) {
	env := newTestEnv()

	_, err := env.run(t, violation.ActionCreate, violation.CreatePayload{Description: "no rule"})
	if steward.KindOf(err) != steward.KindValidation {
		t.Fatalf("error kind = %v, want Validation", steward.KindOf(err))
	}
}

func TestTransition_EnforcementPathWritesHistory(t *testing.T) {
	env := newTestEnv()
	violID := env.create(t, "CCR-7.1")

	path := []violation.Status{
		violation.StatusOpen,
		violation.StatusNoticeSent,
		violation.StatusCurePeriod,
		violation.StatusEscalated,
		violation.StatusHearingScheduled,
		violation.StatusHearingHeld,
		violation.StatusFineAssessed,
		violation.StatusAppealed,
		violation.StatusClosed,
	}
	for _, to := range path {
		env.transition(t, violID, to)
	}

	v, err := env.store.GetViolation(context.Background(), "tenant-1", violID)
	if err != nil {
		t.Fatalf("GetViolation: %v", err)
	}
	if v.Status != violation.StatusClosed {
		t.Errorf("status = %s, want CLOSED", v.Status)
	}

	history, err := env.store.ListHistory(context.Background(), "tenant-1", violID.String())
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != len(path) {
		t.Fatalf("history rows = %d, want %d", len(history), len(path))
	}
	if history[0].From != "DRAFT" || history[0].To != "OPEN" {
		t.Errorf("first row = %+v, want DRAFT -> OPEN", history[0])
	}
	if history[len(history)-1].To != "CLOSED" {
		t.Errorf("last row = %+v, want -> CLOSED", history[len(history)-1])
	}
}

func TestTransition_IllegalMoveIsRejected(t *testing.T) {
	env := newTestEnv()
	violID := env.create(t, "CCR-7.1")

	_, err := env.run(t, violation.ActionTransition, violation.TransitionPayload{
		ViolationID: violID.String(),
		To:          violation.StatusFineAssessed,
	})
	if steward.KindOf(err) != steward.KindIllegalTransition {
		t.Fatalf("error kind = %v, want IllegalTransition", steward.KindOf(err))
	}
}

func TestUpdate_ModifiesFields(t *testing.T) {
	env := newTestEnv()
	violID := env.create(t, "CCR-1.1")

	desc := "Trash bins visible from street"
	if _, err := env.run(t, violation.ActionUpdate, violation.UpdatePayload{
		ViolationID: violID.String(),
		Description: &desc,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	v, _ := env.store.GetViolation(context.Background(), "tenant-1", violID)
	if v.Description != desc {
		t.Errorf("description = %q, want %q", v.Description, desc)
	}
}

func TestDelete_RemovesViolation(t *testing.T) {
	env := newTestEnv()
	violID := env.create(t, "CCR-2.9")

	if _, err := env.run(t, violation.ActionDelete, violation.DeletePayload{
		ViolationID: violID.String(),
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.store.GetViolation(context.Background(), "tenant-1", violID); !errors.Is(err, steward.ErrViolationNotFound) {
		t.Errorf("expected violation gone, got %v", err)
	}
}

func TestDelete_MissingViolationIsNotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.run(t, violation.ActionDelete, violation.DeletePayload{
		ViolationID: id.NewViolationID().String(),
	})
	if steward.KindOf(err) != steward.KindNotFound {
		t.Fatalf("error kind = %v, want NotFound", steward.KindOf(err))
	}
}
