package workorder_test

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
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/store/memory"
	"github.com/hestami-ai/steward/workflow"
	"github.com/hestami-ai/steward/workorder"
)

type testEnv struct {
	store  *memory.Store
	runner *workflow.Runner
	seq    int
}

func newTestEnv() *testEnv {
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewStoreRecorder(s, logger)
	reg := workflow.NewRegistry()
	workorder.NewHandlers(s, s, recorder, logger).Register(reg)
	servicejob.NewHandlers(s, recorder, logger).Register(reg)
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

func (e *testEnv) createWorkOrder(t *testing.T, title string) id.ID {
	t.Helper()
	result, err := e.run(t, workorder.ActionCreate, workorder.CreatePayload{Title: title})
	if err != nil {
		t.Fatalf("create work order: %v", err)
	}
	return id.MustParse(result.EntityID)
}

func (e *testEnv) createJob(t *testing.T, title string) id.ID {
	t.Helper()
	result, err := e.run(t, servicejob.ActionCreate, servicejob.CreatePayload{
		Title:       title,
		PropertyRef: "lot-7",
	})
	if err != nil {
		t.Fatalf("create service job: %v", err)
	}
	return id.MustParse(result.EntityID)
}

func TestCreate_PersistsDraftWorkOrder(t *testing.T) {
	env := newTestEnv()

	result, err := env.run(t, workorder.ActionCreate, workorder.CreatePayload{
		Title:       "Repaint clubhouse exterior",
		PropertyRef: "clubhouse",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	woID, err := id.ParseWorkOrderID(result.EntityID)
	if err != nil {
		t.Fatalf("entity id %q is not a work order id: %v", result.EntityID, err)
	}

	wo, err := env.store.GetWorkOrder(context.Background(), "tenant-1", woID)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if wo.Status != workorder.StatusDraft {
		t.Errorf("status = %s, want DRAFT", wo.Status)
	}
	if wo.Title != "Repaint clubhouse exterior" {
		t.Errorf("title = %q, not persisted", wo.Title)
	}
}

func TestCreate_RequiresTitle(t *testing.T) {
	env := newTestEnv()

	_, err := env.run(t, workorder.ActionCreate, workorder.CreatePayload{})
	if steward.KindOf(err) != steward.KindValidation {
		t.Fatalf("error kind = %v, want Validation", steward.KindOf(err))
	}
}

func TestTransition_DraftToApproved(t *testing.T) {
	env := newTestEnv()
	woID := env.createWorkOrder(t, "Repave parking lot")

	result, err := env.run(t, workorder.ActionTransition, workorder.TransitionPayload{
		WorkOrderID: woID.String(),
		To:          workorder.StatusApproved,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	wo, _ := env.store.GetWorkOrder(context.Background(), "tenant-1", woID)
	if wo.Status != workorder.StatusApproved {
		t.Errorf("status = %s, want APPROVED", wo.Status)
	}

	history, err := env.store.ListHistory(context.Background(), "tenant-1", woID.String())
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 1 || history[0].From != "DRAFT" || history[0].To != "APPROVED" {
		t.Errorf("history = %+v, want one DRAFT -> APPROVED row", history)
	}
}

func TestTransition_IllegalMoveIsRejected(t *testing.T) {
	env := newTestEnv()
	woID := env.createWorkOrder(t, "Repave parking lot")

	_, err := env.run(t, workorder.ActionTransition, workorder.TransitionPayload{
		WorkOrderID: woID.String(),
		To:          workorder.StatusClosed,
	})
	if steward.KindOf(err) != steward.KindIllegalTransition {
		t.Fatalf("error kind = %v, want IllegalTransition", steward.KindOf(err))
	}
}

func TestDelete_RemovesWorkOrder(t *testing.T) {
	env := newTestEnv()
	woID := env.createWorkOrder(t, "Withdrawn proposal")

	if _, err := env.run(t, workorder.ActionDelete, workorder.DeletePayload{
		WorkOrderID: woID.String(),
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.store.GetWorkOrder(context.Background(), "tenant-1", woID); !errors.Is(err, steward.ErrWorkOrderNotFound) {
		t.Errorf("expected work order gone, got %v", err)
	}
}

func TestCreateFromJob_CreatesTwinAndWritesLink(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Broken pool gate latch")

	result, err := env.run(t, workorder.ActionCreateFromJob, workorder.CreateFromJobPayload{
		ServiceJobID: jobID.String(),
	})
	if err != nil {
		t.Fatalf("create from job: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	woID := id.MustParse(result.EntityID)
	wo, err := env.store.GetWorkOrder(context.Background(), "tenant-1", woID)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if wo.Status != workorder.StatusDraft {
		t.Errorf("twin status = %s, want DRAFT default", wo.Status)
	}
	if wo.Title != "Broken pool gate latch" || wo.PropertyRef != "lot-7" {
		t.Errorf("twin = %+v, job fields not copied", wo)
	}

	j, err := env.store.GetServiceJob(context.Background(), "tenant-1", jobID)
	if err != nil {
		t.Fatalf("GetServiceJob: %v", err)
	}
	if j.WorkOrderID.String() != woID.String() {
		t.Errorf("twin link = %q, want %q", j.WorkOrderID, woID)
	}

	// The link is also queryable from the work order side.
	linked, err := env.store.FindByWorkOrder(context.Background(), "tenant-1", woID)
	if err != nil {
		t.Fatalf("FindByWorkOrder: %v", err)
	}
	if linked.ID.String() != jobID.String() {
		t.Errorf("FindByWorkOrder = %s, want %s", linked.ID, jobID)
	}

	events, err := env.store.ListEvents(context.Background(), audit.ListOpts{
		TenantID: "tenant-1",
		EntityID: woID.String(),
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	var linkedEvents int
	for _, ev := range events {
		if ev.ActionType == audit.ActionTwinLinked {
			linkedEvents++
			if ev.Metadata["service_job_id"] != jobID.String() {
				t.Errorf("event metadata = %v, want service_job_id %s", ev.Metadata, jobID)
			}
		}
	}
	if linkedEvents != 1 {
		t.Errorf("twin_linked events = %d, want 1", linkedEvents)
	}
}

func TestCreateFromJob_HonorsInitialStatus(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Tree removal")

	result, err := env.run(t, workorder.ActionCreateFromJob, workorder.CreateFromJobPayload{
		ServiceJobID:  jobID.String(),
		InitialStatus: workorder.StatusApproved,
	})
	if err != nil {
		t.Fatalf("create from job: %v", err)
	}

	wo, err := env.store.GetWorkOrder(context.Background(), "tenant-1", id.MustParse(result.EntityID))
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if wo.Status != workorder.StatusApproved {
		t.Errorf("twin status = %s, want APPROVED", wo.Status)
	}
}

func TestCreateFromJob_MissingJobIsNotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.run(t, workorder.ActionCreateFromJob, workorder.CreateFromJobPayload{
		ServiceJobID: id.NewServiceJobID().String(),
	})
	if steward.KindOf(err) != steward.KindNotFound {
		t.Fatalf("error kind = %v, want NotFound", steward.KindOf(err))
	}
}

func TestCreateFromJob_ReplaySameRunProducesOneTwin(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Sidewalk crack")

	input, _ := json.Marshal(workorder.CreateFromJobPayload{ServiceJobID: jobID.String()})
	key := workflow.RunKey("tenant-1", "ensure-twin-"+jobID.String())

	first, err := env.runner.StartOrResume(context.Background(), key, workorder.ActionCreateFromJob, input, "tenant-1", "actor-1")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := env.runner.StartOrResume(context.Background(), key, workorder.ActionCreateFromJob, input, "tenant-1", "actor-1")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.EntityID != second.EntityID {
		t.Errorf("replay produced a different twin: %s vs %s", first.EntityID, second.EntityID)
	}
}

// haltingStore fails a configured number of upserts so a run is left in
// running state with its load step already checkpointed.
type haltingStore struct {
	*memory.Store
	failUpserts int
}

func (s *haltingStore) UpsertWorkOrder(ctx context.Context, wo *workorder.WorkOrder) error {
	if s.failUpserts > 0 {
		s.failUpserts--
		return errors.New("storage offline")
	}
	return s.Store.UpsertWorkOrder(ctx, wo)
}

func TestTransition_EntityRemovedBeforeResumeFailsAsNotFound(t *testing.T) {
	s := memory.New()
	halting := &haltingStore{Store: s, failUpserts: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := workflow.NewRegistry()
	workorder.NewHandlers(halting, s, audit.NewStoreRecorder(s, logger), logger).Register(reg)
	runner := workflow.NewRunner(reg, s, logger)

	woID := id.NewWorkOrderID()
	wo := &workorder.WorkOrder{
		Entity:   steward.NewEntity(),
		ID:       woID,
		TenantID: "tenant-1",
		Title:    "Fix gate latch",
		Status:   workorder.StatusDraft,
	}
	if err := s.UpsertWorkOrder(context.Background(), wo); err != nil {
		t.Fatalf("seed work order: %v", err)
	}

	input, err := json.Marshal(workorder.TransitionPayload{WorkOrderID: woID.String(), To: workorder.StatusApproved})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	key := workflow.RunKey("tenant-1", "approve-1")

	// First attempt checkpoints the load, then dies in the persist step.
	_, err = runner.StartOrResume(context.Background(), key, workorder.ActionTransition, input, "tenant-1", "actor-1")
	if steward.KindOf(err) != steward.KindInfrastructure {
		t.Fatalf("first attempt kind = %v, want Infrastructure", steward.KindOf(err))
	}

	// The work order disappears before the retry resumes the run.
	if err := s.DeleteWorkOrder(context.Background(), "tenant-1", woID); err != nil {
		t.Fatalf("delete work order: %v", err)
	}

	_, err = runner.StartOrResume(context.Background(), key, workorder.ActionTransition, input, "tenant-1", "actor-1")
	if steward.KindOf(err) != steward.KindNotFound {
		t.Fatalf("resumed kind = %v, want NotFound", steward.KindOf(err))
	}
}
