package twin_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/store/memory"
	"github.com/hestami-ai/steward/twin"
	"github.com/hestami-ai/steward/workflow"
	"github.com/hestami-ai/steward/workorder"
)

// runnerExecutor adapts a workflow.Runner to the twin.Executor interface
// and counts engine invocations, so tests can assert a converged sync
// never reaches the engine.
type runnerExecutor struct {
	runner *workflow.Runner
	calls  int
}

func (e *runnerExecutor) Execute(ctx context.Context, action, tenantID, actorID string, payload any, idempotencyKey string) (*steward.Result, error) {
	e.calls++
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return e.runner.StartOrResume(ctx, workflow.RunKey(tenantID, idempotencyKey), action, input, tenantID, actorID)
}

type testEnv struct {
	store *memory.Store
	exec  *runnerExecutor
	svc   *twin.Service
	seq   int
}

func newTestEnv() *testEnv {
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := audit.NewStoreRecorder(s, logger)
	reg := workflow.NewRegistry()
	workorder.NewHandlers(s, s, recorder, logger).Register(reg)
	servicejob.NewHandlers(s, recorder, logger).Register(reg)

	exec := &runnerExecutor{runner: workflow.NewRunner(reg, s, logger)}
	return &testEnv{
		store: s,
		exec:  exec,
		svc:   twin.NewService(exec, s, s, logger),
	}
}

func (e *testEnv) key(t *testing.T) string {
	t.Helper()
	e.seq++
	return fmt.Sprintf("%s-%d", t.Name(), e.seq)
}

func (e *testEnv) createJob(t *testing.T, title string) id.ID {
	t.Helper()
	result, err := e.exec.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1",
		servicejob.CreatePayload{Title: title, PropertyRef: "lot-3"}, e.key(t))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	e.exec.calls = 0
	return id.MustParse(result.EntityID)
}

func (e *testEnv) transitionJob(t *testing.T, jobID id.ID, to servicejob.Status) {
	t.Helper()
	if _, err := e.exec.Execute(context.Background(), servicejob.ActionTransition, "tenant-1", "actor-1",
		servicejob.TransitionPayload{ServiceJobID: jobID.String(), To: to}, e.key(t)); err != nil {
		t.Fatalf("transition job to %s: %v", to, err)
	}
	e.exec.calls = 0
}

func (e *testEnv) transitionWorkOrder(t *testing.T, woID id.ID, to workorder.Status) {
	t.Helper()
	if _, err := e.exec.Execute(context.Background(), workorder.ActionTransition, "tenant-1", "actor-1",
		workorder.TransitionPayload{WorkOrderID: woID.String(), To: to}, e.key(t)); err != nil {
		t.Fatalf("transition work order to %s: %v", to, err)
	}
	e.exec.calls = 0
}

func (e *testEnv) auditEventCount(t *testing.T) int {
	t.Helper()
	events, err := e.store.ListEvents(context.Background(), audit.ListOpts{TenantID: "tenant-1"})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	return len(events)
}

func TestCreateTwin_CreatesWorkOrderOnce(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Clogged storm drain")

	first, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("CreateTwin: %v", err)
	}
	if !first.Changed {
		t.Fatalf("first CreateTwin = %+v, want changed", first)
	}
	woID := id.MustParse(first.EntityID)

	// The second call sees the link in the pre-check and never reaches
	// the engine.
	before := env.exec.calls
	second, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("repeat CreateTwin: %v", err)
	}
	if second.Changed {
		t.Error("repeat CreateTwin should report no change")
	}
	if second.EntityID != woID.String() {
		t.Errorf("repeat CreateTwin = %s, want existing twin %s", second.EntityID, woID)
	}
	if env.exec.calls != before {
		t.Errorf("engine calls = %d, want %d (pre-check short-circuit)", env.exec.calls, before)
	}

	wo, err := env.store.GetWorkOrder(context.Background(), "tenant-1", woID)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if wo.Status != workorder.StatusDraft {
		t.Errorf("twin status = %s, want DRAFT for a SUBMITTED job", wo.Status)
	}
}

func TestCreateTwin_InitialStatusFollowsJobProjection(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Playground inspection")
	env.transitionJob(t, jobID, servicejob.StatusTriaged)

	result, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("CreateTwin: %v", err)
	}

	wo, err := env.store.GetWorkOrder(context.Background(), "tenant-1", id.MustParse(result.EntityID))
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if wo.Status != workorder.StatusApproved {
		t.Errorf("twin status = %s, want APPROVED for a TRIAGED job", wo.Status)
	}
}

func TestCreateTwin_MissingJobIsNotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1",
		id.NewServiceJobID().String(), env.key(t))
	if steward.KindOf(err) != steward.KindNotFound {
		t.Fatalf("error kind = %v, want NotFound", steward.KindOf(err))
	}
}

func TestSyncJobStatus_NoTwinIsNoOp(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Unlinked job")
	events := env.auditEventCount(t)

	result, err := env.svc.SyncJobStatus(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("SyncJobStatus: %v", err)
	}
	if result.Changed {
		t.Error("sync of an unlinked job should report no change")
	}
	if env.exec.calls != 0 {
		t.Errorf("engine calls = %d, want 0", env.exec.calls)
	}
	if got := env.auditEventCount(t); got != events {
		t.Errorf("audit events = %d, want %d (no writes on no-op)", got, events)
	}
}

func TestSyncJobStatus_PropagatesThenConverges(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Pool pump replacement")

	created, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("CreateTwin: %v", err)
	}
	woID := id.MustParse(created.EntityID)
	env.transitionJob(t, jobID, servicejob.StatusTriaged)

	result, err := env.svc.SyncJobStatus(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("SyncJobStatus: %v", err)
	}
	if !result.Changed {
		t.Fatalf("sync = %+v, want changed", result)
	}

	wo, err := env.store.GetWorkOrder(context.Background(), "tenant-1", woID)
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if wo.Status != workorder.StatusApproved {
		t.Errorf("twin status = %s, want APPROVED", wo.Status)
	}

	// Converged: the repeat sync reads, matches and stops.
	env.exec.calls = 0
	events := env.auditEventCount(t)
	again, err := env.svc.SyncJobStatus(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("repeat SyncJobStatus: %v", err)
	}
	if again.Changed {
		t.Error("repeat sync should report no change")
	}
	if env.exec.calls != 0 {
		t.Errorf("engine calls = %d, want 0 on converged sync", env.exec.calls)
	}
	if got := env.auditEventCount(t); got != events {
		t.Errorf("audit events = %d, want %d (no writes on converged sync)", got, events)
	}
}

func TestSyncWorkOrderStatus_GovernanceInternalStateIsNoOp(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Roof leak")

	created, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("CreateTwin: %v", err)
	}
	woID := id.MustParse(created.EntityID)
	env.transitionWorkOrder(t, woID, workorder.StatusApproved)

	env.exec.calls = 0
	result, err := env.svc.SyncWorkOrderStatus(context.Background(), "tenant-1", "actor-1", woID.String(), env.key(t))
	if err != nil {
		t.Fatalf("SyncWorkOrderStatus: %v", err)
	}
	if result.Changed {
		t.Error("APPROVED has no job projection, sync should be a no-op")
	}
	if env.exec.calls != 0 {
		t.Errorf("engine calls = %d, want 0", env.exec.calls)
	}

	j, _ := env.store.GetServiceJob(context.Background(), "tenant-1", jobID)
	if j.Status != servicejob.StatusSubmitted {
		t.Errorf("job status = %s, want SUBMITTED untouched", j.Status)
	}
}

func TestSyncWorkOrderStatus_PropagatesActiveState(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Retaining wall")

	created, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("CreateTwin: %v", err)
	}
	woID := id.MustParse(created.EntityID)

	// Bring both sides into the active band, then move the work order
	// ahead of the job.
	env.transitionJob(t, jobID, servicejob.StatusTriaged)
	env.transitionWorkOrder(t, woID, workorder.StatusApproved)
	env.transitionWorkOrder(t, woID, workorder.StatusScheduled)

	result, err := env.svc.SyncWorkOrderStatus(context.Background(), "tenant-1", "actor-1", woID.String(), env.key(t))
	if err != nil {
		t.Fatalf("SyncWorkOrderStatus: %v", err)
	}
	if !result.Changed {
		t.Fatalf("sync = %+v, want changed", result)
	}

	j, err := env.store.GetServiceJob(context.Background(), "tenant-1", jobID)
	if err != nil {
		t.Fatalf("GetServiceJob: %v", err)
	}
	if j.Status != servicejob.StatusScheduled {
		t.Errorf("job status = %s, want SCHEDULED", j.Status)
	}
}

func TestSyncWorkOrderStatus_UnlinkedWorkOrderIsNoOp(t *testing.T) {
	env := newTestEnv()

	created, err := env.exec.Execute(context.Background(), workorder.ActionCreate, "tenant-1", "actor-1",
		workorder.CreatePayload{Title: "Standalone resolution"}, env.key(t))
	if err != nil {
		t.Fatalf("create work order: %v", err)
	}
	env.exec.calls = 0

	result, err := env.svc.SyncWorkOrderStatus(context.Background(), "tenant-1", "actor-1", created.EntityID, env.key(t))
	if err != nil {
		t.Fatalf("SyncWorkOrderStatus: %v", err)
	}
	if result.Changed {
		t.Error("sync of an unlinked work order should report no change")
	}
	if env.exec.calls != 0 {
		t.Errorf("engine calls = %d, want 0", env.exec.calls)
	}
}

// The end-to-end pairing scenario: ensure-twin twice yields one twin,
// a job change syncs across once, and the repeat sync converges.
func TestTwinLifecycle_ConvergesWithoutOscillation(t *testing.T) {
	env := newTestEnv()
	jobID := env.createJob(t, "Entry gate keypad")

	first, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID.String(), "ensure-"+jobID.String())
	if err != nil {
		t.Fatalf("CreateTwin: %v", err)
	}
	second, err := env.svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID.String(), "ensure-"+jobID.String())
	if err != nil {
		t.Fatalf("repeat CreateTwin: %v", err)
	}
	if first.EntityID != second.EntityID {
		t.Fatalf("two twins created: %s and %s", first.EntityID, second.EntityID)
	}

	env.transitionJob(t, jobID, servicejob.StatusTriaged)

	synced, err := env.svc.SyncJobStatus(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("SyncJobStatus: %v", err)
	}
	if !synced.Changed {
		t.Fatal("first sync should move the twin")
	}

	// The reverse sync sees the converged pair and does nothing; nothing
	// ping-pongs back.
	reverse, err := env.svc.SyncWorkOrderStatus(context.Background(), "tenant-1", "actor-1", first.EntityID, env.key(t))
	if err != nil {
		t.Fatalf("SyncWorkOrderStatus: %v", err)
	}
	if reverse.Changed {
		t.Error("reverse sync should report no change")
	}

	repeat, err := env.svc.SyncJobStatus(context.Background(), "tenant-1", "actor-1", jobID.String(), env.key(t))
	if err != nil {
		t.Fatalf("repeat SyncJobStatus: %v", err)
	}
	if repeat.Changed {
		t.Error("repeat sync should report no change")
	}
}
