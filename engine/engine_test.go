package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/metric"
	embeddedmetric "go.opentelemetry.io/otel/metric/embedded"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	embeddedtrace "go.opentelemetry.io/otel/trace/embedded"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/engine"
	"github.com/hestami-ai/steward/id"
	"github.com/hestami-ai/steward/servicejob"
	"github.com/hestami-ai/steward/store/memory"
	"github.com/hestami-ai/steward/twin"
	"github.com/hestami-ai/steward/violation"
	"github.com/hestami-ai/steward/workorder"
)

func newTestEngine(t *testing.T) (*engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(s, engine.WithLogger(logger))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	recorder := eng.Recorder()
	servicejob.NewHandlers(s, recorder, logger).Register(eng.Registry())
	workorder.NewHandlers(s, s, recorder, logger).Register(eng.Registry())
	violation.NewHandlers(s, recorder, logger).Register(eng.Registry())
	return eng, s
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := engine.New(nil); !errors.Is(err, steward.ErrNoStore) {
		t.Fatalf("error = %v, want ErrNoStore", err)
	}
}

func TestExecute_ValidatesRequest(t *testing.T) {
	eng, _ := newTestEngine(t)

	if _, err := eng.Execute(context.Background(), "", "tenant-1", "actor-1", nil, ""); steward.KindOf(err) != steward.KindValidation {
		t.Errorf("empty action: kind = %v, want Validation", steward.KindOf(err))
	}
	if _, err := eng.Execute(context.Background(), servicejob.ActionCreate, "", "actor-1", nil, ""); steward.KindOf(err) != steward.KindValidation {
		t.Errorf("empty tenant: kind = %v, want Validation", steward.KindOf(err))
	}
}

func TestExecute_CreateAndReplay(t *testing.T) {
	eng, s := newTestEngine(t)

	payload := servicejob.CreatePayload{Title: "Replace mailbox cluster"}
	first, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1", payload, "req-1")
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if first.FromCache {
		t.Error("first execution should not be from cache")
	}

	second, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1", payload, "req-1")
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.FromCache {
		t.Error("replay should be from cache")
	}
	if second.EntityID != first.EntityID {
		t.Errorf("replay entity = %s, want %s", second.EntityID, first.EntityID)
	}

	// One mutation, one audit event, despite two requests.
	events, err := s.ListEvents(context.Background(), audit.ListOpts{
		TenantID: "tenant-1",
		EntityID: first.EntityID,
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("audit events = %d, want 1", len(events))
	}
}

func TestExecute_BusinessErrorIsCachedWithSameKind(t *testing.T) {
	eng, _ := newTestEngine(t)

	payload := servicejob.DeletePayload{ServiceJobID: id.NewServiceJobID().String()}
	_, err := eng.Execute(context.Background(), servicejob.ActionDelete, "tenant-1", "actor-1", payload, "del-1")
	if steward.KindOf(err) != steward.KindNotFound {
		t.Fatalf("first error kind = %v, want NotFound", steward.KindOf(err))
	}

	result, err := eng.Execute(context.Background(), servicejob.ActionDelete, "tenant-1", "actor-1", payload, "del-1")
	if steward.KindOf(err) != steward.KindNotFound {
		t.Fatalf("replayed error kind = %v, want NotFound", steward.KindOf(err))
	}
	if result == nil || !result.FromCache {
		t.Errorf("result = %+v, want cached failure payload", result)
	}
	if result.Success {
		t.Error("replayed failure should not report success")
	}
}

func TestExecute_EmptyKeyExecutesEachTime(t *testing.T) {
	eng, _ := newTestEngine(t)

	payload := servicejob.CreatePayload{Title: "Trim oak trees"}
	first, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1", payload, "")
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	second, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1", payload, "")
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if first.EntityID == second.EntityID {
		t.Error("keyless requests should create distinct entities")
	}
}

func TestExecute_ConcurrentDuplicatesCreateOneEntity(t *testing.T) {
	eng, s := newTestEngine(t)

	payload := servicejob.CreatePayload{Title: "Resurface tennis court"}
	const racers = 8
	var wg sync.WaitGroup
	results := make([]*steward.Result, racers)
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = eng.Execute(context.Background(),
				servicejob.ActionCreate, "tenant-1", "actor-1", payload, "race-1")
		}(i)
	}
	wg.Wait()

	entityIDs := map[string]bool{}
	for i := 0; i < racers; i++ {
		switch {
		case errs[i] == nil:
			entityIDs[results[i].EntityID] = true
		case steward.KindOf(errs[i]) == steward.KindConflict:
			// A racer that lost the reservation while the winner was
			// still in flight.
		default:
			t.Errorf("racer %d: unexpected error %v", i, errs[i])
		}
	}
	if len(entityIDs) != 1 {
		t.Fatalf("distinct entities = %d, want 1", len(entityIDs))
	}

	for eid := range entityIDs {
		events, err := s.ListEvents(context.Background(), audit.ListOpts{
			TenantID: "tenant-1",
			EntityID: eid,
		})
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(events) != 1 {
			t.Errorf("audit events = %d, want 1", len(events))
		}
	}
}

func TestExecute_KeysAreTenantScoped(t *testing.T) {
	eng, _ := newTestEngine(t)

	payload := servicejob.CreatePayload{Title: "Paint curbs"}
	a, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-a", "actor-1", payload, "shared-key")
	if err != nil {
		t.Fatalf("tenant-a Execute: %v", err)
	}
	b, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-b", "actor-1", payload, "shared-key")
	if err != nil {
		t.Fatalf("tenant-b Execute: %v", err)
	}
	if b.FromCache {
		t.Error("same key under a different tenant must not replay")
	}
	if a.EntityID == b.EntityID {
		t.Error("tenants should get distinct entities")
	}
}

func TestExecute_TwinFlowEndToEnd(t *testing.T) {
	eng, s := newTestEngine(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := twin.NewService(eng, s, s, logger)

	created, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1",
		servicejob.CreatePayload{Title: "Fountain pump failure"}, "job-1")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	jobID := created.EntityID

	twinResult, err := svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID, "twin-1")
	if err != nil {
		t.Fatalf("CreateTwin: %v", err)
	}
	if !twinResult.Changed {
		t.Fatalf("CreateTwin = %+v, want changed", twinResult)
	}

	// The same ensure-twin key replays; a fresh key short-circuits on the
	// pre-check. Either way there is exactly one work order.
	replayed, err := svc.CreateTwin(context.Background(), "tenant-1", "actor-1", jobID, "twin-1")
	if err != nil {
		t.Fatalf("replay CreateTwin: %v", err)
	}
	if replayed.EntityID != twinResult.EntityID {
		t.Errorf("replayed twin = %s, want %s", replayed.EntityID, twinResult.EntityID)
	}

	if _, err := eng.Execute(context.Background(), servicejob.ActionTransition, "tenant-1", "actor-1",
		servicejob.TransitionPayload{ServiceJobID: jobID, To: servicejob.StatusTriaged}, "triage-1"); err != nil {
		t.Fatalf("transition job: %v", err)
	}

	synced, err := svc.SyncJobStatus(context.Background(), "tenant-1", "actor-1", jobID, "sync-1")
	if err != nil {
		t.Fatalf("SyncJobStatus: %v", err)
	}
	if !synced.Changed {
		t.Fatal("sync should move the twin")
	}

	wo, err := s.GetWorkOrder(context.Background(), "tenant-1", id.MustParse(twinResult.EntityID))
	if err != nil {
		t.Fatalf("GetWorkOrder: %v", err)
	}
	if wo.Status != workorder.StatusApproved {
		t.Errorf("twin status = %s, want APPROVED", wo.Status)
	}
}

func TestResumeAll_NoRunningRunsIsNoOp(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.ResumeAll(context.Background()); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
}

func TestShutdown_ClosesStore(t *testing.T) {
	eng, s := newTestEngine(t)
	if err := eng.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, steward.ErrStoreClosed) {
		t.Errorf("Ping after shutdown = %v, want ErrStoreClosed", err)
	}
}

func TestExecute_ReplayKeepsIllegalTransitionKind(t *testing.T) {
	eng, _ := newTestEngine(t)

	created, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1",
		servicejob.CreatePayload{Title: "Regrade drainage swale"}, "create-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	payload := servicejob.TransitionPayload{ServiceJobID: created.EntityID, To: servicejob.StatusClosed}
	_, err = eng.Execute(context.Background(), servicejob.ActionTransition, "tenant-1", "actor-1", payload, "close-1")
	if steward.KindOf(err) != steward.KindIllegalTransition {
		t.Fatalf("first error kind = %v, want IllegalTransition", steward.KindOf(err))
	}

	result, err := eng.Execute(context.Background(), servicejob.ActionTransition, "tenant-1", "actor-1", payload, "close-1")
	if steward.KindOf(err) != steward.KindIllegalTransition {
		t.Fatalf("replayed error kind = %v, want IllegalTransition", steward.KindOf(err))
	}
	if result == nil || !result.FromCache {
		t.Errorf("result = %+v, want cached failure payload", result)
	}
}

type countingTracer struct {
	trace.Tracer
	starts int
}

func (t *countingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	t.starts++
	return t.Tracer.Start(ctx, name, opts...)
}

type countingTracerProvider struct {
	embeddedtrace.TracerProvider
	tracer *countingTracer
}

func (p *countingTracerProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

type countingMeterProvider struct {
	embeddedmetric.MeterProvider
	meters int
}

func (p *countingMeterProvider) Meter(name string, _ ...metric.MeterOption) metric.Meter {
	p.meters++
	return metricnoop.NewMeterProvider().Meter(name)
}

func TestNew_WiresTracingAndMetrics(t *testing.T) {
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tp := &countingTracerProvider{
		tracer: &countingTracer{Tracer: tracenoop.NewTracerProvider().Tracer("test")},
	}
	mp := &countingMeterProvider{}

	eng, err := engine.New(s,
		engine.WithLogger(logger),
		engine.WithTracerProvider(tp),
		engine.WithMeterProvider(mp),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if mp.meters != 1 {
		t.Errorf("meters created = %d, want 1", mp.meters)
	}
	servicejob.NewHandlers(s, eng.Recorder(), logger).Register(eng.Registry())

	payload := servicejob.CreatePayload{Title: "Trim hedges"}
	if _, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1", payload, "trace-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if tp.tracer.starts != 1 {
		t.Errorf("spans started = %d, want 1", tp.tracer.starts)
	}

	// A cached replay never re-enters the middleware chain.
	if _, err := eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1", payload, "trace-1"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if tp.tracer.starts != 1 {
		t.Errorf("spans after replay = %d, want 1", tp.tracer.starts)
	}
}

type panickingTracer struct {
	trace.Tracer
}

func (panickingTracer) Start(context.Context, string, ...trace.SpanStartOption) (context.Context, trace.Span) {
	panic("span exporter unavailable")
}

type panickingTracerProvider struct {
	embeddedtrace.TracerProvider
}

func (panickingTracerProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return panickingTracer{Tracer: tracenoop.NewTracerProvider().Tracer("test")}
}

func TestExecute_ContainsPanicsFromTheChainItself(t *testing.T) {
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(s,
		engine.WithLogger(logger),
		engine.WithTracerProvider(panickingTracerProvider{}),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	servicejob.NewHandlers(s, eng.Recorder(), logger).Register(eng.Registry())

	_, err = eng.Execute(context.Background(), servicejob.ActionCreate, "tenant-1", "actor-1",
		servicejob.CreatePayload{Title: "Reset pool gate code"}, "panic-1")
	if err == nil {
		t.Fatal("expected an error from the recovered panic")
	}
	if steward.KindOf(err) != steward.KindInfrastructure {
		t.Errorf("error kind = %v, want Infrastructure", steward.KindOf(err))
	}
}
