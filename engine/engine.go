// Package engine wires the orchestration subsystems together: the action
// registry, the workflow runner, the idempotency manager and sweeper,
// the audit recorder, and the middleware chain.
//
// This package exists to break the import cycle: the root steward
// package defines Entity and the error taxonomy (imported by workflow,
// idempotency, the entity packages) and so cannot import those packages
// back. The engine package sits above all subsystem packages and below
// the application layer.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hestami-ai/steward"
	"github.com/hestami-ai/steward/audit"
	"github.com/hestami-ai/steward/idempotency"
	mw "github.com/hestami-ai/steward/middleware"
	"github.com/hestami-ai/steward/store"
	"github.com/hestami-ai/steward/workflow"
)

// Engine is the entry point for executing actions. Every mutating
// request flows through Execute: the idempotency gate, the middleware
// chain, and the durable workflow runner, in that order.
type Engine struct {
	store          store.Store
	registry       *workflow.Registry
	runner         *workflow.Runner
	idem           *idempotency.Manager
	sweeper        *idempotency.Sweeper
	recorder       audit.Recorder
	mws            []mw.Middleware
	chain          mw.Middleware
	cfg            steward.Config
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg steward.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithMiddleware appends middleware to the engine's chain, inside the
// built-in recover, tracing, metrics, logging and timeout middleware.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m...) }
}

// WithTracerProvider sets the TracerProvider for the built-in tracing
// middleware. Defaults to the global provider (noop when unconfigured).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets the MeterProvider for the built-in metrics
// middleware. Defaults to the global provider (noop when unconfigured).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// WithRecorder overrides the default store-backed audit recorder.
func WithRecorder(r audit.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New creates an engine over the given store.
func New(st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, steward.ErrNoStore
	}

	e := &Engine{
		store:  st,
		cfg:    steward.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registry = workflow.NewRegistry()
	e.runner = workflow.NewRunner(e.registry, st, e.logger)
	e.idem = idempotency.NewManager(st,
		idempotency.WithTTL(e.cfg.IdempotencyTTL),
		idempotency.WithLogger(e.logger),
	)
	e.sweeper = idempotency.NewSweeper(st,
		idempotency.WithSchedule(e.cfg.SweepSchedule),
		idempotency.WithSweeperLogger(e.logger),
	)
	if e.recorder == nil {
		e.recorder = audit.NewStoreRecorder(st, e.logger)
	}

	tracingMw := mw.Tracing()
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer("github.com/hestami-ai/steward"))
	}
	metricsMw := mw.Metrics()
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter("github.com/hestami-ai/steward"))
	}

	// Recover stays outermost so even a panic inside the chain itself
	// settles as an infrastructure error.
	chain := []mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
		mw.Timeout(e.cfg.ActionTimeout),
	}
	chain = append(chain, e.mws...)
	e.chain = mw.Chain(chain...)

	return e, nil
}

// Registry returns the action registry, for handler registration.
func (e *Engine) Registry() *workflow.Registry { return e.registry }

// Recorder returns the audit recorder handlers record through.
func (e *Engine) Recorder() audit.Recorder { return e.recorder }

// Idempotency returns the idempotency manager, for administrative use.
func (e *Engine) Idempotency() *idempotency.Manager { return e.idem }

// Store returns the underlying aggregate store.
func (e *Engine) Store() store.Store { return e.store }

// Register registers a typed action definition with the engine.
func Register[T any](e *Engine, def *workflow.Definition[T]) {
	workflow.RegisterDefinition(e.registry, def)
}

// Execute runs a registered action under the idempotency protocol.
//
// The idempotency key scopes the request per tenant: a repeat of a
// completed request replays the cached response byte for byte, a repeat
// of an in-flight request reports a Conflict, and a repeat after an
// infrastructure failure resumes the same workflow run where it left
// off. An empty key executes the action without any of that.
//
// The returned error is nil on success, the classified business error
// on a handled failure (original or replayed), and an infrastructure
// error when the outcome is not yet settled.
func (e *Engine) Execute(ctx context.Context, action, tenantID, actorID string, payload any, idempotencyKey string) (*steward.Result, error) {
	if action == "" {
		return nil, steward.Validation("action is required")
	}
	if tenantID == "" {
		return nil, steward.Validation("tenant id is required")
	}

	var input []byte
	if payload != nil {
		var err error
		input, err = json.Marshal(payload)
		if err != nil {
			return nil, steward.Validation("encode payload for %s: %v", action, err)
		}
	}

	runKey := workflow.NewRunKey()
	if idempotencyKey != "" {
		runKey = workflow.RunKey(tenantID, idempotencyKey)
	}

	req := &steward.Request{
		Action:         action,
		TenantID:       tenantID,
		ActorID:        actorID,
		IdempotencyKey: idempotencyKey,
	}

	op := func(ctx context.Context) (*idempotency.Outcome, error) {
		var result *steward.Result
		handler := func(ctx context.Context) error {
			var runErr error
			result, runErr = e.runner.StartOrResume(ctx, runKey, action, input, tenantID, actorID)
			return runErr
		}

		err := e.chain(ctx, req, handler)
		if err != nil && !steward.IsBusiness(err) {
			// Transient: the reservation stays in place and the run
			// stays resumable.
			return nil, err
		}

		if result == nil {
			result = steward.Fail(err)
		}
		response, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return nil, steward.Infra(marshalErr, "encode response for %s", action)
		}

		code := http.StatusOK
		if err != nil {
			code = steward.KindOf(err).HTTPStatus()
		}
		return &idempotency.Outcome{Response: response, StatusCode: code}, err
	}

	out, err := e.idem.Do(ctx, idempotencyKey, tenantID, op)
	if out == nil {
		return nil, err
	}

	var result steward.Result
	if len(out.Response) > 0 {
		if decodeErr := json.Unmarshal(out.Response, &result); decodeErr != nil {
			return nil, steward.Infra(decodeErr, "decode cached response for %s", action)
		}
	}
	result.FromCache = out.FromCache

	// A replayed business failure arrives with a nil error; rebuild the
	// classification from the kind recorded alongside the payload so
	// callers observe the same error either way.
	if err == nil && out.StatusCode >= http.StatusBadRequest {
		err = &steward.Error{
			Kind:    steward.KindFromString(result.ErrorKind),
			Message: result.Error,
		}
	}

	return &result, err
}

// ResumeAll resumes all workflow runs left in running state. Call once
// at startup, after handler registration, for crash recovery.
func (e *Engine) ResumeAll(ctx context.Context) error {
	return e.runner.ResumeAll(ctx)
}

// StartSweeper starts the scheduled idempotency expiry sweep.
func (e *Engine) StartSweeper() error {
	return e.sweeper.Start()
}

// Shutdown stops the sweeper and closes the store.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.sweeper.Stop()
	return e.store.Close()
}
