// Package engine wires all intake subsystems together: store, tracker,
// handler registry, runner, trigger, retry coordinator, and submission
// service.
//
// This package exists to break the import cycle: the root intake package
// defines Entity and Config (imported by job, submission, etc.) and so
// cannot import those packages back. The engine package sits above all
// subsystem packages and below the application layer.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mwerk/intake"
	"github.com/mwerk/intake/backoff"
	"github.com/mwerk/intake/exec"
	"github.com/mwerk/intake/hook"
	"github.com/mwerk/intake/id"
	"github.com/mwerk/intake/job"
	mw "github.com/mwerk/intake/middleware"
	"github.com/mwerk/intake/observability"
	"github.com/mwerk/intake/pipeline"
	"github.com/mwerk/intake/retry"
	"github.com/mwerk/intake/store"
	"github.com/mwerk/intake/submission"
	"github.com/mwerk/intake/workflow"
)

// Engine bundles the wired subsystems behind typed accessors.
// Use Build() to create one.
type Engine struct {
	cfg   intake.Config
	store store.Store

	hooks       *hook.Registry
	tracker     *job.Tracker
	registry    *workflow.Registry
	runner      *workflow.Runner
	trigger     *exec.Trigger
	coordinator *retry.Coordinator
	submissions *submission.Service

	execEngine exec.Engine
	bo         backoff.Strategy
	mws        []mw.Middleware
	exts       []hook.Extension
	logger     *slog.Logger

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers a lifecycle extension with the engine.
func WithExtension(e hook.Extension) Option {
	return func(eng *Engine) {
		eng.exts = append(eng.exts, e)
	}
}

// WithMiddleware adds step middleware to the engine's chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry backoff strategy. If not set, the strategy
// is built from Config.RetryDelays, falling back to
// backoff.DefaultStrategy().
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithEngine replaces the built-in in-process runner with an external
// execution engine, e.g. an adapter for a hosted orchestrator.
func WithEngine(e exec.Engine) Option {
	return func(eng *Engine) {
		eng.execEngine = e
	}
}

// WithLogger sets the logger shared by all subsystems.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(eng *Engine) {
		eng.logger = logger
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, the metrics middleware uses this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build wires an Engine over the given store.
func Build(cfg intake.Config, st store.Store, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, intake.ErrNoStore
	}

	eng := &Engine{
		cfg:    cfg,
		store:  st,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(eng)
	}

	logger := eng.logger

	// The registry is created only after the options have settled so it
	// logs with the configured logger.
	eng.hooks = hook.NewRegistry(logger)
	for _, e := range eng.exts {
		eng.hooks.Register(e)
	}

	// Default backoff strategy from the configured delay table.
	if eng.bo == nil {
		if len(cfg.RetryDelays) > 0 {
			eng.bo = backoff.NewSchedule(cfg.RetryDelays...)
		} else {
			eng.bo = backoff.DefaultStrategy()
		}
	}

	eng.tracker = job.NewTracker(st, logger)
	eng.registry = workflow.NewRegistry()

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/mwerk/intake")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/mwerk/intake")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the lifecycle metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/mwerk/intake/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.hooks.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(cfg.StepTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	eng.runner = workflow.NewRunner(eng.registry, eng.tracker, eng.hooks, logger, allMws...)

	if eng.execEngine == nil {
		eng.execEngine = eng.runner
	}

	eng.trigger = exec.NewTrigger(eng.execEngine, eng.tracker, logger)
	eng.coordinator = retry.NewCoordinator(eng.tracker, eng.trigger, st, eng.bo, cfg, eng.hooks, logger)
	eng.runner.SetReporter(eng.coordinator)
	eng.submissions = submission.NewService(st, eng.tracker, eng.trigger, eng.hooks, cfg, logger)

	return eng, nil
}

// RegisterStep binds a handler to a pipeline step.
func (eng *Engine) RegisterStep(step pipeline.Step, h workflow.Handler) {
	eng.registry.Register(step, h)
}

// Submit accepts a submission idempotently and starts its job.
func (eng *Engine) Submit(ctx context.Context, req submission.Request) (*submission.Result, error) {
	return eng.submissions.Submit(ctx, req)
}

// JobStatus loads the tracked status of a job.
func (eng *Engine) JobStatus(ctx context.Context, jobID id.JobID) (*job.Status, error) {
	return eng.tracker.Get(ctx, jobID)
}

// CancelJob cancels a live job and stops its execution. The status moves
// to cancelled first, so any late failure signal from the stopped
// execution finds a terminal job and is ignored.
func (eng *Engine) CancelJob(ctx context.Context, jobID id.JobID, reason string) error {
	st, err := eng.tracker.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if err := eng.tracker.Cancel(ctx, jobID, reason); err != nil {
		return err
	}

	if err := eng.trigger.StopExecution(ctx, exec.Ref(st.ExecutionRef), "job cancelled"); err != nil {
		eng.logger.Warn("execution not stopped for cancelled job",
			slog.String("job_id", jobID.String()),
			slog.String("execution_ref", st.ExecutionRef),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// HandleFailure feeds an externally reported step failure into the retry
// coordinator.
func (eng *Engine) HandleFailure(ctx context.Context, sig retry.Signal) error {
	return eng.coordinator.HandleFailure(ctx, sig)
}

// PurgeExpired removes submissions and job statuses past their retention
// deadline.
func (eng *Engine) PurgeExpired(ctx context.Context) (int, error) {
	return eng.store.PurgeExpired(ctx, time.Now().UTC())
}

// Shutdown notifies extensions and waits for active executions to finish
// or the context to expire.
func (eng *Engine) Shutdown(ctx context.Context) error {
	eng.hooks.EmitShutdown(ctx)
	return eng.runner.Shutdown(ctx)
}

// Store returns the underlying aggregate store.
func (eng *Engine) Store() store.Store { return eng.store }

// Hooks returns the extension registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Tracker returns the job tracker.
func (eng *Engine) Tracker() *job.Tracker { return eng.tracker }

// Trigger returns the execution trigger.
func (eng *Engine) Trigger() *exec.Trigger { return eng.trigger }

// Coordinator returns the retry coordinator.
func (eng *Engine) Coordinator() *retry.Coordinator { return eng.coordinator }

// Submissions returns the submission service.
func (eng *Engine) Submissions() *submission.Service { return eng.submissions }

// Runner returns the built-in in-process runner.
func (eng *Engine) Runner() *workflow.Runner { return eng.runner }

// Config returns the engine's configuration.
func (eng *Engine) Config() intake.Config { return eng.cfg }

// Logger returns the engine's logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }
