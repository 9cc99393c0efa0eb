// Package engine is the entry point of the background-retention engine. It
// receives supervisor events, runs them through the lifecycle state machine
// and the score policy, and hands reclamation work to the reclaim package.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/domain/packages"
	"github.com/GriffinCanCode/keepalive/internal/domain/policy"
	"github.com/GriffinCanCode/keepalive/internal/domain/reclaim"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/notify"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
	"github.com/GriffinCanCode/keepalive/internal/shared/utils"
)

// ErrClosed is returned by operations on a closed engine
var ErrClosed = errors.New("engine closed")

// Settings configures every component of the engine
type Settings struct {
	Policy             policy.Settings
	Coordinator        reclaim.CoordinatorSettings
	Scheduler          reclaim.SchedulerSettings
	Compactor          reclaim.CompactorSettings
	Breaker            resilience.Settings
	MinCompactInterval time.Duration
	EventWorkers       int
	EventQueueSize     int
}

// DefaultSettings returns the default engine settings
func DefaultSettings() Settings {
	return Settings{
		Policy: policy.DefaultSettings(),
		Coordinator: reclaim.CoordinatorSettings{
			EnableForegroundTrim: true,
			EnableBackgroundTrim: true,
			EnableBackgroundGC:   true,
			GCDelay:              30 * time.Second,
		},
		Scheduler:          reclaim.DefaultSchedulerSettings(),
		MinCompactInterval: app.DefaultMinCompactInterval,
		EventWorkers:       4,
		EventQueueSize:     256,
	}
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithPublisher sets the transition publisher
func WithPublisher(p notify.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// Engine wires the registry, lifecycle, policy and reclamation together
type Engine struct {
	registry  *app.Registry
	lifecycle *app.Manager
	policy    *policy.Policy
	sched     *reclaim.Scheduler
	comp      *reclaim.Compactor
	coord     *reclaim.Coordinator
	sup       *reclaim.Guarded
	packages  *packages.Cache
	resolver  packages.Resolver
	dispatch  *dispatcher

	logger    *zap.Logger
	metrics   *monitoring.Metrics
	tracer    trace.Tracer
	publisher notify.Publisher

	interactive atomic.Bool
	started     atomic.Bool
	closed      atomic.Bool
}

// New builds an engine over the supervisor and package collaborators
func New(sup reclaim.Supervisor, resolver packages.Resolver, settings Settings, opts ...Option) (*Engine, error) {
	if sup == nil || resolver == nil {
		return nil, fmt.Errorf("engine requires a supervisor and a package resolver")
	}

	e := &Engine{resolver: resolver}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = monitoring.NewMetrics()
	}
	if e.tracer == nil {
		e.tracer = tracing.Noop()
	}
	if e.publisher == nil {
		e.publisher = notify.Nop{}
	}
	logger := e.logger
	e.logger = logger.Named("engine")

	e.sup = reclaim.NewGuarded(sup, settings.Breaker, logger).WithRecorder(e.metrics)

	sched, err := reclaim.NewScheduler(e.sup, settings.Scheduler, logger)
	if err != nil {
		return nil, err
	}
	e.sched = sched
	e.sched.OnGone(e.onTrimTargetGone)

	e.comp = reclaim.NewCompactor(e.sup, settings.Compactor, logger).WithRecorder(e.metrics)
	e.coord = reclaim.NewCoordinator(e.sched, e.comp, settings.Coordinator, logger)

	e.registry = app.NewRegistry(logger).WithMinCompactInterval(settings.MinCompactInterval)
	e.registry.AddObserver(e.coord)

	e.packages = packages.NewCache(resolver, logger)
	e.lifecycle = app.NewManager(e.registry, e.coord, logger).
		WithExemption(e.packages.IsExempt).
		WithObserver(e)
	e.policy = policy.New(e.registry, settings.Policy, logger).WithObserver(e.coord)

	e.dispatch = newDispatcher(settings.EventWorkers, settings.EventQueueSize, e.handleVisibility, e.logger)
	e.dispatch.onDrop = func(ev types.VisibilityEvent) {
		e.metrics.RecordEventDropped(string(ev.Kind))
		e.logger.Warn("Visibility event dropped, worker queue full",
			zap.String("app", ev.Identity().Key()),
			zap.String("kind", string(ev.Kind)),
		)
	}

	// Until told otherwise the display is assumed to be on
	e.interactive.Store(true)
	return e, nil
}

// Start launches the event workers and the reclaim scheduler
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.sched.Start()
	e.dispatch.start()
	e.logger.Info("Engine started")
}

// Close drains queued events, stops scheduled work and closes the publisher
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.dispatch.stop()

	var errList []error
	if err := e.sched.Stop(); err != nil {
		errList = append(errList, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := e.publisher.Close(); err != nil {
		errList = append(errList, fmt.Errorf("close publisher: %w", err))
	}
	e.logger.Info("Engine stopped")
	return errors.Join(errList...)
}

// OnProcessCreated starts tracking a process of a managed package
func (e *Engine) OnProcessCreated(ctx context.Context, info types.ProcessInfo) (err error) {
	ctx, span := e.start(ctx, "engine.process_created",
		attribute.Int("pid", info.PID),
		attribute.String("app", info.Identity().Key()),
	)
	timer := monitoring.NewTimer(e.metrics, "process_created")
	defer func() {
		timer.Stop()
		tracing.End(span, err)
	}()

	if e.closed.Load() {
		return ErrClosed
	}
	if err := utils.ValidateProcessInfo(info); err != nil {
		e.logger.Warn("Ignoring invalid process report", zap.Int("pid", info.PID), zap.Error(err))
		return err
	}

	found, err := e.packages.Find(ctx, info.Identity())
	if err != nil {
		e.logger.Warn("Package lookup failed", zap.String("app", info.Identity().Key()), zap.Error(err))
		return errs.Wrap(err, errs.CategoryCollaborator, "process_created", "package lookup failed")
	}
	if !found.Managed {
		e.logger.Debug("Package not managed", zap.String("app", info.Identity().Key()))
		return nil
	}

	if _, err := e.registry.RegisterProcess(info); err != nil {
		e.logger.Warn("Process registration failed", zap.Int("pid", info.PID), zap.Error(err))
		return err
	}
	e.refreshGauges()
	return nil
}

// OnProcessRemoved stops tracking pid. Losing the main process kills the
// application.
func (e *Engine) OnProcessRemoved(ctx context.Context, pid int) (err error) {
	ctx, span := e.start(ctx, "engine.process_removed", attribute.Int("pid", pid))
	timer := monitoring.NewTimer(e.metrics, "process_removed")
	defer func() {
		timer.Stop()
		tracing.End(span, err)
	}()

	if err := utils.ValidatePID(pid); err != nil {
		e.logger.Warn("Ignoring invalid process removal", zap.Int("pid", pid), zap.Error(err))
		return err
	}

	removed, err := e.lifecycle.RemoveProcess(ctx, pid)
	if err != nil {
		e.logger.Warn("Application teardown failed", zap.Int("pid", pid), zap.Error(err))
	}
	if removed {
		e.refreshGauges()
	}
	return err
}

// OnVisibilityChanged queues a visibility event. It never blocks; false
// means the event was dropped.
func (e *Engine) OnVisibilityChanged(ev types.VisibilityEvent) bool {
	if ev.Kind != types.VisibilityGained && ev.Kind != types.VisibilityLost {
		e.logger.Warn("Ignoring unknown visibility kind", zap.String("kind", string(ev.Kind)))
		return false
	}
	if err := utils.ValidateIdentity(ev.Identity()); err != nil {
		e.logger.Warn("Ignoring visibility event", zap.Error(err))
		return false
	}
	return e.dispatch.enqueue(ev)
}

func (e *Engine) handleVisibility(ev types.VisibilityEvent) {
	ctx, span := e.start(context.Background(), "engine.visibility",
		attribute.String("app", ev.Identity().Key()),
		attribute.String("kind", string(ev.Kind)),
		attribute.String("component", ev.Component),
	)
	timer := monitoring.NewTimer(e.metrics, "visibility_"+string(ev.Kind))

	var (
		changed bool
		err     error
	)
	if ev.Kind == types.VisibilityGained {
		changed, err = e.lifecycle.VisibilityGained(ctx, ev.Identity(), ev.Component)
	} else {
		changed, err = e.lifecycle.VisibilityLost(ctx, ev.Identity(), ev.Component, e.interactive.Load())
	}
	span.SetAttributes(attribute.Bool("changed", changed))

	switch {
	case err == nil:
	case errs.IsLookupMiss(err):
		err = nil
	default:
		e.logger.Warn("Visibility event not applied",
			zap.String("app", ev.Identity().Key()),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
	timer.Stop()
	tracing.End(span, err)
}

// OnScoreProposed arbitrates a score proposal
func (e *Engine) OnScoreProposed(ctx context.Context, pid, uid, score int) types.Verdict {
	ctx, span := e.start(ctx, "engine.score",
		attribute.Int("pid", pid),
		attribute.Int("uid", uid),
		attribute.Int("proposed", score),
	)
	timer := monitoring.NewTimer(e.metrics, "score")

	verdict := e.policy.Decide(ctx, pid, uid, score)

	e.metrics.RecordVerdict(verdict.Decision.String(), verdict.Overridden)
	span.SetAttributes(
		attribute.String("decision", verdict.Decision.String()),
		attribute.Int("score", verdict.Score),
	)
	timer.Stop()
	span.End()
	return verdict
}

// OnPackageMetadataInvalidated evicts the cached lookup of a package
func (e *Engine) OnPackageMetadataInvalidated(userID int, pkg string) {
	e.packages.Invalidate(types.NewIdentity(userID, pkg))
	e.metrics.RecordEvent("package_invalidated", 0)
}

// OnDisplayInteractiveChanged records whether the display accepts input
func (e *Engine) OnDisplayInteractiveChanged(interactive bool) {
	if e.interactive.Swap(interactive) != interactive {
		e.logger.Info("Display interactive state changed", zap.Bool("interactive", interactive))
	}
	e.metrics.RecordEvent("display", 0)
}

// OnTransition publishes lifecycle transitions
func (e *Engine) OnTransition(t app.Transition) {
	e.metrics.RecordTransition(t.From.String(), t.To.String())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.publisher.Publish(ctx, t); err != nil {
		e.metrics.RecordNotification("error")
		e.logger.Warn("Transition notification failed",
			zap.String("app", t.Identity.Key()),
			zap.Stringer("to", t.To),
			zap.Error(err),
		)
		return
	}
	e.metrics.RecordNotification("sent")
}

// onTrimTargetGone cleans up after a trim signal found its process gone
func (e *Engine) onTrimTargetGone(pid int) {
	if err := e.OnProcessRemoved(context.Background(), pid); err != nil {
		e.logger.Debug("Cleanup after gone process failed", zap.Int("pid", pid), zap.Error(err))
	}
}

// Interactive reports the last known display state
func (e *Engine) Interactive() bool {
	return e.interactive.Load()
}

// Stats returns engine statistics
func (e *Engine) Stats() types.Stats {
	rs := e.registry.Stats()
	return types.Stats{
		TotalApps:      rs.Apps,
		ActiveApps:     len(e.lifecycle.Active()),
		IdleApps:       len(e.lifecycle.Idle()),
		Processes:      rs.Processes,
		ScheduledTasks: e.sched.Count(),
	}
}

// Snapshot returns a view of every tracked application
func (e *Engine) Snapshot() []app.View {
	apps := e.registry.List()
	views := make([]app.View, 0, len(apps))
	for _, a := range apps {
		views = append(views, a.View())
	}
	return views
}

// Application returns the view of one application
func (e *Engine) Application(id types.Identity) (app.View, bool) {
	a, ok := e.registry.Lookup(id)
	if !ok {
		return app.View{}, false
	}
	return a.View(), true
}

// Metrics returns the engine's metrics collector
func (e *Engine) Metrics() *monitoring.Metrics {
	return e.metrics
}

// Breaker returns the breaker guarding supervisor calls
func (e *Engine) Breaker() *resilience.Breaker {
	return e.sup.Breaker()
}

func (e *Engine) refreshGauges() {
	s := e.Stats()
	e.metrics.SetAppCounts(s.ActiveApps, s.IdleApps, s.TotalApps-s.ActiveApps-s.IdleApps, s.Processes)
	e.metrics.SetScheduledTasks(s.ScheduledTasks)
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
