package reclaim

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
)

// TrimLevel is the urgency of a trim signal
type TrimLevel int

const (
	TrimUIHidden   TrimLevel = 20
	TrimBackground TrimLevel = 40
	TrimModerate   TrimLevel = 60
	TrimComplete   TrimLevel = 80
)

// String returns the string representation of the level
func (l TrimLevel) String() string {
	switch l {
	case TrimUIHidden:
		return "ui_hidden"
	case TrimBackground:
		return "background"
	case TrimModerate:
		return "moderate"
	case TrimComplete:
		return "complete"
	default:
		return "level_" + strconv.Itoa(int(l))
	}
}

// CompactLevel selects which memory a compaction touches
type CompactLevel string

const (
	CompactFile CompactLevel = "file"
	CompactAnon CompactLevel = "anon"
	CompactFull CompactLevel = "all"
)

// SchedGroup is a scheduling group
type SchedGroup string

const (
	GroupDefault    SchedGroup = "default"
	GroupBackground SchedGroup = "background"
)

// Supervisor carries reclamation requests to the process supervisor
type Supervisor interface {
	// RequestTrimSignal asks pid to release memory; false means the process is gone
	RequestTrimSignal(ctx context.Context, pid int, level TrimLevel) (bool, error)
	// RequestGC asks pid to run a garbage collection; false means the process is gone
	RequestGC(ctx context.Context, pid int) (bool, error)
	// RequestCompaction compacts the memory of pid
	RequestCompaction(ctx context.Context, pid int, level CompactLevel) error
	// SetSchedGroup moves pid to a scheduling group
	SetSchedGroup(ctx context.Context, pid int, group SchedGroup) error
}

// CallRecorder receives the outcome of every outbound call
type CallRecorder interface {
	RecordSupervisorCall(method, status string, duration time.Duration)
}

// Guarded wraps a Supervisor with a circuit breaker. Calls made while the
// breaker is open fail with errs.ErrCollaboratorTrip instead of reaching the
// supervisor. A process that is gone does not count as a failure.
type Guarded struct {
	next     Supervisor
	breaker  *resilience.Breaker
	recorder CallRecorder
	logger   *zap.Logger
}

// NewGuarded wraps next
func NewGuarded(next Supervisor, settings resilience.Settings, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("supervisor")
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to resilience.State) {
			logger.Warn("Supervisor breaker changed state",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, errs.ErrProcessGone)
		}
	}
	return &Guarded{
		next:    next,
		breaker: resilience.New("supervisor", settings),
		logger:  logger,
	}
}

// WithRecorder sets the call recorder
func (g *Guarded) WithRecorder(r CallRecorder) *Guarded {
	g.recorder = r
	return g
}

// Breaker exposes the underlying breaker
func (g *Guarded) Breaker() *resilience.Breaker {
	return g.breaker
}

// RequestTrimSignal implements Supervisor
func (g *Guarded) RequestTrimSignal(ctx context.Context, pid int, level TrimLevel) (bool, error) {
	return guard(g, "trim", func() (bool, error) {
		return g.next.RequestTrimSignal(ctx, pid, level)
	})
}

// RequestGC implements Supervisor
func (g *Guarded) RequestGC(ctx context.Context, pid int) (bool, error) {
	return guard(g, "gc", func() (bool, error) {
		return g.next.RequestGC(ctx, pid)
	})
}

// RequestCompaction implements Supervisor
func (g *Guarded) RequestCompaction(ctx context.Context, pid int, level CompactLevel) error {
	_, err := guard(g, "compact", func() (struct{}, error) {
		return struct{}{}, g.next.RequestCompaction(ctx, pid, level)
	})
	return err
}

// SetSchedGroup implements Supervisor
func (g *Guarded) SetSchedGroup(ctx context.Context, pid int, group SchedGroup) error {
	_, err := guard(g, "sched_group", func() (struct{}, error) {
		return struct{}{}, g.next.SetSchedGroup(ctx, pid, group)
	})
	return err
}

func guard[T any](g *Guarded, method string, call func() (T, error)) (T, error) {
	start := time.Now()
	out, err := resilience.Execute(g.breaker, call)

	status := "ok"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrTooManyRequests):
		status = "skipped"
		err = errs.Wrap(err, errs.CategoryCollaborator, method, "supervisor calls suspended")
	case errors.Is(err, errs.ErrProcessGone):
		status = "gone"
	case err != nil:
		status = "error"
		if errs.CategoryOf(err) == "" {
			err = errs.Wrap(err, errs.CategoryCollaborator, method, "supervisor call failed")
		}
	}
	if g.recorder != nil {
		g.recorder.RecordSupervisorCall(method, status, time.Since(start))
	}
	return out, err
}
