package reclaim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
)

// Pool selects the trim cadence of a process
type Pool int

const (
	// PoolForeground is for processes that held the UI until recently
	PoolForeground Pool = iota
	// PoolBackground is for helper processes deep in the background
	PoolBackground
)

// String returns the string representation of the pool
func (p Pool) String() string {
	if p == PoolForeground {
		return "foreground"
	}
	return "background"
}

// SchedulerSettings configures task cadence and the task pool
type SchedulerSettings struct {
	ForegroundPeriod time.Duration
	BackgroundPeriod time.Duration
	Workers          uint
	Clock            clockwork.Clock
}

// DefaultSchedulerSettings returns the default cadence
func DefaultSchedulerSettings() SchedulerSettings {
	return SchedulerSettings{
		ForegroundPeriod: 5 * time.Minute,
		BackgroundPeriod: 10 * time.Minute,
		Workers:          4,
	}
}

// handle ties a bookkeeping entry to its gocron job
type handle struct {
	id uuid.UUID
}

// Scheduler runs per-process trim and gc tasks
type Scheduler struct {
	cron     gocron.Scheduler
	sup      Supervisor
	settings SchedulerSettings
	logger   *zap.Logger
	clock    clockwork.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	trims map[int]*handle // Protected by mu
	gcs   map[int]*handle // Protected by mu

	onGone func(pid int)
}

// NewScheduler creates a scheduler; call Start before tasks can run
func NewScheduler(sup Supervisor, settings SchedulerSettings, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultSchedulerSettings()
	if settings.ForegroundPeriod <= 0 {
		settings.ForegroundPeriod = defaults.ForegroundPeriod
	}
	if settings.BackgroundPeriod <= 0 {
		settings.BackgroundPeriod = defaults.BackgroundPeriod
	}
	if settings.Workers == 0 {
		settings.Workers = defaults.Workers
	}
	if settings.Clock == nil {
		settings.Clock = clockwork.NewRealClock()
	}
	logger = logger.Named("scheduler")

	cron, err := gocron.NewScheduler(
		gocron.WithLimitConcurrentJobs(settings.Workers, gocron.LimitModeWait),
		gocron.WithClock(settings.Clock),
		gocron.WithLogger(cronLogger{logger.Sugar()}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron,
		sup:      sup,
		settings: settings,
		logger:   logger,
		clock:    settings.Clock,
		ctx:      ctx,
		cancel:   cancel,
		trims:    make(map[int]*handle),
		gcs:      make(map[int]*handle),
	}, nil
}

// OnGone sets the callback run when a trim signal finds its process gone
func (s *Scheduler) OnGone(fn func(pid int)) {
	s.onGone = fn
}

// Start begins running tasks
func (s *Scheduler) Start() {
	s.logger.Info("Starting reclaim scheduler",
		zap.Duration("foreground_period", s.settings.ForegroundPeriod),
		zap.Duration("background_period", s.settings.BackgroundPeriod),
		zap.Uint("workers", s.settings.Workers),
	)
	s.cron.Start()
}

// Stop cancels running tasks and shuts the pool down
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping reclaim scheduler")
	s.cancel()
	return s.cron.Shutdown()
}

// StartTrim schedules the recurring trim signal for pid, replacing any trim
// task already scheduled for it
func (s *Scheduler) StartTrim(pid int, pool Pool) error {
	period, level := s.settings.ForegroundPeriod, TrimUIHidden
	if pool == PoolBackground {
		period, level = s.settings.BackgroundPeriod, TrimBackground
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.trims[pid]; ok {
		delete(s.trims, pid)
		s.remove(old)
	}

	h := &handle{}
	job, err := s.cron.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(func() { s.runTrim(pid, level, h) }),
		gocron.WithName("trim-"+strconv.Itoa(pid)),
		gocron.WithTags("trim", pool.String()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule trim for pid %d: %w", pid, err)
	}
	h.id = job.ID()
	s.trims[pid] = h
	return nil
}

// ScheduleGC schedules a one-shot gc request for pid after delay, replacing
// any pending one
func (s *Scheduler) ScheduleGC(pid int, delay time.Duration) error {
	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(s.clock.Now().Add(delay))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.gcs[pid]; ok {
		delete(s.gcs, pid)
		s.remove(old)
	}

	h := &handle{}
	job, err := s.cron.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() { s.runGC(pid, h) }),
		gocron.WithName("gc-"+strconv.Itoa(pid)),
		gocron.WithTags("gc"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule gc for pid %d: %w", pid, err)
	}
	h.id = job.ID()
	s.gcs[pid] = h
	return nil
}

// Cancel removes every task of pid. Cancelling absent tasks is a no-op.
func (s *Scheduler) Cancel(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(s.trims, pid)
	s.cancelLocked(s.gcs, pid)
}

// CancelTrim removes the trim task of pid
func (s *Scheduler) CancelTrim(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(s.trims, pid)
}

// CancelGC removes the gc task of pid
func (s *Scheduler) CancelGC(pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(s.gcs, pid)
}

// Scheduled reports which tasks pid currently has
func (s *Scheduler) Scheduled(pid int) (trim, gc bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, trim = s.trims[pid]
	_, gc = s.gcs[pid]
	return trim, gc
}

// Count returns the number of scheduled tasks
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trims) + len(s.gcs)
}

func (s *Scheduler) cancelLocked(tasks map[int]*handle, pid int) {
	h, ok := tasks[pid]
	if !ok {
		return
	}
	delete(tasks, pid)
	s.remove(h)
}

// remove drops the gocron job; caller holds mu
func (s *Scheduler) remove(h *handle) {
	if err := s.cron.RemoveJob(h.id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		s.logger.Debug("Failed to remove job", zap.String("job", h.id.String()), zap.Error(err))
	}
}

func (s *Scheduler) runTrim(pid int, level TrimLevel, h *handle) {
	ok, err := s.sup.RequestTrimSignal(s.ctx, pid, level)
	gone := !ok && (err == nil || errors.Is(err, errs.ErrProcessGone))
	if err != nil && !gone {
		s.logger.Warn("Trim signal failed",
			zap.Int("pid", pid),
			zap.Stringer("level", level),
			zap.Error(err),
		)
		return
	}
	if gone {
		// Removing a job from inside its own run goes through the scheduler
		// loop, so it happens off this goroutine
		go s.expireTrim(pid, h)
	}
}

func (s *Scheduler) expireTrim(pid int, h *handle) {
	s.mu.Lock()
	current, ok := s.trims[pid]
	if ok && current == h {
		delete(s.trims, pid)
		s.remove(h)
	}
	s.mu.Unlock()

	if !ok || current != h {
		return
	}
	s.logger.Info("Trim target gone, task cancelled", zap.Int("pid", pid))
	if s.onGone != nil {
		s.onGone(pid)
	}
}

func (s *Scheduler) runGC(pid int, h *handle) {
	if _, err := s.sup.RequestGC(s.ctx, pid); err != nil {
		s.logger.Warn("GC request failed", zap.Int("pid", pid), zap.Error(err))
	}
	go s.expireGC(pid, h)
}

func (s *Scheduler) expireGC(pid int, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.gcs[pid]; ok && current == h {
		delete(s.gcs, pid)
		s.remove(h)
	}
}

// cronLogger routes gocron's logs through zap
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Debug(msg string, args ...any) { c.l.Debugw(msg, args...) }
func (c cronLogger) Info(msg string, args ...any)  { c.l.Infow(msg, args...) }
func (c cronLogger) Warn(msg string, args ...any)  { c.l.Warnw(msg, args...) }
func (c cronLogger) Error(msg string, args ...any) { c.l.Errorw(msg, args...) }
