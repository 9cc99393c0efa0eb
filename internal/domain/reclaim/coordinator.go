package reclaim

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// CoordinatorSettings selects which reclamation runs in the background
type CoordinatorSettings struct {
	EnableForegroundTrim bool
	EnableBackgroundTrim bool
	EnableBackgroundGC   bool
	GCDelay              time.Duration
}

// Coordinator turns lifecycle transitions into reclamation work. It is the
// app.Actions and app.Observer of the engine.
type Coordinator struct {
	sched    *Scheduler
	comp     *Compactor
	settings CoordinatorSettings
	logger   *zap.Logger
}

// NewCoordinator creates a coordinator
func NewCoordinator(sched *Scheduler, comp *Compactor, settings CoordinatorSettings, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sched:    sched,
		comp:     comp,
		settings: settings,
		logger:   logger.Named("coordinator"),
	}
}

// Foreground cancels pending reclamation and restores scheduling
func (c *Coordinator) Foreground(ctx context.Context, a *app.Application) error {
	var errs []error
	for _, p := range a.Processes() {
		c.sched.Cancel(p.PID)
		if err := c.comp.Promote(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Background schedules reclamation for every process of a
func (c *Coordinator) Background(ctx context.Context, a *app.Application) error {
	var errs []error
	for _, p := range a.Processes() {
		switch {
		case p.Main && c.settings.EnableForegroundTrim:
			errs = append(errs, c.sched.StartTrim(p.PID, PoolForeground))
		case !p.Main && c.settings.EnableBackgroundTrim:
			errs = append(errs, c.sched.StartTrim(p.PID, PoolBackground))
		}
		if c.settings.EnableBackgroundGC {
			errs = append(errs, c.sched.ScheduleGC(p.PID, c.settings.GCDelay))
		}
		errs = append(errs, c.comp.Demote(ctx, p))
		c.comp.Compact(ctx, p, types.StateIdle, "background")
	}

	c.logger.Debug("Background reclamation scheduled",
		zap.String("app", a.Identity().Key()),
		zap.Int("processes", len(a.Processes())),
	)
	return errors.Join(errs...)
}

// Forget cancels every task of a process that left the registry
func (c *Coordinator) Forget(pid int) {
	c.sched.Cancel(pid)
}

// ObserveScore forwards accepted scores to the compactor
func (c *Coordinator) ObserveScore(ctx context.Context, p *app.Process, score int) {
	c.comp.ObserveScore(ctx, p, score)
}
