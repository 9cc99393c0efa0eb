package engine

import (
	"github.com/GriffinCanCode/keepalive/internal/domain/policy"
	"github.com/GriffinCanCode/keepalive/internal/domain/reclaim"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/config"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/resilience"
)

// SettingsFromConfig maps the engine section of the daemon configuration
// onto engine settings
func SettingsFromConfig(cfg config.EngineConfig) Settings {
	s := DefaultSettings()

	s.Policy = policy.Settings{
		MainBaseline:      cfg.MainBaselineScore,
		AuxiliaryBaseline: cfg.AuxBaselineScore,
	}
	s.Coordinator = reclaim.CoordinatorSettings{
		EnableForegroundTrim: cfg.EnableForegroundTrim,
		EnableBackgroundTrim: cfg.EnableBackgroundTrim,
		EnableBackgroundGC:   cfg.EnableBackgroundGC,
		GCDelay:              cfg.GCDelay,
	}
	s.Scheduler.ForegroundPeriod = cfg.ForegroundTrimPeriod
	s.Scheduler.BackgroundPeriod = cfg.BackgroundTrimPeriod
	s.Scheduler.Workers = cfg.SchedulerWorkers
	s.Compactor.ScoreThreshold = cfg.CompactScoreThreshold
	s.MinCompactInterval = cfg.MinCompactInterval
	s.EventWorkers = cfg.EventWorkers
	s.EventQueueSize = cfg.EventQueueSize

	failures := cfg.BreakerFailures
	s.Breaker = resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
	}
	if failures > 0 {
		s.Breaker.ReadyToTrip = func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= failures
		}
	}
	return s
}
