// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output
//
// Every engine component logs through a named child logger (registry,
// lifecycle, policy, scheduler, compactor, engine), so the component shows
// up in each entry.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	policyLog := logger.Component("policy")
//	policyLog.Warn("Inline registration failed", zap.Int("pid", pid), zap.Error(err))
package logging
