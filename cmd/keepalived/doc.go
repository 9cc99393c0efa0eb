// Package main runs the keepalive daemon.
//
// The daemon hosts the background-retention engine behind the admin HTTP
// server. Supervisor events arrive on POST /v1/events/...; the engine's
// reclamation requests go to a process-table supervisor that only checks
// liveness and logs.
//
// Configuration:
//   - KEEPALIVE_* environment variables
//   - a TOML preferences file (KEEPALIVE_PREFS or -prefs)
//   - CLI flags override both
//
// Usage:
//
//	./keepalived -port 8790 -launchers com.example.launcher
//
//	# Development mode (console logs, debug level)
//	./keepalived -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
