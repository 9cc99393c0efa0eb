// Package config loads the daemon configuration from the environment.
//
// Every variable is read as KEEPALIVE_<SECTION>_<NAME> and falls back to the
// bare name, e.g. KEEPALIVE_SERVER_ADMIN_PORT or ADMIN_PORT.
//
// Configuration Sections:
//   - Server: admin HTTP server and its per-client rate limit
//   - Engine: preferences, trim cadence, worker pools, breaker
//   - Logging: log level and output format
//   - Notify: NATS lifecycle notifications
//   - Tracing: OpenTelemetry spans
//
// KEEPALIVE_PREFS names a TOML file whose recognized options override the
// environment:
//
//	enable_foreground_trim = true
//	enable_background_trim = true
//	enable_background_gc = false
//	auxiliary_baseline_score = 700
//	main_baseline_score = 0
package config
