// Package server exposes the engine over a small admin HTTP API.
//
// Routes:
//   - GET  /health                     liveness, stats, breaker state
//   - GET  /metrics                    Prometheus exposition
//   - GET  /v1/apps, /v1/apps/:key     tracked applications
//   - GET  /v1/stats                   engine statistics
//   - POST /v1/events/...              inbound supervisor events
//
// The event routes let a development harness feed the engine without the
// in-process interception layer.
package server
