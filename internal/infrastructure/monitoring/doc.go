/*
Package monitoring provides Prometheus metrics for the engine.

# Overview

Every Metrics value owns a prometheus.Registry. The engine records
lifecycle transitions, score verdicts, supervisor calls, compactions and
inbound events; the admin server exposes the registry on /metrics.

# Usage

	metrics := monitoring.NewMetrics()

	// Admin router
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Time an inbound event
	timer := monitoring.NewTimer(metrics, "visibility")
	// ... handle the event ...
	timer.Stop()

Metrics implements the recorder interfaces of the reclaim package, so it can
be handed directly to the guarded supervisor and the compactor.
*/
package monitoring
