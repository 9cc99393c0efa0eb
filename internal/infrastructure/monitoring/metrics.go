package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keepalive"

// Metrics holds all Prometheus metrics of one engine. Each instance owns its
// registry so that several engines (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lifecycle metrics
	Transitions *prometheus.CounterVec
	Apps        *prometheus.GaugeVec
	Processes   prometheus.Gauge

	// Policy metrics
	Verdicts *prometheus.CounterVec

	// Supervisor metrics
	SupervisorCalls    *prometheus.CounterVec
	SupervisorDuration *prometheus.HistogramVec
	Compactions        *prometheus.CounterVec
	ScheduledTasks     prometheus.Gauge

	// Event metrics
	Events        *prometheus.CounterVec
	EventsDropped *prometheus.CounterVec
	EventDuration *prometheus.HistogramVec

	// Notification metrics
	Notifications *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Admin HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Lifecycle transitions by source and target state",
			},
			[]string{"from", "to"},
		),
		Apps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps",
				Help:      "Tracked applications by lifecycle state",
			},
			[]string{"state"},
		),
		Processes: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "processes",
				Help:      "Tracked processes",
			},
		),

		Verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Score arbitration verdicts",
			},
			[]string{"decision", "overridden"},
		),

		SupervisorCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "supervisor_calls_total",
				Help:      "Outbound supervisor calls by method and status",
			},
			[]string{"method", "status"},
		),
		SupervisorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "supervisor_call_duration_seconds",
				Help:      "Outbound supervisor call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		Compactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compactions_total",
				Help:      "Compaction attempts by reason and outcome",
			},
			[]string{"reason", "outcome"},
		),
		ScheduledTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduled_tasks",
				Help:      "Pending trim and gc tasks",
			},
		),

		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Inbound supervisor events by kind",
			},
			[]string{"kind"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Visibility events dropped because a worker queue was full",
			},
			[]string{"kind"},
		),
		EventDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_duration_seconds",
				Help:      "Inbound event handling duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"kind"},
		),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Lifecycle notifications by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Engine uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an admin HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTransition records a lifecycle transition
func (m *Metrics) RecordTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// SetAppCounts publishes the tracked application and process counts
func (m *Metrics) SetAppCounts(active, idle, other, processes int) {
	m.Apps.WithLabelValues("active").Set(float64(active))
	m.Apps.WithLabelValues("idle").Set(float64(idle))
	m.Apps.WithLabelValues("none").Set(float64(other))
	m.Processes.Set(float64(processes))
}

// RecordVerdict records a score arbitration verdict
func (m *Metrics) RecordVerdict(decision string, overridden bool) {
	m.Verdicts.WithLabelValues(decision, strconv.FormatBool(overridden)).Inc()
}

// RecordSupervisorCall records an outbound supervisor call
func (m *Metrics) RecordSupervisorCall(method, status string, duration time.Duration) {
	m.SupervisorCalls.WithLabelValues(method, status).Inc()
	m.SupervisorDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCompaction records a compaction attempt
func (m *Metrics) RecordCompaction(reason, outcome string) {
	m.Compactions.WithLabelValues(reason, outcome).Inc()
}

// SetScheduledTasks publishes the pending task count
func (m *Metrics) SetScheduledTasks(n int) {
	m.ScheduledTasks.Set(float64(n))
}

// RecordEvent records an inbound event and how long it took
func (m *Metrics) RecordEvent(kind string, duration time.Duration) {
	m.Events.WithLabelValues(kind).Inc()
	m.EventDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEventDropped records a visibility event lost to backpressure
func (m *Metrics) RecordEventDropped(kind string) {
	m.EventsDropped.WithLabelValues(kind).Inc()
}

// RecordNotification records a lifecycle notification outcome
func (m *Metrics) RecordNotification(outcome string) {
	m.Notifications.WithLabelValues(outcome).Inc()
}

// StartTime returns when the collector was created
func (m *Metrics) StartTime() time.Time {
	return m.startTime
}
