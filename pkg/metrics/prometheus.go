// Package metrics provides Prometheus metrics for the dutyqueue service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the dutyqueue service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ranking Metrics - fairness queue recomputation
	rankingRecomputes        prometheus.Counter
	rankingRecomputeDuration prometheus.Histogram
	rankingLastRefreshUnix   prometheus.Gauge
	rosterSize               prometheus.Gauge
	eventLogSize             prometheus.Gauge
	eventsIgnored            *prometheus.GaugeVec

	// Write Metrics - assignments and retries
	assignmentsRecorded *prometheus.CounterVec
	agentsChanged       *prometheus.CounterVec
	idempotentReplays   prometheus.Counter

	// Feed Metrics - change notifications
	feedChanges *prometheus.CounterVec

	// Store Metrics
	storeLatency *prometheus.HistogramVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "dutyqueue",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.rankingRecomputes = auto.NewCounter(m.counterOpts(
		"ranking_recomputes_total",
		"Total number of full fairness queue recomputations",
	))
	m.rankingRecomputeDuration = auto.NewHistogram(m.histogramOpts(
		"ranking_recompute_duration_milliseconds",
		"Duration of a snapshot reload plus ranking in milliseconds",
	))
	m.rankingLastRefreshUnix = auto.NewGauge(m.gaugeOpts(
		"ranking_last_refresh_unix",
		"Unix timestamp of the last successful recomputation",
	))
	m.rosterSize = auto.NewGauge(m.gaugeOpts(
		"roster_size",
		"Number of agents in the roster",
	))
	m.eventLogSize = auto.NewGauge(m.gaugeOpts(
		"event_log_size",
		"Number of assignment events in the history",
	))
	m.eventsIgnored = auto.NewGaugeVec(
		m.gaugeOpts("events_ignored", "Events excluded from the last ranking fold"),
		[]string{"reason"},
	)

	m.assignmentsRecorded = auto.NewCounterVec(
		m.counterOpts("assignments_recorded_total", "Assignments recorded by status"),
		[]string{"status"},
	)
	m.agentsChanged = auto.NewCounterVec(
		m.counterOpts("agents_changed_total", "Roster changes by operation"),
		[]string{"op"},
	)
	m.idempotentReplays = auto.NewCounter(m.counterOpts(
		"idempotent_replays_total",
		"Requests answered from the idempotency cache",
	))

	m.feedChanges = auto.NewCounterVec(
		m.counterOpts("feed_changes_total", "Change notifications by kind, operation and direction"),
		[]string{"kind", "op", "direction"},
	)

	m.storeLatency = auto.NewHistogramVec(
		m.histogramOpts("store_latency_milliseconds", "Store operation latency in milliseconds"),
		[]string{"operation"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
}

// RecordRecompute records one queue recomputation and its duration.
func RecordRecompute(durationMs float64, unix int64) {
	globalManager.rankingRecomputes.Inc()
	globalManager.rankingRecomputeDuration.Observe(durationMs)
	globalManager.rankingLastRefreshUnix.Set(float64(unix))
}

// UpdateSnapshotSize sets the roster and event log gauges.
func UpdateSnapshotSize(agents, events int) {
	globalManager.rosterSize.Set(float64(agents))
	globalManager.eventLogSize.Set(float64(events))
}

// UpdateEventsIgnored sets the number of events the last fold skipped for reason.
func UpdateEventsIgnored(reason string, count int) {
	globalManager.eventsIgnored.WithLabelValues(reason).Set(float64(count))
}

// RecordAssignment increments the recorded assignments counter.
func RecordAssignment(status string) {
	globalManager.assignmentsRecorded.WithLabelValues(status).Inc()
}

// RecordAgentChange increments the roster change counter.
func RecordAgentChange(op string) {
	globalManager.agentsChanged.WithLabelValues(op).Inc()
}

// RecordIdempotentReplay increments the replay counter.
func RecordIdempotentReplay() {
	globalManager.idempotentReplays.Inc()
}

// RecordFeedChange counts a change notification. direction is "out" for
// published changes and "in" for received ones.
func RecordFeedChange(kind, op, direction string) {
	globalManager.feedChanges.WithLabelValues(kind, op, direction).Inc()
}

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
