// Package metrics provides Prometheus metrics for the screening runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provider calls run for seconds to minutes.
var defaultCallBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600} //nolint:gochecknoglobals // bucket layout

// Manager owns all Prometheus metrics for a screening process.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Throughput
	itemsTotal    *prometheus.CounterVec
	itemsInFlight prometheus.Gauge

	// Judge subprocesses
	providerCalls        *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	// Checkpointing
	checkpointSaves      prometheus.Counter
	checkpointSaveErrors prometheus.Counter
	checkpointRows       prometheus.Gauge

	// Retry passes
	retrySlots     *prometheus.CounterVec
	ladderAdvances *prometheus.CounterVec

	// Status endpoint
	statusRequests *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sieve",
		subsystem:        "screening",
		histogramBuckets: defaultCallBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.itemsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "items_total",
		Help:        "Items that reached a recorded result, by tier",
		ConstLabels: m.constLabels,
	}, []string{"tier"})

	m.itemsInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "items_in_flight",
		Help:        "Items dispatched to a worker and not yet completed",
		ConstLabels: m.constLabels,
	})

	m.providerCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "provider_calls_total",
		Help:        "Judge invocations by provider and outcome",
		ConstLabels: m.constLabels,
	}, []string{"provider", "outcome"})

	m.providerCallDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "provider_call_duration_seconds",
		Help:        "Wall time of judge invocations",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"provider"})

	m.checkpointSaves = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "checkpoint_saves_total",
		Help:        "Successful checkpoint writes",
		ConstLabels: m.constLabels,
	})

	m.checkpointSaveErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "checkpoint_save_errors_total",
		Help:        "Failed checkpoint writes",
		ConstLabels: m.constLabels,
	})

	m.checkpointRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "checkpoint_rows",
		Help:        "Rows in the last written checkpoint",
		ConstLabels: m.constLabels,
	})

	m.retrySlots = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "retry_slots_total",
		Help:        "Slots attempted by a retry pass, by group and result",
		ConstLabels: m.constLabels,
	}, []string{"group", "result"})

	m.ladderAdvances = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "ladder_advances_total",
		Help:        "Fallback model ladder advances per provider",
		ConstLabels: m.constLabels,
	}, []string{"provider"})

	m.statusRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Name:        "status_requests_total",
		Help:        "Requests served by the status endpoint",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordItem counts one recorded result for tier.
func (m *Manager) RecordItem(tier string) { m.itemsTotal.WithLabelValues(tier).Inc() }

// IncInFlight marks one item as dispatched.
func (m *Manager) IncInFlight() { m.itemsInFlight.Inc() }

// DecInFlight marks one dispatched item as finished.
func (m *Manager) DecInFlight() { m.itemsInFlight.Dec() }

// RecordProviderCall records one judge invocation.
func (m *Manager) RecordProviderCall(provider, outcome string, seconds float64) {
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(seconds)
}

// RecordCheckpointSave records a checkpoint write of rows rows.
func (m *Manager) RecordCheckpointSave(rows int) {
	m.checkpointSaves.Inc()
	m.checkpointRows.Set(float64(rows))
}

// RecordCheckpointSaveError records a failed checkpoint write.
func (m *Manager) RecordCheckpointSaveError() { m.checkpointSaveErrors.Inc() }

// RecordRetrySlot records one retried slot.
func (m *Manager) RecordRetrySlot(group, result string) {
	m.retrySlots.WithLabelValues(group, result).Inc()
}

// RecordLadderAdvance records a fallback ladder step for provider.
func (m *Manager) RecordLadderAdvance(provider string) {
	m.ladderAdvances.WithLabelValues(provider).Inc()
}

// RecordStatusRequest records one request to the status endpoint.
func (m *Manager) RecordStatusRequest(endpoint, method, statusCode string) {
	m.statusRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// Package-level helpers delegate to the global manager.

// RecordItem counts one recorded result for tier.
func RecordItem(tier string) { globalManager.RecordItem(tier) }

// IncInFlight marks one item as dispatched.
func IncInFlight() { globalManager.IncInFlight() }

// DecInFlight marks one dispatched item as finished.
func DecInFlight() { globalManager.DecInFlight() }

// RecordProviderCall records one judge invocation.
func RecordProviderCall(provider, outcome string, seconds float64) {
	globalManager.RecordProviderCall(provider, outcome, seconds)
}

// RecordCheckpointSave records a checkpoint write.
func RecordCheckpointSave(rows int) { globalManager.RecordCheckpointSave(rows) }

// RecordCheckpointSaveError records a failed checkpoint write.
func RecordCheckpointSaveError() { globalManager.RecordCheckpointSaveError() }

// RecordRetrySlot records one retried slot.
func RecordRetrySlot(group, result string) { globalManager.RecordRetrySlot(group, result) }

// RecordLadderAdvance records a fallback ladder step.
func RecordLadderAdvance(provider string) { globalManager.RecordLadderAdvance(provider) }

// RecordStatusRequest records one request to the status endpoint.
func RecordStatusRequest(endpoint, method, statusCode string) {
	globalManager.RecordStatusRequest(endpoint, method, statusCode)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
