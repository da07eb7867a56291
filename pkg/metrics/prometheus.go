// Package metrics provides Prometheus metrics for the dividend analysis service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Provider fetch metrics
	fetchRequests    *prometheus.CounterVec
	fetchPages       prometheus.Counter
	fetchEvents      prometheus.Counter
	fetchRateLimited prometheus.Counter
	fetchDegraded    prometheus.Counter
	fetchErrors      prometheus.Counter
	fetchDuration    prometheus.Histogram

	// Dividend cache metrics
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheWrites  prometheus.Counter
	cacheErrors  *prometheus.CounterVec
	cacheEntries *prometheus.GaugeVec

	// Simulation metrics
	simulations       *prometheus.CounterVec
	simulationLatency prometheus.Histogram
	alignmentErrors   prometheus.Counter

	// Cache warming metrics
	warmQueueSize  prometheus.Gauge
	warmJobs       *prometheus.CounterVec
	warmJobLatency prometheus.Histogram
	warmWorkers    prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "divsnow",
		subsystem:        "dividends",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
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
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.fetchRequests = auto.NewCounterVec(
		m.counterOpts("fetch_requests_total", "Provider HTTP requests by response status"),
		[]string{"status_code"},
	)
	m.fetchPages = auto.NewCounter(m.counterOpts("fetch_pages_total", "Dividend pages consumed from the provider"))
	m.fetchEvents = auto.NewCounter(m.counterOpts("fetch_events_total", "Dividend records received from the provider"))
	m.fetchRateLimited = auto.NewCounter(m.counterOpts("fetch_rate_limited_total", "HTTP 429 responses that triggered a wait and retry"))
	m.fetchDegraded = auto.NewCounter(m.counterOpts("fetch_degraded_total", "Fetches that stopped early and returned a partial result"))
	m.fetchErrors = auto.NewCounter(m.counterOpts("fetch_errors_total", "Fetches that failed with a provider error"))
	m.fetchDuration = auto.NewHistogram(m.histogramOpts(
		"fetch_duration_seconds", "Wall time of a full paginated fetch", prometheus.ExponentialBuckets(0.1, 2, 12)))

	m.cacheHits = auto.NewCounter(m.counterOpts("cache_hits_total", "Dividend cache lookups served from the store"))
	m.cacheMisses = auto.NewCounter(m.counterOpts("cache_misses_total", "Dividend cache lookups that required a fetch"))
	m.cacheWrites = auto.NewCounter(m.counterOpts("cache_writes_total", "Dividend fetch results written to the store"))
	m.cacheErrors = auto.NewCounterVec(
		m.counterOpts("cache_errors_total", "Dividend cache store failures by operation"),
		[]string{"op"},
	)
	m.cacheEntries = auto.NewGaugeVec(
		m.gaugeOpts("cache_entries", "Entries held by the dividend store by backend"),
		[]string{"backend"},
	)

	m.simulations = auto.NewCounterVec(
		m.counterOpts("simulations_total", "Reinvestment simulations run by strategy"),
		[]string{"strategy"},
	)
	m.simulationLatency = auto.NewHistogram(m.histogramOpts(
		"simulation_latency_milliseconds", "Reinvestment simulation latency in milliseconds", m.histogramBuckets))
	m.alignmentErrors = auto.NewCounter(m.counterOpts("alignment_errors_total", "Simulations aborted because dividend and price dates did not align"))

	m.warmQueueSize = auto.NewGauge(m.gaugeOpts("warm_queue_size", "Cache warming jobs waiting for a worker"))
	m.warmJobs = auto.NewCounterVec(
		m.counterOpts("warm_jobs_total", "Cache warming jobs by outcome"),
		[]string{"outcome"},
	)
	m.warmJobLatency = auto.NewHistogram(m.histogramOpts(
		"warm_job_latency_milliseconds", "Cache warming job latency in milliseconds", m.histogramBuckets))
	m.warmWorkers = auto.NewGauge(m.gaugeOpts("warm_workers", "Active cache warming workers"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint, method and error type"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Current heap allocation in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Current number of goroutines"))
}

// Provider fetch metrics.

// RecordFetchRequest records one provider HTTP response by status code.
func RecordFetchRequest(statusCode string) {
	globalManager.fetchRequests.WithLabelValues(statusCode).Inc()
}

// RecordFetchPage records one consumed page and the records it carried.
func RecordFetchPage(events int) {
	globalManager.fetchPages.Inc()
	globalManager.fetchEvents.Add(float64(events))
}

// RecordFetchRateLimited records a 429 wait.
func RecordFetchRateLimited() {
	globalManager.fetchRateLimited.Inc()
}

// RecordFetchDegraded records a fetch that returned a partial result.
func RecordFetchDegraded() {
	globalManager.fetchDegraded.Inc()
}

// RecordFetchError records a fetch that failed outright.
func RecordFetchError() {
	globalManager.fetchErrors.Inc()
}

// RecordFetchDuration records the wall time of a fetch in seconds.
func RecordFetchDuration(seconds float64) {
	globalManager.fetchDuration.Observe(seconds)
}

// Dividend cache metrics.

// RecordCacheHit records a lookup served from the store.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss records a lookup that fell through to the fetcher.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordCacheWrite records a result written to the store.
func RecordCacheWrite() {
	globalManager.cacheWrites.Inc()
}

// RecordCacheError records a store failure for op ("get", "put", "decode").
func RecordCacheError(op string) {
	globalManager.cacheErrors.WithLabelValues(op).Inc()
}

// UpdateCacheEntries sets the number of entries held by a store backend.
func UpdateCacheEntries(backend string, n int) {
	globalManager.cacheEntries.WithLabelValues(backend).Set(float64(n))
}

// Simulation metrics.

// RecordSimulation records one simulation run and its latency.
func RecordSimulation(strategy string, latencyMs float64) {
	globalManager.simulations.WithLabelValues(strategy).Inc()
	globalManager.simulationLatency.Observe(latencyMs)
}

// RecordAlignmentError records a simulation aborted on misaligned dates.
func RecordAlignmentError() {
	globalManager.alignmentErrors.Inc()
}

// Cache warming metrics.

// UpdateWarmQueueSize sets the number of pending warming jobs.
func UpdateWarmQueueSize(n int) {
	globalManager.warmQueueSize.Set(float64(n))
}

// RecordWarmJob records a finished warming job: ok, partial, error or rejected.
func RecordWarmJob(outcome string, latencyMs float64) {
	globalManager.warmJobs.WithLabelValues(outcome).Inc()
	if latencyMs >= 0 {
		globalManager.warmJobLatency.Observe(latencyMs)
	}
}

// UpdateWarmWorkers sets the number of running warming workers.
func UpdateWarmWorkers(n int) {
	globalManager.warmWorkers.Set(float64(n))
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error response for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage updates system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
