// Package metrics provides Prometheus metrics for the analytics pipeline:
// the in-page tracking engine, the collector endpoint, and the scan runners.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultBatchSizeBuckets covers batches up to the tracker queue capacity.
var defaultBatchSizeBuckets = []float64{1, 5, 10, 25, 50, 100, 200} //nolint:gochecknoglobals // read-only default

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	latencyBuckets   []float64
	batchSizeBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Tracking engine
	eventsTracked      *prometheus.CounterVec
	eventsGated        prometheus.Counter
	eventsEvicted      prometheus.Counter
	fieldsDropped      *prometheus.CounterVec
	payloadsRejected   *prometheus.CounterVec
	flushes            *prometheus.CounterVec
	flushFailures      *prometheus.CounterVec
	flushBatchSize     prometheus.Histogram
	trackerQueueLength prometheus.Gauge

	// Collector
	batchesReceived  prometheus.Counter
	batchesDuplicate prometheus.Counter
	batchesRejected  *prometheus.CounterVec
	eventsStored     prometheus.Counter
	storeLatency     prometheus.Histogram

	// Collector queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors *prometheus.CounterVec
	workerCount        prometheus.Gauge
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Scan runners
	scanUnits *prometheus.CounterVec

	// System
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
		namespace:        "convtrack",
		subsystem:        "analytics",
		latencyBuckets:   prometheus.ExponentialBuckets(1, 2, 12),
		batchSizeBuckets: defaultBatchSizeBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	counterVec := func(name, help string, l ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		}, l)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}

	m.eventsTracked = counterVec("events_tracked_total", "Events accepted into the tracker queue by event name", "event")
	m.eventsGated = counter("events_consent_gated_total", "Analytics-only events dropped because consent was not granted")
	m.eventsEvicted = counter("events_evicted_total", "Events evicted from the tracker queue (drop-oldest)")
	m.fieldsDropped = counterVec("fields_dropped_total", "Event data fields removed by the privacy sanitizer", "reason")
	m.payloadsRejected = counterVec("payloads_rejected_total", "Custom event payloads that failed validation", "channel")
	m.flushes = counterVec("flushes_total", "Batches handed to the transport", "mode")
	m.flushFailures = counterVec("flush_failures_total", "Batches lost in transport", "mode")
	m.flushBatchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("flush_batch_size"),
		Help: "Number of events per flushed batch", ConstLabels: labels,
		Buckets: m.batchSizeBuckets,
	})
	m.trackerQueueLength = gauge("tracker_queue_length", "Current number of events waiting in the tracker queue")

	m.batchesReceived = counter("collector_batches_received_total", "Batches received by the collector")
	m.batchesDuplicate = counter("collector_batches_duplicate_total", "Batches rejected as duplicates")
	m.batchesRejected = counterVec("collector_batches_rejected_total", "Batches rejected by the collector", "reason")
	m.eventsStored = counter("collector_events_stored_total", "Events persisted by the collector")
	m.storeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("collector_store_latency_milliseconds"),
		Help: "Latency of batch inserts in milliseconds", ConstLabels: labels, Buckets: m.latencyBuckets,
	})

	m.queueSize = gauge("queue_size", "Current size of the collector batch queue")
	m.queueCapacity = gauge("queue_capacity", "Capacity of the collector batch queue")
	m.queueEnqueueErrors = counterVec("queue_enqueue_errors_total", "Collector queue enqueue failures", "reason")
	m.workerCount = gauge("worker_count", "Number of collector workers")
	m.workerErrors = counter("worker_errors_total", "Collector worker failures")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests by endpoint and method", ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "HTTP request duration in milliseconds", ConstLabels: labels, Buckets: m.latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.scanUnits = counterVec("scan_units_total", "Scan runner units of work by tool and outcome", "tool", "outcome")

	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Number of goroutines")
}

// Tracking engine.

// RecordEventTracked counts an event accepted into the tracker queue.
func RecordEventTracked(event string) { globalManager.eventsTracked.WithLabelValues(event).Inc() }

// RecordEventGated counts an analytics-only event dropped for lack of consent.
func RecordEventGated() { globalManager.eventsGated.Inc() }

// RecordEventEvicted counts a drop-oldest eviction.
func RecordEventEvicted() { globalManager.eventsEvicted.Inc() }

// RecordFieldDropped counts a field removed by the sanitizer.
func RecordFieldDropped(reason string) { globalManager.fieldsDropped.WithLabelValues(reason).Inc() }

// RecordPayloadRejected counts a malformed custom event payload.
func RecordPayloadRejected(channel string) {
	globalManager.payloadsRejected.WithLabelValues(channel).Inc()
}

// RecordFlush records a batch handed to the transport.
func RecordFlush(mode string, size int) {
	globalManager.flushes.WithLabelValues(mode).Inc()
	globalManager.flushBatchSize.Observe(float64(size))
}

// RecordFlushFailure records a batch lost in transport.
func RecordFlushFailure(mode string) { globalManager.flushFailures.WithLabelValues(mode).Inc() }

// UpdateTrackerQueueLength sets the tracker queue gauge.
func UpdateTrackerQueueLength(n int) { globalManager.trackerQueueLength.Set(float64(n)) }

// Collector.

// RecordBatchReceived increments the received batches counter.
func RecordBatchReceived() { globalManager.batchesReceived.Inc() }

// RecordBatchDuplicate increments the duplicate batches counter.
func RecordBatchDuplicate() { globalManager.batchesDuplicate.Inc() }

// RecordBatchRejected increments the rejected batches counter.
func RecordBatchRejected(reason string) { globalManager.batchesRejected.WithLabelValues(reason).Inc() }

// RecordEventsStored adds n persisted events.
func RecordEventsStored(n int) { globalManager.eventsStored.Add(float64(n)) }

// RecordStoreLatency records batch insert latency.
func RecordStoreLatency(latencyMs float64) { globalManager.storeLatency.Observe(latencyMs) }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Scan runners.

// RecordScanUnit counts a completed unit of scan work (route or report).
func RecordScanUnit(tool, outcome string) { globalManager.scanUnits.WithLabelValues(tool, outcome).Inc() }

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
