// Package metrics provides Prometheus metrics for the box office forecaster.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the forecaster.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Training pipeline
	stageDuration    *prometheus.HistogramVec
	recordsIngested  *prometheus.CounterVec
	recordsRejected  *prometheus.CounterVec
	recordsDuplicate prometheus.Counter
	trainingRows     *prometheus.GaugeVec
	evaluation       *prometheus.GaugeVec
	modelTrees       prometheus.Gauge

	// Inference
	predictions       *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	unseenGenres      prometheus.Counter
	artifactLoaded    prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository and artifact storage
	repositoryQueryLatency *prometheus.HistogramVec
	artifactIOLatency      *prometheus.HistogramVec

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Upstream sources (TMDB, BLS)
	fetchRequests *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	breakerState  *prometheus.GaugeVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram

	errorRateByComponent *prometheus.CounterVec
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
		namespace:        "boxoffice",
		subsystem:        "forecaster",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
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
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.stageDuration = auto.NewHistogramVec(
		m.histogramOpts("training_stage_duration_milliseconds", "Duration of each training pipeline stage in milliseconds"),
		[]string{"stage"},
	)
	m.recordsIngested = auto.NewCounterVec(
		m.counterOpts("records_ingested_total", "Raw release records read, by source"),
		[]string{"source"},
	)
	m.recordsRejected = auto.NewCounterVec(
		m.counterOpts("records_rejected_total", "Release records dropped during cleaning, by reason"),
		[]string{"reason"},
	)
	m.recordsDuplicate = auto.NewCounter(
		m.counterOpts("records_duplicate_total", "Release records dropped as duplicate identifiers"),
	)
	m.trainingRows = auto.NewGaugeVec(
		m.gaugeOpts("training_rows", "Rows in the last fitted model, by split"),
		[]string{"split"},
	)
	m.evaluation = auto.NewGaugeVec(
		m.gaugeOpts("evaluation", "Held-out evaluation of the last fitted model, by metric"),
		[]string{"metric"},
	)
	m.modelTrees = auto.NewGauge(
		m.gaugeOpts("model_trees", "Number of trees in the loaded model"),
	)

	m.predictions = auto.NewCounterVec(
		m.counterOpts("predictions_total", "Predictions served, by outcome"),
		[]string{"outcome"},
	)
	m.predictionLatency = auto.NewHistogram(
		m.histogramOpts("prediction_latency_milliseconds", "Latency of predict plus explain in milliseconds"),
	)
	m.unseenGenres = auto.NewCounter(
		m.counterOpts("unseen_genres_total", "Genre tags at inference that are not in the frozen vocabulary"),
	)
	m.artifactLoaded = auto.NewGauge(
		m.gaugeOpts("artifact_loaded_unix", "Unix timestamp at which the serving artifact was created"),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.repositoryQueryLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_query_latency_milliseconds", "Dataset store operation latency in milliseconds"),
		[]string{"operation"},
	)
	m.artifactIOLatency = auto.NewHistogramVec(
		m.histogramOpts("artifact_io_latency_milliseconds", "Artifact save and load latency in milliseconds"),
		[]string{"operation"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current number of queued jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(
		m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"),
	)
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of enqueue errors"))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of running workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Worker job latency in milliseconds"),
	)
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of failed jobs"))

	m.fetchRequests = auto.NewCounterVec(
		m.counterOpts("fetch_requests_total", "Upstream requests by source and outcome"),
		[]string{"source", "outcome"},
	)
	m.fetchLatency = auto.NewHistogramVec(
		m.histogramOpts("fetch_latency_milliseconds", "Upstream request latency in milliseconds"),
		[]string{"source"},
	)
	m.breakerState = auto.NewGaugeVec(
		m.gaugeOpts("breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)"),
		[]string{"name"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause in milliseconds"),
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
}

// Training pipeline.

// RecordStageDuration records how long a training stage took.
func RecordStageDuration(stage string, latencyMs float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(latencyMs)
}

// RecordRecordsIngested adds n raw records read from source.
func RecordRecordsIngested(source string, n int) {
	globalManager.recordsIngested.WithLabelValues(source).Add(float64(n))
}

// RecordRecordRejected increments the rejected records counter for reason.
func RecordRecordRejected(reason string) {
	globalManager.recordsRejected.WithLabelValues(reason).Inc()
}

// RecordRecordDuplicate increments the duplicate records counter.
func RecordRecordDuplicate() {
	globalManager.recordsDuplicate.Inc()
}

// UpdateTrainingRows sets the row count for a split ("train" or "test").
func UpdateTrainingRows(split string, n int) {
	globalManager.trainingRows.WithLabelValues(split).Set(float64(n))
}

// UpdateEvaluation sets a held-out evaluation metric.
func UpdateEvaluation(metric string, value float64) {
	globalManager.evaluation.WithLabelValues(metric).Set(value)
}

// UpdateModelTrees sets the tree count of the loaded model.
func UpdateModelTrees(n int) {
	globalManager.modelTrees.Set(float64(n))
}

// Inference.

// RecordPrediction increments the predictions counter for outcome.
func RecordPrediction(outcome string) {
	globalManager.predictions.WithLabelValues(outcome).Inc()
}

// RecordPredictionLatency records prediction latency in milliseconds.
func RecordPredictionLatency(latencyMs float64) {
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordUnseenGenres adds n unseen genre tags.
func RecordUnseenGenres(n int) {
	globalManager.unseenGenres.Add(float64(n))
}

// UpdateArtifactLoaded sets the creation time of the serving artifact.
func UpdateArtifactLoaded(unix int64) {
	globalManager.artifactLoaded.Set(float64(unix))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Storage.

// RecordRepositoryQueryLatency records dataset store latency for operation.
func RecordRepositoryQueryLatency(operation string, latencyMs float64) {
	globalManager.repositoryQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordArtifactIOLatency records artifact save/load latency.
func RecordArtifactIOLatency(operation string, latencyMs float64) {
	globalManager.artifactIOLatency.WithLabelValues(operation).Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Upstream sources.

// RecordFetch records an upstream request outcome and its latency.
func RecordFetch(source, outcome string, latencyMs float64) {
	globalManager.fetchRequests.WithLabelValues(source, outcome).Inc()
	globalManager.fetchLatency.WithLabelValues(source).Observe(latencyMs)
}

// UpdateBreakerState sets the state of a named circuit breaker.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// Process.

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(n int) {
	globalManager.systemGoroutineCount.Set(float64(n))
}

// RecordSystemGCPauseTime records the average GC pause.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPauseTime.Observe(ms)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
