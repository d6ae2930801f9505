// Package metrics provides Prometheus metrics for the lanes engagement service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Engagement
	clicksAccepted  prometheus.Counter
	clicksDuplicate prometheus.Counter
	clickErrors     prometheus.Counter
	recordLatency   prometheus.Histogram
	laneTransitions *prometheus.CounterVec
	lanePopulation  *prometheus.GaugeVec
	itemsTotal      prometheus.Gauge
	ledgerSize      prometheus.Gauge

	// Store snapshot
	snapshotRebuildDuration prometheus.Histogram
	snapshotLastUnix        prometheus.Gauge

	// Change notifications
	notificationsPublished prometheus.Counter
	notificationsDropped   *prometheus.CounterVec
	notificationsDelivered *prometheus.CounterVec
	subscribers            prometheus.Gauge
	presence               prometheus.Gauge

	// Queue and dispatch workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Scheduler
	schedulerTicks  prometheus.Counter
	schedulerClicks prometheus.Counter
	schedulerSkips  *prometheus.CounterVec

	// Catalog sync
	catalogSyncs       *prometheus.CounterVec
	catalogItems       *prometheus.CounterVec
	catalogFetchErrors prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     prometheus.Counter
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lanes",
		subsystem:        "engagement",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.clicksAccepted = m.counter("clicks_accepted_total", "Clicks that created a new ledger record")
	m.clicksDuplicate = m.counter("clicks_duplicate_total", "Clicks rejected because the actor already clicked the item")
	m.clickErrors = m.counter("click_errors_total", "Clicks that failed because persistence was unavailable")
	m.recordLatency = m.histogram("record_click_latency_milliseconds", "Latency of the atomic record-click unit")
	m.laneTransitions = m.counterVec("lane_transitions_total", "Lane transitions by source and target lane", "from", "to")
	m.lanePopulation = m.gaugeVec("lane_population", "Active items per lane", "lane")
	m.itemsTotal = m.gauge("items_total", "Items known to the store")
	m.ledgerSize = m.gauge("ledger_records", "Click records held by the in-memory ledger")

	m.snapshotRebuildDuration = m.histogram("snapshot_rebuild_duration_milliseconds", "Time to rebuild the ranking snapshot")
	m.snapshotLastUnix = m.gauge("snapshot_last_unix", "Unix time of the last ranking snapshot")

	m.notificationsPublished = m.counter("notifications_published_total", "Changes accepted by the notifier")
	m.notificationsDropped = m.counterVec("notifications_dropped_total", "Changes dropped before delivery", "reason")
	m.notificationsDelivered = m.counterVec("notifications_delivered_total", "Changes handed to a deliverer", "deliverer")
	m.subscribers = m.gauge("subscribers", "Connected change stream subscribers")
	m.presence = m.gauge("presence_online", "Observers reported as online, including synthetic presence")

	m.queueSize = m.gauge("queue_size", "Current size of the change queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the change queue")
	m.workerCount = m.gauge("worker_count", "Running change dispatch workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Per-change dispatch latency")
	m.workerErrors = m.counter("worker_errors_total", "Dispatch failures reported by deliverers")

	m.schedulerTicks = m.counter("scheduler_ticks_total", "Synthetic clicker ticks")
	m.schedulerClicks = m.counter("scheduler_clicks_total", "Synthetic clicks recorded")
	m.schedulerSkips = m.counterVec("scheduler_skips_total", "Ticks that recorded no click", "reason")

	m.catalogSyncs = m.counterVec("catalog_syncs_total", "Catalog sync runs by outcome", "outcome")
	m.catalogItems = m.counterVec("catalog_items_total", "Catalog items processed by action", "action")
	m.catalogFetchErrors = m.counter("catalog_fetch_errors_total", "Failed catalog fetch attempts")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRateLimited = m.counter("http_rate_limited_total", "Requests rejected by the click rate limiter")
	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Most recent GC pause")
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

// RecordClickAccepted counts a click that created a ledger record.
func RecordClickAccepted() { globalManager.clicksAccepted.Inc() }

// RecordClickDuplicate counts a click that was already in the ledger.
func RecordClickDuplicate() { globalManager.clicksDuplicate.Inc() }

// RecordClickError counts a click that failed to persist.
func RecordClickError() { globalManager.clickErrors.Inc() }

// RecordClickLatency records the record-click latency in milliseconds.
func RecordClickLatency(latencyMs float64) { globalManager.recordLatency.Observe(latencyMs) }

// RecordLaneTransition counts a lane change.
func RecordLaneTransition(from, to string) {
	globalManager.laneTransitions.WithLabelValues(from, to).Inc()
}

// UpdateLanePopulation sets the number of active items in a lane.
func UpdateLanePopulation(lane string, count int) {
	globalManager.lanePopulation.WithLabelValues(lane).Set(float64(count))
}

// UpdateItemsTotal sets the number of stored items.
func UpdateItemsTotal(count int) { globalManager.itemsTotal.Set(float64(count)) }

// UpdateLedgerSize sets the number of in-memory click records.
func UpdateLedgerSize(count int64) { globalManager.ledgerSize.Set(float64(count)) }

// RecordSnapshotRebuild records a ranking snapshot rebuild.
func RecordSnapshotRebuild(durationMs float64, unix int64) {
	globalManager.snapshotRebuildDuration.Observe(durationMs)
	globalManager.snapshotLastUnix.Set(float64(unix))
}

// RecordNotificationPublished counts a change accepted by the notifier.
func RecordNotificationPublished() { globalManager.notificationsPublished.Inc() }

// RecordNotificationDropped counts a change that will never be delivered.
func RecordNotificationDropped(reason string) {
	globalManager.notificationsDropped.WithLabelValues(reason).Inc()
}

// RecordNotificationDelivered counts a change handed to a deliverer.
func RecordNotificationDelivered(deliverer string) {
	globalManager.notificationsDelivered.WithLabelValues(deliverer).Inc()
}

// UpdateSubscribers sets the number of connected stream subscribers.
func UpdateSubscribers(count int) { globalManager.subscribers.Set(float64(count)) }

// UpdatePresence sets the reported online count.
func UpdatePresence(count int) { globalManager.presence.Set(float64(count)) }

// UpdateQueueSize sets the current change queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the change queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateWorkerCount sets the number of dispatch workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records a dispatch latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a dispatch failure.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordSchedulerTick counts a synthetic clicker tick.
func RecordSchedulerTick() { globalManager.schedulerTicks.Inc() }

// RecordSchedulerClick counts a synthetic click.
func RecordSchedulerClick() { globalManager.schedulerClicks.Inc() }

// RecordSchedulerSkip counts a tick that recorded nothing.
func RecordSchedulerSkip(reason string) {
	globalManager.schedulerSkips.WithLabelValues(reason).Inc()
}

// RecordCatalogSync counts a catalog sync run.
func RecordCatalogSync(outcome string) {
	globalManager.catalogSyncs.WithLabelValues(outcome).Inc()
}

// RecordCatalogItems counts catalog items by action (upserted, inserted, deactivated).
func RecordCatalogItems(action string, n int) {
	globalManager.catalogItems.WithLabelValues(action).Add(float64(n))
}

// RecordCatalogFetchError counts a failed catalog fetch attempt.
func RecordCatalogFetchError() { globalManager.catalogFetchErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordHTTPRateLimited counts a request rejected by the rate limiter.
func RecordHTTPRateLimited() { globalManager.httpRateLimited.Inc() }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records a GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
