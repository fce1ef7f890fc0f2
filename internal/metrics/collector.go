// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// Collector
// =============================================================================

// Collector holds every Prometheus metric the process exports, grouped
// by the subsystem that records it.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Disk pressure metrics (internal/diskpressure.Sample)
	diskStorageFreeBytes  prometheus.Gauge
	diskDBFreeBytes       prometheus.Gauge
	diskEffectiveFreeBytes prometheus.Gauge
	diskPressureLevel     prometheus.Gauge
	diskLastSampleUsec    prometheus.Gauge
	diskSampleErrorsTotal prometheus.Counter
	diskIOReadBytes       prometheus.Gauge
	diskIOWriteBytes      prometheus.Gauge

	// Search metrics (internal/search two-tier pipeline)
	searchRequestsTotal           *prometheus.CounterVec
	searchRequestDuration         *prometheus.HistogramVec
	searchRefinementFailuresTotal prometheus.Counter

	// Write-pipeline / archive metrics
	messagesDeliveredTotal  *prometheus.CounterVec
	messageDeliveryDuration prometheus.Histogram
	archiveCommitsTotal     *prometheus.CounterVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Database metrics
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	// Observability-core metrics (internal/observability)
	bocpdChangePointsTotal *prometheus.CounterVec
	conformalIntervalWidth *prometheus.GaugeVec
	evidenceLedgerSize     prometheus.Gauge

	// Export pipeline metrics (internal/exportpipeline)
	exportStageDuration *prometheus.HistogramVec
	exportsTotal        *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates the process's metrics collector, registering
// every metric under namespace via promauto.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP metrics
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// Disk pressure metrics: named to match internal/diskpressure.Sample's
	// own field names one-for-one, so a dashboard built against the
	// sampler reads naturally against the exported gauges.
	c.diskStorageFreeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "disk_storage_free_bytes",
		Help: "Free bytes available on the storage-root volume",
	})
	c.diskDBFreeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "disk_db_free_bytes",
		Help: "Free bytes available on the database-file volume",
	})
	c.diskEffectiveFreeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "disk_effective_free_bytes",
		Help: "Minimum of the storage and database volume free bytes",
	})
	c.diskPressureLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "disk_pressure_level",
		Help: "Classified disk pressure: 0=ok 1=warning 2=critical 3=fatal",
	})
	c.diskLastSampleUsec = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "disk_last_sample_us",
		Help: "Unix microsecond timestamp of the last disk-pressure sample",
	})
	c.diskSampleErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "disk_sample_errors_total",
		Help: "Total disk-pressure sampling errors",
	})
	c.diskIOReadBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "disk_io_read_bytes",
		Help: "Process cumulative read bytes from /proc/self/io",
	})
	c.diskIOWriteBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "disk_io_write_bytes",
		Help: "Process cumulative write bytes from /proc/self/io",
	})

	// Search metrics
	c.searchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of search requests by phase",
		},
		[]string{"phase"},
	)

	c.searchRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_request_duration_seconds",
			Help:      "Search request duration in seconds by phase",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	c.searchRefinementFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_refinement_failures_total",
		Help:      "Total two-tier search refinement failures",
	})

	// Write-pipeline / archive metrics
	c.messagesDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Total messages delivered by importance",
		},
		[]string{"importance"},
	)

	c.messageDeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "message_delivery_duration_seconds",
		Help:      "Write-pipeline delivery duration in seconds",
		Buckets:   prometheus.DefBuckets,
	})

	c.archiveCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_commits_total",
			Help:      "Total archive bundle commits by outcome",
		},
		[]string{"status"},
	)

	// Cache metrics
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Database metrics
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	// Observability-core metrics
	c.bocpdChangePointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bocpd_change_points_total",
			Help:      "Total BOCPD change-point events by tool",
		},
		[]string{"tool"},
	)

	c.conformalIntervalWidth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conformal_interval_width_seconds",
			Help:      "Most recent conformal prediction interval width by tool",
		},
		[]string{"tool"},
	)

	c.evidenceLedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "evidence_ledger_size",
		Help:      "Current number of records held in the evidence ledger",
	})

	// Export pipeline metrics
	c.exportStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_stage_duration_seconds",
			Help:      "Export pipeline stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	c.exportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Total export pipeline runs by outcome",
		},
		[]string{"status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// HTTP metrics
// =============================================================================

// RecordHTTPRequest records one completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// Disk pressure metrics
// =============================================================================

// RecordDiskSample mirrors one internal/diskpressure.Sample into gauges.
// storageFreeBytes/dbFreeBytes/effectiveFreeBytes are nil-able — a probe
// path that failed to stat, or a database with no filesystem footprint,
// leaves the corresponding gauge unset rather than forced to zero.
func (c *Collector) RecordDiskSample(storageFreeBytes, dbFreeBytes, effectiveFreeBytes *uint64, pressureLevel int, sampleUsec int64, ioReadBytes, ioWriteBytes uint64, sampleErrored bool) {
	if storageFreeBytes != nil {
		c.diskStorageFreeBytes.Set(float64(*storageFreeBytes))
	}
	if dbFreeBytes != nil {
		c.diskDBFreeBytes.Set(float64(*dbFreeBytes))
	}
	if effectiveFreeBytes != nil {
		c.diskEffectiveFreeBytes.Set(float64(*effectiveFreeBytes))
	}
	c.diskPressureLevel.Set(float64(pressureLevel))
	c.diskLastSampleUsec.Set(float64(sampleUsec))
	c.diskIOReadBytes.Set(float64(ioReadBytes))
	c.diskIOWriteBytes.Set(float64(ioWriteBytes))
	if sampleErrored {
		c.diskSampleErrorsTotal.Inc()
	}
}

// =============================================================================
// Search metrics
// =============================================================================

// RecordSearch records one search request's phase and latency. phase is
// one of the two-tier pipeline's named phases (e.g. "lexical",
// "refine", "refinement_failed").
func (c *Collector) RecordSearch(phase string, duration time.Duration) {
	c.searchRequestsTotal.WithLabelValues(phase).Inc()
	c.searchRequestDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordSearchRefinementFailure records one refinement-tier failure that
// fell back to the lexical-only result set.
func (c *Collector) RecordSearchRefinementFailure() {
	c.searchRefinementFailuresTotal.Inc()
}

// =============================================================================
// Write-pipeline / archive metrics
// =============================================================================

// RecordMessageDelivered records one successful write-pipeline delivery.
func (c *Collector) RecordMessageDelivered(importance string, duration time.Duration) {
	c.messagesDeliveredTotal.WithLabelValues(importance).Inc()
	c.messageDeliveryDuration.Observe(duration.Seconds())
}

// RecordArchiveCommit records one write-behind-queue commit outcome
// ("ok" or "error").
func (c *Collector) RecordArchiveCommit(status string) {
	c.archiveCommitsTotal.WithLabelValues(status).Inc()
}

// =============================================================================
// Cache metrics
// =============================================================================

// RecordCacheHit records a cache hit for cacheType.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss for cacheType.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// Database metrics
// =============================================================================

// RecordDBConnections records a pool's open/idle connection counts.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records one query's duration.
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// Observability-core metrics
// =============================================================================

// RecordChangePoint records one BOCPD change-point event for tool.
func (c *Collector) RecordChangePoint(tool string) {
	c.bocpdChangePointsTotal.WithLabelValues(tool).Inc()
}

// RecordConformalInterval records the most recent conformal prediction
// interval width for tool.
func (c *Collector) RecordConformalInterval(tool string, lower, upper float64) {
	c.conformalIntervalWidth.WithLabelValues(tool).Set(upper - lower)
}

// RecordEvidenceLedgerSize records the ledger's current record count.
func (c *Collector) RecordEvidenceLedgerSize(size int) {
	c.evidenceLedgerSize.Set(float64(size))
}

// =============================================================================
// Export pipeline metrics
// =============================================================================

// RecordExportStage records one export pipeline stage's duration.
func (c *Collector) RecordExportStage(stage string, duration time.Duration) {
	c.exportStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordExport records one completed export run's outcome ("ok" or
// "error").
func (c *Collector) RecordExport(status string) {
	c.exportsTotal.WithLabelValues(status).Inc()
}

// =============================================================================
// helpers
// =============================================================================

// statusClass buckets an HTTP status code into its 2xx/3xx/4xx/5xx class.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
