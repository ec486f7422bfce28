package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_registry_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_registry_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Store metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_db_queries_total",
			Help: "Total number of registry store operations",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_registry_db_query_duration_seconds",
			Help:    "Registry store operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_registry_db_transaction_duration_seconds",
			Help:    "Registry store transaction duration in seconds by outcome",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"outcome"}, // "commit" or "rollback"
	)

	DBConstraintViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_db_constraint_violations_total",
			Help: "Constraint violations surfaced by the registry store",
		},
		[]string{"kind"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_registry_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Registry content gauges, refreshed by the Collector
var (
	RegistryRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_registry_rows",
			Help: "Number of rows per registry table",
		},
		[]string{"table"},
	)
)

// Scanner metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_scans_total",
			Help: "Total number of library scans by outcome",
		},
		[]string{"outcome"}, // "completed", "cancelled", "failed", "cached"
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_registry_scan_duration_seconds",
			Help:    "Duration of library scans in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
	)

	ScanEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_scan_entries_total",
			Help: "Filesystem entries visited by the scanner",
		},
		[]string{"result"}, // "folder", "discovered", "registered", "deduplicated", "skipped", "error"
	)

	ScanExtractDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_registry_scan_extract_duration_seconds",
			Help:    "Duration of per-file metadata and hash extraction",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ScansInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_registry_scans_in_progress",
			Help: "Number of scans currently running",
		},
	)
)

// Pipeline metrics
var (
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_batches_total",
			Help: "Derived-asset batches by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_batch_items_total",
			Help: "Derived-asset batch items by kind and result",
		},
		[]string{"kind", "result"}, // "completed", "failed", "skipped"
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_registry_batch_duration_seconds",
			Help:    "Derived-asset batch duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"kind"},
	)

	BatchesRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_registry_batches_running",
			Help: "Number of derived-asset batches currently running",
		},
		[]string{"kind"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_registry_render_duration_seconds",
			Help:    "Asset rendering duration in seconds by kind and phase",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind", "phase"}, // phase: "extract", "compose", "encode", "total"
	)

	RenderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_render_errors_total",
			Help: "Asset rendering errors by kind and reason",
		},
		[]string{"kind", "reason"}, // "timeout", "ffmpeg", "source_missing", "unsupported", "other"
	)
)

// Migration metrics
var (
	MigrationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_migration_runs_total",
			Help: "Legacy schema migration attempts by outcome",
		},
		[]string{"outcome"},
	)

	MigrationRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_registry_migration_rows_total",
			Help: "Legacy rows carried into the normalized schema",
		},
	)
)

// Background job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_jobs_total",
			Help: "Background scan and batch jobs by type and final state",
		},
		[]string{"type", "state"},
	)

	JobsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_registry_jobs_running",
			Help: "Background jobs currently running",
		},
		[]string{"type"},
	)
)

// Throttle metrics
var (
	ThrottleCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_registry_throttle_capacity",
			Help: "Current number of permits the concurrency controller allows",
		},
	)

	ThrottleInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_registry_throttle_in_use",
			Help: "Number of permits currently held",
		},
	)

	ThrottleWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_registry_throttle_waiting",
			Help: "Number of callers waiting for a permit",
		},
	)

	ThrottleAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_throttle_adjustments_total",
			Help: "Capacity adjustments by direction",
		},
		[]string{"direction"}, // "up", "down", "floor"
	)

	ThrottleMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_registry_throttle_memory_percent",
			Help: "Last sampled memory pressure in percent",
		},
	)

	ThrottleCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_registry_throttle_cpu_percent",
			Help: "Last sampled CPU utilisation in percent",
		},
	)
)

// Filesystem metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after stale file handle errors",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_registry_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_registry_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration including retries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)
)
