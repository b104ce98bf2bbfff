// Package metrics provides datastore metrics for observability
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for datastore operations
type DatastoreMetrics struct {
	registry *prometheus.Registry

	// Database operation metrics
	dbOperationsTotal      *prometheus.CounterVec
	dbOperationDuration    *prometheus.HistogramVec
	dbOperationErrorsTotal *prometheus.CounterVec

	// Connection and performance metrics
	dbConnectionsActiveGauge prometheus.Gauge
	dbConnectionsIdleGauge   prometheus.Gauge
	dbConnectionsMaxGauge    prometheus.Gauge
	dbQueryResultSizeHist    *prometheus.HistogramVec

	// Occurrence and summary query metrics
	noveltyQueriesTotal    *prometheus.CounterVec
	summaryQueriesTotal    *prometheus.CounterVec
	summaryQueryDuration   *prometheus.HistogramVec
	historyOperationsTotal *prometheus.CounterVec

	// Image cache metrics
	imageCacheOperationsTotal *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *DatastoreMetrics) initMetrics() error {
	// Database operation metrics
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "table", "status"}, // operation: select, insert, update, delete; status: success, error
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_db_operation_duration_seconds",
			Help:    "Time taken for database operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~32s
		},
		[]string{"operation", "table"},
	)

	m.dbOperationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Connection metrics
	m.dbConnectionsActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_db_connections_active",
		Help: "Number of active database connections",
	})

	m.dbConnectionsIdleGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_db_connections_idle",
		Help: "Number of idle database connections",
	})

	m.dbConnectionsMaxGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datastore_db_connections_max",
		Help: "Maximum number of database connections",
	})

	m.dbQueryResultSizeHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_db_query_result_size_rows",
			Help:    "Number of rows returned by database queries",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"operation", "table"},
	)

	// Occurrence and summary query metrics
	m.noveltyQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_novelty_queries_total",
			Help: "Total number of prior occurrence lookups",
		},
		[]string{"status"},
	)

	m.summaryQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_summary_queries_total",
			Help: "Total number of summary window aggregation queries",
		},
		[]string{"status"},
	)

	m.summaryQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_summary_query_duration_seconds",
			Help:    "Time taken for summary window aggregation queries",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~40s
		},
		[]string{"query"},
	)

	m.historyOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_notification_history_operations_total",
			Help: "Total number of notification history operations",
		},
		[]string{"operation", "status"}, // operation: save, get, delete
	)

	// Image cache metrics
	m.imageCacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_image_cache_operations_total",
			Help: "Total number of image cache lookups",
		},
		[]string{"operation", "status"},
	)

	// Initialize collectors slice with all metrics
	m.collectors = []prometheus.Collector{
		m.dbOperationsTotal,
		m.dbOperationDuration,
		m.dbOperationErrorsTotal,
		m.dbConnectionsActiveGauge,
		m.dbConnectionsIdleGauge,
		m.dbConnectionsMaxGauge,
		m.dbQueryResultSizeHist,
		m.noveltyQueriesTotal,
		m.summaryQueriesTotal,
		m.summaryQueryDuration,
		m.historyOperationsTotal,
		m.imageCacheOperationsTotal,
	}

	return nil
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Database operation recording methods

// RecordDbOperation records a database operation
func (m *DatastoreMetrics) RecordDbOperation(operation, table, status string) {
	m.dbOperationsTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordDbOperationDuration records the duration of a database operation
func (m *DatastoreMetrics) RecordDbOperationDuration(operation, table string, duration float64) {
	m.dbOperationDuration.WithLabelValues(operation, table).Observe(duration)
}

// RecordDbOperationError records a database operation error
func (m *DatastoreMetrics) RecordDbOperationError(operation, table, errorType string) {
	m.dbOperationErrorsTotal.WithLabelValues(operation, table, errorType).Inc()
}

// UpdateConnectionMetrics updates database connection metrics
func (m *DatastoreMetrics) UpdateConnectionMetrics(active, idle, maxConn int) {
	m.dbConnectionsActiveGauge.Set(float64(active))
	m.dbConnectionsIdleGauge.Set(float64(idle))
	m.dbConnectionsMaxGauge.Set(float64(maxConn))
}

// RecordQueryResultSize records the size of query results
func (m *DatastoreMetrics) RecordQueryResultSize(operation, table string, resultSize int) {
	m.dbQueryResultSizeHist.WithLabelValues(operation, table).Observe(float64(resultSize))
}

// Occurrence and summary query methods

// RecordNoveltyQuery records a prior occurrence lookup
func (m *DatastoreMetrics) RecordNoveltyQuery(status string) {
	m.noveltyQueriesTotal.WithLabelValues(status).Inc()
}

// RecordSummaryQuery records a summary window aggregation query
func (m *DatastoreMetrics) RecordSummaryQuery(status string) {
	m.summaryQueriesTotal.WithLabelValues(status).Inc()
}

// RecordSummaryQueryDuration records the duration of a summary aggregation query
func (m *DatastoreMetrics) RecordSummaryQueryDuration(query string, duration float64) {
	m.summaryQueryDuration.WithLabelValues(query).Observe(duration)
}

// RecordHistoryOperation records a notification history operation
func (m *DatastoreMetrics) RecordHistoryOperation(operation, status string) {
	m.historyOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordImageCacheOperation records an image cache lookup
func (m *DatastoreMetrics) RecordImageCacheOperation(operation, status string) {
	m.imageCacheOperationsTotal.WithLabelValues(operation, status).Inc()
}

// parseTableFromOperation extracts table name from operations like "db_query:notes"
// Returns the operation and table separately, or "unknown" if no table specified
func parseTableFromOperation(operation string) (op, table string) {
	parts := strings.SplitN(operation, ":", SplitPartsCount)
	if len(parts) == SplitPartsCount {
		return parts[0], parts[1]
	}
	return operation, "unknown"
}

// RecordOperation implements the Recorder interface.
// For database operations, use format "operation:table" (e.g., "db_query:notes").
// Supported operations: "db_query", "db_insert", "db_update", "db_delete",
// "novelty_check", "summary", "history", "image_cache".
// Status values: "success", "error"
func (m *DatastoreMetrics) RecordOperation(operation, status string) {
	op, table := parseTableFromOperation(operation)

	switch op {
	case OpDbQuery, OpDbInsert, OpDbUpdate, OpDbDelete:
		m.dbOperationsTotal.WithLabelValues(op, table, status).Inc()
	case OpNoveltyCheck:
		m.noveltyQueriesTotal.WithLabelValues(status).Inc()
	case OpSummary:
		m.summaryQueriesTotal.WithLabelValues(status).Inc()
	case OpHistory:
		m.historyOperationsTotal.WithLabelValues(LabelGet, status).Inc()
	case OpImageCache:
		m.imageCacheOperationsTotal.WithLabelValues(LabelGet, status).Inc()
	}
}

// RecordDuration implements the Recorder interface.
// For database operations, use format "operation:table" (e.g., "db_query:notes")
func (m *DatastoreMetrics) RecordDuration(operation string, seconds float64) {
	op, table := parseTableFromOperation(operation)

	switch op {
	case OpDbQuery, OpDbInsert, OpDbUpdate, OpDbDelete:
		m.dbOperationDuration.WithLabelValues(op, table).Observe(seconds)
	case OpSummary:
		m.summaryQueryDuration.WithLabelValues(LabelQuery).Observe(seconds)
	}
}

// RecordError implements the Recorder interface.
// For database operations, use format "operation:table" (e.g., "db_query:notes")
func (m *DatastoreMetrics) RecordError(operation, errorType string) {
	op, table := parseTableFromOperation(operation)

	switch op {
	case OpDbQuery, OpDbInsert, OpDbUpdate, OpDbDelete:
		m.dbOperationErrorsTotal.WithLabelValues(op, table, errorType).Inc()
		m.dbOperationsTotal.WithLabelValues(op, table, LabelError).Inc()
	case OpNoveltyCheck:
		m.noveltyQueriesTotal.WithLabelValues(LabelError).Inc()
	case OpSummary:
		m.summaryQueriesTotal.WithLabelValues(LabelError).Inc()
	case OpHistory:
		m.historyOperationsTotal.WithLabelValues(LabelGet, LabelError).Inc()
	case OpImageCache:
		m.imageCacheOperationsTotal.WithLabelValues(LabelGet, LabelError).Inc()
	}
}
