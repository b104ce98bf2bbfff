// Package metrics provides custom Prometheus metrics for novelty classification.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NoveltyMetrics contains all Prometheus metrics related to detection novelty
// classification and the notification pipeline decisions built on it.
type NoveltyMetrics struct {
	registry *prometheus.Registry

	// Classification metrics
	classificationsTotal   *prometheus.CounterVec
	classificationDuration prometheus.Histogram
	classificationErrors   *prometheus.CounterVec
	flagsRaisedTotal       *prometheus.CounterVec

	// Pipeline decision metrics
	suppressionsTotal  *prometheus.CounterVec
	notificationsTotal prometheus.Counter

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewNoveltyMetrics creates and registers new novelty metrics
func NewNoveltyMetrics(registry *prometheus.Registry) (*NoveltyMetrics, error) {
	m := &NoveltyMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize novelty metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register novelty metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *NoveltyMetrics) initMetrics() error {
	m.classificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelty_classifications_total",
			Help: "Total number of detections classified for novelty",
		},
		[]string{"status"}, // status: success, error, skipped
	)

	m.classificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "novelty_classification_duration_seconds",
			Help:    "Time taken to classify a detection for novelty",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12), // 1ms to ~4s
		},
	)

	m.classificationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelty_classification_errors_total",
			Help: "Total number of classification errors by type",
		},
		[]string{"error_type"}, // error_type: store_unavailable, validation
	)

	m.flagsRaisedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelty_flags_raised_total",
			Help: "Total number of novelty flags raised by granularity",
		},
		[]string{"flag"}, // flag: first_ever, first_of_year, first_of_season
	)

	m.suppressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novelty_notifications_suppressed_total",
			Help: "Total number of novelty notifications suppressed by reason",
		},
		[]string{"reason"}, // reason: below_confidence, cooldown, excluded, rate_limit
	)

	m.notificationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "novelty_notifications_total",
			Help: "Total number of novelty notifications emitted",
		},
	)

	m.collectors = []prometheus.Collector{
		m.classificationsTotal,
		m.classificationDuration,
		m.classificationErrors,
		m.flagsRaisedTotal,
		m.suppressionsTotal,
		m.notificationsTotal,
	}

	return nil
}

// Describe implements the Collector interface
func (m *NoveltyMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *NoveltyMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordClassification records a completed novelty classification
func (m *NoveltyMetrics) RecordClassification(status string, duration float64) {
	m.classificationsTotal.WithLabelValues(status).Inc()
	m.classificationDuration.Observe(duration)
}

// RecordClassificationError records a classification error by type
func (m *NoveltyMetrics) RecordClassificationError(errorType string) {
	m.classificationErrors.WithLabelValues(errorType).Inc()
}

// RecordFlagRaised records a novelty flag raised for a detection
func (m *NoveltyMetrics) RecordFlagRaised(flag string) {
	m.flagsRaisedTotal.WithLabelValues(flag).Inc()
}

// RecordSuppression records a suppressed novelty notification
func (m *NoveltyMetrics) RecordSuppression(reason string) {
	m.suppressionsTotal.WithLabelValues(reason).Inc()
}

// IncrementNotifications increments the emitted notification counter
func (m *NoveltyMetrics) IncrementNotifications() {
	m.notificationsTotal.Inc()
}
