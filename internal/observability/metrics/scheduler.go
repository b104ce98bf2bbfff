// Package metrics provides custom Prometheus metrics for summary job scheduling.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics contains all Prometheus metrics related to summary job scheduling.
type SchedulerMetrics struct {
	registry *prometheus.Registry

	// Job execution metrics
	jobRunsTotal   *prometheus.CounterVec
	jobRunDuration *prometheus.HistogramVec

	// Catch-up metrics
	catchUpRunsTotal *prometheus.CounterVec

	// State persistence metrics
	statePersistTotal     *prometheus.CounterVec
	statePersistConflicts prometheus.Counter

	// Schedule tracking
	activeJobsGauge    prometheus.Gauge
	nextFireTimestamp  *prometheus.GaugeVec
	lastFiredTimestamp *prometheus.GaugeVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewSchedulerMetrics creates and registers new scheduler metrics
func NewSchedulerMetrics(registry *prometheus.Registry) (*SchedulerMetrics, error) {
	m := &SchedulerMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register scheduler metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *SchedulerMetrics) initMetrics() error {
	m.jobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of summary job executions",
		},
		[]string{"job", "status"}, // status: success, error
	)

	m.jobRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_run_duration_seconds",
			Help:    "Time taken for summary job executions",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~40s
		},
		[]string{"job"},
	)

	m.catchUpRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_catch_up_runs_total",
			Help: "Total number of missed occurrences executed after restart",
		},
		[]string{"job"},
	)

	m.statePersistTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_state_persist_total",
			Help: "Total number of schedule state persistence attempts",
		},
		[]string{"status"}, // status: success, error
	)

	m.statePersistConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_state_persist_conflicts_total",
			Help: "Total number of schedule state writes abandoned to a concurrent writer",
		},
	)

	m.activeJobsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_active_jobs",
			Help: "Number of enabled summary jobs",
		},
	)

	m.nextFireTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_job_next_fire_timestamp_seconds",
			Help: "Timestamp of the next scheduled occurrence by job",
		},
		[]string{"job"},
	)

	m.lastFiredTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_job_last_fired_timestamp_seconds",
			Help: "Timestamp of the last successfully completed occurrence by job",
		},
		[]string{"job"},
	)

	m.collectors = []prometheus.Collector{
		m.jobRunsTotal,
		m.jobRunDuration,
		m.catchUpRunsTotal,
		m.statePersistTotal,
		m.statePersistConflicts,
		m.activeJobsGauge,
		m.nextFireTimestamp,
		m.lastFiredTimestamp,
	}

	return nil
}

// Describe implements the Collector interface
func (m *SchedulerMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *SchedulerMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordJobRun records a summary job execution with its duration
func (m *SchedulerMetrics) RecordJobRun(job, status string, duration float64) {
	m.jobRunsTotal.WithLabelValues(job, status).Inc()
	m.jobRunDuration.WithLabelValues(job).Observe(duration)
}

// RecordCatchUpRun records a missed occurrence executed after restart
func (m *SchedulerMetrics) RecordCatchUpRun(job string) {
	m.catchUpRunsTotal.WithLabelValues(job).Inc()
}

// RecordStatePersist records a schedule state persistence attempt
func (m *SchedulerMetrics) RecordStatePersist(status string) {
	m.statePersistTotal.WithLabelValues(status).Inc()
}

// RecordStatePersistConflict records a state write abandoned to a concurrent writer
func (m *SchedulerMetrics) RecordStatePersistConflict() {
	m.statePersistConflicts.Inc()
}

// SetActiveJobs updates the number of enabled summary jobs
func (m *SchedulerMetrics) SetActiveJobs(count int) {
	m.activeJobsGauge.Set(float64(count))
}

// SetNextFireTime updates the next scheduled occurrence for a job
func (m *SchedulerMetrics) SetNextFireTime(job string, t time.Time) {
	m.nextFireTimestamp.WithLabelValues(job).Set(float64(t.Unix()))
}

// SetLastFiredTime updates the last successfully completed occurrence for a job
func (m *SchedulerMetrics) SetLastFiredTime(job string, t time.Time) {
	m.lastFiredTimestamp.WithLabelValues(job).Set(float64(t.Unix()))
}
