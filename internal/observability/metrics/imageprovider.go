// Package metrics provides custom Prometheus metrics for various components of the notification daemon.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ImageProviderMetrics contains all Prometheus metrics related to the image provider operations.
type ImageProviderMetrics struct {
	CacheSize      prometheus.Gauge
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	StoreLookups   prometheus.Counter
	LookupErrors   prometheus.Counter
	LookupDuration prometheus.Histogram
	registry       *prometheus.Registry
}

// NewImageProviderMetrics creates a new instance of ImageProviderMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewImageProviderMetrics(registry *prometheus.Registry) (*ImageProviderMetrics, error) {
	m := &ImageProviderMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize ImageProvider metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ImageProvider metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for ImageProviderMetrics.
func (m *ImageProviderMetrics) initMetrics() error {
	m.CacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "image_provider_cache_size_entries",
		Help: "Current number of entries in the in-memory image cache.",
	})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_cache_hits_total",
		Help: "Total number of cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_cache_misses_total",
		Help: "Total number of cache misses.",
	})

	m.StoreLookups = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_store_lookups_total",
		Help: "Total number of image lookups against the datastore.",
	})

	m.LookupErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "image_provider_store_lookup_errors_total",
		Help: "Total number of failed datastore image lookups.",
	})

	m.LookupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_provider_store_lookup_duration_seconds",
		Help:    "Duration of datastore image lookups in seconds.",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})

	return nil
}

// SetCacheSize updates the current number of entries in the in-memory cache.
func (m *ImageProviderMetrics) SetCacheSize(entries int) {
	m.CacheSize.Set(float64(entries))
}

// IncrementCacheHits increases the cache hit counter by one.
func (m *ImageProviderMetrics) IncrementCacheHits() {
	m.CacheHits.Inc()
}

// IncrementCacheMisses increases the cache miss counter by one.
func (m *ImageProviderMetrics) IncrementCacheMisses() {
	m.CacheMisses.Inc()
}

// IncrementStoreLookups increases the datastore lookup counter by one.
func (m *ImageProviderMetrics) IncrementStoreLookups() {
	m.StoreLookups.Inc()
}

// IncrementLookupErrors increases the datastore lookup error counter by one.
func (m *ImageProviderMetrics) IncrementLookupErrors() {
	m.LookupErrors.Inc()
}

// ObserveLookupDuration records the duration of a datastore image lookup.
// The duration should be provided in seconds.
func (m *ImageProviderMetrics) ObserveLookupDuration(durationSeconds float64) {
	m.LookupDuration.Observe(durationSeconds)
}

// Collect implements the prometheus.Collector interface.
func (m *ImageProviderMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.CacheSize
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.StoreLookups
	ch <- m.LookupErrors
	ch <- m.LookupDuration
}

// Describe implements the prometheus.Collector interface.
func (m *ImageProviderMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.CacheSize.Desc()
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.StoreLookups.Desc()
	ch <- m.LookupErrors.Desc()
	ch <- m.LookupDuration.Desc()
}
