// Package observability provides metrics and monitoring capabilities for the notification daemon.
// Sentry-related error telemetry is handled in the telemetry package.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry      *prometheus.Registry
	Datastore     *metrics.DatastoreMetrics
	ImageProvider *metrics.ImageProviderMetrics
	Notification  *metrics.NotificationMetrics
	MQTT          *metrics.MQTTMetrics
	Scheduler     *metrics.SchedulerMetrics
	Novelty       *metrics.NoveltyMetrics
	HTTP          *metrics.HTTPMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Datastore metrics: %w", err)
	}

	imageProviderMetrics, err := metrics.NewImageProviderMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ImageProvider metrics: %w", err)
	}

	notificationMetrics, err := metrics.NewNotificationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Notification metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	schedulerMetrics, err := metrics.NewSchedulerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Scheduler metrics: %w", err)
	}

	noveltyMetrics, err := metrics.NewNoveltyMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Novelty metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	m := &Metrics{
		registry:      registry,
		Datastore:     datastoreMetrics,
		ImageProvider: imageProviderMetrics,
		Notification:  notificationMetrics,
		MQTT:          mqttMetrics,
		Scheduler:     schedulerMetrics,
		Novelty:       noveltyMetrics,
		HTTP:          httpMetrics,
	}

	return m, nil
}

// Handler returns the HTTP handler serving the Prometheus exposition format
// for all registered collectors. It is mounted on the API server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", m.Handler())
}
