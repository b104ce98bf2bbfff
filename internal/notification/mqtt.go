package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/mqtt"
	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
)

// MQTTProvider publishes the notification document as JSON to a broker
// topic. The connection is established lazily on the first send and
// recovered by the client's reconnect loop afterwards.
type MQTTProvider struct {
	name    string
	enabled bool
	broker  string
	topic   string
	client  mqtt.Client
	logger  *slog.Logger
}

// NewMQTTProvider builds the MQTT provider from settings. The metrics
// argument may be nil.
func NewMQTTProvider(settings *conf.Settings, m *metrics.MQTTMetrics, logger *slog.Logger) (*MQTTProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &MQTTProvider{
		name:    "mqtt",
		enabled: settings.MQTT.Enabled,
		broker:  settings.MQTT.Broker,
		topic:   settings.MQTT.Topic,
		logger:  logger.With("provider", "mqtt"),
	}
	if !p.enabled {
		return p, nil
	}

	client, err := mqtt.NewClient(settings, m)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

func (p *MQTTProvider) GetName() string        { return p.name }
func (p *MQTTProvider) IsEnabled() bool        { return p.enabled }
func (p *MQTTProvider) SupportsType(Type) bool { return true }

// ValidateConfig requires a broker and a topic when the provider is
// enabled.
func (p *MQTTProvider) ValidateConfig() error {
	if !p.enabled {
		return nil
	}
	if p.broker == "" {
		return errors.Newf("MQTT enabled but no broker configured").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if p.topic == "" {
		return errors.Newf("MQTT enabled but no topic configured").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// DestinationKey serializes publishes per broker and topic.
func (p *MQTTProvider) DestinationKey(*Notification) string {
	return p.broker + "/" + p.topic
}

// Send publishes the notification JSON. Broker unavailability is a
// transient failure; the dispatcher's backoff gives the reconnect loop
// time to recover.
func (p *MQTTProvider) Send(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryDeliveryPermanent).
			Build()
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return errors.New(err).
				Component("notification").
				Category(errors.CategoryDeliveryTransient).
				Build()
		}
	}

	if err := p.client.Publish(ctx, p.topic, string(payload)); err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryDeliveryTransient).
			Build()
	}

	p.logger.Debug("notification published",
		"notification_id", n.ID,
		"type", n.Type,
		"topic", p.topic)
	return nil
}

// Close disconnects from the broker.
func (p *MQTTProvider) Close() error {
	if p.client != nil {
		p.client.Disconnect()
	}
	return nil
}
