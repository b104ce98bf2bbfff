package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	internalClient  pahomqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
	stopOnce        sync.Once
	metrics         *metrics.MQTTMetrics
	logger          *slog.Logger
}

// NewClient creates an MQTT client from application settings. The
// metrics argument may be nil.
func NewClient(settings *conf.Settings, m *metrics.MQTTMetrics) (Client, error) {
	cfg := DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.ClientID = settings.Main.Name
	if cfg.ClientID == "" {
		cfg.ClientID = "birdnet-notifier"
	}
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.Topic = settings.MQTT.Topic
	cfg.Retain = settings.MQTT.Retain

	logger := logging.ForService("mqtt")
	if logger == nil {
		logger = slog.Default().With("service", "mqtt")
	}

	return &client{
		config:        cfg,
		reconnectStop: make(chan struct{}),
		metrics:       m,
		logger:        logger,
	}, nil
}

// Connect resolves the broker host and establishes the connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return fmt.Errorf("connection attempt too recent, last attempt was %v ago", since)
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	// Resolve hostnames up front so a dead DNS name fails fast with a
	// useful error instead of a generic connect timeout.
	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return fmt.Errorf("failed to resolve broker host %s: %w", host, err)
		}
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = pahomqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection error: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
	return nil
}

// Publish sends the payload to the topic at QoS 0, honoring the
// configured retain flag.
func (c *client) Publish(ctx context.Context, topic, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}

	var timer *metrics.PublishTimer
	if c.metrics != nil {
		timer = c.metrics.StartPublishTimer()
	}

	token := c.internalClient.Publish(topic, 0, c.config.Retain, payload)
	if !token.WaitTimeout(c.config.PublishTimeout) {
		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		return fmt.Errorf("publish timeout on topic %s", topic)
	}
	if err := token.Error(); err != nil {
		if c.metrics != nil {
			c.metrics.IncrementErrors()
		}
		return err
	}

	if timer != nil {
		timer.ObserveDuration()
	}
	if c.metrics != nil {
		c.metrics.IncrementMessagesDelivered()
		c.metrics.ObserveMessageSize(float64(len(payload)))
	}
	c.logger.Debug("published message", "topic", topic, "bytes", len(payload))
	return nil
}

// IsConnected reports whether the underlying client holds a connection.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection and stops any pending reconnects.
func (c *client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.reconnectStop)
	})
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		if c.metrics != nil {
			c.metrics.UpdateConnectionStatus(false)
		}
	}
}

func (c *client) onConnect(pahomqtt.Client) {
	c.logger.Info("connected to MQTT broker", "broker", c.config.Broker)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(true)
	}
}

func (c *client) onConnectionLost(_ pahomqtt.Client, err error) {
	c.logger.Warn("connection to MQTT broker lost", "broker", c.config.Broker, "error", err)
	if c.metrics != nil {
		c.metrics.UpdateConnectionStatus(false)
		c.metrics.IncrementErrors()
	}
	c.startReconnectTimer()
}

func (c *client) startReconnectTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectTimer = time.AfterFunc(c.config.ReconnectDelay, func() {
		select {
		case <-c.reconnectStop:
		default:
			c.reconnectWithBackoff()
		}
	})
}

// reconnectWithBackoff retries the connection with exponential backoff
// until it succeeds or Disconnect is called.
func (c *client) reconnectWithBackoff() {
	backoff := time.Second
	const maxBackoff = 5 * time.Minute

	for {
		if c.metrics != nil {
			c.metrics.IncrementReconnectAttempts()
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			c.logger.Info("reconnected to MQTT broker", "broker", c.config.Broker)
			return
		}

		c.logger.Warn("reconnect failed", "broker", c.config.Broker, "error", err, "retry_in", backoff)

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-c.reconnectStop:
			return
		}
	}
}
