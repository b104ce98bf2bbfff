// Package mqtt publishes notification documents to an MQTT broker so
// home automation systems can react to detections and summaries.
package mqtt

import (
	"context"
	"time"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends a message to the given topic on the MQTT broker.
	Publish(ctx context.Context, topic, payload string) error

	// IsConnected reports whether the client currently holds a broker
	// connection.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker. Safe to
	// call more than once.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // default topic for published notifications
	Retain   bool   // publish messages with the retain flag

	ReconnectCooldown time.Duration // minimum gap between connect attempts
	ReconnectDelay    time.Duration // delay before the first reconnect
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values.
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ReconnectDelay:    time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}
