package notification

import "context"

// Provider defines an external delivery backend. Implementations must
// be safe for concurrent use; the dispatcher serializes sends per
// destination, not per provider.
type Provider interface {
	// GetName returns the provider name used in logs and metrics.
	GetName() string

	// ValidateConfig checks the provider configuration. Called once
	// at startup; a provider that fails validation is not registered.
	ValidateConfig() error

	// Send delivers the notification. Errors carry a transient or
	// permanent delivery category; the dispatcher retries transient
	// failures and gives up on permanent ones.
	Send(ctx context.Context, notification *Notification) error

	// SupportsType reports whether the provider handles the given
	// notification type.
	SupportsType(notifType Type) bool

	// IsEnabled reports whether the provider is active.
	IsEnabled() bool
}

// destinationKeyer is implemented by providers whose deliveries target
// per-notification destinations. The dispatcher serializes and rate
// limits per key; providers without it share one key per provider.
type destinationKeyer interface {
	DestinationKey(n *Notification) string
}
