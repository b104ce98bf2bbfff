// Package notification renders novelty events and summary reports into
// Discord-style embeds and delivers them through configured providers
// (webhook, shoutrrr, MQTT) with per-destination rate limiting and
// retry on transient failures.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type represents the kind of notification being dispatched.
type Type string

const (
	TypeDetection Type = "detection"
	TypeSummary   Type = "summary"
	TypeError     Type = "error"
	TypeTest      Type = "test"
	TypeSystem    Type = "system"
)

// Priority indicates the urgency of a notification.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Notification is a single message to deliver. The embed carries the
// rich rendering for providers that support it; Title and Message are
// the plain-text fallback for providers that do not.
type Notification struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embed     *Embed         `json:"embed,omitempty"`

	// Destination overrides the provider's default target, currently
	// honored by the webhook provider for per-job summary URLs. Not
	// part of the wire document.
	Destination string `json:"-"`
}

// NewNotification creates a notification with a generated ID and the
// current timestamp.
func NewNotification(notifType Type, priority Priority, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      notifType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithComponent sets the component that generated the notification.
func (n *Notification) WithComponent(component string) *Notification {
	n.Component = component
	return n
}

// WithMetadata adds a metadata entry to the notification.
func (n *Notification) WithMetadata(key string, value any) *Notification {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
	return n
}

// WithEmbed attaches the rendered embed document.
func (n *Notification) WithEmbed(embed *Embed) *Notification {
	n.Embed = embed
	return n
}

// WithDestination routes the notification to a specific destination URL.
func (n *Notification) WithDestination(url string) *Notification {
	n.Destination = url
	return n
}
