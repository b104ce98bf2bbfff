package notification

import (
	"context"
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/privacy"
)

// ShoutrrrProvider fans notifications out to shoutrrr service URLs
// (telegram, ntfy, pushover and the rest). One sender covers all URLs.
type ShoutrrrProvider struct {
	name    string
	enabled bool
	urls    []string
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider builds the shoutrrr provider from settings.
func NewShoutrrrProvider(settings *conf.ShoutrrrSettings, timeout time.Duration) *ShoutrrrProvider {
	return &ShoutrrrProvider{
		name:    "shoutrrr",
		enabled: settings.Enabled,
		urls:    slices.Clone(settings.URLs),
		timeout: timeout,
	}
}

func (s *ShoutrrrProvider) GetName() string        { return s.name }
func (s *ShoutrrrProvider) IsEnabled() bool        { return s.enabled }
func (s *ShoutrrrProvider) SupportsType(Type) bool { return true }

// ValidateConfig builds the sender, which parses and validates every
// service URL. Errors are sanitized; service URLs embed credentials.
func (s *ShoutrrrProvider) ValidateConfig() error {
	if !s.enabled {
		return nil
	}
	if len(s.urls) == 0 {
		return errors.Newf("shoutrrr enabled but no service URLs configured").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender, err := shoutrrr.CreateSender(s.urls...)
	if err != nil {
		return errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	s.sender = sender
	if s.timeout > 0 {
		s.sender.Timeout = s.timeout
	}
	// The router logs raw service URLs; keep it quiet.
	s.sender.SetLogger(log.New(io.Discard, "", 0))
	return nil
}

// Send delivers the plain-text rendering to every service URL. Failures
// are transient from the dispatcher's point of view; the router has
// already applied its own per-service timeout.
func (s *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if s.sender == nil {
		return errors.Newf("shoutrrr sender not initialized").
			Component("notification").
			Category(errors.CategoryDeliveryPermanent).
			Build()
	}
	// The router applies its own per-service timeout and cannot be
	// canceled mid-send, so only check before starting.
	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryDeliveryTransient).
			Build()
	}

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	for _, err := range s.sender.Send(n.Message, &params) {
		if err != nil {
			return errors.New(privacy.WrapError(err)).
				Component("notification").
				Category(errors.CategoryDeliveryTransient).
				Build()
		}
	}
	return nil
}
