package notification

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/httpclient"
	"github.com/tphakala/birdnet-notifier/internal/privacy"
)

// maxErrorBody caps how much of an error response is read for logging
// and retry-after extraction.
const maxErrorBody = 1024

// WebhookProvider posts notifications as Discord-compatible embed
// messages. Each notification resolves to one destination URL: its own
// override when set, the configured default otherwise.
type WebhookProvider struct {
	name       string
	enabled    bool
	defaultURL string
	username   string
	timeout    time.Duration
	client     *httpclient.Client
	logger     *slog.Logger
}

// NewWebhookProvider builds the webhook provider from settings. The
// provider is enabled when a default URL or at least one per-job
// override is configured.
func NewWebhookProvider(settings *conf.Settings, logger *slog.Logger) *WebhookProvider {
	timeout := time.Duration(settings.Webhook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(conf.DefaultWebhookTimeout) * time.Second
	}

	enabled := settings.Webhook.DefaultURL != ""
	if !enabled {
		for i := range settings.Summaries {
			if settings.Summaries[i].WebhookURL != "" {
				enabled = true
				break
			}
		}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookProvider{
		name:       "webhook",
		enabled:    enabled,
		defaultURL: settings.Webhook.DefaultURL,
		username:   settings.Main.Name,
		timeout:    timeout,
		client:     httpclient.New(&httpclient.Config{Timeout: timeout}),
		logger:     logger.With("provider", "webhook"),
	}
}

func (w *WebhookProvider) GetName() string        { return w.name }
func (w *WebhookProvider) IsEnabled() bool        { return w.enabled }
func (w *WebhookProvider) SupportsType(Type) bool { return true }

// ValidateConfig checks that the default URL, when present, is a valid
// http or https URL. Per-job overrides are validated at config load.
func (w *WebhookProvider) ValidateConfig() error {
	if !w.enabled || w.defaultURL == "" {
		return nil
	}
	parsed, err := url.Parse(w.defaultURL)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.Newf("webhook URL must use http or https, got %q", parsed.Scheme).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// DestinationKey serializes deliveries per resolved URL so two jobs
// sharing a webhook never post concurrently.
func (w *WebhookProvider) DestinationKey(n *Notification) string {
	return w.resolveURL(n)
}

// Send posts the notification to its destination. The error category
// tells the dispatcher whether to retry: 5xx, 429, timeouts and
// connection errors are transient, other 4xx are permanent.
func (w *WebhookProvider) Send(ctx context.Context, n *Notification) error {
	target := w.resolveURL(n)
	if target == "" {
		return errors.Newf("no webhook URL configured").
			Component("notification").
			Category(errors.CategoryDeliveryPermanent).
			Build()
	}

	msg := webhookMessage{Username: w.username}
	if n.Embed != nil {
		msg.Embeds = []Embed{*n.Embed}
	} else {
		msg.Content = strings.TrimSpace(n.Title + "\n" + n.Message)
	}

	resp, err := w.client.Post(ctx, target, "application/json", msg)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryDeliveryTransient).
			NetworkContext(target, w.timeout).
			Build()
	}
	defer drainAndClose(resp)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.logger.Debug("webhook delivered",
			"notification_id", n.ID,
			"type", n.Type,
			"destination", scrubbedURL(target),
			"status", resp.StatusCode)
		return nil
	}

	body := readLimited(resp.Body, maxErrorBody)

	if resp.StatusCode == http.StatusTooManyRequests {
		builder := errors.Newf("webhook rate limited: %s", strings.TrimSpace(string(body))).
			Component("notification").
			Category(errors.CategoryDeliveryTransient).
			Context("status_code", resp.StatusCode).
			NetworkContext(target, w.timeout)
		if wait, ok := retryAfterFrom(resp, body); ok {
			builder = builder.Context("retry_after_ms", wait.Milliseconds())
		}
		return builder.Build()
	}

	category := errors.CategoryDeliveryTransient
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		category = errors.CategoryDeliveryPermanent
	}
	return errors.Newf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))).
		Component("notification").
		Category(category).
		Context("status_code", resp.StatusCode).
		NetworkContext(target, w.timeout).
		Build()
}

func (w *WebhookProvider) resolveURL(n *Notification) string {
	if n.Destination != "" {
		return n.Destination
	}
	return w.defaultURL
}

// retryAfterFrom extracts a retry-after hint from a 429 response. The
// Retry-After header takes precedence, in seconds or HTTP-date form;
// Discord-style bodies carry the wait in a retry_after JSON field.
func retryAfterFrom(resp *http.Response, body []byte) (time.Duration, bool) {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
		if at, err := http.ParseTime(header); err == nil {
			if wait := time.Until(at); wait > 0 {
				return wait, true
			}
		}
	}
	if obj, err := jason.NewObjectFromBytes(body); err == nil {
		if secs, err := obj.GetFloat64("retry_after"); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, false
}

// scrubbedURL is used for log fields and metric labels. The display
// form keeps scheme and host so operators can tell destinations apart,
// while the token-bearing path and userinfo are dropped.
func scrubbedURL(raw string) string {
	return privacy.RedactURL(raw)
}

// drainAndClose consumes the rest of a response body so the connection
// can be reused, then closes it.
func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// readLimited reads at most limit bytes from r.
func readLimited(r io.Reader, limit int64) []byte {
	body, _ := io.ReadAll(io.LimitReader(r, limit))
	return body
}
