package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
)

const (
	// maxDeliveryAttempts bounds how often a transient failure is
	// retried before the notification is abandoned.
	maxDeliveryAttempts = 3

	// defaultDestinationRate paces deliveries to a single destination.
	// Discord allows roughly thirty webhook requests per minute, so one
	// message every two seconds with a small burst stays well inside.
	defaultDestinationInterval = 2 * time.Second
	defaultDestinationBurst    = 5
)

// backoffSchedule holds the wait after the nth failed attempt. A
// retry-after hint from the destination overrides the scheduled wait.
var backoffSchedule = []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}

// destination carries the per-destination delivery state: a mutex so at
// most one send to the destination is in flight, and a token bucket
// pacing successive sends.
type destination struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// Dispatcher fans notifications out to the registered providers. Each
// provider delivery runs its own retry loop; deliveries to the same
// destination are serialized and rate limited, distinct destinations
// proceed independently.
type Dispatcher struct {
	providers []Provider
	metrics   *metrics.NotificationMetrics
	logger    *slog.Logger

	mu           sync.Mutex
	destinations map[string]*destination
	active       int
}

// NewDispatcher registers the given providers, dropping any whose
// configuration fails validation. The metrics argument may be nil.
func NewDispatcher(providers []Provider, m *metrics.NotificationMetrics) *Dispatcher {
	logger := logging.ForService("notification")
	if logger == nil {
		logger = slog.Default().With("service", "notification")
	}

	d := &Dispatcher{
		metrics:      m,
		logger:       logger,
		destinations: make(map[string]*destination),
	}
	for _, p := range providers {
		if err := p.ValidateConfig(); err != nil {
			logger.Error("provider configuration invalid, skipping",
				"provider", p.GetName(), "error", err)
			continue
		}
		d.providers = append(d.providers, p)
	}
	return d
}

// Providers returns the names of the registered providers that are
// enabled.
func (d *Dispatcher) Providers() []string {
	names := make([]string, 0, len(d.providers))
	for _, p := range d.providers {
		if p.IsEnabled() {
			names = append(names, p.GetName())
		}
	}
	return names
}

// Dispatch delivers the notification through every enabled provider
// that supports its type. Provider deliveries run concurrently; the
// call returns once all of them finished. An error is returned only
// when every eligible delivery failed, so one dead provider does not
// hide a successful delivery elsewhere.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) error {
	if d.metrics != nil {
		d.metrics.IncrementDispatchTotal()
	}

	var eligible []Provider
	for _, p := range d.providers {
		if p.IsEnabled() && p.SupportsType(n.Type) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		d.logger.Warn("no provider accepts notification",
			"notification_id", n.ID, "type", n.Type)
		return errors.Newf("no enabled provider accepts type %q", n.Type).
			Component("notification").
			Category(errors.CategoryDeliveryPermanent).
			Build()
	}

	var (
		wg        sync.WaitGroup
		resultMu  sync.Mutex
		failures  []error
		delivered int
	)
	for _, p := range eligible {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			err := d.deliver(ctx, p, n)
			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			delivered++
		}(p)
	}
	wg.Wait()

	for _, err := range failures {
		d.logger.Error("delivery failed",
			"notification_id", n.ID, "type", n.Type, "error", err)
	}
	if delivered == 0 {
		return errors.Join(failures...)
	}
	return nil
}

// deliver runs the retry loop for one provider. Transient failures wait
// out the backoff schedule, or the destination's retry-after hint when
// it gave one; permanent failures and context cancellation stop
// immediately. A delivery in progress during shutdown finishes its
// current attempt but is not retried.
func (d *Dispatcher) deliver(ctx context.Context, p Provider, n *Notification) error {
	key := destinationKey(p, n)
	dest := d.destinationFor(key)
	dest.mu.Lock()
	defer dest.mu.Unlock()

	d.trackActive(1)
	defer d.trackActive(-1)

	if err := d.waitForSlot(ctx, dest, key); err != nil {
		return err
	}

	provider := p.GetName()
	var timer *metrics.DeliveryTimer
	if d.metrics != nil {
		timer = d.metrics.StartDeliveryTimer()
	}

	var lastErr error
	for attempt := 1; attempt <= maxDeliveryAttempts; attempt++ {
		if attempt > 1 && d.metrics != nil {
			d.metrics.RecordRetryAttempt(provider)
		}

		lastErr = p.Send(ctx, n)
		if lastErr == nil {
			if attempt > 1 && d.metrics != nil {
				d.metrics.RecordRetrySuccess(provider)
			}
			if timer != nil {
				timer.ObserveDuration(provider, string(n.Type), "success")
			}
			return nil
		}

		if errors.IsDeliveryPermanent(lastErr) {
			d.recordFailure(timer, provider, n, "permanent")
			return lastErr
		}
		if errors.Is(lastErr, context.DeadlineExceeded) && d.metrics != nil {
			d.metrics.RecordTimeout(provider)
		}
		if attempt == maxDeliveryAttempts {
			break
		}

		wait := backoffSchedule[attempt-1]
		if hint, ok := retryAfterHint(lastErr); ok {
			wait = hint
		}
		d.logger.Debug("delivery attempt failed, retrying",
			"provider", provider,
			"notification_id", n.ID,
			"attempt", attempt,
			"wait", wait,
			"error", lastErr)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			// Shutdown or caller timeout: the attempt that already ran
			// stands, but no further ones are made.
			d.recordFailure(timer, provider, n, "canceled")
			return errors.New(ctx.Err()).
				Component("notification").
				Category(errors.CategoryDeliveryTransient).
				Build()
		}
	}

	d.recordFailure(timer, provider, n, "exhausted")
	return lastErr
}

// waitForSlot blocks until the destination's token bucket admits the
// delivery or the context is canceled.
func (d *Dispatcher) waitForSlot(ctx context.Context, dest *destination, key string) error {
	if dest.limiter.Allow() {
		return nil
	}
	if d.metrics != nil {
		// Webhook destination keys are URLs that may carry tokens,
		// scrub before they become metric labels.
		d.metrics.RecordRateLimitWait(scrubbedURL(key))
	}
	if err := dest.limiter.Wait(ctx); err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryDeliveryTransient).
			Build()
	}
	return nil
}

func (d *Dispatcher) destinationFor(key string) *destination {
	d.mu.Lock()
	defer d.mu.Unlock()
	dest, ok := d.destinations[key]
	if !ok {
		dest = &destination{
			limiter: rate.NewLimiter(rate.Every(defaultDestinationInterval), defaultDestinationBurst),
		}
		d.destinations[key] = dest
	}
	return dest
}

func (d *Dispatcher) trackActive(delta int) {
	d.mu.Lock()
	d.active += delta
	active := d.active
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.SetDispatchActive(active)
	}
}

func (d *Dispatcher) recordFailure(timer *metrics.DeliveryTimer, provider string, n *Notification, status string) {
	if timer != nil {
		timer.ObserveDuration(provider, string(n.Type), status)
	}
	if d.metrics != nil {
		d.metrics.RecordDeliveryError(provider, string(n.Type), status)
	}
}

// Close shuts down providers that hold external connections.
func (d *Dispatcher) Close() {
	for _, p := range d.providers {
		if closer, ok := p.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				d.logger.Warn("provider close failed", "provider", p.GetName(), "error", err)
			}
		}
	}
}

// destinationKey resolves the serialization key for a provider and
// notification pair.
func destinationKey(p Provider, n *Notification) string {
	if keyer, ok := p.(destinationKeyer); ok {
		if key := keyer.DestinationKey(n); key != "" {
			return key
		}
	}
	return p.GetName()
}

// retryAfterHint extracts the wait a rate-limited destination asked
// for, attached by the provider as retry_after_ms error context.
func retryAfterHint(err error) (time.Duration, bool) {
	var enhancedErr *errors.EnhancedError
	if !errors.As(err, &enhancedErr) {
		return 0, false
	}
	ms, ok := enhancedErr.Context["retry_after_ms"].(int64)
	if !ok || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
