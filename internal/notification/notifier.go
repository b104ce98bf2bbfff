package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/imageprovider"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/novelty"
	"github.com/tphakala/birdnet-notifier/internal/observability"
	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
	"github.com/tphakala/birdnet-notifier/internal/suncalc"
)

// Notifier renders detections, summaries and test messages and hands
// them to the dispatcher. It is the single entry point the watcher, the
// scheduler and the CLI use to send anything.
type Notifier struct {
	settings   *conf.Settings
	dispatcher *Dispatcher
	images     *imageprovider.BirdImageCache // nil disables thumbnails
	sun        *suncalc.SunCalc              // nil disables sun annotations
	logger     *slog.Logger
}

// NewNotifier builds the provider set from settings and wires the
// dispatcher. The images, sun and metrics arguments may be nil.
func NewNotifier(settings *conf.Settings, images *imageprovider.BirdImageCache, sun *suncalc.SunCalc, m *observability.Metrics) (*Notifier, error) {
	logger := logging.ForService("notification")
	if logger == nil {
		logger = slog.Default().With("service", "notification")
	}

	providerTimeout := time.Duration(conf.DefaultWebhookTimeout) * time.Second

	providers := []Provider{
		NewWebhookProvider(settings, logger),
		NewShoutrrrProvider(&settings.Shoutrrr, providerTimeout),
	}

	mqttProvider, err := NewMQTTProvider(settings, mqttMetricsFrom(m), logger)
	if err != nil {
		return nil, err
	}
	providers = append(providers, mqttProvider)

	return &Notifier{
		settings:   settings,
		dispatcher: NewDispatcher(providers, notificationMetricsFrom(m)),
		images:     images,
		sun:        sun,
		logger:     logger,
	}, nil
}

// Dispatcher exposes the underlying dispatcher, mainly for tests and
// the status API.
func (nt *Notifier) Dispatcher() *Dispatcher {
	return nt.dispatcher
}

// PublishDetection renders and delivers a detection alert.
func (nt *Notifier) PublishDetection(ctx context.Context, result *novelty.Result) error {
	opts := nt.detectionOptions(ctx, result)
	title, message := DetectionText(result, opts)

	priority := PriorityMedium
	if result.IsNovel() {
		priority = PriorityHigh
	}

	n := NewNotification(TypeDetection, priority, title, message).
		WithComponent("novelty").
		WithEmbed(DetectionEmbed(result, opts)).
		WithMetadata("scientific_name", result.Note.ScientificName).
		WithMetadata("confidence", result.Note.Confidence)
	return nt.dispatcher.Dispatch(ctx, n)
}

// PublishSummary renders and delivers a summary report. It satisfies
// the scheduler's publisher contract: a non-nil return means the
// summary could not be delivered anywhere.
func (nt *Notifier) PublishSummary(ctx context.Context, job *conf.SummaryJobSettings, summary *datastore.SummaryData) error {
	lookback := time.Duration(job.LookbackMinutes) * time.Minute

	opts := &SummaryEmbedOptions{NodeName: nt.settings.Main.Name}
	if nt.images != nil && len(summary.TopSpecies) > 0 {
		if img, err := nt.images.Get(ctx, summary.TopSpecies[0].ScientificName); err == nil && img.URL != "" {
			opts.TopImage = &img
		}
	}

	title, message := SummaryText(summary, lookback)
	n := NewNotification(TypeSummary, PriorityMedium, title, message).
		WithComponent("scheduler").
		WithEmbed(SummaryEmbed(summary, lookback, opts)).
		WithMetadata("job", job.Name)
	if job.WebhookURL != "" {
		n = n.WithDestination(job.WebhookURL)
	}
	return nt.dispatcher.Dispatch(ctx, n)
}

// PublishTest delivers a test message through every enabled provider.
func (nt *Notifier) PublishTest(ctx context.Context) error {
	node := nt.settings.Main.Name
	embed := TestEmbed(node)
	n := NewNotification(TypeTest, PriorityLow, embed.Title, embed.Description).
		WithComponent("cli").
		WithEmbed(embed)
	return nt.dispatcher.Dispatch(ctx, n)
}

// PublishError delivers an operational error message, used by the
// daemon to surface repeated failures.
func (nt *Notifier) PublishError(ctx context.Context, title, message string) error {
	n := NewNotification(TypeError, PriorityHigh, title, message).
		WithComponent("daemon").
		WithEmbed(ErrorEmbed(title, message, nt.settings.Main.Name))
	return nt.dispatcher.Dispatch(ctx, n)
}

// PublishSystem delivers a host resource alert from the monitor.
func (nt *Notifier) PublishSystem(ctx context.Context, priority Priority, title, message string) error {
	n := NewNotification(TypeSystem, priority, title, message).
		WithComponent("monitor").
		WithEmbed(SystemEmbed(title, message, nt.settings.Main.Name, priority == PriorityCritical))
	return nt.dispatcher.Dispatch(ctx, n)
}

// Close releases provider connections.
func (nt *Notifier) Close() {
	nt.dispatcher.Close()
}

// detectionOptions gathers the optional rendering context for one
// detection: thumbnail, sun annotation, clock format.
func (nt *Notifier) detectionOptions(ctx context.Context, result *novelty.Result) *DetectionEmbedOptions {
	opts := &DetectionEmbedOptions{
		TimeAs24h: nt.settings.Main.TimeAs24h,
		NodeName:  nt.settings.Main.Name,
	}
	if nt.images != nil {
		img, err := nt.images.Get(ctx, result.Note.ScientificName)
		switch {
		case err != nil:
			nt.logger.Debug("no thumbnail for species",
				"scientific_name", result.Note.ScientificName, "error", err)
		case img.URL != "":
			opts.Image = &img
		}
	}
	if nt.sun != nil {
		opts.SunAnnotation = nt.sun.NearSunEvent(result.Time)
	}
	return opts
}

func notificationMetricsFrom(m *observability.Metrics) *metrics.NotificationMetrics {
	if m == nil {
		return nil
	}
	return m.Notification
}

func mqttMetricsFrom(m *observability.Metrics) *metrics.MQTTMetrics {
	if m == nil {
		return nil
	}
	return m.MQTT
}
