// Package processor drives detections through the alert pipeline: species
// policy, novelty classification, cooldown and rate limiting, dispatch.
// It also hosts the watcher that tails the detection table in the daemon.
package processor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/novelty"
	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
)

// Suppression reasons attached to outcomes and metrics when a detection
// does not produce an alert.
const (
	ReasonExcluded  = "excluded"
	ReasonNotNovel  = "not_novel"
	ReasonCooldown  = "cooldown"
	ReasonRateLimit = "rate_limit"
)

// Classifier computes the novelty flags for one detection.
type Classifier interface {
	Classify(ctx context.Context, note *datastore.Note) (*novelty.Result, error)
}

// Publisher delivers a classified detection to the configured sinks.
type Publisher interface {
	PublishDetection(ctx context.Context, result *novelty.Result) error
}

// Outcome describes what the pipeline did with one detection.
type Outcome struct {
	Result *novelty.Result
	Sent   bool
	Reason string // why no alert went out, empty when Sent
}

// Processor applies the alert policy around the novelty classifier.
type Processor struct {
	store      datastore.Interface
	classifier Classifier
	publisher  Publisher
	filter     *speciesFilter
	cooldown   *cooldownTracker
	limiter    *rate.Limiter
	metrics    *metrics.NoveltyMetrics
	logger     *slog.Logger
}

// New builds a Processor from the notification policy. A nil metrics
// instance disables metric recording.
func New(settings *conf.Settings, store datastore.Interface, classifier Classifier, publisher Publisher, m *metrics.NoveltyMetrics) *Processor {
	logger := logging.ForService("processor")
	if logger == nil {
		logger = slog.Default().With("service", "processor")
	}

	notify := &settings.Notify
	var limiter *rate.Limiter
	if notify.RateLimit.MaxPerHour > 0 {
		burst := notify.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Hour/time.Duration(notify.RateLimit.MaxPerHour)), burst)
	}

	return &Processor{
		store:      store,
		classifier: classifier,
		publisher:  publisher,
		filter:     newSpeciesFilter(notify.Whitelist, notify.Blacklist),
		cooldown:   newCooldownTracker(time.Duration(notify.CooldownMinutes)*time.Minute, store, logger),
		limiter:    limiter,
		metrics:    m,
		logger:     logger,
	}
}

// Restore warms the cooldown tracker from persisted notification history.
// Call once before processing; a failure leaves cooldowns starting cold,
// which risks one duplicate alert per species, not a crash.
func (p *Processor) Restore(ctx context.Context) error {
	return p.cooldown.restore(ctx)
}

// Process runs one detection through the pipeline. A non-nil error means
// the detection could not be evaluated or delivered; a nil error with
// Sent false carries the reason nothing went out.
func (p *Processor) Process(ctx context.Context, note *datastore.Note) (*Outcome, error) {
	if !p.filter.allowed(note) {
		p.recordSuppression(ReasonExcluded)
		p.logger.Debug("detection excluded by species policy",
			"scientific_name", note.ScientificName,
			"common_name", note.CommonName)
		return &Outcome{Reason: ReasonExcluded}, nil
	}

	result, err := p.classifier.Classify(ctx, note)
	if err != nil {
		return nil, err
	}
	if !result.IsNovel() {
		return &Outcome{Result: result, Reason: ReasonNotNovel}, nil
	}

	now := time.Now()
	if !p.cooldown.allowed(note.ScientificName, now) {
		p.recordSuppression(ReasonCooldown)
		p.logger.Info("novelty alert suppressed by cooldown",
			"scientific_name", note.ScientificName,
			"common_name", note.CommonName,
			"cooldown", p.cooldown.window)
		return &Outcome{Result: result, Reason: ReasonCooldown}, nil
	}
	if p.limiter != nil && !p.limiter.Allow() {
		p.recordSuppression(ReasonRateLimit)
		p.logger.Warn("novelty alert suppressed by rate limit",
			"scientific_name", note.ScientificName,
			"common_name", note.CommonName)
		return &Outcome{Result: result, Reason: ReasonRateLimit}, nil
	}

	if err := p.publisher.PublishDetection(ctx, result); err != nil {
		return nil, err
	}
	p.cooldown.markSent(ctx, result, now)
	p.logger.Info("novelty alert sent",
		"scientific_name", note.ScientificName,
		"common_name", note.CommonName,
		"confidence", note.Confidence,
		"flags", result.Flags)
	return &Outcome{Result: result, Sent: true}, nil
}

// Preview evaluates a detection against the full policy chain without
// sending anything, consuming rate-limit quota, or touching cooldown
// state. The outcome reports what Process would have done.
func (p *Processor) Preview(ctx context.Context, note *datastore.Note) (*Outcome, error) {
	if !p.filter.allowed(note) {
		return &Outcome{Reason: ReasonExcluded}, nil
	}

	result, err := p.classifier.Classify(ctx, note)
	if err != nil {
		return nil, err
	}
	if !result.IsNovel() {
		return &Outcome{Result: result, Reason: ReasonNotNovel}, nil
	}

	if !p.cooldown.allowed(note.ScientificName, time.Now()) {
		return &Outcome{Result: result, Reason: ReasonCooldown}, nil
	}
	return &Outcome{Result: result}, nil
}

// ResolveLatest returns the most recent detection row.
func (p *Processor) ResolveLatest(ctx context.Context) (*datastore.Note, error) {
	notes, err := p.store.GetLastDetections(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, errors.Newf("no detections in the database").
			Component("processor").
			Category(errors.CategoryNotFound).
			Build()
	}
	return &notes[0], nil
}

// ResolveID returns one detection row by its ID.
func (p *Processor) ResolveID(ctx context.Context, id uint) (*datastore.Note, error) {
	note, err := p.store.Get(ctx, strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// DecodeNote reads one detection document from r. The document uses the
// detection row's field names; Date, Time, ScientificName and CommonName
// are required.
func DecodeNote(r io.Reader) (*datastore.Note, error) {
	var note datastore.Note
	if err := json.NewDecoder(r).Decode(&note); err != nil {
		return nil, errors.New(err).
			Component("processor").
			Category(errors.CategoryValidation).
			Context("source", "stdin").
			Build()
	}
	if note.ScientificName == "" || note.CommonName == "" {
		return nil, errors.Newf("detection document is missing species names").
			Component("processor").
			Category(errors.CategoryValidation).
			Build()
	}
	if _, err := note.DateTime(); err != nil {
		return nil, errors.New(err).
			Component("processor").
			Category(errors.CategoryValidation).
			Context("date", note.Date).
			Context("time", note.Time).
			Build()
	}
	return &note, nil
}

func (p *Processor) recordSuppression(reason string) {
	if p.metrics != nil {
		p.metrics.RecordSuppression(reason)
	}
}
