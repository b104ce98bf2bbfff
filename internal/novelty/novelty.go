// Package novelty classifies detections against station history: has this
// species been seen before, this calendar year, or this season. Every answer
// comes from the datastore at the detection's own timestamp, so a detection
// never counts as its own prior occurrence and restarts cannot lose state.
package novelty

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
)

// Granularity identifies one novelty scope.
type Granularity string

const (
	// FirstEver marks the first detection of a species in station history.
	FirstEver Granularity = "first_ever"
	// FirstOfYear marks the first detection in the current calendar year.
	FirstOfYear Granularity = "first_of_year"
	// FirstOfSeason marks the first detection in the current season.
	FirstOfSeason Granularity = "first_of_season"
)

// granularityOrder fixes the evaluation and rendering order of flags.
var granularityOrder = []Granularity{FirstEver, FirstOfYear, FirstOfSeason}

// Result is the classification of a single detection. Flags holds the
// granularities with no prior occurrence, in FirstEver, FirstOfYear,
// FirstOfSeason order; an empty set means the detection is not novel.
type Result struct {
	Note   datastore.Note
	Time   time.Time
	Season string
	Flags  []Granularity
}

// IsNovel reports whether at least one novelty flag is set.
func (r *Result) IsNovel() bool {
	return len(r.Flags) > 0
}

// HasFlag reports whether the given granularity flag is set.
func (r *Result) HasFlag(g Granularity) bool {
	for _, f := range r.Flags {
		if f == g {
			return true
		}
	}
	return false
}

// Classifier answers novelty questions for incoming detections using prior
// occurrence queries scoped to all-time, calendar year, or season.
type Classifier struct {
	store         datastore.Interface
	seasons       *Seasons
	minConfidence float64
	firstEver     bool
	firstOfYear   bool
	firstOfSeason bool
	metrics       *metrics.NoveltyMetrics
	logger        *slog.Logger
}

// New creates a Classifier from the notification policy. A nil metrics
// instance disables metric recording.
func New(settings *conf.Settings, store datastore.Interface, m *metrics.NoveltyMetrics) (*Classifier, error) {
	seasons, err := NewSeasons(settings.Seasons)
	if err != nil {
		return nil, err
	}

	logger := logging.ForService("novelty")
	if logger == nil {
		logger = slog.Default().With("service", "novelty")
	}

	return &Classifier{
		store:         store,
		seasons:       seasons,
		minConfidence: settings.Notify.MinConfidence,
		firstEver:     settings.Notify.FirstEver,
		firstOfYear:   settings.Notify.FirstOfYear,
		firstOfSeason: settings.Notify.FirstOfSeason,
		metrics:       m,
		logger:        logger,
	}, nil
}

// Classify evaluates one detection against every enabled granularity. A
// detection below the confidence threshold returns an empty flag set without
// touching the store. A store failure aborts classification with a
// store-unavailable error; "not novel" is never inferred from a failed query.
func (c *Classifier) Classify(ctx context.Context, note *datastore.Note) (*Result, error) {
	start := time.Now()

	ts, err := note.DateTime()
	if err != nil {
		c.recordError("validation", start)
		return nil, errors.New(err).
			Component("novelty").
			Category(errors.CategoryValidation).
			Context("note_id", note.ID).
			Build()
	}

	season, seasonStart := c.seasons.Current(ts)
	result := &Result{Note: *note, Time: ts, Season: season}

	if note.Confidence < c.minConfidence {
		c.logger.Debug("detection below confidence threshold",
			"scientific_name", note.ScientificName,
			"confidence", note.Confidence,
			"min_confidence", c.minConfidence)
		if c.metrics != nil {
			c.metrics.RecordClassification("skipped", time.Since(start).Seconds())
		}
		return result, nil
	}

	for _, g := range granularityOrder {
		var since time.Time
		switch g {
		case FirstEver:
			if !c.firstEver {
				continue
			}
			// zero since means all of history
		case FirstOfYear:
			if !c.firstOfYear {
				continue
			}
			since = time.Date(ts.Year(), time.January, 1, 0, 0, 0, 0, ts.Location())
		case FirstOfSeason:
			if !c.firstOfSeason {
				continue
			}
			since = seasonStart
		}

		seen, err := c.store.HasPriorOccurrence(ctx, note.ScientificName, ts, since)
		if err != nil {
			c.recordError("store_unavailable", start)
			return nil, errors.New(err).
				Component("novelty").
				Category(errors.CategoryStoreUnavailable).
				Context("granularity", string(g)).
				DetectionContext(note.ScientificName, ts).
				Build()
		}
		if !seen {
			result.Flags = append(result.Flags, g)
			if c.metrics != nil {
				c.metrics.RecordFlagRaised(string(g))
			}
		}
	}

	if result.IsNovel() {
		c.logger.Info("novel detection",
			"scientific_name", note.ScientificName,
			"common_name", note.CommonName,
			"flags", flagStrings(result.Flags),
			"season", season)
	}
	if c.metrics != nil {
		c.metrics.RecordClassification("success", time.Since(start).Seconds())
	}
	return result, nil
}

func (c *Classifier) recordError(errorType string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordClassificationError(errorType)
		c.metrics.RecordClassification("error", time.Since(start).Seconds())
	}
}

func flagStrings(flags []Granularity) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, string(f))
	}
	return out
}
