// seasons.go: season boundary resolution for first-of-season tracking.
package novelty

import (
	"time"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/errors"
)

// seasonStart represents the start date for a season.
type seasonStart struct {
	name  string
	month time.Month
	day   int
}

// Seasons resolves which season a point in time belongs to and when that
// season began. A season runs from its start date up to the next season's
// start; a date before the year's first boundary belongs to the season that
// started late in the previous year.
type Seasons struct {
	starts []seasonStart
}

// DefaultSeasons returns the meteorological Northern Hemisphere seasons:
// spring March 1, summer June 1, fall September 1, winter December 1.
func DefaultSeasons() *Seasons {
	return &Seasons{starts: []seasonStart{
		{name: "spring", month: time.March, day: 1},
		{name: "summer", month: time.June, day: 1},
		{name: "fall", month: time.September, day: 1},
		{name: "winter", month: time.December, day: 1},
	}}
}

// NewSeasons builds a season table from the default boundaries with any
// per-season overrides applied. Override names not matching a default season
// are rejected, as are invalid dates and two seasons sharing a start date.
func NewSeasons(overrides map[string]conf.SeasonStart) (*Seasons, error) {
	s := DefaultSeasons()

	for name, override := range overrides {
		idx := -1
		for i := range s.starts {
			if s.starts[i].name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errors.Newf("unknown season name: %s", name).
				Component("novelty").
				Category(errors.CategoryConfiguration).
				Context("season", name).
				Build()
		}
		if override.Month < 1 || override.Month > 12 || override.Day < 1 || override.Day > 31 {
			return nil, errors.Newf("invalid season start %02d-%02d for %s", override.Month, override.Day, name).
				Component("novelty").
				Category(errors.CategoryConfiguration).
				Context("season", name).
				Build()
		}
		s.starts[idx].month = time.Month(override.Month)
		s.starts[idx].day = override.Day
	}

	for i := range s.starts {
		for j := i + 1; j < len(s.starts); j++ {
			if s.starts[i].month == s.starts[j].month && s.starts[i].day == s.starts[j].day {
				return nil, errors.Newf("seasons %s and %s share start date %02d-%02d",
					s.starts[i].name, s.starts[j].name, int(s.starts[i].month), s.starts[i].day).
					Component("novelty").
					Category(errors.CategoryConfiguration).
					Build()
			}
		}
	}

	return s, nil
}

// Current returns the name of the season containing t and the moment that
// season started. The winter season wraps the year boundary: a January date
// belongs to the winter that started the previous December.
func (s *Seasons) Current(t time.Time) (string, time.Time) {
	var (
		name  string
		start time.Time
	)

	for i := range s.starts {
		candidate := time.Date(t.Year(), s.starts[i].month, s.starts[i].day, 0, 0, 0, 0, t.Location())
		if candidate.After(t) {
			// This season has not started yet this year; its most recent
			// occurrence was last year.
			candidate = time.Date(t.Year()-1, s.starts[i].month, s.starts[i].day, 0, 0, 0, 0, t.Location())
		}
		if name == "" || candidate.After(start) {
			name = s.starts[i].name
			start = candidate
		}
	}

	return name, start
}
