// Package suncalc provides sunrise and sunset times for the station
// coordinates, plus short annotations like "32 min after sunrise" for
// detection alerts.
package suncalc

import (
	"fmt"
	"sync"
	"time"

	"github.com/sj14/astral/pkg/astral"
)

// SunEventTimes holds the calculated sun event times in local time
type SunEventTimes struct {
	CivilDawn time.Time // Civil dawn in local time
	Sunrise   time.Time // Sunrise in local time
	Sunset    time.Time // Sunset in local time
	CivilDusk time.Time // Civil dusk in local time
}

// cacheEntry holds the cached sun event times for a given date
type cacheEntry struct {
	times SunEventTimes
	date  time.Time
}

// SunCalc handles caching and calculation of sun event times
type SunCalc struct {
	cache    map[string]cacheEntry
	lock     sync.RWMutex
	observer astral.Observer
}

// NewSunCalc creates a new SunCalc instance for the given coordinates.
func NewSunCalc(latitude, longitude float64) *SunCalc {
	return &SunCalc{
		cache:    make(map[string]cacheEntry),
		observer: astral.Observer{Latitude: latitude, Longitude: longitude},
	}
}

// GetSunEventTimes returns the sun event times for a given date, using cache if available
func (sc *SunCalc) GetSunEventTimes(date time.Time) (SunEventTimes, error) {
	dateKey := date.Format("2006-01-02")

	sc.lock.RLock()
	entry, exists := sc.cache[dateKey]
	sc.lock.RUnlock()

	if exists && entry.date.Equal(date) {
		return entry.times, nil
	}

	times, err := sc.calculateSunEventTimes(date)
	if err != nil {
		return SunEventTimes{}, err
	}

	sc.lock.Lock()
	sc.cache[dateKey] = cacheEntry{times: times, date: date}
	sc.lock.Unlock()

	return times, nil
}

// calculateSunEventTimes calculates the sun event times for a given date.
// Astral reports UTC instants, converted here to local wall clock to
// match detection timestamps.
func (sc *SunCalc) calculateSunEventTimes(date time.Time) (SunEventTimes, error) {
	civilDawn, err := astral.Dawn(sc.observer, date, astral.DepressionCivil)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dawn: %w", err)
	}

	sunrise, err := astral.Sunrise(sc.observer, date)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunrise: %w", err)
	}

	sunset, err := astral.Sunset(sc.observer, date)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate sunset: %w", err)
	}

	civilDusk, err := astral.Dusk(sc.observer, date, astral.DepressionCivil)
	if err != nil {
		return SunEventTimes{}, fmt.Errorf("failed to calculate civil dusk: %w", err)
	}

	return SunEventTimes{
		CivilDawn: civilDawn.In(time.Local),
		Sunrise:   sunrise.In(time.Local),
		Sunset:    sunset.In(time.Local),
		CivilDusk: civilDusk.In(time.Local),
	}, nil
}

// GetSunriseTime returns the sunrise time for a given date
func (sc *SunCalc) GetSunriseTime(date time.Time) (time.Time, error) {
	sunEventTimes, err := sc.GetSunEventTimes(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get sun event times: %w", err)
	}
	return sunEventTimes.Sunrise, nil
}

// GetSunsetTime returns the sunset time for a given date
func (sc *SunCalc) GetSunsetTime(date time.Time) (time.Time, error) {
	sunEventTimes, err := sc.GetSunEventTimes(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get sun event times: %w", err)
	}
	return sunEventTimes.Sunset, nil
}

// sunEventWindow bounds how far from sunrise or sunset an annotation
// still reads naturally.
const sunEventWindow = 2 * time.Hour

// NearSunEvent returns a short human readable annotation for the
// instant, like "32 min after sunrise" or "at night". It returns an
// empty string in plain daytime and whenever the events cannot be
// calculated, such as polar day.
func (sc *SunCalc) NearSunEvent(t time.Time) string {
	events, err := sc.GetSunEventTimes(t)
	if err != nil {
		return ""
	}

	if t.Before(events.CivilDawn) || t.After(events.CivilDusk) {
		return "at night"
	}

	sinceRise := t.Sub(events.Sunrise)
	sinceSet := t.Sub(events.Sunset)
	if absDuration(sinceRise) <= absDuration(sinceSet) {
		return describeOffset(sinceRise, "sunrise")
	}
	return describeOffset(sinceSet, "sunset")
}

func describeOffset(offset time.Duration, event string) string {
	if absDuration(offset) > sunEventWindow {
		return ""
	}
	minutes := int(absDuration(offset).Round(time.Minute) / time.Minute)
	switch {
	case minutes == 0:
		return "at " + event
	case offset < 0:
		return fmt.Sprintf("%d min before %s", minutes, event)
	default:
		return fmt.Sprintf("%d min after %s", minutes, event)
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
