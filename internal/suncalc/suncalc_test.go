package suncalc

import (
	"testing"
	"time"
)

func TestNewSunCalc(t *testing.T) {
	sc := newTestSunCalc()
	if sc == nil {
		t.Fatal("NewSunCalc returned nil")
		return
	}

	if sc.observer.Latitude != testLatitude {
		t.Errorf("Expected latitude %v, got %v", testLatitude, sc.observer.Latitude)
	}
	if sc.observer.Longitude != testLongitude {
		t.Errorf("Expected longitude %v, got %v", testLongitude, sc.observer.Longitude)
	}
}

func TestGetSunEventTimes(t *testing.T) {
	sc := newTestSunCalc()
	date := equinoxDate()

	// First call to calculate and cache
	times1, err := sc.GetSunEventTimes(date)
	if err != nil {
		t.Fatalf("Failed to get sun event times: %v", err)
	}

	if times1.Sunrise.IsZero() {
		t.Error("Sunrise time is zero")
	}
	if times1.Sunset.IsZero() {
		t.Error("Sunset time is zero")
	}
	if times1.CivilDawn.IsZero() {
		t.Error("Civil dawn time is zero")
	}
	if times1.CivilDusk.IsZero() {
		t.Error("Civil dusk time is zero")
	}

	// Second call to test cache
	times2, err := sc.GetSunEventTimes(date)
	if err != nil {
		t.Fatalf("Failed to get cached sun event times: %v", err)
	}

	if !times1.Sunrise.Equal(times2.Sunrise) {
		t.Error("Cached sunrise time doesn't match original")
	}
	if !times1.Sunset.Equal(times2.Sunset) {
		t.Error("Cached sunset time doesn't match original")
	}
}

func TestSunEventOrder(t *testing.T) {
	sc := newTestSunCalc()

	times, err := sc.GetSunEventTimes(equinoxDate())
	if err != nil {
		t.Fatalf("Failed to get sun event times: %v", err)
	}

	if !times.CivilDawn.Before(times.Sunrise) {
		t.Errorf("Civil dawn %v not before sunrise %v", times.CivilDawn, times.Sunrise)
	}
	if !times.Sunrise.Before(times.Sunset) {
		t.Errorf("Sunrise %v not before sunset %v", times.Sunrise, times.Sunset)
	}
	if !times.Sunset.Before(times.CivilDusk) {
		t.Errorf("Sunset %v not before civil dusk %v", times.Sunset, times.CivilDusk)
	}
}

func TestGetSunriseTime(t *testing.T) {
	sc := newTestSunCalc()

	sunrise, err := sc.GetSunriseTime(equinoxDate())
	if err != nil {
		t.Fatalf("Failed to get sunrise time: %v", err)
	}
	if sunrise.IsZero() {
		t.Error("Sunrise time is zero")
	}
}

func TestGetSunsetTime(t *testing.T) {
	sc := newTestSunCalc()

	sunset, err := sc.GetSunsetTime(equinoxDate())
	if err != nil {
		t.Fatalf("Failed to get sunset time: %v", err)
	}
	if sunset.IsZero() {
		t.Error("Sunset time is zero")
	}
}

func TestCacheConsistency(t *testing.T) {
	sc := newTestSunCalc()
	date := equinoxDate()

	times1, err := sc.GetSunEventTimes(date)
	if err != nil {
		t.Fatalf("Failed to get initial sun event times: %v", err)
	}

	dateKey := date.Format("2006-01-02")
	sc.lock.RLock()
	entry, exists := sc.cache[dateKey]
	sc.lock.RUnlock()

	if !exists {
		t.Error("Cache entry not found after calculation")
	}
	if !entry.date.Equal(date) {
		t.Error("Cached date doesn't match requested date")
	}
	if !entry.times.Sunrise.Equal(times1.Sunrise) {
		t.Error("Cached sunrise time doesn't match calculated time")
	}
}

func TestDescribeOffset(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		event  string
		want   string
	}{
		{"after sunrise", 32 * time.Minute, "sunrise", "32 min after sunrise"},
		{"before sunset", -15 * time.Minute, "sunset", "15 min before sunset"},
		{"exactly at event", 0, "sunrise", "at sunrise"},
		{"seconds round down", 20 * time.Second, "sunrise", "at sunrise"},
		{"beyond window", 3 * time.Hour, "sunset", ""},
		{"far before", -5 * time.Hour, "sunrise", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeOffset(tt.offset, tt.event); got != tt.want {
				t.Errorf("describeOffset(%v, %q) = %q, want %q", tt.offset, tt.event, got, tt.want)
			}
		})
	}
}

// TestNearSunEvent pins time.Local to the station timezone so the
// annotations derived from sun events land on the expected calendar day
// regardless of the host timezone.
func TestNearSunEvent(t *testing.T) {
	helsinki, err := time.LoadLocation("Europe/Helsinki")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	oldLocal := time.Local
	time.Local = helsinki
	t.Cleanup(func() { time.Local = oldLocal })

	sc := newTestSunCalc()
	noon := time.Date(2024, 3, 21, 12, 0, 0, 0, time.Local)
	events, err := sc.GetSunEventTimes(noon)
	if err != nil {
		t.Fatalf("Failed to get sun event times: %v", err)
	}

	tests := []struct {
		name string
		when time.Time
		want string
	}{
		{"after sunrise", events.Sunrise.Add(32 * time.Minute), "32 min after sunrise"},
		{"before sunset", events.Sunset.Add(-15 * time.Minute), "15 min before sunset"},
		{"after sunset in twilight", events.Sunset.Add(20 * time.Minute), "20 min after sunset"},
		{"before dawn", time.Date(2024, 3, 21, 3, 0, 0, 0, time.Local), "at night"},
		{"plain daytime", noon, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sc.NearSunEvent(tt.when); got != tt.want {
				t.Errorf("NearSunEvent(%v) = %q, want %q", tt.when, got, tt.want)
			}
		})
	}
}
