// model.go this code defines the data model for the application
package datastore

import "time"

// Note represents a single observation data point. The table layout
// matches the analyzer database this service reads, Date and Time are
// zero-padded local time strings.
type Note struct {
	ID             uint   `gorm:"primaryKey"`
	SourceNode     string
	Date           string `gorm:"index:idx_notes_date;index:idx_notes_date_commonname_confidence"`
	Time           string `gorm:"index:idx_notes_time"`
	Source         string
	BeginTime      time.Time
	EndTime        time.Time
	SpeciesCode    string
	ScientificName string  `gorm:"index:idx_notes_sciname"`
	CommonName     string  `gorm:"index:idx_notes_comname;index:idx_notes_date_commonname_confidence"`
	Confidence     float64 `gorm:"index:idx_notes_date_commonname_confidence"`
	Latitude       float64
	Longitude      float64
	Threshold      float64
	Sensitivity    float64
	ClipName       string
	ProcessingTime time.Duration
}

// DateTime parses the Date and Time columns into a single local time
// instant. Detection rows store local wall clock strings, so the parse
// uses the local location.
func (n *Note) DateTime() (time.Time, error) {
	return time.ParseInLocation(dateTimeLayout, n.Date+" "+n.Time, time.Local)
}

// SplitDateTime formats an instant into the Date and Time column values.
// The store holds local wall clock strings, so the instant is converted
// to local time first.
func SplitDateTime(t time.Time) (date, clock string) {
	t = t.In(time.Local)
	return t.Format(time.DateOnly), t.Format("15:04:05")
}

const dateTimeLayout = "2006-01-02 15:04:05"

// ImageCache represents cached image metadata for species
type ImageCache struct {
	ID             uint      `gorm:"primaryKey"`
	ProviderName   string    `gorm:"uniqueIndex:idx_imagecache_provider_species;not null"` // Image provider that supplied the entry
	ScientificName string    `gorm:"uniqueIndex:idx_imagecache_provider_species;not null"` // Scientific name of the species
	URL            string    // The URL of the image
	LicenseName    string    // The name of the license for the image
	LicenseURL     string    // The URL of the license details
	AuthorName     string    // The name of the image author
	AuthorURL      string    // The URL of the author's page or profile
	CachedAt       time.Time `gorm:"index"` // When the image was cached
}

// NotificationHistory records the last time a notification went out for
// a species. It survives restarts so cooldowns do not reset with the
// process. The combination of (ScientificName, NotificationType) is
// unique.
type NotificationHistory struct {
	ID               uint      `gorm:"primaryKey"`
	ScientificName   string    `gorm:"uniqueIndex:idx_notifhist_species_type;not null"`
	NotificationType string    `gorm:"uniqueIndex:idx_notifhist_species_type;not null"` // new_species, new_this_year, new_this_season
	LastSent         time.Time `gorm:"index"`
	ExpiresAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

// SpeciesTally is one species' aggregate inside a summary window.
type SpeciesTally struct {
	CommonName     string
	ScientificName string
	Count          int
	FirstSeen      time.Time // earliest detection inside the window
}

// SummaryData aggregates a half-open detection window [Start, End).
type SummaryData struct {
	Start           time.Time
	End             time.Time
	TotalDetections int64
	SpeciesCount    int64
	TopSpecies      []SpeciesTally
	HourlyCounts    [24]int        // detections per hour of day across the window
	NewSpecies      []SpeciesTally // species first recorded ever inside the window
}
