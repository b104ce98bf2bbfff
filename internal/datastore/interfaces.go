// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"strconv"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines
// the read operations the notifier performs against the detection store.
type Interface interface {
	Open() error
	Close() error

	// Detection reads
	Get(ctx context.Context, id string) (Note, error)
	GetLastDetections(ctx context.Context, numDetections int) ([]Note, error)
	LatestNoteID(ctx context.Context) (uint, error)
	GetNotesAfter(ctx context.Context, afterID uint, limit int) ([]Note, error)

	// Occurrence queries for novelty classification
	HasPriorOccurrence(ctx context.Context, scientificName string, before, since time.Time) (bool, error)

	// Windowed aggregates for summaries
	CountDetections(ctx context.Context, start, end time.Time) (int64, error)
	CountDistinctSpecies(ctx context.Context, start, end time.Time) (int64, error)
	TopSpecies(ctx context.Context, start, end time.Time, limit int) ([]SpeciesTally, error)
	HourlyCounts(ctx context.Context, start, end time.Time) ([24]int, error)
	NewSpeciesInWindow(ctx context.Context, start, end time.Time) ([]SpeciesTally, error)
	SummaryWindow(ctx context.Context, start, end time.Time, topN int) (*SummaryData, error)

	// Species thumbnails
	GetImageCache(ctx context.Context, scientificName, provider string) (*ImageCache, error)

	// Notification history for cross-restart cooldowns
	SaveNotificationHistory(ctx context.Context, history *NotificationHistory) error
	GetNotificationHistory(ctx context.Context, scientificName, notificationType string) (*NotificationHistory, error)
	GetActiveNotificationHistory(ctx context.Context, after time.Time) ([]NotificationHistory, error)
	DeleteExpiredNotificationHistory(ctx context.Context, before time.Time) (int64, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB // GORM database instance
	metrics *Metrics // optional operation metrics
}

// New creates a new datastore instance based on the enabled database type.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		// Validation rejects this configuration before a store is built
		return nil
	}
}

// SetMetrics attaches operation metrics to the store. Queries run fine
// without them.
func (ds *DataStore) SetMetrics(m *Metrics) {
	ds.metrics = m
}

// Get retrieves a note by its ID from the database.
func (ds *DataStore) Get(ctx context.Context, id string) (Note, error) {
	noteID, err := strconv.Atoi(id)
	if err != nil {
		return Note{}, validationError("converting ID to integer", "id", id)
	}

	var note Note
	if err := ds.DB.WithContext(ctx).First(&note, noteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Note{}, notFoundError("note", id)
		}
		return Note{}, dbError(err, "get_note", errors.PriorityMedium, "note_id", id)
	}
	return note, nil
}

// GetLastDetections retrieves the most recent detections, newest first.
func (ds *DataStore) GetLastDetections(ctx context.Context, numDetections int) ([]Note, error) {
	var notes []Note
	err := ds.DB.WithContext(ctx).
		Order("date DESC, time DESC, id DESC").
		Limit(numDetections).
		Find(&notes).Error
	if err != nil {
		return nil, dbError(err, "get_last_detections", errors.PriorityMedium,
			"limit", numDetections)
	}
	return notes, nil
}

// LatestNoteID returns the highest note ID, 0 when the table is empty.
// The watcher uses it as its starting position so only detections newer
// than process start are picked up.
func (ds *DataStore) LatestNoteID(ctx context.Context) (uint, error) {
	var id *uint
	err := ds.DB.WithContext(ctx).Model(&Note{}).
		Select("MAX(id)").
		Scan(&id).Error
	if err != nil {
		return 0, dbError(err, "latest_note_id", errors.PriorityMedium)
	}
	if id == nil {
		return 0, nil
	}
	return *id, nil
}

// GetNotesAfter returns notes with an ID greater than afterID in
// insertion order, up to limit rows.
func (ds *DataStore) GetNotesAfter(ctx context.Context, afterID uint, limit int) ([]Note, error) {
	var notes []Note
	err := ds.DB.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&notes).Error
	if err != nil {
		return nil, dbError(err, "get_notes_after", errors.PriorityMedium,
			"after_id", afterID, "limit", limit)
	}
	return notes, nil
}

// GetImageCache retrieves a cached species image, preferring the given
// provider and falling back to the freshest entry from any provider.
func (ds *DataStore) GetImageCache(ctx context.Context, scientificName, provider string) (*ImageCache, error) {
	if scientificName == "" {
		return nil, validationError("scientific name cannot be empty", "scientific_name", "")
	}

	var entry ImageCache
	if provider != "" {
		err := ds.DB.WithContext(ctx).
			Where("scientific_name = ? AND provider_name = ?", scientificName, provider).
			First(&entry).Error
		if err == nil {
			return &entry, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, dbError(err, "get_image_cache", errors.PriorityLow,
				"species", scientificName, "provider", provider)
		}
	}

	err := ds.DB.WithContext(ctx).
		Where("scientific_name = ?", scientificName).
		Order("cached_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("image cache entry", scientificName)
		}
		return nil, dbError(err, "get_image_cache", errors.PriorityLow,
			"species", scientificName)
	}
	return &entry, nil
}

// GetHourFormat returns the database-specific SQL fragment for formatting a time column as hour.
func (ds *DataStore) GetHourFormat() string {
	switch ds.DB.Dialector.Name() {
	case "sqlite":
		return "strftime('%H', time)"
	case "mysql":
		return "DATE_FORMAT(time, '%H')"
	default:
		return ""
	}
}

// GetDateTimeExpr returns the SQL expression concatenating the date and
// time columns into one sortable timestamp string. Both columns are
// zero-padded so string order equals chronological order.
func (ds *DataStore) GetDateTimeExpr() string {
	switch ds.DB.Dialector.Name() {
	case "sqlite":
		return "date || ' ' || time"
	case "mysql":
		return "CONCAT(date, ' ', time)"
	default:
		return ""
	}
}

// performAutoMigration automates database migrations with error handling.
// The Note and ImageCache shapes match the analyzer that owns this
// database, so migration is a no-op there; NotificationHistory is the
// one table this service adds.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Note{}, &ImageCache{}, &NotificationHistory{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto-migrate").
			Context("db_type", dbType).
			Build()
	}

	if debug {
		getLogger().Debug("database connection initialized",
			"db_type", dbType,
			"connection", connectionInfo)
	}

	return nil
}
