// notification_history.go: Database operations for persisting notification history
// This keeps cooldowns and novelty suppression intact across application restarts
package datastore

import (
	"context"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotificationHistoryNotFound is returned when no history record
// exists for the requested species and notification type.
var ErrNotificationHistoryNotFound = errors.Newf("notification history not found").
	Component("datastore").
	Category(errors.CategoryNotFound).
	Build()

// SaveNotificationHistory saves or updates a notification history record in the database
// This uses an upsert operation to either create a new record or update an existing one
// The combination of (ScientificName, NotificationType) is unique
func (ds *DataStore) SaveNotificationHistory(ctx context.Context, history *NotificationHistory) error {
	if history == nil {
		return validationError("notification history cannot be nil", "history", nil)
	}
	if history.ScientificName == "" {
		return validationError("scientific name cannot be empty", "scientific_name", "")
	}
	if history.NotificationType == "" {
		return validationError("notification type cannot be empty", "notification_type", "")
	}

	history.UpdatedAt = time.Now()

	// Upsert through GORM's OnConflict clause against the composite
	// unique index on (scientific_name, notification_type)
	result := ds.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "scientific_name"},
			{Name: "notification_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_sent",
			"expires_at",
			"updated_at",
		}),
	}).Create(history)

	if result.Error != nil {
		return dbError(result.Error, "save_notification_history", errors.PriorityMedium,
			"species", history.ScientificName,
			"notification_type", history.NotificationType,
			"table", "notification_histories",
			"action", "persist_notification_suppression")
	}

	return nil
}

// GetNotificationHistory retrieves a notification history record for a specific species and type
func (ds *DataStore) GetNotificationHistory(ctx context.Context, scientificName, notificationType string) (*NotificationHistory, error) {
	if scientificName == "" {
		return nil, validationError("scientific name cannot be empty", "scientific_name", "")
	}
	if notificationType == "" {
		return nil, validationError("notification type cannot be empty", "notification_type", "")
	}

	var history NotificationHistory
	err := ds.DB.WithContext(ctx).
		Where("scientific_name = ? AND notification_type = ?", scientificName, notificationType).
		First(&history).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationHistoryNotFound
		}
		return nil, dbError(err, "get_notification_history", errors.PriorityMedium,
			"species", scientificName,
			"notification_type", notificationType,
			"action", "retrieve_notification_suppression")
	}

	return &history, nil
}

// GetActiveNotificationHistory retrieves all notification history records that were sent after the specified time
// This is used during initialization to load recent notification history into memory
func (ds *DataStore) GetActiveNotificationHistory(ctx context.Context, after time.Time) ([]NotificationHistory, error) {
	var histories []NotificationHistory

	err := ds.DB.WithContext(ctx).
		Where("last_sent >= ?", after).
		Order("last_sent DESC").
		Find(&histories).Error

	if err != nil {
		return nil, dbError(err, "get_active_notification_history", errors.PriorityMedium,
			"after", after.Format(time.RFC3339),
			"table", "notification_histories",
			"action", "restore_notification_suppression")
	}

	return histories, nil
}

// DeleteExpiredNotificationHistory removes all notification history records that have expired
// Returns the count of deleted records
// This is typically called periodically by a cleanup job
func (ds *DataStore) DeleteExpiredNotificationHistory(ctx context.Context, before time.Time) (int64, error) {
	result := ds.DB.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&NotificationHistory{})
	if result.Error != nil {
		return 0, dbError(result.Error, "delete_expired_notification_history", errors.PriorityLow,
			"before", before.Format(time.RFC3339),
			"action", "cleanup_expired_notifications")
	}

	if result.RowsAffected > 0 {
		getLogger().Info("Cleaned up expired notification history",
			"count", result.RowsAffected,
			"before", before.Format(time.RFC3339))
	}

	return result.RowsAffected, nil
}
