// Package datastore provides monitoring functions for database operations
package datastore

import (
	"context"
	"time"
)

// StartConnectionPoolMonitoring periodically publishes connection pool
// statistics until the context is cancelled. Pool exhaustion on the
// shared analyzer database shows up here before queries start timing out.
func (ds *DataStore) StartConnectionPoolMonitoring(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			sqlDB, err := ds.DB.DB()
			if err != nil {
				getLogger().Error("Failed to get SQL DB for monitoring",
					"error", err)
				continue
			}

			stats := sqlDB.Stats()

			if ds.metrics != nil {
				ds.metrics.UpdateConnectionMetrics(
					stats.InUse,
					stats.Idle,
					stats.MaxOpenConnections,
				)
			}

			getLogger().Debug("Connection pool statistics",
				"open_connections", stats.OpenConnections,
				"in_use", stats.InUse,
				"idle", stats.Idle,
				"wait_count", stats.WaitCount,
				"wait_duration", stats.WaitDuration)

			if stats.WaitCount > 0 {
				getLogger().Warn("Connection pool experiencing waits",
					"wait_count", stats.WaitCount,
					"total_wait_duration", stats.WaitDuration)
			}
		}
	}()
}
