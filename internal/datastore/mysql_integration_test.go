// mysql_integration_test.go: Tests against a real MySQL server.
//
// The SQLite tests cover query semantics; these verify the MySQL
// dialect branches (CONCAT, DATE_FORMAT) against an actual server.
// They start a throwaway container and skip when Docker is unavailable.
package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/birdnet-notifier/internal/conf"
)

func TestMySQLStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping MySQL container test in short mode")
	}

	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("birdnet"),
		tcmysql.WithUsername("birdnet"),
		tcmysql.WithPassword("birdnet-test"),
	)
	if err != nil {
		t.Skipf("could not start MySQL container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.Database.MySQL.Enabled = true
	settings.Database.MySQL.Username = "birdnet"
	settings.Database.MySQL.Password = "birdnet-test"
	settings.Database.MySQL.Database = "birdnet"
	settings.Database.MySQL.Host = host
	settings.Database.MySQL.Port = port.Port()

	store := &MySQLStore{Settings: settings}
	require.NoError(t, store.Open())
	defer func() {
		assert.NoError(t, store.Close())
	}()

	seedTestData(t, &store.DataStore)

	t.Run("dialect expressions", func(t *testing.T) {
		assert.Equal(t, "CONCAT(date, ' ', time)", store.GetDateTimeExpr())
		assert.Equal(t, "DATE_FORMAT(time, '%H')", store.GetHourFormat())
	})

	t.Run("prior occurrence", func(t *testing.T) {
		seen, err := store.HasPriorOccurrence(ctx, "Turdus migratorius",
			time.Date(2024, 1, 15, 9, 0, 0, 0, time.Local), time.Time{})
		require.NoError(t, err)
		assert.True(t, seen)

		seen, err = store.HasPriorOccurrence(ctx, "Cardinalis cardinalis",
			time.Date(2024, 1, 15, 11, 0, 0, 0, time.Local),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local))
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("summary window", func(t *testing.T) {
		summary, err := store.SummaryWindow(ctx,
			time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local),
			time.Date(2024, 1, 16, 0, 0, 0, 0, time.Local), 3)
		require.NoError(t, err)

		assert.Equal(t, int64(5), summary.TotalDetections)
		assert.Equal(t, int64(4), summary.SpeciesCount)
		require.NotEmpty(t, summary.TopSpecies)
		assert.Equal(t, "Cyanocitta cristata", summary.TopSpecies[0].ScientificName)
		assert.Equal(t, 2, summary.HourlyCounts[11])
		require.Len(t, summary.NewSpecies, 2)
		assert.Equal(t, "Poecile atricapillus", summary.NewSpecies[0].ScientificName)
	})

	t.Run("notification history upsert", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, store.SaveNotificationHistory(ctx, &NotificationHistory{
			ScientificName:   "Cyanocitta cristata",
			NotificationType: "new_species",
			LastSent:         now,
			ExpiresAt:        now.Add(24 * time.Hour),
		}))
		require.NoError(t, store.SaveNotificationHistory(ctx, &NotificationHistory{
			ScientificName:   "Cyanocitta cristata",
			NotificationType: "new_species",
			LastSent:         now.Add(time.Hour),
			ExpiresAt:        now.Add(25 * time.Hour),
		}))

		var count int64
		require.NoError(t, store.DB.Model(&NotificationHistory{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}
