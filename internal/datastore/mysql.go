package datastore

import (
	"fmt"
	"strings"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/errors"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	var missing []string
	if settings.Database.MySQL.Username == "" {
		missing = append(missing, "username")
	}
	if settings.Database.MySQL.Database == "" {
		missing = append(missing, "database")
	}
	if settings.Database.MySQL.Host == "" {
		missing = append(missing, "host")
	}
	if settings.Database.MySQL.Port == "" {
		missing = append(missing, "port")
	}
	if len(missing) > 0 {
		return validationError("MySQL configuration incomplete", "database.mysql",
			strings.Join(missing, ", "))
	}
	return nil
}

// Open sets up the MySQL database connection.
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	// loc=Local keeps DATETIME columns in the same wall clock the
	// analyzer writes its date and time strings with
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		store.Settings.Database.MySQL.Username, store.Settings.Database.MySQL.Password,
		store.Settings.Database.MySQL.Host, store.Settings.Database.MySQL.Port,
		store.Settings.Database.MySQL.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger(store.metrics)})
	if err != nil {
		getLogger().Error("Failed to open MySQL database",
			"host", store.Settings.Database.MySQL.Host,
			"port", store.Settings.Database.MySQL.Port,
			"database", store.Settings.Database.MySQL.Database,
			"error", err)
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open-mysql").
			Context("host", store.Settings.Database.MySQL.Host).
			Context("database", store.Settings.Database.MySQL.Database).
			Build()
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL",
		fmt.Sprintf("%s:%s/%s", store.Settings.Database.MySQL.Host,
			store.Settings.Database.MySQL.Port, store.Settings.Database.MySQL.Database))
}

// Close closes the underlying MySQL connection pool.
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return nil
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		getLogger().Error("Failed to retrieve generic DB object", "error", err)
		return dbError(err, "close_mysql", errors.PriorityLow)
	}

	if err := sqlDB.Close(); err != nil {
		getLogger().Error("Failed to close MySQL database", "error", err)
		return dbError(err, "close_mysql", errors.PriorityLow)
	}

	if store.Settings.Debug {
		getLogger().Debug("MySQL database connection closed successfully")
	}
	return nil
}
