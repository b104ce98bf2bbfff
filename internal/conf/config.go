// Package conf provides configuration management for BirdNET-Notifier.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled     bool         // true to enable this log
	Path        string       // Path to the log file
	Rotation    RotationType // Log rotation type
	MaxSize     int64        // Max size in bytes for RotationSize
	RotationDay string       // Day of the week for RotationWeekly (as a string: "Sunday", "Monday", etc.)
}

// SQLiteSettings holds the SQLite database connection settings.
type SQLiteSettings struct {
	Enabled bool   // true to read detections from a SQLite database
	Path    string // path to the SQLite database file
}

// MySQLSettings holds the MySQL database connection settings.
type MySQLSettings struct {
	Enabled  bool   // true to read detections from a MySQL database
	Username string // MySQL database username
	Password string // MySQL database user password
	Database string // MySQL database name
	Host     string // MySQL database host
	Port     string // MySQL database port
}

// DatabaseSettings selects and configures the detection database.
// Exactly one of SQLite or MySQL must be enabled.
type DatabaseSettings struct {
	SQLite SQLiteSettings // SQLite settings
	MySQL  MySQLSettings  // MySQL settings
}

// LocationSettings holds the station coordinates. They drive season
// boundaries and sunrise/sunset annotations.
type LocationSettings struct {
	Latitude  float64 // latitude of the station in decimal degrees
	Longitude float64 // longitude of the station in decimal degrees
}

// RateLimitSettings caps how many notifications may be sent overall.
type RateLimitSettings struct {
	MaxPerHour int // maximum notifications per hour, 0 disables the limit
	Burst      int // burst allowance on top of the hourly rate
}

// WatcherSettings configures the database polling watcher.
type WatcherSettings struct {
	Enabled     bool // true to poll the database for new detections
	PollSeconds int  // seconds between polls
}

// NotifySettings controls which detections produce novelty notifications.
type NotifySettings struct {
	Enabled         bool              // true to send new species notifications
	MinConfidence   float64           // minimum detection confidence, 0.0 to 1.0
	FirstEver       bool              // notify on the first occurrence ever
	FirstOfYear     bool              // notify on the first occurrence this calendar year
	FirstOfSeason   bool              // notify on the first occurrence this season
	CooldownMinutes int               // per-species quiet period between notifications
	Whitelist       []string          // only notify for these species, empty allows all
	Blacklist       []string          // never notify for these species
	RateLimit       RateLimitSettings // global notification rate limit
	Watcher         WatcherSettings   // database polling watcher
}

// SeasonStart defines the month and day a season begins. Seasons default
// to meteorological boundaries and individual starts can be overridden.
type SeasonStart struct {
	Month int // month the season starts, 1 to 12
	Day   int // day of the month the season starts
}

// WebhookSettings holds the default webhook destination for notifications.
type WebhookSettings struct {
	DefaultURL     string // webhook URL for notifications, Discord-compatible
	TimeoutSeconds int    // timeout in seconds for each delivery attempt
}

// ShoutrrrSettings configures delivery through shoutrrr service URLs.
type ShoutrrrSettings struct {
	Enabled bool     // true to deliver notifications over shoutrrr
	URLs    []string // shoutrrr service URLs
}

// MQTTSettings configures notification publishing to an MQTT broker.
type MQTTSettings struct {
	Enabled  bool   // true to publish notifications to MQTT
	Broker   string // MQTT broker URL, for example tcp://localhost:1883
	Topic    string // MQTT topic to publish to
	Username string // MQTT username
	Password string // MQTT password
	Retain   bool   // true to publish messages with the retain flag
}

// SummaryJobSettings defines a single scheduled summary job.
type SummaryJobSettings struct {
	Name            string // unique job name, also the scheduler state key
	Enabled         bool   // true to run this job
	Schedule        string // cron expression, standard five fields or @descriptor
	LookbackMinutes int    // minutes of history each summary covers
	TopSpecies      int    // number of species to list, 0 for the default
	WebhookURL      string // optional destination override for this job
}

// SchedulerSettings configures the summary job scheduler.
type SchedulerSettings struct {
	PollSeconds int    // scheduler tick interval in seconds
	StateFile   string // path to the scheduler state file, empty for the default
}

// APISettings configures the HTTP status API.
type APISettings struct {
	Enabled bool   // true to serve the status API
	Listen  string // listen address, for example 0.0.0.0:8090
}

// SentrySettings contains settings for error tracking. Telemetry is
// strictly opt-in.
type SentrySettings struct {
	Enabled bool   // true to enable telemetry
	DSN     string // Sentry DSN, empty uses the built-in project
}

// ImageProviderSettings configures species thumbnail lookups.
type ImageProviderSettings struct {
	Enabled         bool   // true to attach species thumbnails to notifications
	Provider        string // preferred image provider rows, for example wikimedia
	CacheTTLMinutes int    // minutes thumbnails stay cached in memory
}

// ResourceThresholds sets the alert levels for one host resource as a
// percentage of use.
type ResourceThresholds struct {
	Enabled  bool    // true to monitor this resource
	Warning  float64 // warning threshold in percent
	Critical float64 // critical threshold in percent
}

// DiskThresholds extends ResourceThresholds with the filesystem paths
// being watched.
type DiskThresholds struct {
	Enabled  bool     // true to monitor disk usage
	Warning  float64  // warning threshold in percent
	Critical float64  // critical threshold in percent
	Paths    []string // paths to check, empty checks "/"
}

// MonitoringSettings configures host resource monitoring. Alerts are
// delivered through the same providers as detection notifications.
type MonitoringSettings struct {
	Enabled               bool               // true to monitor host resources
	CheckSeconds          int                // seconds between resource checks
	CriticalResendMinutes int                // minutes before a still-critical disk alert repeats
	HysteresisPercent     float64            // margin below a threshold before an alert clears
	CPU                   ResourceThresholds // CPU usage thresholds
	Memory                ResourceThresholds // memory usage thresholds
	Disk                  DiskThresholds     // disk usage thresholds and paths
}

// Settings contains all configuration options for BirdNET-Notifier.
type Settings struct {
	Debug bool // true to enable debug mode

	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name      string    // name of this node, appears in notification titles
		TimeAs24h bool      // true 24-hour time format, false 12-hour time format
		Log       LogConfig // logging configuration
	}

	Database   DatabaseSettings       // detection database settings
	Location   LocationSettings       // station coordinates
	Notify     NotifySettings         // novelty notification settings
	Seasons    map[string]SeasonStart // optional season start overrides
	Webhook    WebhookSettings        // default webhook destination
	Shoutrrr   ShoutrrrSettings       // shoutrrr delivery settings
	MQTT       MQTTSettings           // MQTT delivery settings
	Summaries  []SummaryJobSettings   // scheduled summary jobs
	Scheduler  SchedulerSettings      // summary scheduler settings
	API        APISettings            // HTTP status API settings
	Sentry     SentrySettings         // telemetry settings
	Images     ImageProviderSettings  // species thumbnail settings
	Monitoring MonitoringSettings     // host resource monitoring settings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into a new Settings instance and makes it
// the active one. On validation failure the previous instance, if any,
// stays active.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := expandSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file
func initViper() error {
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	viper.SetConfigName("config")
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("BIRDNET_NOTIFIER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		log.Printf("Warning: %v", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file at the first default
// config path and reads it back in.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig returns the embedded default configuration as a string.
func getDefaultConfig() (string, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return "", fmt.Errorf("error reading embedded config: %w", err)
	}
	return string(data), nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading them on first use.
// A failure to load the initial configuration is fatal.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// Reload re-reads the configuration file and replaces the active settings
// instance. Running jobs pick up the new configuration at their next tick.
// If the new configuration is invalid the old one stays in effect and the
// error describes every validation failure.
func Reload() (*Settings, error) {
	return Load()
}
