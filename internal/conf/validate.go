// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. Every failing
// check is collected so a broken configuration reports all of its
// problems at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	// Validate logging settings
	if err := validateLogSettings(&settings.Main.Log); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate database settings
	if err := validateDatabaseSettings(&settings.Database); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate location settings
	if err := validateLocationSettings(&settings.Location); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate notify settings
	if err := validateNotifySettings(&settings.Notify); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate season overrides
	if err := validateSeasonSettings(settings.Seasons); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate summary job settings
	if err := validateSummarySettings(settings.Summaries); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate scheduler settings
	if err := validateSchedulerSettings(&settings.Scheduler); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate webhook settings
	if err := validateWebhookSettings(&settings.Webhook); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate MQTT settings
	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate API settings
	if err := validateAPISettings(&settings.API); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate monitoring settings
	if err := validateMonitoringSettings(&settings.Monitoring); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate that enabled notification paths have somewhere to deliver to
	if err := validateDestinations(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// If there are any errors, return the ValidationError
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateLogSettings validates the log file settings
func validateLogSettings(settings *LogConfig) error {
	var errs []string

	if settings.Enabled {
		if settings.Path == "" {
			errs = append(errs, "log path must not be empty when logging is enabled")
		}
		switch settings.Rotation {
		case RotationDaily:
			// no extra settings
		case RotationWeekly:
			if _, err := ParseWeekday(settings.RotationDay); err != nil {
				errs = append(errs, fmt.Sprintf("log rotation day '%s' is not a valid weekday", settings.RotationDay))
			}
		case RotationSize:
			if settings.MaxSize <= 0 {
				errs = append(errs, "log max size must be greater than 0 for size rotation")
			}
		default:
			errs = append(errs, fmt.Sprintf("log rotation '%s' must be daily, weekly or size", settings.Rotation))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateDatabaseSettings validates the detection database settings
func validateDatabaseSettings(settings *DatabaseSettings) error {
	var errs []string

	switch {
	case settings.SQLite.Enabled && settings.MySQL.Enabled:
		errs = append(errs, "only one database type can be enabled, disable either SQLite or MySQL")
	case !settings.SQLite.Enabled && !settings.MySQL.Enabled:
		errs = append(errs, "either SQLite or MySQL database must be enabled")
	}

	if settings.SQLite.Enabled && settings.SQLite.Path == "" {
		errs = append(errs, "SQLite database path must not be empty")
	}

	if settings.MySQL.Enabled {
		if settings.MySQL.Username == "" {
			errs = append(errs, "MySQL username must not be empty")
		}
		if settings.MySQL.Database == "" {
			errs = append(errs, "MySQL database name must not be empty")
		}
		if settings.MySQL.Host == "" {
			errs = append(errs, "MySQL host must not be empty")
		}
		if port, err := strconv.Atoi(settings.MySQL.Port); err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("MySQL port '%s' must be a number between 1 and 65535", settings.MySQL.Port))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateLocationSettings validates the station coordinates
func validateLocationSettings(settings *LocationSettings) error {
	var errs []string

	if settings.Latitude < -90 || settings.Latitude > 90 {
		errs = append(errs, "latitude must be between -90 and 90")
	}
	if settings.Longitude < -180 || settings.Longitude > 180 {
		errs = append(errs, "longitude must be between -180 and 180")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateNotifySettings validates the novelty notification settings
func validateNotifySettings(settings *NotifySettings) error {
	var errs []string

	if settings.MinConfidence < 0 || settings.MinConfidence > 1 {
		errs = append(errs, "notify minconfidence must be between 0 and 1")
	}
	if settings.CooldownMinutes < 0 {
		errs = append(errs, "notify cooldownminutes must not be negative")
	}
	if settings.RateLimit.MaxPerHour < 0 {
		errs = append(errs, "notify ratelimit maxperhour must not be negative")
	}
	if settings.RateLimit.Burst < 0 {
		errs = append(errs, "notify ratelimit burst must not be negative")
	}
	if settings.Watcher.Enabled && settings.Watcher.PollSeconds < 1 {
		errs = append(errs, "notify watcher pollseconds must be at least 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validSeasonNames lists the season keys accepted in overrides.
var validSeasonNames = map[string]bool{
	"spring": true,
	"summer": true,
	"fall":   true,
	"winter": true,
}

// validateSeasonSettings validates the season start overrides
func validateSeasonSettings(seasons map[string]SeasonStart) error {
	var errs []string

	for name, start := range seasons {
		if !validSeasonNames[strings.ToLower(name)] {
			errs = append(errs, fmt.Sprintf("season '%s' is not one of spring, summer, fall, winter", name))
			continue
		}
		if start.Month < 1 || start.Month > 12 {
			errs = append(errs, fmt.Sprintf("season '%s' month must be between 1 and 12", name))
			continue
		}
		// Normalize through time.Date in a non-leap year so February 29
		// and similar impossible starts are rejected.
		d := time.Date(2021, time.Month(start.Month), start.Day, 0, 0, 0, 0, time.UTC)
		if start.Day < 1 || d.Day() != start.Day || int(d.Month()) != start.Month {
			errs = append(errs, fmt.Sprintf("season '%s' day %d is not valid for month %d", name, start.Day, start.Month))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateSummarySettings validates the scheduled summary jobs
func validateSummarySettings(summaries []SummaryJobSettings) error {
	var errs []string

	seen := make(map[string]bool)
	for i := range summaries {
		job := &summaries[i]
		if job.Name == "" {
			errs = append(errs, fmt.Sprintf("summary job %d must have a name", i))
			continue
		}
		if seen[job.Name] {
			errs = append(errs, fmt.Sprintf("summary job name '%s' is used more than once", job.Name))
		}
		seen[job.Name] = true

		if _, err := cron.ParseStandard(job.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("summary job '%s' schedule '%s' is not a valid cron expression: %v", job.Name, job.Schedule, err))
		}
		if job.LookbackMinutes < 1 {
			errs = append(errs, fmt.Sprintf("summary job '%s' lookbackminutes must be at least 1", job.Name))
		}
		if job.TopSpecies < 0 {
			errs = append(errs, fmt.Sprintf("summary job '%s' topspecies must not be negative", job.Name))
		}
		if job.WebhookURL != "" {
			if err := validateHTTPURL(job.WebhookURL); err != nil {
				errs = append(errs, fmt.Sprintf("summary job '%s' webhookurl: %v", job.Name, err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateSchedulerSettings validates the scheduler settings
func validateSchedulerSettings(settings *SchedulerSettings) error {
	var errs []string

	if settings.PollSeconds < 1 || settings.PollSeconds > 300 {
		errs = append(errs, "scheduler pollseconds must be between 1 and 300")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateWebhookSettings validates the default webhook destination
func validateWebhookSettings(settings *WebhookSettings) error {
	var errs []string

	if settings.DefaultURL != "" {
		if err := validateHTTPURL(settings.DefaultURL); err != nil {
			errs = append(errs, fmt.Sprintf("webhook defaulturl: %v", err))
		}
	}
	if settings.TimeoutSeconds < 1 || settings.TimeoutSeconds > 120 {
		errs = append(errs, "webhook timeoutseconds must be between 1 and 120")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateMQTTSettings validates the MQTT delivery settings
func validateMQTTSettings(settings *MQTTSettings) error {
	var errs []string

	if settings.Enabled {
		if settings.Broker == "" {
			errs = append(errs, "MQTT broker must not be empty when MQTT is enabled")
		}
		if settings.Topic == "" {
			errs = append(errs, "MQTT topic must not be empty when MQTT is enabled")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateAPISettings validates the HTTP status API settings
func validateAPISettings(settings *APISettings) error {
	var errs []string

	if settings.Enabled {
		if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("API listen address '%s' must be host:port", settings.Listen))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateMonitoringSettings validates the host resource monitoring
// settings. Thresholds are only checked for resources that are enabled.
func validateMonitoringSettings(settings *MonitoringSettings) error {
	if !settings.Enabled {
		return nil
	}

	var errs []string

	if settings.CheckSeconds < 5 {
		errs = append(errs, "monitoring checkseconds must be at least 5")
	}
	if settings.CriticalResendMinutes < 0 {
		errs = append(errs, "monitoring criticalresendminutes must not be negative")
	}
	if settings.HysteresisPercent < 0 || settings.HysteresisPercent >= 50 {
		errs = append(errs, "monitoring hysteresispercent must be between 0 and 50")
	}

	checkThresholds := func(name string, warning, critical float64) {
		if warning <= 0 || warning > 100 {
			errs = append(errs, fmt.Sprintf("monitoring %s warning must be between 0 and 100", name))
		}
		if critical <= 0 || critical > 100 {
			errs = append(errs, fmt.Sprintf("monitoring %s critical must be between 0 and 100", name))
		}
		if warning >= critical {
			errs = append(errs, fmt.Sprintf("monitoring %s warning must be below critical", name))
		}
	}
	if settings.CPU.Enabled {
		checkThresholds("cpu", settings.CPU.Warning, settings.CPU.Critical)
	}
	if settings.Memory.Enabled {
		checkThresholds("memory", settings.Memory.Warning, settings.Memory.Critical)
	}
	if settings.Disk.Enabled {
		checkThresholds("disk", settings.Disk.Warning, settings.Disk.Critical)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateDestinations checks that every enabled notification path has a
// destination to deliver to. Per-job webhook overrides count for their
// own job only.
func validateDestinations(settings *Settings) error {
	var errs []string

	hasShared := settings.Webhook.DefaultURL != "" ||
		(settings.Shoutrrr.Enabled && len(settings.Shoutrrr.URLs) > 0) ||
		settings.MQTT.Enabled

	if settings.Notify.Enabled && !hasShared {
		errs = append(errs, "notify is enabled but no webhook, shoutrrr or MQTT destination is configured")
	}

	for i := range settings.Summaries {
		job := &settings.Summaries[i]
		if job.Enabled && !hasShared && job.WebhookURL == "" {
			errs = append(errs, fmt.Sprintf("summary job '%s' is enabled but has no destination", job.Name))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// validateHTTPURL checks that a destination URL parses and uses http or https.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("'%s' is not a valid URL", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("'%s' must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("'%s' is missing a host", raw)
	}
	return nil
}
