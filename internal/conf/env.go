// env.go - Environment variable configuration and validation for BirdNET-Notifier
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation.
// These short names are intended for container deployments where a full
// config file is overkill.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BIRDNET_DEBUG", validateEnvBool},

		// Database
		{"database.sqlite.path", "BIRDNET_DB", validateEnvPath},
		{"database.mysql.host", "BIRDNET_MYSQL_HOST", nil},
		{"database.mysql.password", "BIRDNET_MYSQL_PASSWORD", nil},

		// Station location
		{"location.latitude", "BIRDNET_LATITUDE", validateEnvLatitude},
		{"location.longitude", "BIRDNET_LONGITUDE", validateEnvLongitude},

		// Notifications
		{"notify.minconfidence", "BIRDNET_MINCONFIDENCE", validateEnvConfidence},
		{"webhook.defaulturl", "BIRDNET_WEBHOOK_URL", validateEnvURL},

		// MQTT
		{"mqtt.broker", "BIRDNET_MQTT_BROKER", nil},
		{"mqtt.username", "BIRDNET_MQTT_USERNAME", nil},
		{"mqtt.password", "BIRDNET_MQTT_PASSWORD", nil},

		// Telemetry
		{"sentry.dsn", "BIRDNET_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	bindings := getEnvBindings()
	var warnings []string

	for _, binding := range bindings {
		// Bind the environment variable to the config key
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		// Validate the value if it's set and validation function is provided
		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	_, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

func validateEnvLatitude(value string) error {
	lat, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid latitude: %w", err)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got %g", lat)
	}
	return nil
}

func validateEnvLongitude(value string) error {
	lng, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid longitude: %w", err)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got %g", lng)
	}
	return nil
}

func validateEnvConfidence(value string) error {
	confidence, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid confidence: %w", err)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1, got %g", confidence)
	}
	return nil
}

func validateEnvURL(value string) error {
	return validateHTTPURL(value)
}

func validateEnvPath(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("path must not be empty")
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path contains a null byte")
	}
	return nil
}
