// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// hasActiveReporting tracks whether any telemetry reporter is attached.
// When false, Build skips component detection and reporting entirely.
var hasActiveReporting atomic.Bool

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// Global telemetry reporter (nil when telemetry is disabled)
var (
	globalTelemetryReporter   TelemetryReporter
	globalTelemetryReporterMu sync.RWMutex
)

// SetTelemetryReporter sets the global telemetry reporter and flips the
// fast-path flag accordingly.
func SetTelemetryReporter(reporter TelemetryReporter) {
	globalTelemetryReporterMu.Lock()
	globalTelemetryReporter = reporter
	globalTelemetryReporterMu.Unlock()
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	globalTelemetryReporterMu.RLock()
	defer globalTelemetryReporterMu.RUnlock()
	return globalTelemetryReporter
}

// reportToTelemetry reports an error to the configured telemetry system
func reportToTelemetry(ee *EnhancedError) {
	reporter := GetTelemetryReporter()
	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{
		enabled: enabled,
	}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	component := ee.GetComponent()
	enhancedMessage := fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error())
	scrubbedMessage := scrubMessageForPrivacy(enhancedMessage)

	sentry.WithScope(func(scope *sentry.Scope) {
		errorTitle := generateErrorTitle(ee, component)

		scope.SetTag("error_title", errorTitle)
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			scrubbedValue := value
			if strValue, ok := value.(string); ok {
				scrubbedValue = scrubMessageForPrivacy(strValue)
			}
			scope.SetContext(key, map[string]any{"value": scrubbedValue})
		}

		level := getErrorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{errorTitle, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = scrubbedMessage
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  errorTitle,
			Value: scrubbedMessage,
		}}

		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// generateErrorTitle creates a meaningful error title for Sentry grouping
func generateErrorTitle(ee *EnhancedError, component string) string {
	operation, hasOperation := ee.GetContext()["operation"].(string)

	var titleParts []string

	if component != "" && component != ComponentUnknown {
		titleParts = append(titleParts, titleCase(component))
	}

	if categoryTitle := formatCategoryForTitle(ee.Category); categoryTitle != "" {
		titleParts = append(titleParts, categoryTitle)
	}

	if hasOperation && operation != "" {
		if operationTitle := formatOperationForTitle(operation); operationTitle != "" {
			titleParts = append(titleParts, operationTitle)
		}
	}

	if len(titleParts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}

	return strings.Join(titleParts, " ")
}

// formatCategoryForTitle converts error categories to human-readable titles
func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryValidation:
		return "Validation Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategoryDatabase, CategoryStoreUnavailable:
		return "Database Error"
	case CategoryNetwork:
		return "Network Error"
	case CategoryFileIO:
		return "File I/O Error"
	case CategoryScheduling, CategoryCronParse:
		return "Scheduling Error"
	case CategoryStateConflict:
		return "State Conflict"
	case CategoryDeliveryTransient, CategoryDeliveryPermanent:
		return "Delivery Error"
	case CategoryMQTTPublish:
		return "MQTT Publish Error"
	case CategoryRendering:
		return "Rendering Error"
	default:
		return string(category)
	}
}

// formatOperationForTitle converts operation context to human-readable format
func formatOperationForTitle(operation string) string {
	formatted := strings.ReplaceAll(operation, "_", " ")
	words := strings.Fields(formatted)
	for i, word := range words {
		words[i] = titleCase(word)
	}
	return strings.Join(words, " ")
}

// titleCase capitalizes the first letter of a string (replacement for deprecated strings.Title)
func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// getErrorLevel returns appropriate Sentry level based on category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryConfiguration, CategoryValidation:
		return sentry.LevelError
	case CategoryDatabase, CategoryStoreUnavailable:
		return sentry.LevelError
	case CategoryNetwork, CategoryDeliveryTransient, CategoryTimeout:
		return sentry.LevelWarning
	case CategoryStateConflict:
		return sentry.LevelInfo
	case CategoryDeliveryPermanent:
		return sentry.LevelError
	default:
		return sentry.LevelError
	}
}

// PrivacyScrubber is a function type for privacy scrubbing
type PrivacyScrubber func(string) string

// Global privacy scrubber function (set by telemetry package)
var globalPrivacyScrubber PrivacyScrubber

// SetPrivacyScrubber sets the global privacy scrubbing function
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	globalPrivacyScrubber = scrubber
}

// scrubMessageForPrivacy applies privacy protection to error messages
func scrubMessageForPrivacy(message string) string {
	if globalPrivacyScrubber != nil {
		return globalPrivacyScrubber(message)
	}

	return basicURLScrub(message)
}

var (
	urlScrubRegex   = regexp.MustCompile(`(https?://[^/?\s]+)\S*`)
	queryParamRegex = regexp.MustCompile(`[?&][^=\s]+=[^&\s]+`)
	tokenRegexes    = []*regexp.Regexp{
		regexp.MustCompile(`api[_-]?key[=:]\S+`),
		regexp.MustCompile(`token[=:]\S+`),
		regexp.MustCompile(`auth[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
)

// basicURLScrub anonymizes URLs as a fallback when no scrubber is set.
// Webhook URLs carry the delivery token in the path, so everything past the
// host is dropped, query string included.
func basicURLScrub(message string) string {
	scrubbed := urlScrubRegex.ReplaceAllString(message, "$1/[REDACTED]")
	scrubbed = queryParamRegex.ReplaceAllString(scrubbed, "?[REDACTED]")

	for _, regex := range tokenRegexes {
		scrubbed = regex.ReplaceAllString(scrubbed, "[TOKEN_REDACTED]")
	}

	return scrubbed
}
