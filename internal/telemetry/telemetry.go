// Package telemetry provides privacy-compliant, opt-in error tracking.
package telemetry

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/privacy"
)

// defaultDSN is the shared BirdNET-Notifier Sentry project. A DSN set in
// the configuration takes precedence.
const defaultDSN = "https://c1e3b9d47a2f85e6904bfa7c31d20984@o4509553065525248.ingest.de.sentry.io/4509553112186961"

var (
	initialized bool
	systemID    string
)

func telemetryLogger() *slog.Logger {
	return logging.ForService("telemetry")
}

// Init configures Sentry when telemetry has been explicitly enabled and
// attaches the reporter that forwards enhanced errors. Telemetry is
// strictly opt-in: with it disabled the errors package keeps its fast
// path and nothing leaves the machine.
func Init(settings *conf.Settings) error {
	if !settings.Sentry.Enabled {
		telemetryLogger().Info("telemetry is disabled (opt-in required)")
		return nil
	}

	dsn := settings.Sentry.DSN
	if dsn == "" {
		dsn = defaultDSN
	}

	systemID = resolveSystemID()

	err := sentry.Init(sentry.ClientOptions{
		Dsn:        dsn,
		SampleRate: 1.0,

		// Privacy-compliant settings
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "", // never leak the hostname

		Release: fmt.Sprintf("birdnet-notifier@%s", settings.Version),

		BeforeSend: applyPrivacyFilters,
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry-init").
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("system_id", systemID)
		scope.SetContext("platform", platformContext())
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	initialized = true
	telemetryLogger().Info("telemetry initialized", "system_id", systemID)
	return nil
}

// applyPrivacyFilters strips user and host identifying data from every
// outgoing event and scrubs destination URLs out of message text.
// Delivery errors quote the webhook or broker URL they failed against,
// and those URLs carry tokens.
func applyPrivacyFilters(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}

// platformContext gathers privacy-safe platform information. The board
// model is only read on ARM64 Linux where it identifies an SBC class,
// not a person.
func platformContext() map[string]any {
	ctx := map[string]any{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"container":  conf.RunningInContainer(),
		"num_cpu":    runtime.NumCPU(),
		"go_version": runtime.Version(),
	}
	if runtime.GOOS == "linux" && runtime.GOARCH == "arm64" {
		if model := conf.GetBoardModel(); model != "" {
			ctx["board_model"] = model
		}
	}
	return ctx
}

// resolveSystemID loads the persisted anonymous system ID, generating a
// throwaway one if the config directory is unusable.
func resolveSystemID() string {
	configPaths, err := conf.GetDefaultConfigPaths()
	if err == nil && len(configPaths) > 0 {
		if id, err := LoadOrCreateSystemID(configPaths[0]); err == nil {
			return id
		}
	}
	if id, err := GenerateSystemID(); err == nil {
		return id
	}
	return "unknown"
}

// Flush waits for buffered events to reach Sentry, bounded by timeout.
// Safe to call when telemetry never initialized.
func Flush(timeout time.Duration) {
	if initialized {
		sentry.Flush(timeout)
	}
}

// Enabled reports whether telemetry was initialized this run.
func Enabled() bool {
	return initialized
}

// SystemID returns the anonymous system identifier, empty when telemetry
// is disabled.
func SystemID() string {
	return systemID
}
