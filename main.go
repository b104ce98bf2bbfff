package main

import (
	"fmt"
	"os"

	"github.com/tphakala/birdnet-notifier/cmd"
	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/telemetry"
)

// version and buildDate are set at build time through ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version
	settings.BuildDate = buildDate

	// Crash reporting is strictly opt-in and only active with a DSN.
	if err := telemetry.Init(settings); err != nil {
		fmt.Fprintf(os.Stderr, "warning: crash reporting unavailable: %v\n", err)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
