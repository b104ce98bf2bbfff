package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/birdnet-notifier/cmd/daemon"
	"github.com/tphakala/birdnet-notifier/cmd/notify"
	"github.com/tphakala/birdnet-notifier/cmd/summary"
	"github.com/tphakala/birdnet-notifier/cmd/support"
	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "birdnet-notifier",
		Short: "Novelty alerts and scheduled summaries for BirdNET detections",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Runs after flag parsing so --debug takes effect everywhere.
			if settings.Debug {
				logging.SetLevel(slog.LevelDebug)
			}
		},
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		daemon.Command(settings),
		notify.Command(settings),
		summary.Command(settings),
		support.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
