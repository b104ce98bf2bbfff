package daemon

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/daemon"
)

// Command creates the command that runs the notifier as a long-lived service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the notifier as a long-lived service",
		Long:  "Watch the detection database for new rows, fire scheduled summary jobs, and serve the operational API until SIGINT or SIGTERM. SIGHUP reloads the configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemon.Run(settings)
		},
	}

	// Set up flags specific to the 'daemon' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the daemon command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Scheduler.PollSeconds, "poll", viper.GetInt("scheduler.pollseconds"), "Scheduler poll interval in seconds")
	cmd.Flags().BoolVar(&settings.API.Enabled, "api", viper.GetBool("api.enabled"), "Serve the operational HTTP API")
	cmd.Flags().StringVar(&settings.API.Listen, "listen", viper.GetString("api.listen"), "Listen address and port of the operational API")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
