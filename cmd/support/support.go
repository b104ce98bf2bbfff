package support

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/diagnostics"
	"github.com/tphakala/birdnet-notifier/internal/telemetry"
)

// Command creates the command that collects a redacted support bundle.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "support",
		Short: "Collect diagnostics for troubleshooting",
		Long:  "Collect the configuration (with secrets redacted), summary job state, recent logs, and system information into a zip archive suitable for attaching to an issue report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Collecting support data...")

			configPaths, err := conf.GetDefaultConfigPaths()
			if err != nil || len(configPaths) == 0 {
				configPaths = []string{"."}
			}

			statePath, err := conf.SchedulerStateFilePath(settings)
			if err != nil {
				statePath = ""
			}

			systemID, err := telemetry.LoadOrCreateSystemID(configPaths[0])
			if err != nil {
				systemID = "unknown"
			}

			logPaths := []string{configPaths[0]}
			if settings.Main.Log.Enabled && settings.Main.Log.Path != "" {
				logPaths = append(logPaths, settings.Main.Log.Path)
			}

			collector := diagnostics.NewCollector(
				configPaths[0],
				statePath,
				logPaths,
				systemID,
				settings.Version,
			)

			bundle, err := collector.Collect(cmd.Context(), diagnostics.DefaultOptions())
			if err != nil {
				return fmt.Errorf("collecting support data: %w", err)
			}

			archive, err := collector.CreateArchive(bundle)
			if err != nil {
				return fmt.Errorf("creating archive: %w", err)
			}

			filename := fmt.Sprintf("birdnet-notifier-support-%s.zip", bundle.ID)
			if err := os.WriteFile(filename, archive, 0o600); err != nil {
				return fmt.Errorf("saving archive: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Support data collected and saved to: %s\n", filename)
			return nil
		},
	}
}
