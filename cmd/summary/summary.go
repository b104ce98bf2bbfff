package summary

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/notification"
	"github.com/tphakala/birdnet-notifier/internal/scheduler"
)

// Command returns the command that fires a configured summary job outside
// its schedule.
func Command(settings *conf.Settings) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "summary <job>",
		Short: "Fire a summary job immediately",
		Long: `Fire the named summary job with a report window ending now. Delivery
goes through the configured sinks and advances the job's durable state,
so a daemon firing the same job at the same moment cannot double count.

With --dry-run the report is rendered to stdout instead and no state is
touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return runDry(cmd, settings, args[0])
			}
			return runLive(cmd, settings, args[0])
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the summary to stdout without delivering or advancing job state")

	return cmd
}

func runLive(cmd *cobra.Command, settings *conf.Settings, name string) error {
	store, err := openStore(settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	notifier, err := notification.NewNotifier(settings, nil, nil, nil)
	if err != nil {
		return err
	}
	defer notifier.Close()

	sched, err := scheduler.New(settings, store, notifier, nil)
	if err != nil {
		return err
	}

	if err := sched.TriggerJob(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "summary job %q fired\n", name)
	return nil
}

// runDry renders the report the job would send right now. Disabled jobs
// can be rendered too, only live fires require the job to be active.
func runDry(cmd *cobra.Command, settings *conf.Settings, name string) error {
	spec := findJob(settings, name)
	if spec == nil {
		return errors.Newf("unknown summary job %q", name).
			Component("summary").
			Category(errors.CategoryNotFound).
			Build()
	}

	store, err := openStore(settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	topN := spec.TopSpecies
	if topN <= 0 {
		topN = conf.DefaultTopSpecies
	}
	lookback := time.Duration(spec.LookbackMinutes) * time.Minute
	end := time.Now()

	data, err := store.SummaryWindow(cmd.Context(), end.Add(-lookback), end, topN)
	if err != nil {
		return err
	}

	title, message := notification.SummaryText(data, lookback)
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", title, message)
	return nil
}

func openStore(settings *conf.Settings) (datastore.Interface, error) {
	store := datastore.New(settings)
	if store == nil {
		return nil, errors.Newf("no detection database enabled").
			Component("summary").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}

func findJob(settings *conf.Settings, name string) *conf.SummaryJobSettings {
	for i := range settings.Summaries {
		if settings.Summaries[i].Name == name {
			return &settings.Summaries[i]
		}
	}
	return nil
}
