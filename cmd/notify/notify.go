package notify

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/imageprovider"
	"github.com/tphakala/birdnet-notifier/internal/notification"
	"github.com/tphakala/birdnet-notifier/internal/novelty"
	"github.com/tphakala/birdnet-notifier/internal/processor"
	"github.com/tphakala/birdnet-notifier/internal/suncalc"
)

// Command returns the command that pushes a single detection through the
// alert pipeline.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		id     uint
		stdin  bool
		test   bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a notification for a single detection",
		Long: `Push one detection through the alert pipeline and deliver the result
to the configured sinks. Without flags the newest detection in the
database is used.

Examples:
  # Notify for the most recent detection
  birdnet-notifier notify

  # Notify for a specific detection row
  birdnet-notifier notify --id 4221

  # Evaluate a detection supplied as JSON without delivering anything
  cat detection.json | birdnet-notifier notify --stdin --dry-run

  # Verify sink configuration end to end
  birdnet-notifier notify --test`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if test {
				return runTest(cmd, settings, dryRun)
			}
			return run(cmd, settings, id, stdin, dryRun)
		},
	}

	cmd.Flags().UintVar(&id, "id", 0, "Database ID of the detection to notify for")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "Read the detection as JSON from standard input")
	cmd.Flags().BoolVar(&test, "test", false, "Send a test notification instead of a detection")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render the notification without delivering it")
	cmd.MarkFlagsMutuallyExclusive("id", "stdin", "test")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, id uint, stdin, dryRun bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store := datastore.New(settings)
	if store == nil {
		return errors.Newf("no detection database enabled").
			Component("notify").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	classifier, err := novelty.New(settings, store, nil)
	if err != nil {
		return err
	}

	// Dry runs never deliver, so the sinks are only built for live sends.
	var publisher processor.Publisher
	if !dryRun {
		var images *imageprovider.BirdImageCache
		if settings.Images.Enabled {
			images = imageprovider.New(settings, store, nil)
		}
		sun := suncalc.NewSunCalc(settings.Location.Latitude, settings.Location.Longitude)
		notifier, err := notification.NewNotifier(settings, images, sun, nil)
		if err != nil {
			return err
		}
		defer notifier.Close()
		publisher = notifier
	}

	proc := processor.New(settings, store, classifier, publisher, nil)
	// Quiet periods are shared with the daemon through the history table.
	if err := proc.Restore(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: cooldown restore failed: %v\n", err)
	}

	note, err := resolveNote(ctx, cmd, proc, id, stdin)
	if err != nil {
		return err
	}

	if dryRun {
		outcome, err := proc.Preview(ctx, note)
		if err != nil {
			return err
		}
		if outcome.Reason != "" {
			fmt.Fprintf(out, "would suppress %s: %s\n", note.CommonName, reasonText(outcome.Reason))
			return nil
		}
		opts := &notification.DetectionEmbedOptions{
			TimeAs24h: settings.Main.TimeAs24h,
			NodeName:  settings.Main.Name,
		}
		title, message := notification.DetectionText(outcome.Result, opts)
		fmt.Fprintf(out, "%s\n%s\n", title, message)
		return nil
	}

	outcome, err := proc.Process(ctx, note)
	if err != nil {
		return err
	}
	if !outcome.Sent {
		fmt.Fprintf(out, "no alert for %s: %s\n", note.CommonName, reasonText(outcome.Reason))
		return nil
	}
	fmt.Fprintf(out, "alert sent for %s (%s)\n", note.CommonName, note.ScientificName)
	return nil
}

func runTest(cmd *cobra.Command, settings *conf.Settings, dryRun bool) error {
	if dryRun {
		embed := notification.TestEmbed(settings.Main.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", embed.Title, embed.Description)
		return nil
	}

	notifier, err := notification.NewNotifier(settings, nil, nil, nil)
	if err != nil {
		return err
	}
	defer notifier.Close()

	if err := notifier.PublishTest(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "test notification delivered")
	return nil
}

func resolveNote(ctx context.Context, cmd *cobra.Command, proc *processor.Processor, id uint, stdin bool) (*datastore.Note, error) {
	switch {
	case stdin:
		return processor.DecodeNote(cmd.InOrStdin())
	case id > 0:
		return proc.ResolveID(ctx, id)
	default:
		return proc.ResolveLatest(ctx)
	}
}

func reasonText(reason string) string {
	switch reason {
	case processor.ReasonExcluded:
		return "species excluded by notification policy"
	case processor.ReasonNotNovel:
		return "detection is not novel"
	case processor.ReasonCooldown:
		return "species is inside its cooldown window"
	case processor.ReasonRateLimit:
		return "hourly rate limit exhausted"
	}
	return reason
}
