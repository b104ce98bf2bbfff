// Package daemon wires the notification pipeline together and runs it
// until a termination signal: datastore, novelty classifier, notifier,
// detection watcher, summary scheduler, and the operational API.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/api"
	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/imageprovider"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/monitor"
	"github.com/tphakala/birdnet-notifier/internal/notification"
	"github.com/tphakala/birdnet-notifier/internal/novelty"
	"github.com/tphakala/birdnet-notifier/internal/observability"
	"github.com/tphakala/birdnet-notifier/internal/processor"
	"github.com/tphakala/birdnet-notifier/internal/scheduler"
	"github.com/tphakala/birdnet-notifier/internal/suncalc"
	"github.com/tphakala/birdnet-notifier/internal/telemetry"
)

const (
	shutdownTimeout     = 10 * time.Second
	historySweepPeriod  = 12 * time.Hour
	historySweepTimeout = time.Minute
	flushTimeout        = 3 * time.Second
)

func daemonLogger() *slog.Logger {
	if l := logging.ForService("daemon"); l != nil {
		return l
	}
	return slog.Default().With("service", "daemon")
}

// Run starts the daemon and blocks until SIGINT or SIGTERM. SIGHUP
// tears the pipeline down, reloads the configuration, and builds it
// again without exiting the process.
func Run(settings *conf.Settings) error {
	logger := daemonLogger()

	for {
		reload, err := runOnce(settings, logger)
		if err != nil {
			return err
		}
		if !reload {
			return nil
		}

		fresh, err := conf.Reload()
		if err != nil {
			logger.Error("config reload failed, keeping previous configuration", "error", err)
			continue
		}
		settings = fresh
		logger.Info("configuration reloaded")
	}
}

// runOnce builds the pipeline from the given settings and runs it until
// a signal arrives. The reload return is true for SIGHUP.
func runOnce(settings *conf.Settings, logger *slog.Logger) (reload bool, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := observability.NewMetrics()
	if err != nil {
		return false, err
	}

	store := datastore.New(settings)
	if store == nil {
		return false, errors.Newf("no detection database enabled").
			Component("daemon").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if ms, ok := store.(interface{ SetMetrics(*datastore.Metrics) }); ok {
		ms.SetMetrics(m.Datastore)
	}
	if err := store.Open(); err != nil {
		return false, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("closing datastore", "error", err)
		}
	}()

	classifier, err := novelty.New(settings, store, m.Novelty)
	if err != nil {
		return false, err
	}

	var images *imageprovider.BirdImageCache
	if settings.Images.Enabled {
		images = imageprovider.New(settings, store, m.ImageProvider)
	}

	sun := suncalc.NewSunCalc(settings.Location.Latitude, settings.Location.Longitude)

	notifier, err := notification.NewNotifier(settings, images, sun, m)
	if err != nil {
		return false, err
	}
	defer notifier.Close()

	proc := processor.New(settings, store, classifier, notifier, m.Novelty)
	if err := proc.Restore(ctx); err != nil {
		logger.Warn("cooldown restore failed, quiet periods start fresh", "error", err)
	}

	var watcher *processor.Watcher
	if settings.Notify.Enabled && settings.Notify.Watcher.Enabled {
		watcher = processor.NewWatcher(settings, store, proc)
		watcher.Start()
		defer watcher.Stop()
	} else {
		logger.Info("detection watcher disabled")
	}

	var sched *scheduler.Scheduler
	if len(settings.Summaries) > 0 {
		sched, err = scheduler.New(settings, store, notifier, m.Scheduler)
		if err != nil {
			return false, err
		}
		sched.Start()
		defer sched.Stop()
	} else {
		logger.Info("no summary jobs configured")
	}

	var mon *monitor.Monitor
	if settings.Monitoring.Enabled {
		mon = monitor.New(settings, notifier)
		mon.Start()
		defer mon.Stop()
	}

	apiErr := make(chan error, 1)
	var server *api.Controller
	if settings.API.Enabled {
		var jobs api.JobLister
		if sched != nil {
			jobs = sched
		}
		var watcherStatus api.WatcherStatus
		if watcher != nil {
			watcherStatus = watcher
		}
		var resources api.ResourceLister
		if mon != nil {
			resources = mon
		}
		server = api.New(settings, jobs, notifier, watcherStatus, resources, m)
		go func() {
			apiErr <- server.Start()
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("API shutdown", "error", err)
			}
		}()
	}

	go sweepExpiredHistory(ctx, store, logger)

	defer telemetry.Flush(flushTimeout)

	logger.Info("daemon running",
		"version", settings.Version,
		"node", settings.Main.Name,
		"watcher", watcher != nil,
		"summary_jobs", len(settings.Summaries),
		"monitoring", settings.Monitoring.Enabled,
		"api", settings.API.Enabled)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		return sig == syscall.SIGHUP, nil
	case err := <-apiErr:
		// Start only returns on failure, shutdown is filtered out.
		return false, err
	}
}

// sweepExpiredHistory deletes notification history rows past their
// expiry so the table stays bounded. Runs on start and then every
// twelve hours.
func sweepExpiredHistory(ctx context.Context, store datastore.Interface, logger *slog.Logger) {
	ticker := time.NewTicker(historySweepPeriod)
	defer ticker.Stop()

	for {
		sweepCtx, cancel := context.WithTimeout(ctx, historySweepTimeout)
		deleted, err := store.DeleteExpiredNotificationHistory(sweepCtx, time.Now())
		cancel()
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("history sweep failed", "error", err)
		case deleted > 0:
			logger.Debug("history sweep removed expired rows", "deleted", deleted)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
