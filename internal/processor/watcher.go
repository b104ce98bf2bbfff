package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/logging"
)

// watcherBatchSize caps how many rows one sweep iteration reads.
const watcherBatchSize = 100

// watcherQueryTimeout bounds each store call made by the watcher.
const watcherQueryTimeout = 30 * time.Second

// Watcher tails the detection table and runs every new row through the
// alert pipeline. The position starts at the current maximum row ID, so
// history present before the daemon started is never replayed.
type Watcher struct {
	store  datastore.Interface
	proc   *Processor
	poll   time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	position uint
	primed   bool
}

// NewWatcher builds a watcher over the given store and pipeline.
func NewWatcher(settings *conf.Settings, store datastore.Interface, proc *Processor) *Watcher {
	logger := logging.ForService("processor")
	if logger == nil {
		logger = slog.Default().With("service", "processor")
	}

	poll := time.Duration(settings.Notify.Watcher.PollSeconds) * time.Second
	if poll <= 0 {
		poll = time.Duration(conf.DefaultWatcherPollSeconds) * time.Second
	}

	return &Watcher{
		store:  store,
		proc:   proc,
		poll:   poll,
		logger: logger.With("component", "watcher"),
	}
}

// Start begins the polling loop.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.run(ctx)
	w.logger.Info("detection watcher started", "poll", w.poll)
}

// Stop halts the loop. A detection mid-pipeline finishes its current
// delivery attempt; the rest of the batch is abandoned.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("detection watcher stopped", "position", w.Position())
}

// IsRunning reports whether the polling loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Position returns the highest row ID already processed.
func (w *Watcher) Position() uint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}

func (w *Watcher) setPosition(id uint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id > w.position {
		w.position = id
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// prime sets the starting position to the current maximum row ID. A
// failure is retried on the next sweep; no rows are processed until
// priming succeeds.
func (w *Watcher) prime(ctx context.Context) bool {
	w.mu.Lock()
	primed := w.primed
	w.mu.Unlock()
	if primed {
		return true
	}

	queryCtx, cancel := context.WithTimeout(ctx, watcherQueryTimeout)
	defer cancel()
	id, err := w.store.LatestNoteID(queryCtx)
	if err != nil {
		w.logger.Warn("failed to read initial watcher position", "error", err)
		return false
	}

	w.mu.Lock()
	w.position = id
	w.primed = true
	w.mu.Unlock()
	w.logger.Info("detection watcher primed", "position", id)
	return true
}

// sweep drains every row past the current position. Store errors end the
// sweep and the next tick retries from the same position; a failure
// processing one row is logged and the position still advances, so one
// bad detection cannot wedge the watcher.
func (w *Watcher) sweep(ctx context.Context) {
	if !w.prime(ctx) {
		return
	}

	for {
		queryCtx, cancel := context.WithTimeout(ctx, watcherQueryTimeout)
		notes, err := w.store.GetNotesAfter(queryCtx, w.Position(), watcherBatchSize)
		cancel()
		if err != nil {
			w.logger.Warn("failed to poll for new detections",
				"position", w.Position(), "error", err)
			return
		}
		if len(notes) == 0 {
			return
		}

		for i := range notes {
			if ctx.Err() != nil {
				return
			}
			note := &notes[i]
			if _, err := w.proc.Process(ctx, note); err != nil {
				w.logger.Error("failed to process detection",
					"note_id", note.ID,
					"scientific_name", note.ScientificName,
					"error", err)
			}
			w.setPosition(note.ID)
		}

		if len(notes) < watcherBatchSize {
			return
		}
	}
}
