package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/novelty"
)

// cooldownTracker enforces the per-species quiet period between alerts.
// Sent alerts are recorded in the notification history table so the
// quiet period survives restarts and is shared between the daemon and
// one-shot invocations.
type cooldownTracker struct {
	window time.Duration
	store  datastore.Interface
	logger *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func newCooldownTracker(window time.Duration, store datastore.Interface, logger *slog.Logger) *cooldownTracker {
	return &cooldownTracker{
		window:   window,
		store:    store,
		logger:   logger,
		lastSent: make(map[string]time.Time),
	}
}

// historyType maps a novelty flag to its persisted notification type.
func historyType(g novelty.Granularity) string {
	switch g {
	case novelty.FirstOfYear:
		return "new_this_year"
	case novelty.FirstOfSeason:
		return "new_this_season"
	default:
		return "new_species"
	}
}

// restore warms the tracker from history rows still inside the window.
func (t *cooldownTracker) restore(ctx context.Context) error {
	if t.window <= 0 || t.store == nil {
		return nil
	}

	histories, err := t.store.GetActiveNotificationHistory(ctx, time.Now().Add(-t.window))
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range histories {
		h := &histories[i]
		if h.LastSent.After(t.lastSent[h.ScientificName]) {
			t.lastSent[h.ScientificName] = h.LastSent
		}
	}
	if len(t.lastSent) > 0 {
		t.logger.Debug("cooldown state restored", "species", len(t.lastSent))
	}
	return nil
}

// allowed reports whether the species is outside its quiet period. It
// does not start one; that happens in markSent after the alert actually
// went out, so a failed delivery does not burn the cooldown.
func (t *cooldownTracker) allowed(scientificName string, now time.Time) bool {
	if t.window <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastSent[scientificName]
	return !ok || now.Sub(last) >= t.window
}

// markSent starts the quiet period and persists one history row per
// raised flag. Persistence failures are logged and swallowed; the alert
// is already out and the in-memory state still covers this process.
func (t *cooldownTracker) markSent(ctx context.Context, result *novelty.Result, now time.Time) {
	if t.window <= 0 {
		return
	}

	t.mu.Lock()
	t.lastSent[result.Note.ScientificName] = now
	t.mu.Unlock()

	if t.store == nil {
		return
	}
	for _, flag := range result.Flags {
		history := &datastore.NotificationHistory{
			ScientificName:   result.Note.ScientificName,
			NotificationType: historyType(flag),
			LastSent:         now,
			ExpiresAt:        now.Add(t.window),
		}
		if err := t.store.SaveNotificationHistory(ctx, history); err != nil {
			t.logger.Warn("failed to persist notification history",
				"scientific_name", result.Note.ScientificName,
				"notification_type", history.NotificationType,
				"error", err)
		}
	}
}
