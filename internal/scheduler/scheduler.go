// Package scheduler fires periodic summary jobs from cron schedules. Each
// job carries a durable last fired time; on every tick the scheduler looks
// for schedule occurrences strictly after it and fires the most recent one,
// so a stopped process catches up with exactly one summary instead of a
// backlog. State advances only once a dispatch has succeeded or definitively
// failed, through a compare and swap shared with the one-shot CLI path.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tphakala/birdnet-notifier/internal/conf"
	"github.com/tphakala/birdnet-notifier/internal/datastore"
	"github.com/tphakala/birdnet-notifier/internal/errors"
	"github.com/tphakala/birdnet-notifier/internal/logging"
	"github.com/tphakala/birdnet-notifier/internal/observability/metrics"
)

// storeQueryTimeout bounds the aggregate queries behind one fire.
const storeQueryTimeout = 30 * time.Second

// Publisher delivers a finished summary to its destinations. It owns the
// retry policy; an error from PublishSummary means delivery has failed for
// good, not that it should be attempted again.
type Publisher interface {
	PublishSummary(ctx context.Context, job *conf.SummaryJobSettings, summary *datastore.SummaryData) error
}

// job couples a summary spec with its parsed schedule and runtime state.
type job struct {
	spec         conf.SummaryJobSettings
	schedule     cron.Schedule
	lastFired    time.Time // in-memory mirror of the durable state
	registeredAt time.Time // anchor for jobs that have never fired
	firing       bool
}

// JobStatus is a point in time view of one job for the status API.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	LastFired time.Time `json:"last_fired"`
	NextFire  time.Time `json:"next_fire"`
	Firing    bool      `json:"firing"`
}

// Scheduler polls job schedules and fires due summaries.
type Scheduler struct {
	store     datastore.Interface
	state     *StateManager
	publisher Publisher
	metrics   *metrics.SchedulerMetrics
	logger    *slog.Logger
	poll      time.Duration

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler with its job table loaded from settings. The
// scheduler does not tick until Start is called, so the one-shot CLI path
// can use the same instance for a single manual fire.
func New(settings *conf.Settings, store datastore.Interface, publisher Publisher, m *metrics.SchedulerMetrics) (*Scheduler, error) {
	statePath, err := conf.SchedulerStateFilePath(settings)
	if err != nil {
		return nil, err
	}

	logger := logging.ForService("scheduler")
	if logger == nil {
		logger = slog.Default().With("service", "scheduler")
	}

	poll := time.Duration(settings.Scheduler.PollSeconds) * time.Second
	if poll <= 0 {
		poll = conf.DefaultPollSeconds * time.Second
	}

	s := &Scheduler{
		store:     store,
		state:     NewStateManager(statePath, logger),
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		poll:      poll,
		jobs:      make(map[string]*job),
	}

	if err := s.Reload(settings.Summaries); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the job table from configuration. Jobs already in the
// table keep their identity, so schedule and lookback edits take effect on
// the next tick without disturbing an in-flight fire. Jobs that disappear
// from the configuration, or are disabled, stop ticking but keep their
// durable state, so re-enabling them does not replay old occurrences.
func (s *Scheduler) Reload(specs []conf.SummaryJobSettings) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(specs))
	for i := range specs {
		spec := specs[i]
		if !spec.Enabled {
			continue
		}

		schedule, err := ParseSchedule(spec.Schedule)
		if err != nil {
			s.logger.Error("skipping summary job with invalid schedule",
				"job", spec.Name, "schedule", spec.Schedule, "error", err)
			continue
		}

		if interval := scheduleInterval(schedule, now); interval > 0 && interval < s.poll {
			s.logger.Warn("poll interval exceeds schedule cadence, fires will lag",
				"job", spec.Name, "cadence", interval, "poll", s.poll)
		}

		seen[spec.Name] = true
		if existing, ok := s.jobs[spec.Name]; ok {
			existing.spec = spec
			existing.schedule = schedule
			continue
		}

		lastFired, err := s.state.LastFired(spec.Name)
		if err != nil {
			return err
		}
		s.jobs[spec.Name] = &job{
			spec:         spec,
			schedule:     schedule,
			lastFired:    lastFired,
			registeredAt: now,
		}
	}

	for name := range s.jobs {
		if !seen[name] {
			delete(s.jobs, name)
		}
	}

	if s.metrics != nil {
		s.metrics.SetActiveJobs(len(s.jobs))
	}
	return nil
}

// Start begins the polling loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("summary scheduler started", "poll", s.poll, "jobs", len(s.jobs))
}

// Stop halts the loop and waits for any in-flight fire to finish its
// current delivery attempt or abandon.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("summary scheduler stopped")
}

// IsRunning reports whether the polling loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Jobs returns the current view of every active job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		anchor := j.lastFired
		if anchor.IsZero() {
			anchor = j.registeredAt
		}
		out = append(out, JobStatus{
			Name:      j.spec.Name,
			Schedule:  j.spec.Schedule,
			LastFired: j.lastFired,
			NextFire:  j.schedule.Next(anchor),
			Firing:    j.firing,
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// TriggerJob fires a job immediately with a window ending now, outside its
// schedule. The durable state advances through the same compare and swap as
// scheduled fires, so a daemon firing the same job concurrently will lose
// the swap and abandon rather than double count. Unlike scheduled fires a
// failed delivery does not consume the occurrence; the caller sees the
// error and can simply run again.
func (s *Scheduler) TriggerJob(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return errors.Newf("unknown summary job %q", name).
			Component("scheduler").
			Category(errors.CategoryNotFound).
			Build()
	}
	if j.firing {
		s.mu.Unlock()
		return errors.Newf("summary job %q is already firing", name).
			Component("scheduler").
			Category(errors.CategoryScheduling).
			Build()
	}
	j.firing = true
	spec := j.spec
	previous := j.lastFired
	s.mu.Unlock()

	fireAt := time.Now()

	summary, err := s.querySummary(ctx, &spec, fireAt)
	if err != nil {
		s.finish(j, time.Time{})
		return err
	}

	if err := s.publisher.PublishSummary(ctx, &spec, summary); err != nil {
		s.finish(j, time.Time{})
		return err
	}

	if err := s.state.Advance(name, previous, fireAt); err != nil {
		if errors.IsStateConflict(err) {
			s.syncFromState(j, name)
		} else {
			s.finish(j, fireAt)
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordStatePersist("success")
	}
	s.finish(j, fireAt)
	s.logger.Info("summary job fired manually", "job", name, "fire_at", fireAt)
	return nil
}

// run is the polling loop.
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.checkJobs(ctx, now)
		}
	}
}

// checkJobs fires every job with a schedule occurrence since its last fire.
// Multiple missed occurrences collapse into one fire at the most recent of
// them, so the state still advances past all of them.
func (s *Scheduler) checkJobs(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.firing {
			continue
		}

		anchor := j.lastFired
		if anchor.IsZero() {
			anchor = j.registeredAt
		}

		fireAt, skipped := mostRecentFire(j.schedule, anchor, now)
		if s.metrics != nil {
			s.metrics.SetNextFireTime(j.spec.Name, j.schedule.Next(anchor))
		}
		if fireAt.IsZero() {
			continue
		}

		if skipped > 0 {
			s.logger.Warn("collapsing missed summary occurrences",
				"job", j.spec.Name, "skipped", skipped, "fire_at", fireAt)
			if s.metrics != nil {
				s.metrics.RecordCatchUpRun(j.spec.Name)
			}
		}

		j.firing = true
		s.wg.Add(1)
		go s.fire(ctx, j, j.spec, j.lastFired, fireAt)
	}
}

// fire runs one scheduled occurrence: query the window ending at fireAt,
// dispatch, then advance the durable state. A store failure leaves the
// occurrence due so the next tick retries it; a delivery failure after the
// publisher's retries consumes it anyway, so a dead destination cannot
// wedge the job forever.
func (s *Scheduler) fire(ctx context.Context, j *job, spec conf.SummaryJobSettings, previous, fireAt time.Time) {
	defer s.wg.Done()

	start := time.Now()

	summary, err := s.querySummary(ctx, &spec, fireAt)
	if err != nil {
		s.logger.Error("summary window query failed, occurrence stays due",
			"job", spec.Name, "fire_at", fireAt, "error", err)
		s.recordRun(spec.Name, "store_error", start)
		s.finish(j, time.Time{})
		return
	}

	status := "success"
	if err := s.publisher.PublishSummary(ctx, &spec, summary); err != nil {
		if ctx.Err() != nil {
			// Shutdown interrupted the delivery. Leave the occurrence
			// unconsumed so the next start fires it exactly once.
			s.finish(j, time.Time{})
			return
		}
		status = "publish_error"
		s.logger.Error("summary dispatch failed",
			"job", spec.Name, "fire_at", fireAt, "error", err)
	}

	if err := s.state.Advance(spec.Name, previous, fireAt); err != nil {
		if errors.IsStateConflict(err) {
			// Another process consumed this occurrence first.
			if s.metrics != nil {
				s.metrics.RecordStatePersistConflict()
			}
			s.logger.Debug("job advanced by another process, abandoning fire",
				"job", spec.Name, "fire_at", fireAt)
			s.recordRun(spec.Name, "conflict", start)
			s.syncFromState(j, spec.Name)
			return
		}

		if s.metrics != nil {
			s.metrics.RecordStatePersist("error")
		}
		s.logger.Error("failed to persist last fired time",
			"job", spec.Name, "fire_at", fireAt, "error", err)
		// Advance in memory anyway so this process does not refire; the
		// next successful persist repairs the file.
		s.recordRun(spec.Name, "state_error", start)
		s.finish(j, fireAt)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordStatePersist("success")
	}
	s.recordRun(spec.Name, status, start)
	s.finish(j, fireAt)
	s.logger.Info("summary job fired",
		"job", spec.Name,
		"fire_at", fireAt,
		"window_minutes", spec.LookbackMinutes,
		"status", status)
}

// querySummary loads the aggregate window for one fire.
func (s *Scheduler) querySummary(ctx context.Context, spec *conf.SummaryJobSettings, fireAt time.Time) (*datastore.SummaryData, error) {
	topN := spec.TopSpecies
	if topN <= 0 {
		topN = conf.DefaultTopSpecies
	}
	windowStart := fireAt.Add(-time.Duration(spec.LookbackMinutes) * time.Minute)

	queryCtx, cancel := context.WithTimeout(ctx, storeQueryTimeout)
	defer cancel()
	return s.store.SummaryWindow(queryCtx, windowStart, fireAt, topN)
}

// recordRun records one fire's outcome and duration when metrics are enabled.
func (s *Scheduler) recordRun(name, status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordJobRun(name, status, time.Since(start).Seconds())
	}
}

// finish clears the firing flag and, when the fire consumed its occurrence,
// moves the in-memory last fired time forward.
func (s *Scheduler) finish(j *job, firedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j.firing = false
	if !firedAt.IsZero() && firedAt.After(j.lastFired) {
		j.lastFired = firedAt
		if s.metrics != nil {
			s.metrics.SetLastFiredTime(j.spec.Name, firedAt)
		}
	}
}

// syncFromState reloads a job's in-memory last fired time after losing a
// compare and swap to another process.
func (s *Scheduler) syncFromState(j *job, name string) {
	stored, err := s.state.LastFired(name)
	if err != nil {
		s.logger.Error("failed to reload job state after conflict",
			"job", name, "error", err)
		s.finish(j, time.Time{})
		return
	}
	s.finish(j, stored)
}
