package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tphakala/birdnet-notifier/internal/errors"
)

// catchUpLimit bounds the schedule walk for a job that has been idle for a
// very long time relative to its cadence.
const catchUpLimit = 100000

// ParseSchedule parses a standard five field cron expression or one of the
// @hourly style descriptors.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.New(err).
			Component("scheduler").
			Category(errors.CategoryCronParse).
			Context("expression", expr).
			Build()
	}
	return schedule, nil
}

// mostRecentFire returns the latest occurrence of the schedule that is
// strictly after anchor and not after now, plus the number of earlier
// occurrences that were passed over. A zero fire time means nothing is due.
//
// Walking forward from the anchor rather than guessing backwards from now
// keeps the occurrence sequence identical to what an always-on process
// would have seen, which is what makes collapsed catch-up fires exact.
func mostRecentFire(schedule cron.Schedule, anchor, now time.Time) (fire time.Time, skipped int) {
	next := schedule.Next(anchor)
	if next.IsZero() || next.After(now) {
		return time.Time{}, 0
	}

	fire = next
	for range catchUpLimit {
		next = schedule.Next(fire)
		if next.IsZero() || next.After(now) {
			break
		}
		fire = next
		skipped++
	}
	return fire, skipped
}

// scheduleInterval estimates the cadence of a schedule from the gap between
// its next two occurrences after from.
func scheduleInterval(schedule cron.Schedule, from time.Time) time.Duration {
	first := schedule.Next(from)
	if first.IsZero() {
		return 0
	}
	second := schedule.Next(first)
	if second.IsZero() {
		return 0
	}
	return second.Sub(first)
}
