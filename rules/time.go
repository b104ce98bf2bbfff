//go:build ruleguard

// Package gorules holds custom ruleguard rules run through golangci-lint.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// TimeSinceUntil rewrites manual arithmetic against time.Now() to the
// dedicated helpers.
//
//	elapsed := time.Now().Sub(start)   ->  elapsed := time.Since(start)
//	left := deadline.Sub(time.Now())   ->  left := time.Until(deadline)
func TimeSinceUntil(m dsl.Matcher) {
	m.Match(`time.Now().Sub($t)`).
		Report("use time.Since($t) instead of time.Now().Sub($t)").
		Suggest("time.Since($t)")

	m.Match(`$t.Sub(time.Now())`).
		Report("use time.Until($t) instead of $t.Sub(time.Now())").
		Suggest("time.Until($t)")
}

// NamedLayoutConstants flags magic layout strings that have named
// constants since Go 1.20.
//
//	t.Format("2006-01-02")  ->  t.Format(time.DateOnly)
func NamedLayoutConstants(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report("use time.DateTime instead of the spelled-out layout").
		Suggest(`$t.Format(time.DateTime)`)

	m.Match(`$t.Format("2006-01-02")`).
		Report("use time.DateOnly instead of the spelled-out layout").
		Suggest(`$t.Format(time.DateOnly)`)

	m.Match(`$t.Format("15:04:05")`).
		Report("use time.TimeOnly instead of the spelled-out layout").
		Suggest(`$t.Format(time.TimeOnly)`)

	m.Match(`time.Parse("2006-01-02", $s)`).
		Report("use time.DateOnly instead of the spelled-out layout").
		Suggest(`time.Parse(time.DateOnly, $s)`)
}

// DeferredTimeSince flags time.Since passed directly to a deferred
// call. The duration is computed when the defer statement runs, not at
// function exit, so the measurement is always near zero.
//
//	defer logger.Info("done", "elapsed", time.Since(start))       // broken
//	defer func() { logger.Info("done", "elapsed", time.Since(start)) }()
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(
		`defer $fn(time.Since($start))`,
		`defer $fn(time.Since($start), $*args)`,
		`defer $fn($*args, time.Since($start))`,
	).
		Report("time.Since($start) runs when the defer is queued, wrap the call in func() to measure until exit")
}
