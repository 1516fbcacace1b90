// Copyright 2026 VMC Systems Contributors. Use of this source code is
// governed by a MIT-style license that can be found in the LICENSE file.

// Package ratewatch applies catrate's sliding-window Limiter to two link
// diagnostics concerns: capping how often malformed-frame notes get
// logged, and tracking whether the VMC's POLL cadence is healthy.
package ratewatch

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/rs/zerolog"

	"code.vendctrl.io/vmc/frame"
)

// defaultDiagnosticRate allows at most 5 logged diagnostics per second and
// 60 per minute, so a jammed line spewing checksum failures can't flood
// the log.
var defaultDiagnosticRate = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// DiagnosticLogger returns a frame.DiagnosticFunc that logs at most the
// rates given by limiter allow for the "frame-diagnostic" category,
// silently dropping the rest (a dropped-note counter is not kept — the
// log line itself states what was observed).
func DiagnosticLogger(log zerolog.Logger, limiter *catrate.Limiter) frame.DiagnosticFunc {
	return func(note string) {
		if _, ok := limiter.Allow("frame-diagnostic"); !ok {
			return
		}
		log.Warn().Str("note", note).Msg("frame diagnostic")
	}
}

// NewDiagnosticLimiter builds a Limiter with the default diagnostic-log
// throttling rates.
func NewDiagnosticLimiter() *catrate.Limiter {
	return catrate.NewLimiter(defaultDiagnosticRate)
}

// PollWatchdog tracks whether POLL frames are arriving at roughly the
// expected cadence (vmc_poll_interval, informational per spec.md §6). It
// reports unhealthy once more than missedAllowance consecutive expected
// polls have been skipped.
type PollWatchdog struct {
	interval time.Duration
	lastPoll time.Time
	allowed  time.Duration
}

// NewPollWatchdog builds a watchdog expecting a POLL roughly every
// interval, tolerant of missing up to missedAllowance consecutive polls
// before reporting unhealthy.
func NewPollWatchdog(interval time.Duration, missedAllowance int) *PollWatchdog {
	if missedAllowance < 1 {
		missedAllowance = 1
	}
	return &PollWatchdog{
		interval: interval,
		allowed:  interval * time.Duration(missedAllowance),
	}
}

// Observe records that a POLL frame just arrived.
func (w *PollWatchdog) Observe(now time.Time) {
	w.lastPoll = now
}

// Healthy reports whether a POLL has arrived recently enough, relative to
// now. Before the first observed POLL, it reports healthy optimistically
// — the controller may simply have just started.
func (w *PollWatchdog) Healthy(now time.Time) bool {
	if w.lastPoll.IsZero() {
		return true
	}
	return now.Sub(w.lastPoll) <= w.allowed
}
