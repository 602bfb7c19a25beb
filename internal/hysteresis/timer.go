// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package hysteresis tracks how long a polled condition has continuously held.
package hysteresis

import (
	"time"

	"github.com/ManuGH/jibri/internal/clock"
)

// Timer remembers when a condition first became true. A false observation resets it.
// A Timer is not safe for concurrent use.
type Timer struct {
	clk    clock.Clock
	since  time.Time
	active bool
}

// New returns an idle timer. A nil clock means wall time.
func New(clk clock.Clock) *Timer {
	return &Timer{clk: clock.OrReal(clk)}
}

// Observe records the current value of the condition.
func (t *Timer) Observe(cond bool) {
	switch {
	case !cond:
		t.active = false
	case !t.active:
		t.active = true
		t.since = t.clk.Now()
	}
}

// Reset forgets any running interval.
func (t *Timer) Reset() {
	t.active = false
}

// Active reports whether the condition currently holds.
func (t *Timer) Active() bool {
	return t.active
}

// Elapsed returns how long the condition has held, or zero.
func (t *Timer) Elapsed() time.Duration {
	if !t.active {
		return 0
	}
	return t.clk.Since(t.since)
}

// ExceededTimeout reports whether the condition has held for strictly longer than d.
func (t *Timer) ExceededTimeout(d time.Duration) bool {
	return t.active && t.clk.Since(t.since) > d
}
