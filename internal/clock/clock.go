// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package clock abstracts time so watchdogs and debouncers can be driven by tests.
package clock

import "time"

// Clock is the subset of the time package used by timers in this repository.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer mirrors the Stop half of time.Timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports false if it already fired or was stopped.
	Stop() bool
}

// Ticker mirrors time.Ticker behind an interface.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time                         { return time.Now() }
func (Real) Since(t time.Time) time.Duration        { return time.Since(t) }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (Real) NewTicker(d time.Duration) Ticker       { return &realTicker{time.NewTicker(d)} }
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// OrReal returns c, or the wall clock if c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
