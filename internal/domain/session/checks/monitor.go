// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package checks

import (
	"context"
	"time"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/metrics"
)

const defaultInterval = 15 * time.Second

// Monitor polls a CallObserver and runs every check on each sample.
type Monitor struct {
	observer ports.CallObserver
	checks   []Check
	interval time.Duration
	clk      clock.Clock
}

// NewMonitor creates a monitor. interval defaults to 15s.
func NewMonitor(observer ports.CallObserver, checks []Check, interval time.Duration, clk clock.Clock) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{observer: observer, checks: checks, interval: interval, clk: clock.OrReal(clk)}
}

// Run polls until a check fires or ctx is done. It returns the first check
// result, or nil on cancellation.
func (m *Monitor) Run(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "checks")
	ticker := m.clk.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}

		stats, err := m.observer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn().Err(err).Str(log.FieldEvent, "checks.poll_failed").Msg("call poll failed")
			continue
		}
		if err := m.Evaluate(stats); err != nil {
			reason, _ := lifecycle.ClassifyReason(err)
			logger.Info().
				Str(log.FieldEvent, "checks.fired").
				Str(log.FieldReason, string(reason)).
				Err(err).
				Msg("health check ended the session")
			return err
		}
	}
}

// Evaluate feeds one sample to every check and returns the first result.
// All checks see every sample so their timers stay consistent.
func (m *Monitor) Evaluate(stats ports.CallStats) error {
	var first error
	for _, c := range m.checks {
		if err := c.Evaluate(stats); err != nil && first == nil {
			reason, _ := lifecycle.ClassifyReason(err)
			metrics.RecordHealthCheckEvent(c.Name(), string(reason))
			first = err
		}
	}
	return first
}
