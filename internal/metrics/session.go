// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the jibri session lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No session ids in labels: one series per reason/mode only.

var (
	SessionStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jibri_session_starts_total",
		Help: "Session start requests, by mode and result (ok, busy, expired, unhealthy, invalid).",
	}, []string{"mode", "result"})

	SessionEndTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jibri_session_end_total",
		Help: "Finished sessions, by mode, outcome class and reason.",
	}, []string{"mode", "class", "reason"})

	HealthCheckEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jibri_health_check_events_total",
		Help: "Call health checks that fired, by check and reason.",
	}, []string{"check", "reason"})

	TimeToRunning = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jibri_time_to_running_seconds",
		Help:    "Time from session start until the encoder reported progress.",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34},
	}, []string{"mode"})

	// JibriState is 1 for the current public state and 0 for all others.
	JibriState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jibri_state",
		Help: "Current public jibri state (one-hot).",
	}, []string{"state"})
)

var knownStates = []string{"idle", "busy", "error", "expired"}

// RecordSessionStart records the outcome of a start request.
func RecordSessionStart(mode, result string) {
	SessionStartsTotal.WithLabelValues(mode, result).Inc()
}

// RecordSessionEnd records a completed session.
func RecordSessionEnd(mode, class, reason string) {
	if reason == "" {
		reason = "none"
	}
	SessionEndTotal.WithLabelValues(mode, class, reason).Inc()
}

// RecordHealthCheckEvent records a fired call health check.
func RecordHealthCheckEvent(check, reason string) {
	HealthCheckEventsTotal.WithLabelValues(check, reason).Inc()
}

// ObserveTimeToRunning records the startup latency of a session.
func ObserveTimeToRunning(mode string, start time.Time) {
	TimeToRunning.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// SetJibriState flips the one-hot state gauge.
func SetJibriState(state string) {
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		JibriState.WithLabelValues(s).Set(v)
	}
}
