// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jibri_proc_terminate_total",
		Help: "Signals sent to supervised process groups, by signal and result.",
	}, []string{"signal", "result"})

	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jibri_proc_wait_total",
		Help: "Supervised process terminations, by how the process went away.",
	}, []string{"outcome"})

	ProcStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jibri_proc_start_total",
		Help: "Subprocess launches, by result.",
	}, []string{"result"})

	EncoderRestartTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jibri_encoder_restart_total",
		Help: "Encoder relaunches after a crash.",
	})
)

// IncProcTerminate records a signal delivery attempt.
func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process went away.
func IncProcWait(outcome string) {
	ProcWaitTotal.WithLabelValues(outcome).Inc()
}

// IncProcStart records a subprocess launch result ("ok" or "error").
func IncProcStart(result string) {
	ProcStartTotal.WithLabelValues(result).Inc()
}

// IncEncoderRestart records an encoder relaunch.
func IncEncoderRestart() {
	EncoderRestartTotal.Inc()
}
