// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup signals whole process trees spawned by the encoder.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/metrics"
)

// ErrKillFailed is returned when a process survives SIGKILL for longer than the kill wait.
var ErrKillFailed = errors.New("kill operation failed")

// Terminate asks the process group of cmd to stop with sig, waits up to grace
// for done to close and escalates to SIGKILL afterwards.
// forced reports whether the SIGKILL escalation was needed.
// It is safe to call on nil or unstarted commands.
func Terminate(cmd *exec.Cmd, done <-chan struct{}, sig syscall.Signal, grace, killWait time.Duration) (forced bool, err error) {
	if cmd == nil || cmd.Process == nil {
		return false, nil
	}
	pid := cmd.Process.Pid

	select {
	case <-done:
		return false, nil
	default:
	}

	recordSignal(sig.String(), Signal(cmd, sig))

	select {
	case <-done:
		metrics.IncProcWait("graceful")
		return false, nil
	case <-time.After(grace):
	}

	log.L().Warn().
		Int(log.FieldPID, pid).
		Str(log.FieldSignal, sig.String()).
		Dur("grace", grace).
		Msg("grace period exceeded, sending SIGKILL to process group")
	recordSignal("killed", Signal(cmd, syscall.SIGKILL))

	select {
	case <-done:
		metrics.IncProcWait("forced")
		return true, nil
	case <-time.After(killWait):
		metrics.IncProcWait("stuck")
		return true, ErrKillFailed
	}
}

func recordSignal(sig string, err error) {
	switch {
	case err == nil:
		metrics.IncProcTerminate(sig, "sent")
	case errors.Is(err, syscall.ESRCH):
		metrics.IncProcTerminate(sig, "esrch")
	default:
		metrics.IncProcTerminate(sig, "error")
	}
}
