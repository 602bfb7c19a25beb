// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package proc supervises long-lived external processes and lets several
// consumers observe their output independently.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/metrics"
	"github.com/ManuGH/jibri/internal/procgroup"
	"github.com/rs/zerolog"
)

var (
	// ErrProcessFailedToStart wraps OS spawn failures.
	ErrProcessFailedToStart = errors.New("process failed to start")
	// ErrStopTimeout is returned when a process survived SIGKILL.
	ErrStopTimeout = errors.New("process did not exit after kill")
)

const (
	defaultStopTimeout = 10 * time.Second
	defaultKillWait    = 5 * time.Second
)

// Command describes a process to launch.
type Command struct {
	Name string
	Args []string
	Env  []string // appended to the parent environment
	Dir  string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Options tune how a Handle stops its process.
type Options struct {
	// StopSignal is sent to the process group by Stop. Defaults to SIGINT.
	StopSignal syscall.Signal
	// StopTimeout bounds the wait after StopSignal before SIGKILL.
	StopTimeout time.Duration
	// KillWait bounds the wait after SIGKILL.
	KillWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.StopSignal == 0 {
		o.StopSignal = syscall.SIGINT
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = defaultStopTimeout
	}
	if o.KillWait <= 0 {
		o.KillWait = defaultKillWait
	}
	return o
}

// Handle owns one running OS process. stdout and stderr are merged.
type Handle struct {
	command Command
	opts    Options
	cmd     *exec.Cmd
	out     *Broadcaster
	tail    *LineTail

	done     chan struct{}
	exitCode int
	waitErr  error

	stopOnce sync.Once
	stopErr  error
}

// Launch spawns the command. The returned Handle must be stopped by its owner.
func Launch(ctx context.Context, c Command, opts Options) (*Handle, error) {
	logger := log.WithComponentFromContext(ctx, "proc")
	opts = opts.withDefaults()

	cmd := exec.Command(c.Name, c.Args...) // #nosec G204 -- command is built from operator config
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	procgroup.Set(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		metrics.IncProcStart("error")
		return nil, fmt.Errorf("%w: %s: create pipe: %v", ErrProcessFailedToStart, c.Name, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	h := &Handle{
		command:  c,
		opts:     opts,
		cmd:      cmd,
		out:      NewBroadcaster(),
		done:     make(chan struct{}),
		exitCode: -1,
	}
	// Branch before the process can write anything.
	h.tail = NewLineTail(NewLineReader(h.out.Branch()))

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		h.out.CloseWithError(err)
		metrics.IncProcStart("error")
		return nil, fmt.Errorf("%w: %s: %v", ErrProcessFailedToStart, c.Name, err)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()
	metrics.IncProcStart("ok")

	logger.Info().
		Str(log.FieldEvent, "proc.started").
		Int(log.FieldPID, cmd.Process.Pid).
		Str("command", c.String()).
		Msg("process started")

	go h.pump(pr)
	go h.wait(logger)
	return h, nil
}

func (h *Handle) pump(pr *os.File) {
	_, err := io.Copy(h.out, pr)
	_ = pr.Close()
	h.out.CloseWithError(err)
}

func (h *Handle) wait(logger zerolog.Logger) {
	err := h.cmd.Wait()
	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.waitErr = err
	}
	h.exitCode = code
	close(h.done)

	logger.Info().
		Str(log.FieldEvent, "proc.exited").
		Int(log.FieldPID, h.cmd.Process.Pid).
		Int(log.FieldExitCode, code).
		Msg("process exited")
}

// Output returns a new independent line sequence that starts at the current position.
// The caller must Close it.
func (h *Handle) Output() *LineReader {
	return NewLineReader(h.out.Branch())
}

// MostRecentLine returns the last output line, or "" before any output.
func (h *Handle) MostRecentLine() string {
	return h.tail.MostRecentLine()
}

// IsAlive reports whether the process has not been reaped yet.
func (h *Handle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code once the process exited. -1 means killed by a signal.
func (h *Handle) ExitCode() (int, bool) {
	select {
	case <-h.done:
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Done is closed once the process exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Pid returns the OS process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Command returns the launched command.
func (h *Handle) Command() Command {
	return h.command
}

// Wait blocks until the process exited or ctx is done.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-h.done:
		return h.exitCode, h.waitErr
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stop interrupts the process group, waits up to StopTimeout and kills it afterwards.
// Repeated calls return the first result.
func (h *Handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() {
		grace := h.opts.StopTimeout
		if ctx.Err() != nil {
			grace = 0
		} else if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < grace {
				grace = left
			}
		}
		forced, err := procgroup.Terminate(h.cmd, h.done, h.opts.StopSignal, grace, h.opts.KillWait)
		logger := log.WithComponentFromContext(ctx, "proc")
		if err != nil {
			h.stopErr = fmt.Errorf("%w: pid %d: %v", ErrStopTimeout, h.Pid(), err)
			logger.Error().Err(h.stopErr).Str(log.FieldEvent, "proc.stop_failed").Msg("process did not stop")
			return
		}
		logger.Debug().
			Str(log.FieldEvent, "proc.stopped").
			Int(log.FieldPID, h.Pid()).
			Bool("forced", forced).
			Msg("process stopped")
	})
	return h.stopErr
}
