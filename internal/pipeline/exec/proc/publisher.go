// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/log"
)

const defaultWatchdogInterval = 2 * time.Second

// ProcessState is an immutable snapshot of a supervised process.
type ProcessState struct {
	Exited         bool
	ExitCode       int // only meaningful when Exited
	MostRecentLine string
}

func (s ProcessState) String() string {
	if s.Exited {
		return fmt.Sprintf("exited(%d) last=%q", s.ExitCode, s.MostRecentLine)
	}
	return fmt.Sprintf("running last=%q", s.MostRecentLine)
}

// Process is the view of a Handle the publisher needs.
type Process interface {
	Output() *LineReader
	IsAlive() bool
	ExitCode() (int, bool)
	MostRecentLine() string
}

// PublisherOptions configures a StatePublisher.
type PublisherOptions struct {
	// Interval is the watchdog period. Defaults to 2s.
	Interval time.Duration
	Clock    clock.Clock
}

// StatePublisher turns process output and liveness into ProcessState events.
//
// Every output line publishes a running state carrying that line. Exit is never
// inferred from output: a watchdog checks liveness only when no line arrived for
// a full interval and publishes the exited state once the process is reaped.
type StatePublisher struct {
	proc     Process
	clk      clock.Clock
	interval time.Duration

	// deliverMu serializes callbacks so subscribers see states in order.
	deliverMu sync.Mutex
	mu        sync.Mutex
	subs      []func(ProcessState)
	latest    *ProcessState
	lastLine  time.Time
	exited    bool

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewStatePublisher creates a publisher for p. Call Start to begin observing.
func NewStatePublisher(p Process, opts PublisherOptions) *StatePublisher {
	if opts.Interval <= 0 {
		opts.Interval = defaultWatchdogInterval
	}
	clk := clock.OrReal(opts.Clock)
	return &StatePublisher{
		proc:     p,
		clk:      clk,
		interval: opts.Interval,
		lastLine: clk.Now(),
		cancel:   func() {},
	}
}

// Start launches the line reader and the watchdog. Further calls are no-ops.
func (sp *StatePublisher) Start(ctx context.Context) {
	sp.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		sp.mu.Lock()
		sp.cancel = cancel
		sp.mu.Unlock()

		lines := sp.proc.Output()
		sp.wg.Add(2)
		go sp.readLines(ctx, lines)
		go sp.watchdog(ctx)
	})
}

// Subscribe registers fn. If a state was already published, fn is called with it
// before Subscribe returns. fn must not call Subscribe.
func (sp *StatePublisher) Subscribe(fn func(ProcessState)) {
	sp.deliverMu.Lock()
	defer sp.deliverMu.Unlock()

	sp.mu.Lock()
	sp.subs = append(sp.subs, fn)
	var replay *ProcessState
	if sp.latest != nil {
		s := *sp.latest
		replay = &s
	}
	sp.mu.Unlock()

	if replay != nil {
		fn(*replay)
	}
}

// Latest returns the last published state.
func (sp *StatePublisher) Latest() (ProcessState, bool) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.latest == nil {
		return ProcessState{}, false
	}
	return *sp.latest, true
}

// Stop ends observation. It does not touch the process.
func (sp *StatePublisher) Stop() {
	sp.mu.Lock()
	cancel := sp.cancel
	sp.mu.Unlock()
	cancel()
}

// Wait blocks until both background loops returned. Must not be called from a subscriber.
func (sp *StatePublisher) Wait() {
	sp.wg.Wait()
}

func (sp *StatePublisher) readLines(ctx context.Context, lines *LineReader) {
	defer sp.wg.Done()
	defer lines.Close()
	err := lines.Each(ctx, func(line string) bool {
		sp.mu.Lock()
		sp.lastLine = sp.clk.Now()
		sp.mu.Unlock()
		sp.publish(ProcessState{MostRecentLine: line})
		return true
	})
	if err != nil && ctx.Err() == nil {
		logger := log.WithComponentFromContext(ctx, "proc")
		logger.Debug().Err(err).
			Str(log.FieldEvent, "proc.output_error").
			Msg("process output reader stopped")
	}
}

func (sp *StatePublisher) watchdog(ctx context.Context) {
	defer sp.wg.Done()
	ticker := sp.clk.NewTicker(sp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		sp.mu.Lock()
		quiet := sp.clk.Since(sp.lastLine) >= sp.interval
		sp.mu.Unlock()
		if !quiet || sp.proc.IsAlive() {
			continue
		}
		code, ok := sp.proc.ExitCode()
		if !ok {
			continue
		}
		sp.publish(ProcessState{Exited: true, ExitCode: code, MostRecentLine: sp.proc.MostRecentLine()})
		return
	}
}

func (sp *StatePublisher) publish(s ProcessState) {
	sp.deliverMu.Lock()
	defer sp.deliverMu.Unlock()

	sp.mu.Lock()
	if sp.exited {
		sp.mu.Unlock()
		return
	}
	if s.Exited {
		sp.exited = true
	}
	sp.latest = &s
	subs := make([]func(ProcessState), len(sp.subs))
	copy(subs, sp.subs)
	sp.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}
