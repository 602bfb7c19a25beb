// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/metrics"
	"github.com/ManuGH/jibri/internal/pipeline/exec/proc"
)

// ErrAlreadyLaunched is returned by a second Launch.
var ErrAlreadyLaunched = errors.New("encoder already launched")

const (
	defaultRingSize   = 256
	restartStopBudget = 5 * time.Second
)

// Options tune an Encoder.
type Options struct {
	StopTimeout time.Duration
	// MaxRestarts bounds relaunches after a crash. Zero disables them.
	MaxRestarts      int
	WatchdogInterval time.Duration
	RingSize         int
	Clock            clock.Clock
}

// Encoder supervises one capture process per attempt and reports a single
// ComponentState stream across restarts.
type Encoder struct {
	dialect Dialect
	opts    Options
	clk     clock.Clock
	ring    *LineRing
	states  chan model.ComponentState

	lastOutput  atomic.Int64
	progressLog rate.Sometimes

	mu       sync.Mutex
	ctx      context.Context
	logger   zerolog.Logger
	sink     ports.EncoderSink
	attempt  int
	restarts int
	handle   *proc.Handle
	pub      *proc.StatePublisher
	machine  *StatusMachine
	external model.ComponentState
	outputs  []string
	launched bool
	stopping bool
	closed   bool
	pubs     []*proc.StatePublisher

	restartWG sync.WaitGroup
	stopOnce  sync.Once
	stopErr   error
}

var _ ports.Encoder = (*Encoder)(nil)

// NewEncoder creates an idle encoder for dialect.
func NewEncoder(dialect Dialect, opts Options) *Encoder {
	if opts.RingSize <= 0 {
		opts.RingSize = defaultRingSize
	}
	if opts.MaxRestarts < 0 {
		opts.MaxRestarts = 0
	}
	return &Encoder{
		dialect:     dialect,
		opts:        opts,
		clk:         clock.OrReal(opts.Clock),
		ring:        NewLineRing(opts.RingSize),
		states:      make(chan model.ComponentState, 4),
		progressLog: rate.Sometimes{Interval: 30 * time.Second},
		external:    model.StartingUp(),
		logger:      log.WithComponent("encoder"),
	}
}

// Launch starts the first attempt.
func (e *Encoder) Launch(ctx context.Context, sink ports.EncoderSink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.launched {
		return ErrAlreadyLaunched
	}
	e.launched = true
	e.ctx = ctx
	e.sink = sink
	e.logger = log.WithComponentFromContext(ctx, "encoder").With().Str("encoder", e.dialect.Name()).Logger()
	return e.launchLocked()
}

func (e *Encoder) launchLocked() error {
	target := e.sink
	if target.Mode == model.ModeRecord {
		target.Target = PartPath(e.sink.Target, e.attempt)
	}

	cmd, err := e.dialect.Command(target)
	if err != nil {
		return lifecycle.NewReasonError(model.REncoderFailed, "build command", err)
	}
	h, err := proc.Launch(e.ctx, cmd, proc.Options{StopTimeout: e.opts.StopTimeout})
	if err != nil {
		return lifecycle.NewReasonError(model.RProcessFailedToStart, e.dialect.Name(), err)
	}

	e.handle = h
	e.machine = NewStatusMachine(e.dialect.Classify)
	if target.Mode == model.ModeRecord {
		e.outputs = append(e.outputs, target.Target)
	}
	if e.attempt > 0 {
		// Grace for the relaunched process before it counts as hung.
		e.lastOutput.Store(e.clk.Now().UnixNano())
	}

	attempt := e.attempt
	pub := proc.NewStatePublisher(h, proc.PublisherOptions{Interval: e.opts.WatchdogInterval, Clock: e.opts.Clock})
	pub.Subscribe(func(ps proc.ProcessState) { e.onProcessState(attempt, ps) })
	pub.Start(e.ctx)
	e.pub = pub
	e.pubs = append(e.pubs, pub)

	e.logger.Info().
		Str(log.FieldEvent, "encoder.launched").
		Int(log.FieldAttempt, attempt).
		Int(log.FieldPID, h.Pid()).
		Str(log.FieldSink, target.Target).
		Msg("encoder launched")
	return nil
}

func (e *Encoder) onProcessState(attempt int, ps proc.ProcessState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if attempt != e.attempt || e.closed {
		return
	}

	if !ps.Exited {
		e.ring.Add(ps.MostRecentLine)
		e.lastOutput.Store(e.clk.Now().UnixNano())
		e.progressLog.Do(func() {
			e.logger.Debug().Str(log.FieldEvent, "encoder.progress").Str(log.FieldLine, ps.MostRecentLine).Msg("encoder output")
		})
	}

	s, changed := e.machine.ApplyProcessState(ps)
	if !changed {
		return
	}

	switch s.Kind {
	case model.KindRunning:
		e.emitLocked(s)
	case model.KindFinished:
		e.emitLocked(s)
		e.closeLocked()
	case model.KindError:
		if !e.stopping && e.restarts < e.opts.MaxRestarts && e.dialect.Restartable(s) {
			e.restarts++
			e.attempt++
			old, oldPub := e.handle, e.pub
			e.logger.Warn().
				Str(log.FieldEvent, "encoder.restart").
				Int(log.FieldAttempt, e.attempt).
				Str(log.FieldReason, string(s.Reason)).
				Strs("last_output", e.ring.LastN(10)).
				Msg("encoder crashed, relaunching")
			e.restartWG.Add(1)
			go e.restart(old, oldPub, e.attempt)
			return
		}
		e.emitLocked(s)
		e.closeLocked()
	}
}

func (e *Encoder) restart(old *proc.Handle, oldPub *proc.StatePublisher, attempt int) {
	defer e.restartWG.Done()
	oldPub.Stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), restartStopBudget)
	_ = old.Stop(stopCtx)
	cancel()
	metrics.IncEncoderRestart()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping || e.closed || attempt != e.attempt {
		return
	}
	if err := e.launchLocked(); err != nil {
		var rerr *lifecycle.ReasonError
		s := model.Failed(lifecycle.ScopeOf(err), model.REncoderFailed, err.Error())
		if errors.As(err, &rerr) {
			s = model.Failed(rerr.Scope, rerr.Reason, rerr.Detail)
		}
		e.emitLocked(s)
		e.closeLocked()
	}
}

func (e *Encoder) emitLocked(s model.ComponentState) {
	if e.closed || (s.Kind == e.external.Kind && !s.Kind.Terminal()) {
		return
	}
	e.external = s
	select {
	case e.states <- s:
	default:
		e.logger.Warn().Str(log.FieldEvent, "encoder.state_dropped").Str(log.FieldNewState, s.String()).Msg("state channel full")
	}
}

func (e *Encoder) closeLocked() {
	if !e.closed {
		e.closed = true
		close(e.states)
	}
}

// States delivers Running once, then at most one terminal state. Closed afterwards or on Stop.
func (e *Encoder) States() <-chan model.ComponentState {
	return e.states
}

// LastOutputAt is the arrival time of the most recent output line.
func (e *Encoder) LastOutputAt() time.Time {
	ns := e.lastOutput.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LastOutput returns up to n recent output lines.
func (e *Encoder) LastOutput(n int) []string {
	return e.ring.LastN(n)
}

// Outputs lists the recording files written so far.
func (e *Encoder) Outputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.outputs...)
}

// Restarts reports how many relaunches happened.
func (e *Encoder) Restarts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.restarts
}

// Stop interrupts the current attempt and waits for it to exit. Idempotent.
func (e *Encoder) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopping = true
		h := e.handle
		pubs := e.pubs
		e.mu.Unlock()

		for _, p := range pubs {
			p.Stop()
		}
		if h != nil {
			if err := h.Stop(ctx); err != nil {
				e.stopErr = fmt.Errorf("stop %s: %w", e.dialect.Name(), err)
			}
		}
		e.restartWG.Wait()

		// A restart may have registered one more publisher before seeing stopping.
		e.mu.Lock()
		pubs = e.pubs
		e.closeLocked()
		e.mu.Unlock()
		for _, p := range pubs {
			p.Stop()
			p.Wait()
		}
	})
	return e.stopErr
}
