// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package manager owns the single session slot of an instance: admission,
// usage timeouts, cancellation and the public JibriState.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/log"
)

// Session is what the manager runs. *job.Session implements it.
type Session interface {
	ID() string
	Run(ctx context.Context) error
	Cancel(reason model.ReasonCode)
	OnRunning(fn func())
}

// Factory builds the session for validated params.
type Factory func(params model.JobParams) (Session, error)

// Options configure a Manager.
type Options struct {
	// SingleUse moves the instance to Expired after its first session.
	SingleUse bool
	// DefaultUsageTimeout applies when the params carry none. Zero means unlimited.
	DefaultUsageTimeout time.Duration
	// Bus receives every JibriState change on ports.TopicJibriState. Optional.
	Bus ports.Bus
	// Clock drives the usage timeout and state timestamps. Nil means the wall clock.
	Clock clock.Clock
}

// Manager runs at most one Session at a time.
type Manager struct {
	ctx    context.Context
	opts   Options
	clk    clock.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	state   model.JibriState
	active  *Handle
	timer   clock.Timer
	onIdle  func()
	closing bool
	wg      sync.WaitGroup
}

// New creates an idle manager. Sessions run under ctx.
func New(ctx context.Context, opts Options) *Manager {
	clk := clock.OrReal(opts.Clock)
	m := &Manager{
		ctx:    ctx,
		opts:   opts,
		clk:    clk,
		logger: log.WithComponent("manager"),
		state:  model.JibriState{Status: model.StatusIdle, Since: clk.Now()},
	}
	recordState(model.StatusIdle)
	return m
}

// Start admits a session or rejects it with ErrBusy, ErrExpired,
// ErrSystemUnhealthy or a bad-request reason error.
func (m *Manager) Start(params model.JobParams, factory Factory) (h *Handle, err error) {
	defer func() { recordStartOutcome(params.Mode, err) }()

	if verr := params.Validate(); verr != nil {
		return nil, lifecycle.NewReasonError(model.RInvalidParams, verr.Error(), verr)
	}
	if params.UsageTimeout == 0 {
		params.UsageTimeout = m.opts.DefaultUsageTimeout
	}

	m.mu.Lock()
	switch {
	case m.closing:
		m.mu.Unlock()
		return nil, ErrShuttingDown
	case m.active != nil:
		m.mu.Unlock()
		return nil, ErrBusy
	case m.state.Status == model.StatusExpired:
		m.mu.Unlock()
		return nil, ErrExpired
	case m.state.Status == model.StatusError:
		m.mu.Unlock()
		return nil, ErrSystemUnhealthy
	}

	sess, err := factory(params)
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("build session: %w", err)
	}

	h = &Handle{session: sess, params: params, done: make(chan struct{})}
	m.active = h
	if params.UsageTimeout > 0 {
		m.timer = m.clk.AfterFunc(params.UsageTimeout, func() {
			m.logger.Info().
				Str(log.FieldEvent, "manager.usage_timeout").
				Str(log.FieldSessionID, params.SessionID).
				Dur("usage_timeout", params.UsageTimeout).
				Msg("usage timeout reached")
			sess.Cancel(model.RTimeout)
		})
	}
	m.wg.Add(1)
	next := m.setStateLocked(model.JibriState{Status: model.StatusBusy, SessionID: params.SessionID, Mode: params.Mode})
	m.mu.Unlock()

	m.publish(next)
	m.logger.Info().
		Str(log.FieldEvent, "manager.session_started").
		Str(log.FieldSessionID, params.SessionID).
		Str(log.FieldMode, string(params.Mode)).
		Msg("session admitted")

	go func() {
		defer m.wg.Done()
		m.complete(h, sess.Run(m.ctx))
	}()
	return h, nil
}

func (m *Manager) complete(h *Handle, err error) {
	out := lifecycle.OutcomeFromError(err)
	recordEnd(h.params.Mode, out)

	m.mu.Lock()
	if m.active == h {
		m.active = nil
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	onIdle := m.onIdle
	m.onIdle = nil

	var next model.JibriState
	switch {
	case out.Class == lifecycle.OutcomeSystemError:
		next = model.JibriState{Status: model.StatusError, Cause: out.Reason, Detail: out.Detail}
	case m.opts.SingleUse:
		next = model.JibriState{Status: model.StatusExpired}
	default:
		next = model.JibriState{Status: model.StatusIdle}
	}
	next = m.setStateLocked(next)
	m.mu.Unlock()

	m.publish(next)

	ev := m.logger.Info()
	if out.Class == lifecycle.OutcomeSessionError || out.Class == lifecycle.OutcomeSystemError {
		ev = m.logger.Warn()
	}
	ev.Str(log.FieldEvent, "manager.session_finished").
		Str(log.FieldSessionID, h.params.SessionID).
		Str("class", string(out.Class)).
		Str(log.FieldReason, string(out.Reason)).
		Str(log.FieldNewState, string(next.Status)).
		Msg("session finished")

	if onIdle != nil {
		onIdle()
	}
	h.finish(err, out)
}

// setStateLocked must be called with mu held.
func (m *Manager) setStateLocked(next model.JibriState) model.JibriState {
	next.Since = m.clk.Now()
	m.state = next
	recordState(next.Status)
	return next
}

func (m *Manager) publish(st model.JibriState) {
	if m.opts.Bus == nil {
		return
	}
	if err := m.opts.Bus.Publish(m.ctx, ports.TopicJibriState, st); err != nil {
		m.logger.Warn().Err(err).Str(log.FieldEvent, "manager.publish_failed").Msg("state publish failed")
	}
}

// ExecuteWhenIdle runs fn now if no session is active, otherwise once the
// active session ended. Only the latest fn is kept.
func (m *Manager) ExecuteWhenIdle(fn func()) {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		fn()
		return
	}
	m.onIdle = fn
	m.mu.Unlock()
}

// Stop cancels the active session. It reports false when there is none.
func (m *Manager) Stop(reason model.ReasonCode) (*Handle, bool) {
	m.mu.Lock()
	h := m.active
	m.mu.Unlock()
	if h == nil {
		return nil, false
	}
	m.logger.Info().
		Str(log.FieldEvent, "manager.stop").
		Str(log.FieldSessionID, h.params.SessionID).
		Str(log.FieldReason, string(reason)).
		Msg("stopping session")
	h.Cancel(reason)
	return h, true
}

// Busy reports whether a session is active.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// State returns the public state.
func (m *Manager) State() model.JibriState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ResetError returns an instance in Error back to Idle. It reports whether
// a reset happened.
func (m *Manager) ResetError() bool {
	m.mu.Lock()
	if m.state.Status != model.StatusError {
		m.mu.Unlock()
		return false
	}
	next := m.setStateLocked(model.JibriState{Status: model.StatusIdle})
	m.mu.Unlock()
	m.publish(next)
	m.logger.Info().Str(log.FieldEvent, "manager.error_reset").Msg("error state cleared")
	return true
}

// Shutdown refuses new sessions, cancels the active one and waits for it.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	m.Stop(model.RCancelled)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session drain timeout: %w", ctx.Err())
	}
}
