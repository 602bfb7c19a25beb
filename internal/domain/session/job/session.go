// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package job runs one session: it joins the call, supervises the encoder
// and polls call health until something ends the session.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/checks"
	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/metrics"
	"github.com/ManuGH/jibri/internal/telemetry"
)

// ErrAlreadyStarted is returned by a second Run.
var ErrAlreadyStarted = errors.New("session already started")

const (
	componentCall    = "call"
	componentEncoder = "encoder"

	flushLines   = 20
	presenceKey  = "jibri-session"
	recordingExt = ".mp4"
	fileStamp    = "2006-01-02-15-04-05"
)

// Config tunes a Session. Zero values take defaults.
type Config struct {
	OutputDir string
	// EncoderBin is resolved during preflight for record and stream jobs.
	EncoderBin string
	// SIPClientBin is resolved during preflight for SIP jobs.
	SIPClientBin  string
	CheckInterval time.Duration
	// HangTimeout is how long the encoder may stay silent after its first output.
	HangTimeout time.Duration
	JoinTimeout time.Duration
	StopTimeout time.Duration
	Timeouts    checks.Timeouts
}

func (c Config) withDefaults() Config {
	if c.HangTimeout <= 0 {
		c.HangTimeout = 5 * time.Second
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 60 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 15 * time.Second
	}
	if c.EncoderBin == "" {
		c.EncoderBin = "ffmpeg"
	}
	if c.SIPClientBin == "" {
		c.SIPClientBin = "pjsua"
	}
	return c
}

// Deps are the collaborators a Session acquires while running.
type Deps struct {
	Observers ports.CallObserverFactory
	Encoders  ports.EncoderFactory
	Platform  ports.Platform
	// Finalizer is optional. It runs for recordings once the encoder was launched.
	Finalizer ports.Finalizer
	Clock     clock.Clock
}

// Session is one in-flight job.
type Session struct {
	params model.JobParams
	cfg    Config
	deps   Deps
	clk    clock.Clock
	agg    *lifecycle.Aggregator

	mu            sync.Mutex
	started       bool
	cancel        context.CancelCauseFunc
	pendingCancel error
	running       bool
	onRunning     []func()
	startedAt     time.Time

	runningCh   chan struct{}
	runningOnce sync.Once

	done chan struct{}
	err  error
}

// New creates a session that has not acquired anything yet.
func New(params model.JobParams, cfg Config, deps Deps) *Session {
	s := &Session{
		params:    params,
		cfg:       cfg.withDefaults(),
		deps:      deps,
		clk:       clock.OrReal(deps.Clock),
		agg:       lifecycle.NewAggregator(),
		runningCh: make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.agg.Register(componentCall)
	s.agg.Register(componentEncoder)
	s.agg.OnChange(func(st model.ComponentState) {
		if st.Kind == model.KindRunning {
			s.runningOnce.Do(func() { close(s.runningCh) })
		}
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.params.SessionID }

// Params returns the job parameters.
func (s *Session) Params() model.JobParams { return s.params }

// State returns the aggregate state of the call and the encoder.
func (s *Session) State() model.ComponentState { return s.agg.State() }

// Done is closed once Run returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Await blocks until the session ended or ctx is done.
func (s *Session) Await(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnRunning registers fn to run once the session is running. It runs
// immediately if the session already is.
func (s *Session) OnRunning(fn func()) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		fn()
		return
	}
	s.onRunning = append(s.onRunning, fn)
	s.mu.Unlock()
}

// Cancel ends the session with an ErrSessionCanceled error carrying reason.
// Calling it before Run makes Run return immediately.
func (s *Session) Cancel(reason model.ReasonCode) {
	cause := lifecycle.Canceled(reason)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel(cause)
		return
	}
	if s.pendingCancel == nil {
		s.pendingCancel = cause
	}
}

// Run executes the session and returns its terminal error. A nil return
// never happens: graceful endings are ErrJobCompleted reason errors.
func (s *Session) Run(parent context.Context) (retErr error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.startedAt = s.clk.Now()
	ctx, cancel := context.WithCancelCause(parent)
	s.cancel = cancel
	pending := s.pendingCancel
	s.mu.Unlock()

	defer func() {
		retErr = lifecycle.WrapWithReasonClass(retErr)
		cancel(retErr)
		s.err = retErr
		close(s.done)
	}()

	if pending != nil {
		return pending
	}

	ctx = log.ContextWithSessionID(ctx, s.params.SessionID)
	logger := log.WithContext(ctx, log.WithComponent("session")).With().
		Str(log.FieldMode, string(s.params.Mode)).
		Logger()

	ctx, span := telemetry.Tracer("jibri/session").Start(ctx, "session.run",
		trace.WithAttributes(telemetry.SessionAttributes(s.params.SessionID, string(s.params.Mode), s.params.Call.URL)...))
	defer func() {
		out := lifecycle.OutcomeFromError(retErr)
		failed := out.Class == lifecycle.OutcomeSessionError || out.Class == lifecycle.OutcomeSystemError
		telemetry.EndWithOutcome(span, string(out.Class), string(out.Reason), retErr, failed)
		logger.Info().
			Str(log.FieldEvent, "session.ended").
			Str("class", string(out.Class)).
			Str(log.FieldReason, string(out.Reason)).
			Str("detail", out.Detail).
			Msg("session ended")
	}()

	logger.Info().Str(log.FieldEvent, "session.starting").Str(log.FieldCallURL, s.params.Call.URL).Msg("session starting")

	dir, err := s.preflight()
	if err != nil {
		return err
	}

	var (
		encoder      ports.Encoder
		participants []ports.Participant
	)
	if s.params.Mode == model.ModeRecord && s.deps.Finalizer != nil {
		defer func() {
			if encoder == nil {
				return
			}
			s.finalize(ctx, logger, dir, encoder.Outputs(), participants, retErr)
		}()
	}

	observer, err := s.deps.Observers(ctx, s.params)
	if err != nil {
		return lifecycle.NewScopedError(model.ScopeSystem, model.RFailedToJoinCall, "create call client", err)
	}
	defer func() {
		cctx, ccancel := s.cleanupContext(ctx)
		defer ccancel()
		if p, err := observer.Participants(cctx); err == nil {
			participants = p
		}
		if err := observer.Leave(cctx); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "session.leave_failed").Msg("leaving call failed")
		}
		if err := observer.Quit(cctx); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "session.quit_failed").Msg("closing call client failed")
		}
	}()

	if err := s.join(ctx, observer); err != nil {
		return s.canceledOr(ctx, err)
	}
	s.agg.Update(componentCall, model.Running())
	logger.Info().Str(log.FieldEvent, "session.joined").Msg("joined call")

	if err := observer.AddToPresence(ctx, presenceKey, s.params.SessionID); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "session.presence_failed").Msg("presence update failed")
	}

	enc, err := s.deps.Encoders(s.params)
	if err != nil {
		return lifecycle.NewScopedError(model.ScopeSystem, model.RProcessFailedToStart, "create encoder", err)
	}
	sink := ports.EncoderSink{Mode: s.params.Mode, Target: s.sinkTarget(dir)}
	if err := enc.Launch(ctx, sink); err != nil {
		return s.canceledOr(ctx, err)
	}
	encoder = enc
	logger.Info().Str(log.FieldEvent, "session.encoder_launched").Str(log.FieldSink, sink.Target).Msg("encoder launched")
	defer func() {
		cctx, ccancel := s.cleanupContext(ctx)
		defer ccancel()
		if err := enc.Stop(cctx); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "session.encoder_stop_failed").Msg("encoder stop failed")
		}
		if lines := enc.LastOutput(flushLines); len(lines) > 0 {
			logger.Info().Strs("lines", lines).Str(log.FieldEvent, "session.encoder_output").Msg("encoder output tail")
		}
	}()

	return s.canceledOr(ctx, s.supervise(ctx, observer, enc, logger))
}

// supervise runs the running-gate, the encoder watch and the health checks.
// The first failure cancels the others.
func (s *Session) supervise(ctx context.Context, observer ports.CallObserver, enc ports.Encoder, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-s.runningCh:
		case <-gctx.Done():
			return gctx.Err()
		}
		s.markRunning(logger)
		return nil
	})

	g.Go(func() error {
		return s.watchEncoder(gctx, enc, logger)
	})

	g.Go(func() error {
		select {
		case <-s.runningCh:
		case <-gctx.Done():
			return gctx.Err()
		}
		monitor := checks.NewMonitor(observer, checks.Default(s.clk, s.cfg.Timeouts), s.cfg.CheckInterval, s.clk)
		if err := monitor.Run(gctx); err != nil {
			s.agg.Update(componentCall, lifecycle.StateFromError(err))
			return err
		}
		return gctx.Err()
	})

	return g.Wait()
}

// watchEncoder is the only reader of enc.States.
func (s *Session) watchEncoder(ctx context.Context, enc ports.Encoder, logger zerolog.Logger) error {
	ticker := s.clk.NewTicker(s.hangPoll())
	defer ticker.Stop()

	states := enc.States()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-states:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return lifecycle.NewReasonError(model.REncoderFailed, "encoder state stream closed", nil)
			}
			logger.Debug().Str(log.FieldEvent, "session.encoder_state").Str(log.FieldNewState, st.String()).Msg("encoder state")
			s.agg.Update(componentEncoder, st)
			if err := lifecycle.FromComponentState(st); err != nil {
				return err
			}
		case <-ticker.C():
			last := enc.LastOutputAt()
			if last.IsZero() {
				continue
			}
			if quiet := s.clk.Since(last); quiet > s.cfg.HangTimeout {
				err := lifecycle.NewReasonError(model.REncoderHung, fmt.Sprintf("no encoder output for %s", quiet.Round(time.Millisecond)), nil)
				s.agg.Update(componentEncoder, lifecycle.StateFromError(err))
				return err
			}
		}
	}
}

func (s *Session) hangPoll() time.Duration {
	d := s.cfg.HangTimeout / 5
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

func (s *Session) markRunning(logger zerolog.Logger) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	callbacks := s.onRunning
	s.onRunning = nil
	startedAt := s.startedAt
	s.mu.Unlock()

	metrics.ObserveTimeToRunning(string(s.params.Mode), startedAt)
	logger.Info().
		Str(log.FieldEvent, "session.running").
		Dur("time_to_running", s.clk.Since(startedAt)).
		Msg("session running")
	for _, fn := range callbacks {
		fn()
	}
}

// preflight checks system prerequisites before anything is acquired.
// It returns the session output directory for recordings.
func (s *Session) preflight() (string, error) {
	p := s.deps.Platform
	if !p.Supported() {
		return "", lifecycle.NewReasonError(model.RUnsupportedOS, "capture pipeline not supported on this OS", nil)
	}
	var dir string
	if s.params.Mode == model.ModeRecord {
		dir = p.Join(s.cfg.OutputDir, s.params.SessionID)
		if err := p.EnsureWritableDir(dir); err != nil {
			return "", lifecycle.NewReasonError(model.ROutputDirNotWritable, dir, err)
		}
	}
	bin := s.cfg.EncoderBin
	if s.params.Mode == model.ModeSIP {
		bin = s.cfg.SIPClientBin
	}
	if _, err := p.LookPath(bin); err != nil {
		return "", lifecycle.NewReasonError(model.RProcessFailedToStart, "resolve "+bin, err)
	}
	return dir, nil
}

func (s *Session) join(ctx context.Context, observer ports.CallObserver) error {
	jctx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
	defer cancel()
	if err := observer.Join(jctx, s.params.Call); err != nil {
		var rerr *lifecycle.ReasonError
		if errors.As(err, &rerr) {
			return err
		}
		return lifecycle.NewReasonError(model.RFailedToJoinCall, err.Error(), err)
	}
	return nil
}

func (s *Session) sinkTarget(dir string) string {
	target := s.params.Sink.Target(s.params.Mode)
	if s.params.Mode != model.ModeRecord || target != "" {
		return target
	}
	name := s.params.CallNameOrDefault() + "_" + s.startedAt.UTC().Format(fileStamp) + recordingExt
	return s.deps.Platform.Join(dir, name)
}

// canceledOr prefers the cancellation cause over whatever error the
// unwinding produced.
func (s *Session) canceledOr(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	var rerr *lifecycle.ReasonError
	if cause := context.Cause(ctx); errors.As(cause, &rerr) {
		return cause
	}
	return lifecycle.Canceled(model.RCancelled)
}

func (s *Session) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StopTimeout)
}

func (s *Session) finalize(ctx context.Context, logger zerolog.Logger, dir string, files []string, participants []ports.Participant, runErr error) {
	cctx, cancel := s.cleanupContext(ctx)
	defer cancel()
	report := ports.SessionReport{
		Params:       s.params,
		Dir:          dir,
		Files:        files,
		Participants: participants,
		StartedAt:    s.startedAt,
		EndedAt:      s.clk.Now(),
		Outcome:      lifecycle.OutcomeFromError(runErr),
	}
	if err := s.deps.Finalizer.Finalize(cctx, report); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "session.finalize_failed").Msg("finalize failed")
	}
}
