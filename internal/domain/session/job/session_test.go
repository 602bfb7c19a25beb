// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	clk       *clock.Fake
	observer  *fakeObserver
	encoder   *fakeEncoder
	platform  *fakePlatform
	finalizer *fakeFinalizer

	observerCreated atomic.Bool
	encoderCreated  atomic.Bool
}

func newHarness() *harness {
	clk := clock.NewFake(epoch)
	return &harness{
		clk:       clk,
		observer:  &fakeObserver{stats: ports.CallStats{ParticipantCount: 1}},
		encoder:   newFakeEncoder(clk.Now),
		platform:  &fakePlatform{},
		finalizer: newFakeFinalizer(),
	}
}

func (h *harness) session(params model.JobParams) *Session {
	return New(params, Config{OutputDir: "/recordings"}, Deps{
		Observers: func(context.Context, model.JobParams) (ports.CallObserver, error) {
			h.observerCreated.Store(true)
			return h.observer, nil
		},
		Encoders: func(model.JobParams) (ports.Encoder, error) {
			h.encoderCreated.Store(true)
			return h.encoder, nil
		},
		Platform:  h.platform,
		Finalizer: h.finalizer,
		Clock:     h.clk,
	})
}

func recordParams() model.JobParams {
	return model.JobParams{
		SessionID: "sess-1",
		Mode:      model.ModeRecord,
		Call:      model.CallParams{URL: "https://meet.example.com/standup"},
	}
}

func start(t *testing.T, s *Session) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()
	return errCh
}

// advanceUntilDone drives the fake clock until the session ends.
func advanceUntilDone(t *testing.T, h *harness, s *Session, step time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.clk.Advance(step)
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, 5*time.Second, time.Millisecond)
}

func awaitRunning(t *testing.T, s *Session) {
	t.Helper()
	running := make(chan struct{})
	s.OnRunning(func() { close(running) })
	select {
	case <-running:
	case <-time.After(5 * time.Second):
		t.Fatal("session never became running")
	}
}

func reasonOf(err error) model.ReasonCode {
	reason, _ := lifecycle.ClassifyReason(err)
	return reason
}

func TestSession_EmptyCallCompletes(t *testing.T) {
	h := newHarness()
	s := h.session(recordParams())
	errCh := start(t, s)

	awaitRunning(t, s)
	assert.Equal(t, model.KindRunning, s.State().Kind)

	advanceUntilDone(t, h, s, 5*time.Second)
	err := <-errCh
	require.ErrorIs(t, err, lifecycle.ErrJobCompleted)
	assert.Equal(t, model.REmptyCall, reasonOf(err))
	assert.Equal(t, model.KindFinished, s.State().Kind)

	awaitErr := s.Await(context.Background())
	assert.Equal(t, err, awaitErr)

	sink, stops := h.encoder.snapshot()
	assert.Equal(t, "/recordings/sess-1/standup_2025-03-01-12-00-00.mp4", sink.Target)
	assert.Equal(t, 1, stops)
	joins, leaves, quits := h.observer.counts()
	assert.Equal(t, []int{1, 1, 1}, []int{joins, leaves, quits})
	assert.Equal(t, "sess-1", h.observer.presence[presenceKey])

	report := <-h.finalizer.reports
	assert.Equal(t, "/recordings/sess-1", report.Dir)
	assert.Equal(t, []string{sink.Target}, report.Files)
	assert.Equal(t, lifecycle.OutcomeCompleted, report.Outcome.Class)
	assert.Equal(t, model.REmptyCall, report.Outcome.Reason)
}

func TestSession_OnRunningAfterRunningRunsImmediately(t *testing.T) {
	h := newHarness()
	s := h.session(recordParams())
	errCh := start(t, s)
	awaitRunning(t, s)

	var ran bool
	s.OnRunning(func() { ran = true })
	assert.True(t, ran)

	s.Cancel(model.RCancelled)
	require.ErrorIs(t, <-errCh, lifecycle.ErrSessionCanceled)
}

func TestSession_CancelCarriesReason(t *testing.T) {
	h := newHarness()
	s := h.session(recordParams())
	errCh := start(t, s)
	awaitRunning(t, s)

	s.Cancel(model.RTimeout)
	err := <-errCh
	require.ErrorIs(t, err, lifecycle.ErrSessionCanceled)
	assert.Equal(t, model.RTimeout, reasonOf(err))

	_, stops := h.encoder.snapshot()
	assert.Equal(t, 1, stops)
	_, leaves, quits := h.observer.counts()
	assert.Equal(t, 1, leaves)
	assert.Equal(t, 1, quits)

	report := <-h.finalizer.reports
	assert.Equal(t, lifecycle.OutcomeCanceled, report.Outcome.Class)
}

func TestSession_CancelBeforeRun(t *testing.T) {
	h := newHarness()
	s := h.session(recordParams())
	s.Cancel(model.RCancelled)

	err := s.Run(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrSessionCanceled)
	assert.False(t, h.observerCreated.Load())
	assert.False(t, h.encoderCreated.Load())
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyStarted)
}

func TestSession_CancelDuringJoin(t *testing.T) {
	h := newHarness()
	h.observer.blockJoin = true
	s := h.session(recordParams())
	errCh := start(t, s)

	require.Eventually(t, func() bool {
		joins, _, _ := h.observer.counts()
		return joins == 1
	}, 5*time.Second, time.Millisecond)
	s.Cancel(model.RCancelled)

	err := <-errCh
	require.ErrorIs(t, err, lifecycle.ErrSessionCanceled)
	assert.Equal(t, model.RCancelled, reasonOf(err))
	assert.False(t, h.encoderCreated.Load())
	_, _, quits := h.observer.counts()
	assert.Equal(t, 1, quits)
}

func TestSession_JoinFailure(t *testing.T) {
	h := newHarness()
	h.observer.joinErr = errors.New("conference not found")
	s := h.session(recordParams())

	err := s.Run(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrSessionFailure)
	assert.Equal(t, model.RFailedToJoinCall, reasonOf(err))
	assert.Equal(t, model.ScopeSession, lifecycle.ScopeOf(err))
	assert.False(t, h.encoderCreated.Load(), "encoder starts only after join")

	_, leaves, quits := h.observer.counts()
	assert.Equal(t, 1, leaves)
	assert.Equal(t, 1, quits)
	select {
	case <-h.finalizer.reports:
		t.Fatal("nothing to finalize without an encoder")
	default:
	}
}

func TestSession_PreflightFailuresAreSystemScoped(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*fakePlatform)
		reason model.ReasonCode
	}{
		{"unsupported os", func(p *fakePlatform) { p.unsupported = true }, model.RUnsupportedOS},
		{"output dir", func(p *fakePlatform) { p.dirErr = errors.New("read-only file system") }, model.ROutputDirNotWritable},
		{"encoder binary", func(p *fakePlatform) { p.lookErr = errors.New("not found") }, model.RProcessFailedToStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h.platform)
			err := h.session(recordParams()).Run(context.Background())
			require.ErrorIs(t, err, lifecycle.ErrSystemFailure)
			assert.Equal(t, tt.reason, reasonOf(err))
			assert.False(t, h.observerCreated.Load())
		})
	}
}

func TestSession_StreamSkipsOutputDir(t *testing.T) {
	h := newHarness()
	params := recordParams()
	params.Mode = model.ModeStream
	params.Sink.StreamURL = "rtmp://live.example.com/app/key"
	s := h.session(params)
	errCh := start(t, s)
	awaitRunning(t, s)
	s.Cancel(model.RCancelled)
	<-errCh

	sink, _ := h.encoder.snapshot()
	assert.Equal(t, params.Sink.StreamURL, sink.Target)
	assert.Empty(t, h.platform.dirs)
}

func TestSession_EncoderErrorEndsSession(t *testing.T) {
	h := newHarness()
	s := h.session(recordParams())
	errCh := start(t, s)
	awaitRunning(t, s)

	h.encoder.emit(model.Failed(model.ScopeSession, model.REncoderBadDestination, "rtmp refused"))
	err := <-errCh
	require.ErrorIs(t, err, lifecycle.ErrSessionFailure)
	assert.Equal(t, model.REncoderBadDestination, reasonOf(err))
	assert.Equal(t, model.KindError, s.State().Kind)
}

func TestSession_EncoderLaunchFailureIsSystemError(t *testing.T) {
	h := newHarness()
	h.encoder.launchErr = lifecycle.NewReasonError(model.RProcessFailedToStart, "exec: ffmpeg", nil)
	err := h.session(recordParams()).Run(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrSystemFailure)
	_, leaves, _ := h.observer.counts()
	assert.Equal(t, 1, leaves, "call is left when the encoder cannot start")
}

func TestSession_EncoderHang(t *testing.T) {
	h := newHarness()
	frozen := epoch
	h.encoder.output = func() time.Time { return frozen }
	h.observer.stats = ports.CallStats{ParticipantCount: 3, IceConnected: true, DownloadBitrate: 800,
		Participants: []ports.Participant{{ID: "a"}, {ID: "b"}}}
	s := h.session(recordParams())
	errCh := start(t, s)
	awaitRunning(t, s)

	advanceUntilDone(t, h, s, time.Second)
	err := <-errCh
	require.ErrorIs(t, err, lifecycle.ErrSessionFailure)
	assert.Equal(t, model.REncoderHung, reasonOf(err))
}

func TestSession_NoHangBeforeFirstOutput(t *testing.T) {
	h := newHarness()
	h.encoder.autoRun = false
	h.encoder.output = func() time.Time { return time.Time{} }
	s := h.session(recordParams())
	errCh := start(t, s)

	require.Eventually(t, func() bool {
		sink, _ := h.encoder.snapshot()
		return sink.Target != ""
	}, 5*time.Second, time.Millisecond)
	h.clk.Advance(time.Minute)
	assert.Equal(t, model.KindStartingUp, s.State().Kind)

	s.Cancel(model.RCancelled)
	require.ErrorIs(t, <-errCh, lifecycle.ErrSessionCanceled)
}

func TestSession_ParentContextCanceled(t *testing.T) {
	h := newHarness()
	s := h.session(recordParams())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	awaitRunning(t, s)

	cancel()
	err := <-errCh
	require.ErrorIs(t, err, lifecycle.ErrSessionCanceled)
	assert.Equal(t, model.RCancelled, reasonOf(err))
}

func TestSession_AwaitHonoursContext(t *testing.T) {
	s := newHarness().session(recordParams())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Await(ctx), context.DeadlineExceeded)
}
