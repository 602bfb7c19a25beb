// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSession struct {
	id      string
	result  chan error
	cancels chan model.ReasonCode
	runs    atomic.Int32
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, result: make(chan error, 1), cancels: make(chan model.ReasonCode, 1)}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Run(ctx context.Context) error {
	s.runs.Add(1)
	select {
	case err := <-s.result:
		return err
	case reason := <-s.cancels:
		return lifecycle.Canceled(reason)
	case <-ctx.Done():
		return lifecycle.Canceled(model.RCancelled)
	}
}

func (s *fakeSession) Cancel(reason model.ReasonCode) {
	select {
	case s.cancels <- reason:
	default:
	}
}

func (s *fakeSession) OnRunning(fn func()) { fn() }

func factoryFor(s *fakeSession) Factory {
	return func(model.JobParams) (Session, error) { return s, nil }
}

func params(id string) model.JobParams {
	return model.JobParams{
		SessionID: id,
		Mode:      model.ModeRecord,
		Call:      model.CallParams{URL: "https://meet.example.com/room"},
	}
}

func await(t *testing.T, h *Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := h.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "session did not finish")
	return err
}

func TestStart_RejectsWhileBusy(t *testing.T) {
	bus := newStubBus()
	m := New(context.Background(), Options{Bus: bus})
	first := newFakeSession("a")

	h, err := m.Start(params("a"), factoryFor(first))
	require.NoError(t, err)
	assert.True(t, m.Busy())
	st := m.State()
	assert.Equal(t, model.StatusBusy, st.Status)
	assert.Equal(t, "a", st.SessionID)

	second := newFakeSession("b")
	_, err = m.Start(params("b"), factoryFor(second))
	require.ErrorIs(t, err, ErrBusy)
	assert.Zero(t, second.runs.Load())

	first.result <- lifecycle.NewReasonError(model.REmptyCall, "", nil)
	require.ErrorIs(t, await(t, h), lifecycle.ErrJobCompleted)
	assert.False(t, m.Busy())
	assert.Equal(t, model.StatusIdle, m.State().Status)
	assert.Equal(t, lifecycle.OutcomeCompleted, h.Outcome().Class)
	assert.Equal(t, []model.JibriStatus{model.StatusBusy, model.StatusIdle}, bus.statuses())
}

func TestStart_ConcurrentAdmitsExactlyOne(t *testing.T) {
	m := New(context.Background(), Options{})
	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		busy     atomic.Int32
		handles  = make(chan *Handle, 16)
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Start(params("race"), factoryFor(newFakeSession("race")))
			switch {
			case err == nil:
				admitted.Add(1)
				handles <- h
			case errors.Is(err, ErrBusy):
				busy.Add(1)
			}
		}()
	}
	wg.Wait()
	close(handles)
	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(15), busy.Load())

	for h := range handles {
		h.Cancel(model.RCancelled)
		require.ErrorIs(t, await(t, h), lifecycle.ErrSessionCanceled)
	}
}

func TestStart_InvalidParams(t *testing.T) {
	m := New(context.Background(), Options{})
	p := params("bad")
	p.Call.URL = "ftp://nope"
	_, err := m.Start(p, factoryFor(newFakeSession("bad")))
	require.ErrorIs(t, err, lifecycle.ErrBadRequest)
	assert.ErrorIs(t, err, model.ErrInvalidParams)
	assert.Equal(t, model.StatusIdle, m.State().Status)
}

func TestStart_FactoryFailureLeavesIdle(t *testing.T) {
	m := New(context.Background(), Options{})
	_, err := m.Start(params("a"), func(model.JobParams) (Session, error) {
		return nil, errors.New("no display")
	})
	require.Error(t, err)
	assert.False(t, m.Busy())
	assert.Equal(t, model.StatusIdle, m.State().Status)
}

func TestSystemFailureMovesToError(t *testing.T) {
	m := New(context.Background(), Options{})
	s := newFakeSession("a")
	h, err := m.Start(params("a"), factoryFor(s))
	require.NoError(t, err)

	s.result <- lifecycle.NewReasonError(model.ROutputDirNotWritable, "/recordings", nil)
	require.ErrorIs(t, await(t, h), lifecycle.ErrSystemFailure)

	st := m.State()
	assert.Equal(t, model.StatusError, st.Status)
	assert.Equal(t, model.ROutputDirNotWritable, st.Cause)

	_, err = m.Start(params("b"), factoryFor(newFakeSession("b")))
	require.ErrorIs(t, err, ErrSystemUnhealthy)

	assert.True(t, m.ResetError())
	assert.False(t, m.ResetError())
	assert.Equal(t, model.StatusIdle, m.State().Status)

	next := newFakeSession("c")
	h, err = m.Start(params("c"), factoryFor(next))
	require.NoError(t, err)
	h.Cancel(model.RCancelled)
	await(t, h)
}

func TestSessionFailureReturnsToIdle(t *testing.T) {
	m := New(context.Background(), Options{})
	s := newFakeSession("a")
	h, err := m.Start(params("a"), factoryFor(s))
	require.NoError(t, err)

	s.result <- lifecycle.NewReasonError(model.RIceFailed, "", nil)
	require.ErrorIs(t, await(t, h), lifecycle.ErrSessionFailure)
	assert.Equal(t, model.StatusIdle, m.State().Status)
}

func TestSingleUseExpires(t *testing.T) {
	m := New(context.Background(), Options{SingleUse: true})
	s := newFakeSession("a")
	h, err := m.Start(params("a"), factoryFor(s))
	require.NoError(t, err)
	s.result <- lifecycle.NewReasonError(model.RRemoteHangup, "", nil)
	await(t, h)

	assert.Equal(t, model.StatusExpired, m.State().Status)
	_, err = m.Start(params("b"), factoryFor(newFakeSession("b")))
	require.ErrorIs(t, err, ErrExpired)
}

func TestUsageTimeoutCancels(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(context.Background(), Options{Clock: clk})
	p := params("a")
	p.UsageTimeout = time.Hour
	s := newFakeSession("a")
	h, err := m.Start(p, factoryFor(s))
	require.NoError(t, err)

	clk.Advance(time.Hour - time.Nanosecond)
	time.Sleep(20 * time.Millisecond)
	select {
	case <-h.Done():
		t.Fatal("session cancelled before the usage timeout")
	default:
	}
	assert.True(t, m.Busy())
	assert.Empty(t, s.cancels)

	clk.Advance(time.Nanosecond)
	err = await(t, h)
	require.ErrorIs(t, err, lifecycle.ErrSessionCanceled)
	reason, _ := lifecycle.ClassifyReason(err)
	assert.Equal(t, model.RTimeout, reason)
	assert.Equal(t, model.StatusIdle, m.State().Status)
	assert.Equal(t, time.Unix(0, 0).Add(time.Hour), m.State().Since)
}

func TestUsageTimeoutDisarmedOnCompletion(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(context.Background(), Options{Clock: clk})
	p := params("a")
	p.UsageTimeout = time.Minute
	s := newFakeSession("a")
	h, err := m.Start(p, factoryFor(s))
	require.NoError(t, err)
	assert.Equal(t, 1, clk.Waiters())

	s.result <- lifecycle.NewReasonError(model.REmptyCall, "", nil)
	await(t, h)
	assert.Equal(t, 0, clk.Waiters())
}

func TestDefaultUsageTimeoutApplies(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := New(context.Background(), Options{DefaultUsageTimeout: 20 * time.Minute, Clock: clk})
	h, err := m.Start(params("a"), factoryFor(newFakeSession("a")))
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, h.Params().UsageTimeout)

	clk.Advance(20 * time.Minute)
	reason, _ := lifecycle.ClassifyReason(await(t, h))
	assert.Equal(t, model.RTimeout, reason)
}

func TestStopCancelsActive(t *testing.T) {
	m := New(context.Background(), Options{})
	_, ok := m.Stop(model.RCancelled)
	assert.False(t, ok, "nothing to stop")

	h, err := m.Start(params("a"), factoryFor(newFakeSession("a")))
	require.NoError(t, err)
	stopped, ok := m.Stop(model.RCancelled)
	require.True(t, ok)
	assert.Same(t, h, stopped)
	require.ErrorIs(t, await(t, h), lifecycle.ErrSessionCanceled)
	assert.Equal(t, lifecycle.OutcomeCanceled, h.Outcome().Class)
}

func TestExecuteWhenIdle(t *testing.T) {
	m := New(context.Background(), Options{})

	var immediate bool
	m.ExecuteWhenIdle(func() { immediate = true })
	assert.True(t, immediate)

	s := newFakeSession("a")
	h, err := m.Start(params("a"), factoryFor(s))
	require.NoError(t, err)

	var first, second atomic.Bool
	stateAtCallback := make(chan model.JibriStatus, 1)
	m.ExecuteWhenIdle(func() { first.Store(true) })
	m.ExecuteWhenIdle(func() {
		second.Store(true)
		stateAtCallback <- m.State().Status
	})
	assert.False(t, second.Load())

	s.result <- lifecycle.NewReasonError(model.REmptyCall, "", nil)
	await(t, h)
	assert.False(t, first.Load(), "replaced callbacks never run")
	assert.True(t, second.Load())
	assert.Equal(t, model.StatusIdle, <-stateAtCallback)
}

func TestShutdownCancelsAndRejects(t *testing.T) {
	m := New(context.Background(), Options{})
	h, err := m.Start(params("a"), factoryFor(newFakeSession("a")))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	require.ErrorIs(t, await(t, h), lifecycle.ErrSessionCanceled)

	_, err = m.Start(params("b"), factoryFor(newFakeSession("b")))
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestRootContextCancelsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New(ctx, Options{})
	h, err := m.Start(params("a"), factoryFor(newFakeSession("a")))
	require.NoError(t, err)
	cancel()
	require.ErrorIs(t, await(t, h), lifecycle.ErrSessionCanceled)
}

func TestStartResult(t *testing.T) {
	assert.Equal(t, "ok", startResult(nil))
	assert.Equal(t, "busy", startResult(ErrBusy))
	assert.Equal(t, "expired", startResult(ErrExpired))
	assert.Equal(t, "unhealthy", startResult(ErrSystemUnhealthy))
	assert.Equal(t, "invalid", startResult(lifecycle.NewReasonError(model.RInvalidParams, "", nil)))
	assert.Equal(t, "error", startResult(errors.New("x")))
}
