// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package checks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedObserver struct {
	mu    sync.Mutex
	stats ports.CallStats
	err   error
	polls int
}

func (o *scriptedObserver) set(s ports.CallStats, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stats, o.err = s, err
}

func (o *scriptedObserver) Poll(context.Context) (ports.CallStats, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls++
	return o.stats, o.err
}

func (o *scriptedObserver) pollCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.polls
}

func (o *scriptedObserver) Join(context.Context, model.CallParams) error { return nil }
func (o *scriptedObserver) Participants(context.Context) ([]ports.Participant, error) {
	return nil, nil
}
func (o *scriptedObserver) AddToPresence(context.Context, string, string) error { return nil }
func (o *scriptedObserver) Leave(context.Context) error                         { return nil }
func (o *scriptedObserver) Quit(context.Context) error                          { return nil }

func runMonitor(ctx context.Context, m *Monitor) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()
	return errCh
}

func TestMonitorRunEndsOnEmptyCall(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	obs := &scriptedObserver{}
	obs.set(ports.CallStats{ParticipantCount: 1, IceConnected: true}, nil)
	m := NewMonitor(obs, Default(clk, Timeouts{}), 15*time.Second, clk)

	errCh := runMonitor(context.Background(), m)
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)

	var err error
	require.Eventually(t, func() bool {
		polls := obs.pollCount()
		clk.Advance(15 * time.Second)
		// Wait for the tick to be consumed before the next advance.
		deadline := time.Now().Add(100 * time.Millisecond)
		for obs.pollCount() == polls && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		select {
		case err = <-errCh:
			return true
		default:
			return false
		}
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, model.REmptyCall, reasonOf(t, err))
}

func TestMonitorRunKeepsPollingAfterPollError(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	obs := &scriptedObserver{}
	obs.set(ports.CallStats{}, errors.New("webdriver unavailable"))
	m := NewMonitor(obs, Default(clk, Timeouts{}), time.Second, clk)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runMonitor(ctx, m)
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		return obs.pollCount() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	obs.set(ports.CallStats{Kicked: true}, nil)
	var err error
	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		select {
		case err = <-errCh:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, model.RLocalParticipantKicked, reasonOf(t, err))
	cancel()
}

func TestMonitorRunReturnsNilOnCancel(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	m := NewMonitor(&scriptedObserver{}, Default(clk, Timeouts{}), 0, clk)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runMonitor(ctx, m)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
