// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package proc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launchSh(t *testing.T, script string, opts Options) *Handle {
	t.Helper()
	h, err := Launch(context.Background(), Command{Name: "sh", Args: []string{"-c", script}}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Stop(context.Background()) })
	return h
}

func TestLaunchMergesStdoutAndStderr(t *testing.T) {
	h := launchSh(t, "sleep 0.2; echo out; echo err 1>&2; sleep 0.2", Options{})
	lines := h.Output()
	defer lines.Close()

	var got []string
	require.NoError(t, lines.Each(context.Background(), func(line string) bool {
		got = append(got, line)
		return true
	}))
	assert.Equal(t, []string{"out", "err"}, got)
	assert.Equal(t, "err", h.MostRecentLine())
}

func TestLaunchReportsExitCode(t *testing.T) {
	h := launchSh(t, "exit 3", Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.False(t, h.IsAlive())

	c, ok := h.ExitCode()
	assert.True(t, ok)
	assert.Equal(t, 3, c)
}

func TestExitCodeUndefinedWhileAlive(t *testing.T) {
	h := launchSh(t, "exec sleep 30", Options{})
	assert.True(t, h.IsAlive())
	assert.Positive(t, h.Pid())
	_, ok := h.ExitCode()
	assert.False(t, ok)
}

func TestLaunchFailsForMissingBinary(t *testing.T) {
	_, err := Launch(context.Background(), Command{Name: "/nonexistent/encoder-binary"}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessFailedToStart)
}

func TestStopInterruptsProcess(t *testing.T) {
	h := launchSh(t, "exec sleep 30", Options{StopTimeout: 2 * time.Second})

	require.NoError(t, h.Stop(context.Background()))
	assert.False(t, h.IsAlive())
	// Idempotent.
	require.NoError(t, h.Stop(context.Background()))
}

func TestStopEscalatesToKill(t *testing.T) {
	h := launchSh(t, "trap '' INT; echo ready; while :; do sleep 0.05; done", Options{StopTimeout: 200 * time.Millisecond})
	require.Eventually(t, func() bool { return h.MostRecentLine() == "ready" }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, h.Stop(context.Background()))
	assert.False(t, h.IsAlive())
	assert.Less(t, time.Since(start), 3*time.Second)

	code, _ := h.ExitCode()
	assert.Equal(t, -1, code, "killed by signal")
}

func TestOutputBranchesAreIndependent(t *testing.T) {
	h := launchSh(t, "sleep 0.2; echo a; echo b", Options{})
	first := h.Output()
	second := h.Output()
	defer first.Close()
	defer second.Close()

	l1, err := first.Next()
	require.NoError(t, err)
	l2, err := first.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{l1, l2})

	l1, err = second.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", l1)
}
