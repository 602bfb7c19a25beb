// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package checks turns periodic call samples into typed session outcomes.
package checks

import (
	"fmt"
	"time"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/hysteresis"
)

// Timeouts configures the hysteresis of each check.
type Timeouts struct {
	EmptyCall time.Duration
	NoMedia   time.Duration
	AllMuted  time.Duration
	Ice       time.Duration
}

// DefaultTimeouts returns the production defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		EmptyCall: 30 * time.Second,
		NoMedia:   30 * time.Second,
		AllMuted:  10 * time.Minute,
		Ice:       30 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.EmptyCall <= 0 {
		t.EmptyCall = d.EmptyCall
	}
	if t.NoMedia <= 0 {
		t.NoMedia = d.NoMedia
	}
	if t.AllMuted <= 0 {
		t.AllMuted = d.AllMuted
	}
	if t.Ice <= 0 {
		t.Ice = d.Ice
	}
	return t
}

// Check evaluates one fact of a call sample. A non-nil result ends the session.
type Check interface {
	Name() string
	Evaluate(stats ports.CallStats) error
}

// EmptyCall completes the job once nobody but us has been in the call for the timeout.
type EmptyCall struct {
	timeout time.Duration
	timer   *hysteresis.Timer
}

func NewEmptyCall(clk clock.Clock, timeout time.Duration) *EmptyCall {
	return &EmptyCall{timeout: timeout, timer: hysteresis.New(clk)}
}

func (c *EmptyCall) Name() string { return "empty_call" }

func (c *EmptyCall) Evaluate(stats ports.CallStats) error {
	c.timer.Observe(stats.ParticipantCount <= 1)
	if c.timer.ExceededTimeout(c.timeout) {
		return lifecycle.NewReasonError(model.REmptyCall, fmt.Sprintf("alone for %s", c.timer.Elapsed().Round(time.Second)), nil)
	}
	return nil
}

// MediaReceived fails the session when nothing is received although somebody
// should be sending, and completes it when everyone stayed muted too long.
// Jigasi participants count as muted.
type MediaReceived struct {
	noMediaTimeout  time.Duration
	allMutedTimeout time.Duration
	noMedia         *hysteresis.Timer
	allMuted        *hysteresis.Timer
}

func NewMediaReceived(clk clock.Clock, noMediaTimeout, allMutedTimeout time.Duration) *MediaReceived {
	return &MediaReceived{
		noMediaTimeout:  noMediaTimeout,
		allMutedTimeout: allMutedTimeout,
		noMedia:         hysteresis.New(clk),
		allMuted:        hysteresis.New(clk),
	}
}

func (c *MediaReceived) Name() string { return "media_received" }

func (c *MediaReceived) Evaluate(stats ports.CallStats) error {
	allMuted := stats.AllRemoteMuted()
	c.noMedia.Observe(stats.DownloadBitrate == 0 && len(stats.Participants) > 0 && !allMuted)
	c.allMuted.Observe(allMuted)

	if c.noMedia.ExceededTimeout(c.noMediaTimeout) {
		return lifecycle.NewReasonError(model.RNoMediaReceived, fmt.Sprintf("bitrate 0 for %s", c.noMedia.Elapsed().Round(time.Second)), nil)
	}
	if c.allMuted.ExceededTimeout(c.allMutedTimeout) {
		return lifecycle.NewReasonError(model.RClientMuteLimitExceeded, fmt.Sprintf("all muted for %s", c.allMuted.Elapsed().Round(time.Second)), nil)
	}
	return nil
}

// IceConnection fails the session when media transport stays down in a non-empty call.
type IceConnection struct {
	timeout time.Duration
	timer   *hysteresis.Timer
}

func NewIceConnection(clk clock.Clock, timeout time.Duration) *IceConnection {
	return &IceConnection{timeout: timeout, timer: hysteresis.New(clk)}
}

func (c *IceConnection) Name() string { return "ice_connection" }

func (c *IceConnection) Evaluate(stats ports.CallStats) error {
	c.timer.Observe(!stats.IceConnected && stats.ParticipantCount > 1)
	if c.timer.ExceededTimeout(c.timeout) {
		return lifecycle.NewReasonError(model.RIceFailed, fmt.Sprintf("ice disconnected for %s", c.timer.Elapsed().Round(time.Second)), nil)
	}
	return nil
}

// LocalParticipantKicked fails the session as soon as we were removed.
type LocalParticipantKicked struct{}

func (LocalParticipantKicked) Name() string { return "local_participant_kicked" }

func (LocalParticipantKicked) Evaluate(stats ports.CallStats) error {
	if stats.Kicked {
		return lifecycle.NewReasonError(model.RLocalParticipantKicked, "", nil)
	}
	return nil
}

// RemoteHangup completes the job when the conference was closed for everyone.
// A dropped connection is not a hangup; IceConnection and MediaReceived handle it.
type RemoteHangup struct{}

func (RemoteHangup) Name() string { return "remote_hangup" }

func (RemoteHangup) Evaluate(stats ports.CallStats) error {
	if stats.Ended {
		return lifecycle.NewReasonError(model.RRemoteHangup, "", nil)
	}
	return nil
}

// Default returns the standard check set in evaluation order.
func Default(clk clock.Clock, t Timeouts) []Check {
	t = t.withDefaults()
	return []Check{
		LocalParticipantKicked{},
		RemoteHangup{},
		NewEmptyCall(clk, t.EmptyCall),
		NewMediaReceived(clk, t.NoMedia, t.AllMuted),
		NewIceConnection(clk, t.Ice),
	}
}
