// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateKindTerminal(t *testing.T) {
	assert.False(t, KindStartingUp.Terminal())
	assert.False(t, KindRunning.Terminal())
	assert.True(t, KindError.Terminal())
	assert.True(t, KindFinished.Terminal())
	assert.Equal(t, "kind(9)", StateKind(9).String())
}

func TestComponentStateString(t *testing.T) {
	assert.Equal(t, "running", Running().String())
	assert.Equal(t, "finished(R_EMPTY_CALL)", Finished(REmptyCall, "").String())
	assert.Equal(t, "error(SESSION, R_ENCODER_HUNG: no output)", Failed(ScopeSession, REncoderHung, "no output").String())
}

func validParams() JobParams {
	return JobParams{
		SessionID:    "abc-123",
		Mode:         ModeRecord,
		Call:         CallParams{URL: "https://meet.example.com/Standup"},
		UsageTimeout: time.Hour,
	}
}

func TestJobParamsValidate(t *testing.T) {
	require.NoError(t, validParams().Validate())

	tests := []struct {
		name   string
		mutate func(*JobParams)
	}{
		{"unsafe session id", func(p *JobParams) { p.SessionID = "../etc" }},
		{"unknown mode", func(p *JobParams) { p.Mode = "dance" }},
		{"missing call url", func(p *JobParams) { p.Call.URL = "" }},
		{"non http call url", func(p *JobParams) { p.Call.URL = "ftp://x/y" }},
		{"negative timeout", func(p *JobParams) { p.UsageTimeout = -time.Second }},
		{"stream without rtmp", func(p *JobParams) { p.Mode = ModeStream; p.Sink.StreamURL = "http://x" }},
		{"sip without address", func(p *JobParams) { p.Mode = ModeSIP }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

func TestCallNameOrDefault(t *testing.T) {
	p := validParams()
	assert.Equal(t, "Standup", p.CallNameOrDefault())

	p.Call.CallName = "weekly"
	assert.Equal(t, "weekly", p.CallNameOrDefault())

	p.Call.CallName = ""
	p.Call.URL = "https://meet.example.com/"
	assert.Equal(t, "call", p.CallNameOrDefault())
}

func TestSinkTarget(t *testing.T) {
	s := Sink{Path: "/rec/a.mp4", StreamURL: "rtmp://x/live", SIPAddress: "sip:a@b"}
	assert.Equal(t, "/rec/a.mp4", s.Target(ModeRecord))
	assert.Equal(t, "rtmp://x/live", s.Target(ModeStream))
	assert.Equal(t, "sip:a@b", s.Target(ModeSIP))
}
