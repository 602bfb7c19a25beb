// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/pipeline/exec/proc"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		kind   LineKind
		reason model.ReasonCode
	}{
		{"graceful exit", "Exiting normally, received signal 2.", FinishLine, model.REncoderFinished},
		{"other signal", "Exiting normally, received signal 15.", ErrorLine, model.REncoderFailed},
		{"progress frame", "frame=  120 fps= 30 q=28.0 size=    512kB time=00:00:04.00 bitrate=1048.6kbits/s speed=1x", EncodingLine, ""},
		{"progress size", "size=N/A time=00:00:01.00 bitrate=N/A speed=1x", EncodingLine, ""},
		{"bad rtmp destination", "rtmp://a.rtmp.example.com/live2/key: Input/output error", ErrorLine, model.REncoderBadDestination},
		{"io error on file", "/rec/out.mp4: Input/output error", OtherLine, ""},
		{"broken pipe", "av_interleaved_write_frame(): Broken pipe", ErrorLine, model.REncoderBrokenPipe},
		{"noise", "Stream mapping:", OtherLine, ""},
		{"empty", "", OtherLine, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyLine(tt.line)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestClassifyLineParsesProgressFields(t *testing.T) {
	got := ClassifyLine("frame=  120 fps= 30 q=28.0 size=    512kB time=00:00:04.00 bitrate=1048.6kbits/s speed=1x")
	assert.Equal(t, map[string]string{
		"frame":   "120",
		"fps":     "30",
		"q":       "28.0",
		"size":    "512kB",
		"time":    "00:00:04.00",
		"bitrate": "1048.6kbits/s",
		"speed":   "1x",
	}, got.Fields)
}

func TestStatusMachineTransitions(t *testing.T) {
	m := NewStatusMachine(nil)
	assert.Equal(t, model.KindStartingUp, m.State().Kind)

	_, changed := m.Apply(ParsedLine{Kind: OtherLine})
	assert.False(t, changed)

	s, changed := m.Apply(ParsedLine{Kind: EncodingLine})
	assert.True(t, changed)
	assert.Equal(t, model.KindRunning, s.Kind)

	_, changed = m.Apply(ParsedLine{Kind: EncodingLine})
	assert.False(t, changed, "running is not re-announced")

	s, changed = m.Apply(ParsedLine{Kind: FinishLine, Reason: model.REncoderFinished})
	assert.True(t, changed)
	assert.Equal(t, model.KindFinished, s.Kind)

	_, changed = m.Apply(ParsedLine{Kind: ErrorLine, Reason: model.REncoderBrokenPipe})
	assert.False(t, changed, "terminal states absorb")
}

func TestStatusMachineErrorFromStartingUp(t *testing.T) {
	m := NewStatusMachine(nil)
	s, changed := m.Apply(ParsedLine{Kind: ErrorLine, Reason: model.REncoderBadDestination, Detail: "x"})
	assert.True(t, changed)
	assert.Equal(t, model.Failed(model.ScopeSession, model.REncoderBadDestination, "x"), s)
}

func TestApplyProcessStateExit(t *testing.T) {
	t.Run("exit after finish line is finished", func(t *testing.T) {
		m := NewStatusMachine(nil)
		s, _ := m.ApplyProcessState(proc.ProcessState{Exited: true, ExitCode: 255, MostRecentLine: "Exiting normally, received signal 2."})
		assert.Equal(t, model.KindFinished, s.Kind)
	})
	t.Run("exit after progress is abrupt", func(t *testing.T) {
		m := NewStatusMachine(nil)
		m.ApplyProcessState(proc.ProcessState{MostRecentLine: "frame=1"})
		s, changed := m.ApplyProcessState(proc.ProcessState{Exited: true, ExitCode: 1, MostRecentLine: "frame=1"})
		assert.True(t, changed)
		assert.Equal(t, model.KindError, s.Kind)
		assert.Equal(t, model.ScopeSession, s.Scope)
		assert.Equal(t, model.REncoderFailed, s.Reason)
		assert.Contains(t, s.Detail, "quit abruptly")
	})
	t.Run("running snapshot classifies its line", func(t *testing.T) {
		m := NewStatusMachine(nil)
		s, changed := m.ApplyProcessState(proc.ProcessState{MostRecentLine: "size=1kB time=00:00:00.50"})
		assert.True(t, changed)
		assert.Equal(t, model.KindRunning, s.Kind)
	})
}
