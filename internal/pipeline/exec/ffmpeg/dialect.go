// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/pipeline/exec/proc"
)

// Dialect adapts the supervisor to one capture program.
type Dialect interface {
	// Name is used in logs and errors.
	Name() string
	// Command builds the process for sink.
	Command(sink ports.EncoderSink) (proc.Command, error)
	// Classify maps one output line.
	Classify(line string) ParsedLine
	// Restartable reports whether a crash in state s is worth a relaunch.
	Restartable(s model.ComponentState) bool
}

// FFmpeg captures the virtual display with ffmpeg.
type FFmpeg struct {
	Bin     string
	Capture CaptureSpec
}

func (f FFmpeg) Name() string { return "ffmpeg" }

func (f FFmpeg) Command(sink ports.EncoderSink) (proc.Command, error) {
	args, err := BuildArgs(f.Capture, sink)
	if err != nil {
		return proc.Command{}, err
	}
	bin := f.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	return proc.Command{Name: bin, Args: args}, nil
}

func (f FFmpeg) Classify(line string) ParsedLine { return ClassifyLine(line) }

// A bad destination fails the same way on every attempt.
func (f FFmpeg) Restartable(s model.ComponentState) bool {
	return s.Reason != model.REncoderBadDestination
}
