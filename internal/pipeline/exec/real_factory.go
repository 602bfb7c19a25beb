// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package exec

import (
	"fmt"
	"time"

	"github.com/ManuGH/jibri/internal/clock"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/jibri/internal/pipeline/exec/pjsua"
)

// RealFactory produces the capture process supervisor for each job mode.
type RealFactory struct {
	FFmpegBin   string
	Capture     ffmpeg.CaptureSpec
	PJSUABin    string
	PJSUAConfig string
	StopTimeout time.Duration
	MaxRestarts int
	Clock       clock.Clock
}

// NewRealFactory creates a RealFactory.
func NewRealFactory(ffmpegBin string, capture ffmpeg.CaptureSpec, stopTimeout time.Duration, maxRestarts int) *RealFactory {
	return &RealFactory{
		FFmpegBin:   ffmpegBin,
		Capture:     capture,
		StopTimeout: stopTimeout,
		MaxRestarts: maxRestarts,
	}
}

// NewEncoder implements ports.EncoderFactory.
// SIP gateway sessions never restart: a dropped SIP leg cannot be resumed.
func (f *RealFactory) NewEncoder(params model.JobParams) (ports.Encoder, error) {
	opts := ffmpeg.Options{
		StopTimeout: f.StopTimeout,
		MaxRestarts: f.MaxRestarts,
		Clock:       f.Clock,
	}
	switch params.Mode {
	case model.ModeRecord, model.ModeStream:
		return ffmpeg.NewEncoder(ffmpeg.FFmpeg{Bin: f.FFmpegBin, Capture: f.Capture}, opts), nil
	case model.ModeSIP:
		opts.MaxRestarts = 0
		return ffmpeg.NewEncoder(pjsua.Dialect{
			Bin:         f.PJSUABin,
			ConfigFile:  f.PJSUAConfig,
			DisplayName: params.Call.DisplayName,
		}, opts), nil
	default:
		return nil, fmt.Errorf("no encoder for mode %q", params.Mode)
	}
}
