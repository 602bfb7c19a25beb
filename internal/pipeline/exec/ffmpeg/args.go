// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
)

// CaptureSpec describes the screen and audio capture.
type CaptureSpec struct {
	Display     string // X11 display, e.g. ":0"
	VideoSize   string // e.g. "1280x720"
	Framerate   int
	Preset      string // x264 preset
	AudioFormat string // "alsa" or "pulse"
	AudioDevice string
	// StreamMaxRateK caps the video bitrate for live streams.
	StreamMaxRateK int
}

// DefaultCaptureSpec returns the values used when config leaves them empty.
func DefaultCaptureSpec() CaptureSpec {
	return CaptureSpec{
		Display:        ":0",
		VideoSize:      "1280x720",
		Framerate:      30,
		Preset:         "veryfast",
		AudioFormat:    "alsa",
		AudioDevice:    "plug:bsnoop",
		StreamMaxRateK: 2976,
	}
}

func (c CaptureSpec) withDefaults() CaptureSpec {
	d := DefaultCaptureSpec()
	if c.Display == "" {
		c.Display = d.Display
	}
	if c.VideoSize == "" {
		c.VideoSize = d.VideoSize
	}
	if c.Framerate <= 0 {
		c.Framerate = d.Framerate
	}
	if c.Preset == "" {
		c.Preset = d.Preset
	}
	if c.AudioFormat == "" {
		c.AudioFormat = d.AudioFormat
	}
	if c.AudioDevice == "" {
		if c.AudioFormat == "pulse" {
			c.AudioDevice = "default"
		} else {
			c.AudioDevice = d.AudioDevice
		}
	}
	if c.StreamMaxRateK <= 0 {
		c.StreamMaxRateK = d.StreamMaxRateK
	}
	return c
}

// BuildArgs constructs the capture arguments for sink.
// It never goes through a shell, so the target is passed verbatim.
func BuildArgs(spec CaptureSpec, sink ports.EncoderSink) ([]string, error) {
	if sink.Target == "" {
		return nil, fmt.Errorf("missing encoder target")
	}
	spec = spec.withDefaults()
	if spec.AudioFormat != "alsa" && spec.AudioFormat != "pulse" {
		return nil, fmt.Errorf("unsupported audio format %q", spec.AudioFormat)
	}
	fps := strconv.Itoa(spec.Framerate)
	gop := strconv.Itoa(spec.Framerate * 2)

	args := []string{
		"-y",
		"-v", "info",
		"-nostdin",
		// Video: the browser window on the virtual display.
		"-f", "x11grab",
		"-draw_mouse", "0",
		"-r", fps,
		"-s", spec.VideoSize,
		"-thread_queue_size", "4096",
		"-i", spec.Display + ".0+0,0",
		// Audio: the loopback device the browser plays into.
		"-f", spec.AudioFormat,
		"-thread_queue_size", "4096",
		"-i", spec.AudioDevice,
		"-acodec", "aac", "-strict", "-2", "-ar", "44100", "-b:a", "128k",
		"-af", "aresample=async=1",
		"-c:v", "libx264",
		"-preset", spec.Preset,
		"-profile:v", "main",
		"-level", "3.1",
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-crf", "25",
		"-g", gop,
		"-tune", "zerolatency",
	}

	switch sink.Mode {
	case model.ModeRecord:
		if !filepath.IsAbs(sink.Target) {
			return nil, fmt.Errorf("recording path must be absolute: %s", sink.Target)
		}
		args = append(args, "-f", "mp4", sink.Target)
	case model.ModeStream:
		if !strings.HasPrefix(sink.Target, "rtmp://") && !strings.HasPrefix(sink.Target, "rtmps://") {
			return nil, fmt.Errorf("stream target must be rtmp(s): %s", sink.Target)
		}
		maxRate := strconv.Itoa(spec.StreamMaxRateK) + "k"
		bufSize := strconv.Itoa(spec.StreamMaxRateK*2) + "k"
		args = append(args, "-maxrate", maxRate, "-bufsize", bufSize, "-f", "flv", sink.Target)
	default:
		return nil, fmt.Errorf("ffmpeg cannot serve mode %q", sink.Mode)
	}
	return args, nil
}

// PartPath returns the file name used for the n-th relaunch of a recording.
// Part 0 is the original path.
func PartPath(path string, n int) string {
	if n <= 0 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_part%d%s", strings.TrimSuffix(path, ext), n, ext)
}
