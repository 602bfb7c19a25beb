// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration.
//
// Precedence is environment (JIBRI_*) over the YAML file over defaults.
// The file is parsed strictly: unknown keys are rejected.
package config

import (
	"time"

	"github.com/ManuGH/jibri/internal/domain/session/checks"
	"github.com/ManuGH/jibri/internal/pipeline/exec/ffmpeg"
	platformnet "github.com/ManuGH/jibri/internal/platform/net"
)

// Config is the complete daemon configuration.
type Config struct {
	Data         DataConfig         `yaml:"data"`
	Session      SessionConfig      `yaml:"session"`
	Checks       ChecksConfig       `yaml:"checks"`
	Encoder      EncoderConfig      `yaml:"encoder"`
	SIP          SIPConfig          `yaml:"sip"`
	Browser      BrowserConfig      `yaml:"browser"`
	Destinations DestinationsConfig `yaml:"destinations"`
	API          APIConfig          `yaml:"api"`
	Webhooks     WebhooksConfig     `yaml:"webhooks"`
	Log          LogConfig          `yaml:"log"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`

	// Version is set from the binary, never from file or env.
	Version string `yaml:"-"`
}

type DataConfig struct {
	// OutputDir holds one sub-directory per recording session.
	OutputDir       string        `yaml:"output_dir"`
	FinalizeScript  string        `yaml:"finalize_script"`
	FinalizeTimeout time.Duration `yaml:"finalize_timeout"`
}

type SessionConfig struct {
	// UsageTimeout applies when a request carries none. Zero means unlimited.
	UsageTimeout time.Duration `yaml:"usage_timeout"`
	SingleUse    bool          `yaml:"single_use"`
	JoinTimeout  time.Duration `yaml:"join_timeout"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
}

type ChecksConfig struct {
	Interval         time.Duration `yaml:"interval"`
	EmptyCallTimeout time.Duration `yaml:"empty_call_timeout"`
	NoMediaTimeout   time.Duration `yaml:"no_media_timeout"`
	AllMutedTimeout  time.Duration `yaml:"all_muted_timeout"`
	IceTimeout       time.Duration `yaml:"ice_timeout"`
}

// Timeouts converts the section for the checks package.
func (c ChecksConfig) Timeouts() checks.Timeouts {
	return checks.Timeouts{
		EmptyCall: c.EmptyCallTimeout,
		NoMedia:   c.NoMediaTimeout,
		AllMuted:  c.AllMutedTimeout,
		Ice:       c.IceTimeout,
	}
}

type EncoderConfig struct {
	Bin         string        `yaml:"bin"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
	HangTimeout time.Duration `yaml:"hang_timeout"`
	MaxRestarts int           `yaml:"max_restarts"`
	VideoSize   string        `yaml:"video_size"`
	Framerate   int           `yaml:"framerate"`
	Preset      string        `yaml:"preset"`
	AudioFormat string        `yaml:"audio_format"`
	AudioDevice string        `yaml:"audio_device"`
}

// Capture converts the section for the ffmpeg dialect. Display comes from the browser section.
func (c Config) Capture() ffmpeg.CaptureSpec {
	return ffmpeg.CaptureSpec{
		Display:     c.Browser.Display,
		VideoSize:   c.Encoder.VideoSize,
		Framerate:   c.Encoder.Framerate,
		Preset:      c.Encoder.Preset,
		AudioFormat: c.Encoder.AudioFormat,
		AudioDevice: c.Encoder.AudioDevice,
	}
}

type SIPConfig struct {
	Bin        string `yaml:"bin"`
	ConfigFile string `yaml:"config_file"`
}

type BrowserConfig struct {
	WebDriverURL string        `yaml:"webdriver_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// Display is the X11 display both the browser and the capture use.
	Display        string        `yaml:"display"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// DestinationsConfig restricts where sessions may connect to. Empty lists allow any host.
type DestinationsConfig struct {
	CallDomains []string `yaml:"call_domains"`
	StreamHosts []string `yaml:"stream_hosts"`
	AllowLocal  bool     `yaml:"allow_local"`
}

// Policy converts the section for admission checks.
func (c DestinationsConfig) Policy() platformnet.DestinationPolicy {
	return platformnet.DestinationPolicy{
		CallDomains: c.CallDomains,
		StreamHosts: c.StreamHosts,
		AllowLocal:  c.AllowLocal,
	}
}

type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	// RateLimit is requests per minute per client on the control routes.
	RateLimit       int           `yaml:"rate_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type WebhooksConfig struct {
	Subscribers []string      `yaml:"subscribers"`
	Timeout     time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the configuration used when neither file nor env set a value.
func Defaults() Config {
	t := checks.DefaultTimeouts()
	capture := ffmpeg.DefaultCaptureSpec()
	return Config{
		Data: DataConfig{
			OutputDir:       "/tmp/recordings",
			FinalizeTimeout: 2 * time.Minute,
		},
		Session: SessionConfig{
			JoinTimeout: 60 * time.Second,
			StopTimeout: 15 * time.Second,
		},
		Checks: ChecksConfig{
			Interval:         15 * time.Second,
			EmptyCallTimeout: t.EmptyCall,
			NoMediaTimeout:   t.NoMedia,
			AllMutedTimeout:  t.AllMuted,
			IceTimeout:       t.Ice,
		},
		Encoder: EncoderConfig{
			Bin:         "ffmpeg",
			StopTimeout: 10 * time.Second,
			HangTimeout: 5 * time.Second,
			MaxRestarts: 1,
			VideoSize:   capture.VideoSize,
			Framerate:   capture.Framerate,
			Preset:      capture.Preset,
			AudioFormat: capture.AudioFormat,
			AudioDevice: capture.AudioDevice,
		},
		SIP: SIPConfig{
			Bin: "pjsua",
		},
		Browser: BrowserConfig{
			WebDriverURL:   "http://127.0.0.1:9515",
			PollInterval:   500 * time.Millisecond,
			Display:        capture.Display,
			CommandTimeout: 60 * time.Second,
		},
		API: APIConfig{
			ListenAddr:      ":2222",
			RateLimit:       60,
			ShutdownTimeout: 30 * time.Second,
		},
		Webhooks: WebhooksConfig{
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
