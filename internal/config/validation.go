// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"regexp"

	"github.com/ManuGH/jibri/internal/validate"
)

var videoSizeRe = regexp.MustCompile(`^[1-9][0-9]{1,4}x[1-9][0-9]{1,4}$`)

// Validate checks cross-field constraints. Field names are the YAML paths.
func Validate(cfg Config) error {
	v := validate.New()

	v.AbsolutePath("data.output_dir", cfg.Data.OutputDir)
	v.Executable("data.finalize_script", cfg.Data.FinalizeScript)
	v.PositiveDuration("data.finalize_timeout", cfg.Data.FinalizeTimeout)

	v.NonNegativeDuration("session.usage_timeout", cfg.Session.UsageTimeout)
	v.PositiveDuration("session.join_timeout", cfg.Session.JoinTimeout)
	v.PositiveDuration("session.stop_timeout", cfg.Session.StopTimeout)

	v.PositiveDuration("checks.interval", cfg.Checks.Interval)
	v.PositiveDuration("checks.empty_call_timeout", cfg.Checks.EmptyCallTimeout)
	v.PositiveDuration("checks.no_media_timeout", cfg.Checks.NoMediaTimeout)
	v.PositiveDuration("checks.all_muted_timeout", cfg.Checks.AllMutedTimeout)
	v.PositiveDuration("checks.ice_timeout", cfg.Checks.IceTimeout)

	v.NotEmpty("encoder.bin", cfg.Encoder.Bin)
	v.PositiveDuration("encoder.stop_timeout", cfg.Encoder.StopTimeout)
	v.PositiveDuration("encoder.hang_timeout", cfg.Encoder.HangTimeout)
	v.Range("encoder.max_restarts", cfg.Encoder.MaxRestarts, 0, 10)
	if !videoSizeRe.MatchString(cfg.Encoder.VideoSize) {
		v.AddError("encoder.video_size", "must look like 1280x720", cfg.Encoder.VideoSize)
	}
	v.Range("encoder.framerate", cfg.Encoder.Framerate, 1, 60)
	v.NotEmpty("encoder.preset", cfg.Encoder.Preset)
	v.OneOf("encoder.audio_format", cfg.Encoder.AudioFormat, []string{"alsa", "pulse"})

	v.NotEmpty("sip.bin", cfg.SIP.Bin)

	v.URL("browser.webdriver_url", cfg.Browser.WebDriverURL, []string{"http", "https"})
	v.PositiveDuration("browser.poll_interval", cfg.Browser.PollInterval)
	v.NotEmpty("browser.display", cfg.Browser.Display)
	v.PositiveDuration("browser.command_timeout", cfg.Browser.CommandTimeout)

	if err := cfg.Destinations.Policy().Validate(); err != nil {
		v.AddError("destinations", err.Error(), cfg.Destinations)
	}

	v.ListenAddr("api.listen_addr", cfg.API.ListenAddr)
	v.NonNegative("api.rate_limit", cfg.API.RateLimit)
	v.PositiveDuration("api.shutdown_timeout", cfg.API.ShutdownTimeout)

	for _, sub := range cfg.Webhooks.Subscribers {
		v.URL("webhooks.subscribers", sub, []string{"http", "https"})
	}
	v.PositiveDuration("webhooks.timeout", cfg.Webhooks.Timeout)

	v.OneOf("log.level", cfg.Log.Level, validate.LogLevels())

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
