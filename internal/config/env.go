// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvPrefix is shared by every environment override.
const EnvPrefix = "JIBRI_"

// envReader applies environment overrides on top of a value. Invalid values are
// collected instead of silently falling back.
type envReader struct {
	logger   zerolog.Logger
	lookup   func(string) (string, bool)
	consumed map[string]struct{}
	errs     []error
}

func newEnvReader(logger zerolog.Logger, lookup func(string) (string, bool)) *envReader {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &envReader{logger: logger, lookup: lookup, consumed: make(map[string]struct{})}
}

func (r *envReader) raw(key string) (string, bool) {
	r.consumed[key] = struct{}{}
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (r *envReader) used(key string, sensitive bool, value any) {
	ev := r.logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Interface("value", value)
	}
	ev.Msg("using environment variable")
}

func (r *envReader) invalid(key, value, kind string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: invalid %s: %w", key, value, kind, err))
}

func (r *envReader) String(key string, dst *string) {
	if v, ok := r.raw(key); ok {
		*dst = v
		lower := strings.ToLower(key)
		r.used(key, strings.Contains(lower, "token") || strings.Contains(lower, "password"), v)
	}
}

func (r *envReader) Bool(key string, dst *bool) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		r.invalid(key, v, "boolean", fmt.Errorf("want true/false/1/0/yes/no"))
		return
	}
	r.used(key, false, *dst)
}

func (r *envReader) Int(key string, dst *int) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.invalid(key, v, "integer", err)
		return
	}
	*dst = i
	r.used(key, false, i)
}

func (r *envReader) Float(key string, dst *float64) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.invalid(key, v, "number", err)
		return
	}
	*dst = f
	r.used(key, false, f)
}

func (r *envReader) Duration(key string, dst *time.Duration) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.invalid(key, v, "duration", err)
		return
	}
	*dst = d
	r.used(key, false, d.String())
}

// List reads a comma separated list. Blank items are dropped.
func (r *envReader) List(key string, dst *[]string) {
	v, ok := r.raw(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
	r.used(key, false, out)
}

// unknownKeys returns JIBRI_* variables that no binding consumed.
func (r *envReader) unknownKeys(environ []string) []string {
	var unknown []string
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := r.consumed[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

// applyEnv binds every supported override. Keys mirror the YAML path.
func applyEnv(r *envReader, cfg *Config) {
	r.String("JIBRI_DATA_OUTPUT_DIR", &cfg.Data.OutputDir)
	r.String("JIBRI_DATA_FINALIZE_SCRIPT", &cfg.Data.FinalizeScript)
	r.Duration("JIBRI_DATA_FINALIZE_TIMEOUT", &cfg.Data.FinalizeTimeout)

	r.Duration("JIBRI_SESSION_USAGE_TIMEOUT", &cfg.Session.UsageTimeout)
	r.Bool("JIBRI_SESSION_SINGLE_USE", &cfg.Session.SingleUse)
	r.Duration("JIBRI_SESSION_JOIN_TIMEOUT", &cfg.Session.JoinTimeout)
	r.Duration("JIBRI_SESSION_STOP_TIMEOUT", &cfg.Session.StopTimeout)

	r.Duration("JIBRI_CHECKS_INTERVAL", &cfg.Checks.Interval)
	r.Duration("JIBRI_CHECKS_EMPTY_CALL_TIMEOUT", &cfg.Checks.EmptyCallTimeout)
	r.Duration("JIBRI_CHECKS_NO_MEDIA_TIMEOUT", &cfg.Checks.NoMediaTimeout)
	r.Duration("JIBRI_CHECKS_ALL_MUTED_TIMEOUT", &cfg.Checks.AllMutedTimeout)
	r.Duration("JIBRI_CHECKS_ICE_TIMEOUT", &cfg.Checks.IceTimeout)

	r.String("JIBRI_ENCODER_BIN", &cfg.Encoder.Bin)
	r.Duration("JIBRI_ENCODER_STOP_TIMEOUT", &cfg.Encoder.StopTimeout)
	r.Duration("JIBRI_ENCODER_HANG_TIMEOUT", &cfg.Encoder.HangTimeout)
	r.Int("JIBRI_ENCODER_MAX_RESTARTS", &cfg.Encoder.MaxRestarts)
	r.String("JIBRI_ENCODER_VIDEO_SIZE", &cfg.Encoder.VideoSize)
	r.Int("JIBRI_ENCODER_FRAMERATE", &cfg.Encoder.Framerate)
	r.String("JIBRI_ENCODER_PRESET", &cfg.Encoder.Preset)
	r.String("JIBRI_ENCODER_AUDIO_FORMAT", &cfg.Encoder.AudioFormat)
	r.String("JIBRI_ENCODER_AUDIO_DEVICE", &cfg.Encoder.AudioDevice)

	r.String("JIBRI_SIP_BIN", &cfg.SIP.Bin)
	r.String("JIBRI_SIP_CONFIG_FILE", &cfg.SIP.ConfigFile)

	r.String("JIBRI_BROWSER_WEBDRIVER_URL", &cfg.Browser.WebDriverURL)
	r.Duration("JIBRI_BROWSER_POLL_INTERVAL", &cfg.Browser.PollInterval)
	r.String("JIBRI_BROWSER_DISPLAY", &cfg.Browser.Display)
	r.Duration("JIBRI_BROWSER_COMMAND_TIMEOUT", &cfg.Browser.CommandTimeout)

	r.List("JIBRI_DESTINATIONS_CALL_DOMAINS", &cfg.Destinations.CallDomains)
	r.List("JIBRI_DESTINATIONS_STREAM_HOSTS", &cfg.Destinations.StreamHosts)
	r.Bool("JIBRI_DESTINATIONS_ALLOW_LOCAL", &cfg.Destinations.AllowLocal)

	r.String("JIBRI_API_LISTEN_ADDR", &cfg.API.ListenAddr)
	r.Int("JIBRI_API_RATE_LIMIT", &cfg.API.RateLimit)
	r.Duration("JIBRI_API_SHUTDOWN_TIMEOUT", &cfg.API.ShutdownTimeout)

	r.List("JIBRI_WEBHOOKS_SUBSCRIBERS", &cfg.Webhooks.Subscribers)
	r.Duration("JIBRI_WEBHOOKS_TIMEOUT", &cfg.Webhooks.Timeout)

	r.String("JIBRI_LOG_LEVEL", &cfg.Log.Level)

	r.Bool("JIBRI_TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	r.String("JIBRI_TELEMETRY_EXPORTER", &cfg.Telemetry.Exporter)
	r.String("JIBRI_TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
	r.Bool("JIBRI_TELEMETRY_INSECURE", &cfg.Telemetry.Insecure)
	r.Float("JIBRI_TELEMETRY_SAMPLING_RATE", &cfg.Telemetry.SamplingRate)
}
