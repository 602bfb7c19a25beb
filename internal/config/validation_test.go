// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"relative output dir", func(c *Config) { c.Data.OutputDir = "recordings" }, "data.output_dir"},
		{"missing finalize script", func(c *Config) { c.Data.FinalizeScript = "/nonexistent/finalize.sh" }, "data.finalize_script"},
		{"negative usage timeout", func(c *Config) { c.Session.UsageTimeout = -1 }, "session.usage_timeout"},
		{"zero check interval", func(c *Config) { c.Checks.Interval = 0 }, "checks.interval"},
		{"too many restarts", func(c *Config) { c.Encoder.MaxRestarts = 11 }, "encoder.max_restarts"},
		{"bad video size", func(c *Config) { c.Encoder.VideoSize = "hd" }, "encoder.video_size"},
		{"webdriver scheme", func(c *Config) { c.Browser.WebDriverURL = "ws://localhost:9515" }, "browser.webdriver_url"},
		{"bad destination", func(c *Config) { c.Destinations.CallDomains = []string{"bad host!"} }, "destinations"},
		{"listen addr", func(c *Config) { c.API.ListenAddr = "2222" }, "api.listen_addr"},
		{"webhook url", func(c *Config) { c.Webhooks.Subscribers = []string{"not a url"} }, "webhooks.subscribers"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"telemetry disabled skips checks", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, ""},
		{"telemetry exporter", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
		{"telemetry sampling", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SamplingRate = 2
		}, "telemetry.sampling_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestChecksTimeouts(t *testing.T) {
	cfg := Defaults()
	to := cfg.Checks.Timeouts()
	assert.Equal(t, cfg.Checks.EmptyCallTimeout, to.EmptyCall)
	assert.Equal(t, cfg.Checks.NoMediaTimeout, to.NoMedia)
	assert.Equal(t, cfg.Checks.AllMutedTimeout, to.AllMuted)
	assert.Equal(t, cfg.Checks.IceTimeout, to.Ice)
}
