// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"github.com/ManuGH/jibri/internal/api/middleware"
	"github.com/ManuGH/jibri/internal/config"
	"github.com/ManuGH/jibri/internal/domain/session/job"
	"github.com/ManuGH/jibri/internal/domain/session/manager"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/infrastructure/browser"
	"github.com/ManuGH/jibri/internal/pipeline/exec"
	"github.com/ManuGH/jibri/internal/pipeline/finalize"
	"github.com/ManuGH/jibri/internal/telemetry"
)

// sessionConfig maps the configuration onto one session.
func sessionConfig(cfg config.Config) job.Config {
	return job.Config{
		OutputDir:     cfg.Data.OutputDir,
		EncoderBin:    cfg.Encoder.Bin,
		SIPClientBin:  cfg.SIP.Bin,
		CheckInterval: cfg.Checks.Interval,
		HangTimeout:   cfg.Encoder.HangTimeout,
		JoinTimeout:   cfg.Session.JoinTimeout,
		StopTimeout:   cfg.Session.StopTimeout,
		Timeouts:      cfg.Checks.Timeouts(),
	}
}

func browserOptions(cfg config.Config) browser.Options {
	return browser.Options{
		WebDriverURL:     cfg.Browser.WebDriverURL,
		JoinPollInterval: cfg.Browser.PollInterval,
		Driver: browser.DriverOptions{
			CommandTimeout: cfg.Browser.CommandTimeout,
		},
	}
}

func encoderFactory(cfg config.Config) *exec.RealFactory {
	f := exec.NewRealFactory(cfg.Encoder.Bin, cfg.Capture(), cfg.Encoder.StopTimeout, cfg.Encoder.MaxRestarts)
	f.PJSUABin = cfg.SIP.Bin
	f.PJSUAConfig = cfg.SIP.ConfigFile
	return f
}

// sessionFactory reads the configuration per session so reloads apply to the next one.
func sessionFactory(current func() config.Config, platform ports.Platform) manager.Factory {
	return func(params model.JobParams) (manager.Session, error) {
		cfg := current()
		deps := job.Deps{
			Observers: browser.NewFactory(browserOptions(cfg)),
			Encoders:  encoderFactory(cfg).NewEncoder,
			Platform:  platform,
		}
		if params.Mode == model.ModeRecord {
			deps.Finalizer = finalize.New(cfg.Data.FinalizeScript, cfg.Data.FinalizeTimeout)
		}
		return job.New(params, sessionConfig(cfg), deps), nil
	}
}

func telemetryConfig(cfg config.Config) telemetry.Config {
	return telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "jibri",
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	}
}

func stackConfig(cfg config.Config) middleware.StackConfig {
	sc := middleware.StackConfig{
		EnableMetrics: true,
		EnableLogging: true,
		RateLimit:     cfg.API.RateLimit,
	}
	if cfg.Telemetry.Enabled {
		sc.TracingService = "jibri-api"
	}
	return sc
}
