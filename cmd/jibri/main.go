// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command jibri runs a single-slot recording, streaming and SIP gateway worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/jibri/internal/api"
	"github.com/ManuGH/jibri/internal/config"
	"github.com/ManuGH/jibri/internal/daemon"
	"github.com/ManuGH/jibri/internal/domain/session/manager"
	"github.com/ManuGH/jibri/internal/health"
	"github.com/ManuGH/jibri/internal/infrastructure/platform"
	"github.com/ManuGH/jibri/internal/infrastructure/webhook"
	jlog "github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/pipeline/bus"
	platformnet "github.com/ManuGH/jibri/internal/platform/net"
	"github.com/ManuGH/jibri/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until config is loaded
	jlog.Configure(jlog.Config{
		Level:   "info",
		Service: "jibri",
		Version: version,
	})
	logger := jlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	loader := config.NewLoader(path, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(jlog.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	jlog.Configure(jlog.Config{
		Level:   cfg.Log.Level,
		Service: "jibri",
		Version: cfg.Version,
	})
	logger = jlog.WithComponent("main")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(jlog.FieldEvent, "config.loaded").
		Str("source", source).
		Str(jlog.FieldPath, path).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(jlog.FieldEvent, "startup.checks_failed").
			Msg("startup checks failed")
	}

	tp, err := telemetry.NewProvider(ctx, telemetryConfig(cfg))
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(jlog.FieldEvent, "telemetry.init_failed").
			Msg("failed to initialize telemetry")
	}

	runErr := run(ctx, cfg, loader)
	if runErr != nil {
		logger.Error().
			Err(runErr).
			Str(jlog.FieldEvent, "daemon.failed").
			Msg("daemon app failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Str(jlog.FieldEvent, "telemetry.shutdown_failed").Msg("telemetry shutdown failed")
	}

	logger.Info().Msg("jibri exiting")
	if runErr != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, loader *config.Loader) error {
	logger := jlog.WithComponent("main")
	ctx, requestShutdown := context.WithCancel(ctx)
	defer requestShutdown()
	holder := config.NewHolder(cfg, loader)
	osp := platform.NewOSPlatform()

	jibriID, err := osp.Identity()
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	stateBus := bus.NewMemoryBus()
	sessions := manager.New(context.WithoutCancel(ctx), manager.Options{
		SingleUse:           cfg.Session.SingleUse,
		DefaultUsageTimeout: cfg.Session.UsageTimeout,
		Bus:                 stateBus,
	})

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewStateChecker(sessions.State))
	hm.RegisterChecker(health.NewDirChecker("output_dir", cfg.Data.OutputDir))

	srv := api.New(api.Deps{
		Manager: sessions,
		Factory: sessionFactory(holder.Get, osp),
		Policy: func() platformnet.DestinationPolicy {
			return holder.Get().Destinations.Policy()
		},
		Health: hm,
		Stack:  stackConfig(cfg),
		Shutdown: func() {
			logger.Info().Str(jlog.FieldEvent, "shutdown.graceful").Msg("idle, shutting down on request")
			requestShutdown()
		},
	})

	dm, err := daemon.NewManager(daemon.ServerConfigFrom(cfg.API), daemon.Deps{
		Logger:     jlog.WithComponent("daemon"),
		APIHandler: srv.Handler(),
	})
	if err != nil {
		return fmt.Errorf("create daemon manager: %w", err)
	}
	// Runs after the API server stopped accepting requests.
	dm.RegisterShutdownHook("sessions", sessions.Shutdown)

	app := daemon.NewApp(jlog.WithComponent("daemon"), dm, holder)
	notifier := webhook.New(webhook.Options{
		Subscribers: cfg.Webhooks.Subscribers,
		JibriID:     jibriID,
		Timeout:     cfg.Webhooks.Timeout,
	})
	app.AddRunner("webhooks", func(ctx context.Context) error {
		return notifier.Run(ctx, stateBus)
	})

	logger.Info().
		Str(jlog.FieldEvent, "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("jibri_id", jibriID).
		Str("addr", cfg.API.ListenAddr).
		Str("output_dir", cfg.Data.OutputDir).
		Bool("single_use", cfg.Session.SingleUse).
		Msg("starting jibri")

	return app.Run(ctx)
}
