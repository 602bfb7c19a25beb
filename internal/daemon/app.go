// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon runs the long-lived parts of a jibri instance.
package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/jibri/internal/config"
	"github.com/ManuGH/jibri/internal/log"
)

// Runner is a background task that runs until ctx is done.
type Runner func(ctx context.Context) error

type namedRunner struct {
	name string
	run  Runner
}

// App owns the runtime lifecycle (config watcher, reload signal, background
// runners) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.Holder
	runners      []namedRunner
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. cfgHolder may be nil.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.Holder) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		reloadSignal: syscall.SIGHUP,
	}
}

// AddRunner registers a background task. A runner error stops the app.
func (a *App) AddRunner(name string, run Runner) {
	a.runners = append(a.runners, namedRunner{name: name, run: run})
}

// Run starts all owned subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// The watcher is best effort: a failure leaves SIGHUP reloads working.
	if a.cfgHolder != nil {
		g.Go(func() error {
			if err := a.cfgHolder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
			}
			return nil
		})
	}

	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")
					// Reload logs its own failure.
					_ = a.cfgHolder.Reload(ctx)
				}
			}
		})
	}

	for _, r := range a.runners {
		g.Go(func() error {
			a.logger.Debug().Str("runner", r.name).Msg("runner started")
			err := r.run(ctx)
			if err != nil && ctx.Err() == nil {
				a.logger.Error().Err(err).Str("runner", r.name).Str(log.FieldEvent, "daemon.runner_failed").Msg("background runner failed")
				return err
			}
			return nil
		})
	}

	// Main server lifecycle. It returns once shutdown has completed.
	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	return g.Wait()
}
