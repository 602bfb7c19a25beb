// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/jibri/internal/log"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: serving the API and handling shutdown.
type Manager interface {
	// Start starts the API server and blocks until shutdown
	Start(ctx context.Context) error

	// Shutdown gracefully shuts down the server and runs the hooks
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to be called during shutdown
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type manager struct {
	serverCfg ServerConfig
	deps      Deps

	apiServer *http.Server

	// Shutdown hooks (LIFO order)
	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a new daemon manager with the given configuration and dependencies.
func NewManager(serverCfg ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = 30 * time.Second
	}

	return &manager{
		serverCfg:     serverCfg,
		deps:          deps,
		logger:        deps.Logger.With().Str(log.FieldComponent, "daemon").Logger(),
		shutdownHooks: make([]namedHook, 0),
	}, nil
}

// Start binds the listener, serves the API and blocks until ctx is cancelled
// or the server fails. Either way Shutdown runs before it returns.
func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("listen", m.serverCfg.ListenAddr).
		Dur("read_timeout", m.serverCfg.ReadTimeout).
		Dur("write_timeout", m.serverCfg.WriteTimeout).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Msg("starting daemon manager")

	errChan := make(chan error, 1)
	if err := m.startAPIServer(ctx, errChan); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(fmt.Errorf("start API server: %w", err), m.Shutdown(shutdownCtx))
	}

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("server error, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

// startAPIServer binds synchronously so address errors surface from Start.
func (m *manager) startAPIServer(ctx context.Context, errChan chan<- error) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", m.serverCfg.ListenAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           m.deps.APIHandler,
		ReadTimeout:       m.serverCfg.ReadTimeout,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
		WriteTimeout:      m.serverCfg.WriteTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
		MaxHeaderBytes:    m.serverCfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	m.mu.Lock()
	m.apiServer = srv
	m.mu.Unlock()

	go func() {
		m.logger.Info().
			Str("addr", ln.Addr().String()).
			Str(log.FieldEvent, "api.server.listening").
			Msg("API server listening (HTTP)")

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(log.FieldEvent, "api.server.failed").
				Msg("API server (HTTP) failed")
			errChan <- fmt.Errorf("API server (HTTP): %w", err)
		}
	}()

	return nil
}

func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	srv := m.apiServer
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	m.logger.Info().Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	if srv != nil {
		m.logger.Debug().Msg("shutting down API server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}

	m.logger.Debug().Int("hooks", len(hooks)).Msg("executing shutdown hooks")
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
		} else {
			m.logger.Debug().
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook completed")
		}
	}

	if len(errs) > 0 {
		m.logger.Error().
			Int("error_count", len(errs)).
			Msg("shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	m.logger.Info().Msg("daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHooks = append(m.shutdownHooks, namedHook{
		name: name,
		hook: hook,
	})
	m.logger.Debug().Str("hook", name).Msg("registered shutdown hook")
}
