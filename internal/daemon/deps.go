// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/jibri/internal/config"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler is the HTTP handler for the control API
	APIHandler http.Handler
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// ServerConfigFrom derives server settings from the api section.
func ServerConfigFrom(c config.APIConfig) ServerConfig {
	return ServerConfig{
		ListenAddr:      c.ListenAddr,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}
