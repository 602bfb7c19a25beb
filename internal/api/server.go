// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP control surface of a jibri instance.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/jibri/internal/api/middleware"
	"github.com/ManuGH/jibri/internal/domain/session/manager"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/health"
	"github.com/ManuGH/jibri/internal/log"
	platformnet "github.com/ManuGH/jibri/internal/platform/net"
)

// BasePath prefixes the control routes.
const BasePath = "/jibri/api/v1.0"

// SessionManager is the part of *manager.Manager the API drives.
type SessionManager interface {
	Start(params model.JobParams, factory manager.Factory) (*manager.Handle, error)
	Stop(reason model.ReasonCode) (*manager.Handle, bool)
	State() model.JibriState
	ResetError() bool
	ExecuteWhenIdle(fn func())
}

// Deps wire a Server.
type Deps struct {
	Manager SessionManager
	// Factory builds the session for admitted requests.
	Factory manager.Factory
	// Policy returns the destination policy in force. Nil allows every destination.
	Policy func() platformnet.DestinationPolicy
	Health *health.Manager
	Stack  middleware.StackConfig
	// Shutdown ends the process. gracefulShutdown queues it until no session
	// is active. Nil disables the route.
	Shutdown func()
}

// Server serves the control API.
type Server struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates a server. Manager and Factory are required.
func New(deps Deps) *Server {
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	return &Server{
		deps:   deps,
		logger: log.WithComponent("api"),
	}
}

// Handler returns the router with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(s.deps.Stack)

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(BasePath, func(r chi.Router) {
		r.Post("/startService", s.handleStartService)
		r.Post("/stopService", s.handleStopService)
		r.Post("/resetError", s.handleResetError)
		r.Post("/gracefulShutdown", s.handleGracefulShutdown)
		r.Get("/health", s.handleHealth)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})
	return r
}

func (s *Server) policy() platformnet.DestinationPolicy {
	if s.deps.Policy == nil {
		return platformnet.DestinationPolicy{AllowLocal: true}
	}
	return s.deps.Policy()
}
