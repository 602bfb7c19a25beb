// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/manager"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/health"
	"github.com/ManuGH/jibri/internal/log"
	platformnet "github.com/ManuGH/jibri/internal/platform/net"
)

const maxBodyBytes = 1 << 20

// StartServiceResponse acknowledges an admitted session.
type StartServiceResponse struct {
	SessionID string           `json:"sessionId"`
	State     model.JibriState `json:"state"`
}

// StopServiceResponse reports whether a session was stopped.
type StopServiceResponse struct {
	Stopped   bool             `json:"stopped"`
	SessionID string           `json:"sessionId,omitempty"`
	State     model.JibriState `json:"state"`
}

// GracefulShutdownResponse reports whether shutdown waits for the active session.
type GracefulShutdownResponse struct {
	Deferred bool             `json:"deferred"`
	State    model.JibriState `json:"state"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status model.JibriState      `json:"status"`
	Health health.HealthResponse `json:"health"`
}

func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	var req StartServiceRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_request", "malformed JSON body: "+err.Error())
		return
	}

	params, err := req.JobParams()
	if err == nil {
		params, err = s.policy().Check(params)
	}
	if err != nil {
		code := "invalid_params"
		if errors.Is(err, platformnet.ErrDestinationNotAllowed) {
			code = "destination_not_allowed"
		}
		writeProblem(w, r, http.StatusBadRequest, code, err.Error())
		return
	}

	h, err := s.deps.Manager.Start(params, s.deps.Factory)
	if err != nil {
		s.writeStartError(w, r, err)
		return
	}

	logger.Info().
		Str(log.FieldEvent, "api.session_started").
		Str(log.FieldSessionID, h.SessionID()).
		Str(log.FieldMode, string(params.Mode)).
		Msg("start service accepted")
	writeJSON(w, http.StatusOK, StartServiceResponse{
		SessionID: h.SessionID(),
		State:     s.deps.Manager.State(),
	})
}

func (s *Server) writeStartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, manager.ErrBusy):
		state := s.deps.Manager.State()
		writeProblemExtra(w, r, http.StatusConflict, "busy", err.Error(), map[string]any{
			"activeSessionId": state.SessionID,
		})
	case errors.Is(err, manager.ErrExpired):
		writeProblem(w, r, http.StatusServiceUnavailable, "expired", err.Error())
	case errors.Is(err, manager.ErrSystemUnhealthy):
		writeProblem(w, r, http.StatusServiceUnavailable, "unhealthy", err.Error())
	case errors.Is(err, manager.ErrShuttingDown):
		writeProblem(w, r, http.StatusServiceUnavailable, "shutting_down", err.Error())
	case errors.Is(err, lifecycle.ErrBadRequest):
		writeProblem(w, r, http.StatusBadRequest, "invalid_params", err.Error())
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().
			Err(err).
			Str(log.FieldEvent, "api.start_failed").
			Msg("start service failed")
		writeProblem(w, r, http.StatusInternalServerError, "internal_error", "session could not be created")
	}
}

func (s *Server) handleStopService(w http.ResponseWriter, r *http.Request) {
	var req StopServiceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeProblem(w, r, http.StatusBadRequest, "invalid_request", "malformed JSON body: "+err.Error())
			return
		}
	}

	state := s.deps.Manager.State()
	if req.SessionID != "" && state.SessionID != "" && req.SessionID != state.SessionID {
		writeProblem(w, r, http.StatusConflict, "session_mismatch", "session "+req.SessionID+" is not active")
		return
	}

	resp := StopServiceResponse{}
	if h, ok := s.deps.Manager.Stop(model.RCancelled); ok {
		resp.Stopped = true
		resp.SessionID = h.SessionID()
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str(log.FieldEvent, "api.session_stop").
			Str(log.FieldSessionID, h.SessionID()).
			Msg("stop service requested")
	}
	resp.State = s.deps.Manager.State()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResetError(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Manager.ResetError() {
		writeProblem(w, r, http.StatusConflict, "not_in_error", "instance is not in error state")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Manager.State())
}

func (s *Server) handleGracefulShutdown(w http.ResponseWriter, r *http.Request) {
	if s.deps.Shutdown == nil {
		writeProblem(w, r, http.StatusNotImplemented, "not_supported", "graceful shutdown is not available")
		return
	}
	var ran atomic.Bool
	shutdown := s.deps.Shutdown
	s.deps.Manager.ExecuteWhenIdle(func() {
		ran.Store(true)
		shutdown()
	})

	resp := GracefulShutdownResponse{Deferred: !ran.Load(), State: s.deps.Manager.State()}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "api.graceful_shutdown").
		Bool("deferred", resp.Deferred).
		Msg("graceful shutdown requested")
	status := http.StatusOK
	if resp.Deferred {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: s.deps.Manager.State(),
		Health: s.deps.Health.Health(r.Context(), true),
	}
	status := http.StatusOK
	if resp.Health.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
