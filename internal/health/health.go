// SPDX-License-Identifier: MIT

// Package health aggregates component checks into liveness and readiness answers.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    int64                  `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version  string
	started  time.Time
	checkers []Checker
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version:  version,
		started:  time.Now(),
		checkers: make([]Checker, 0),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// runChecks evaluates every checker and folds the results. Unhealthy wins over degraded.
func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	results := make(map[string]CheckResult, len(m.checkers))
	overall := StatusHealthy
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		results[checker.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}
	return results, overall
}

// Health performs a liveness check. Component checks are only run when verbose.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Uptime:    int64(time.Since(m.started).Seconds()),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready performs a readiness check. Any unhealthy component makes the instance not ready.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}
	resp.Checks, resp.Status = m.runChecks(ctx)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

// ServeHealth handles HTTP liveness requests. It always answers 200.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str(log.FieldEvent, "health.checked").
		Str("status", string(resp.Status)).
		Bool("verbose", verbose).
		Msg("health check performed")
}

// ServeReady handles HTTP readiness requests.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// StateChecker reports the session manager's coarse state.
// Error is unhealthy until an operator resets it; Expired is degraded.
type StateChecker struct {
	state func() model.JibriState
}

// NewStateChecker creates a checker over a state getter.
func NewStateChecker(state func() model.JibriState) *StateChecker {
	return &StateChecker{state: state}
}

func (c *StateChecker) Name() string {
	return "jibri_state"
}

func (c *StateChecker) Check(context.Context) CheckResult {
	s := c.state()
	switch s.Status {
	case model.StatusError:
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   string(s.Cause),
			Message: s.Detail,
		}
	case model.StatusExpired:
		return CheckResult{
			Status:  StatusDegraded,
			Message: "single-use instance already served its session",
		}
	default:
		return CheckResult{
			Status:  StatusHealthy,
			Message: string(s.Status),
		}
	}
}

// DirChecker checks that a directory exists and accepts new files.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a checker for a writable directory.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{
		name: name,
		path: path,
	}
}

func (c *DirChecker) Name() string {
	return c.name
}

func (c *DirChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  "not configured",
		}
	}
	if err := probeWritable(c.path); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.path,
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "directory is writable",
	}
}

// probeWritable creates and removes a temp file in dir.
func probeWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errDirMissing
		}
		return err
	}
	if !info.IsDir() {
		return errNotDir
	}
	f, err := os.CreateTemp(dir, ".write_test-*")
	if err != nil {
		return errNotWritable
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
