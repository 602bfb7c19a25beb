// SPDX-License-Identifier: MIT

// Package middleware holds the HTTP ingress middleware stack of the control API.
package middleware

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/jibri/internal/log"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
type StackConfig struct {
	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 4. Tracing
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	// 5. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(log.Middleware())
	}
	// 6. Rate limit
	if cfg.RateLimit > 0 {
		r.Use(RateLimit(RateLimitConfig{
			RequestLimit: cfg.RateLimit,
			WindowSize:   time.Minute,
		}))
	}
}
