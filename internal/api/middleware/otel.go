// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/jibri/internal/telemetry"
)

// OTelHTTP wraps the handler with OpenTelemetry HTTP instrumentation.
// Incoming W3C trace context is continued.
func OTelHTTP(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(
			routeAttributes(next),
			serviceName,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithPropagators(otel.GetTextMapPropagator()),
			otelhttp.WithSpanOptions(
				trace.WithAttributes(
					semconv.ServiceName(serviceName),
				),
			),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

// routeAttributes records the chi route pattern once routing resolved it.
func routeAttributes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		AddSpanAttributes(r, telemetry.HTTPAttributes(r.Method, routePattern(r), r.URL.Path, rw.statusCode)...)
	})
}

// shouldTrace skips probes and scrapes.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

// spanNameFormatter names spans "{operation} {METHOD} {path}". Query values never leak.
func spanNameFormatter(operation string, r *http.Request) string {
	return operation + " " + r.Method + " " + r.URL.Path
}

// ExtractTraceContext extracts trace_id and span_id from the request context.
// Returns empty strings if no active span exists.
func ExtractTraceContext(r *http.Request) (traceID, spanID string) {
	spanCtx := trace.SpanContextFromContext(r.Context())
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}

// AddSpanAttributes adds custom attributes to the current span.
// Safe to call even if tracing is disabled (noop).
func AddSpanAttributes(r *http.Request, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(r.Context()).SetAttributes(attrs...)
}

// routePattern returns the chi pattern, or the raw path outside a chi router.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *statusWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
