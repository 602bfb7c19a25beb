// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for jibri.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Session attributes
	SessionIDKey   = "session.id"
	SessionModeKey = "session.mode"
	SessionCallKey = "session.call_url"

	// Encoder attributes
	EncoderNameKey     = "encoder.name"
	EncoderTargetKey   = "encoder.target"
	EncoderRestartsKey = "encoder.restarts"

	// Outcome attributes
	OutcomeClassKey  = "outcome.class"
	OutcomeReasonKey = "outcome.reason"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates session span attributes. Empty values are skipped.
func SessionAttributes(sessionID, mode, callURL string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(SessionModeKey, mode))
	}
	if callURL != "" {
		attrs = append(attrs, attribute.String(SessionCallKey, callURL))
	}
	return attrs
}

// EncoderAttributes creates encoder span attributes.
func EncoderAttributes(name, target string, restarts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EncoderNameKey, name),
		attribute.String(EncoderTargetKey, target),
		attribute.Int(EncoderRestartsKey, restarts),
	}
}

// OutcomeAttributes creates attributes for a finished job.
func OutcomeAttributes(class, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(OutcomeClassKey, class),
		attribute.String(OutcomeReasonKey, reason),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
