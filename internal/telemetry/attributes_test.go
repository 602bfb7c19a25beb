// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestHTTPAttributes(t *testing.T) {
	attrs := HTTPAttributes("GET", "/api/v1/status", "http://localhost:8080/api/v1/status", 200)

	if len(attrs) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, HTTPMethodKey, "GET")
	verifyAttribute(t, attrs, HTTPRouteKey, "/api/v1/status")
	verifyAttribute(t, attrs, HTTPURLKey, "http://localhost:8080/api/v1/status")
	verifyIntAttribute(t, attrs, HTTPStatusCodeKey, 200)
}

func TestSessionAttributes(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		mode      string
		callURL   string
		wantLen   int
	}{
		{name: "all fields", sessionID: "s1", mode: "record", callURL: "https://meet.example.com/a", wantLen: 3},
		{name: "only session", sessionID: "s1", wantLen: 1},
		{name: "empty fields", wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := SessionAttributes(tt.sessionID, tt.mode, tt.callURL)

			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if tt.sessionID != "" {
				verifyAttribute(t, attrs, SessionIDKey, tt.sessionID)
			}
			if tt.mode != "" {
				verifyAttribute(t, attrs, SessionModeKey, tt.mode)
			}
		})
	}
}

func TestEncoderAttributes(t *testing.T) {
	attrs := EncoderAttributes("ffmpeg", "/rec/a.mp4", 1)

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}

	verifyAttribute(t, attrs, EncoderNameKey, "ffmpeg")
	verifyAttribute(t, attrs, EncoderTargetKey, "/rec/a.mp4")
	verifyIntAttribute(t, attrs, EncoderRestartsKey, 1)
}

func TestOutcomeAttributes(t *testing.T) {
	attrs := OutcomeAttributes("completed", "R_EMPTY_CALL")

	verifyAttribute(t, attrs, OutcomeClassKey, "completed")
	verifyAttribute(t, attrs, OutcomeReasonKey, "R_EMPTY_CALL")
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "network_error")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "network_error")
}

func TestAttributeKeys_Consistency(t *testing.T) {
	// Verify attribute keys follow OpenTelemetry conventions
	keys := []string{
		HTTPMethodKey,
		HTTPStatusCodeKey,
		HTTPRouteKey,
		SessionIDKey,
		EncoderNameKey,
		OutcomeClassKey,
		ErrorKey,
	}

	for _, key := range keys {
		if key == "" {
			t.Errorf("Expected non-empty attribute key")
		}
	}
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
