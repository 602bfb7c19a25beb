// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldCallURL   = "call_url"
	FieldMode      = "mode"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"
	FieldSignal    = "signal"
	FieldAttempt   = "attempt"
	FieldLine      = "line"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"
	FieldScope    = "scope"

	// Path / URL fields
	FieldPath = "path"
	FieldSink = "sink"
	FieldURL  = "url"
)
