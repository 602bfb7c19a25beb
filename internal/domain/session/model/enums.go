// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Mode is what a job does with the call.
type Mode string

const (
	ModeRecord Mode = "record"
	ModeStream Mode = "stream"
	ModeSIP    Mode = "sip"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeRecord, ModeStream, ModeSIP:
		return true
	}
	return false
}

// ErrorScope tells whether a failure poisons only the session or the whole instance.
type ErrorScope string

const (
	ScopeSession ErrorScope = "SESSION"
	ScopeSystem  ErrorScope = "SYSTEM"
)

// ReasonCode is a compact, typed failure/completion signal.
// Keep these stable: metrics and API responses depend on them.
type ReasonCode string

const (
	RNone ReasonCode = "R_NONE"

	// Graceful completion.
	REmptyCall               ReasonCode = "R_EMPTY_CALL"
	RClientMuteLimitExceeded ReasonCode = "R_CLIENT_MUTE_LIMIT_EXCEEDED"
	RRemoteHangup            ReasonCode = "R_REMOTE_HANGUP"
	REncoderFinished         ReasonCode = "R_ENCODER_FINISHED"

	// Session-scoped failures.
	RNoMediaReceived        ReasonCode = "R_NO_MEDIA_RECEIVED"
	RIceFailed              ReasonCode = "R_ICE_FAILED"
	RLocalParticipantKicked ReasonCode = "R_LOCAL_PARTICIPANT_KICKED"
	RFailedToJoinCall       ReasonCode = "R_FAILED_TO_JOIN_CALL"
	REncoderFailed          ReasonCode = "R_ENCODER_FAILED"
	REncoderHung            ReasonCode = "R_ENCODER_HUNG"
	REncoderBadDestination  ReasonCode = "R_ENCODER_BAD_DESTINATION"
	REncoderBrokenPipe      ReasonCode = "R_ENCODER_BROKEN_PIPE"

	// System-scoped failures.
	RProcessFailedToStart ReasonCode = "R_PROCESS_FAILED_TO_START"
	ROutputDirNotWritable ReasonCode = "R_OUTPUT_DIR_NOT_WRITABLE"
	RUnsupportedOS        ReasonCode = "R_UNSUPPORTED_OS"

	// Cancellation.
	RTimeout   ReasonCode = "R_TIMEOUT"
	RCancelled ReasonCode = "R_CANCELLED"

	// Request rejection.
	RInvalidParams ReasonCode = "R_INVALID_PARAMS"
	RBusy          ReasonCode = "R_BUSY"

	RUnknown ReasonCode = "R_UNKNOWN"
)

// JibriStatus is the coarse public state of the instance.
type JibriStatus string

const (
	StatusIdle    JibriStatus = "IDLE"
	StatusBusy    JibriStatus = "BUSY"
	StatusError   JibriStatus = "ERROR"
	StatusExpired JibriStatus = "EXPIRED"
)
