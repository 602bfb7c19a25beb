// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

var (
	ErrJobCompleted    = errors.New("job completed")
	ErrSessionFailure  = errors.New("session failure")
	ErrSystemFailure   = errors.New("system failure")
	ErrBadRequest      = errors.New("bad request")
	ErrSessionCanceled = errors.New("session canceled")
)

// ReasonErrorClass maps a reason to its sentinel class.
func ReasonErrorClass(reason model.ReasonCode) error {
	switch reason {
	case model.REmptyCall, model.RClientMuteLimitExceeded, model.RRemoteHangup, model.REncoderFinished:
		return ErrJobCompleted
	case model.RProcessFailedToStart, model.ROutputDirNotWritable, model.RUnsupportedOS:
		return ErrSystemFailure
	case model.RTimeout, model.RCancelled:
		return ErrSessionCanceled
	case model.RInvalidParams, model.RBusy:
		return ErrBadRequest
	case model.RNone:
		return nil
	default:
		return ErrSessionFailure
	}
}

// DefaultScope is the scope a reason has when the producer did not set one.
func DefaultScope(reason model.ReasonCode) model.ErrorScope {
	if ReasonErrorClass(reason) == ErrSystemFailure {
		return model.ScopeSystem
	}
	return model.ScopeSession
}
