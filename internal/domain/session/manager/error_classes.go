// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"errors"

	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
)

// Admission errors returned by Start.
var (
	ErrBusy            = errors.New("a session is already active")
	ErrExpired         = errors.New("single-use instance already ran a session")
	ErrSystemUnhealthy = errors.New("instance is in error state")
	ErrShuttingDown    = errors.New("manager is shutting down")
)

// Outcome classes, re-exported for adapters.
var (
	ErrJobCompleted    = lifecycle.ErrJobCompleted
	ErrSessionFailure  = lifecycle.ErrSessionFailure
	ErrSystemFailure   = lifecycle.ErrSystemFailure
	ErrBadRequest      = lifecycle.ErrBadRequest
	ErrSessionCanceled = lifecycle.ErrSessionCanceled
)
