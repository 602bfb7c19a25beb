// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"errors"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// OutcomeClass is the public, label-safe class of a finished job.
type OutcomeClass string

const (
	OutcomeCompleted    OutcomeClass = "completed"
	OutcomeSessionError OutcomeClass = "session_error"
	OutcomeSystemError  OutcomeClass = "system_error"
	OutcomeCanceled     OutcomeClass = "canceled"
	OutcomeRejected     OutcomeClass = "rejected"
)

// Outcome is the canonical terminal result of a job.
// HTTP and metrics serialize this 1:1 without interpretation.
type Outcome struct {
	Class  OutcomeClass     `json:"class"`
	Reason model.ReasonCode `json:"reason"`
	Scope  model.ErrorScope `json:"scope,omitempty"`
	Detail string           `json:"detail,omitempty"`
}

// OutcomeFromError maps the result of a job run. nil means the job completed without a reason.
func OutcomeFromError(err error) Outcome {
	if err == nil {
		return Outcome{Class: OutcomeCompleted, Reason: model.RNone}
	}
	err = WrapWithReasonClass(err)
	reason, detail := ClassifyReason(err)
	out := Outcome{Reason: reason, Detail: detail}

	switch {
	case errors.Is(err, ErrJobCompleted):
		out.Class = OutcomeCompleted
	case errors.Is(err, ErrSystemFailure):
		out.Class = OutcomeSystemError
		out.Scope = model.ScopeSystem
	case errors.Is(err, ErrSessionCanceled):
		out.Class = OutcomeCanceled
	case errors.Is(err, ErrBadRequest):
		out.Class = OutcomeRejected
	default:
		out.Class = OutcomeSessionError
		out.Scope = model.ScopeSession
	}
	return out
}
