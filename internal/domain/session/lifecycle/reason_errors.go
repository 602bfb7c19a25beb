// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// ReasonError is the typed outcome of a job. It matches its sentinel class via errors.Is.
type ReasonError struct {
	Reason model.ReasonCode
	Scope  model.ErrorScope
	Detail string
	Err    error
}

func (e *ReasonError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Reason))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is matches the class of the reason. A system scope escalates session failures.
func (e *ReasonError) Is(target error) bool {
	if target == nil {
		return false
	}
	return target == e.Class()
}

func (e *ReasonError) Unwrap() error {
	return e.Err
}

// Class returns the sentinel this error belongs to.
func (e *ReasonError) Class() error {
	class := ReasonErrorClass(e.Reason)
	if class == ErrSessionFailure && e.Scope == model.ScopeSystem {
		return ErrSystemFailure
	}
	return class
}

// NewReasonError builds an error whose scope follows from the reason.
func NewReasonError(reason model.ReasonCode, detail string, err error) error {
	return &ReasonError{Reason: reason, Scope: DefaultScope(reason), Detail: sanitizeDetail(detail), Err: err}
}

// NewScopedError builds an error with an explicit scope.
func NewScopedError(scope model.ErrorScope, reason model.ReasonCode, detail string, err error) error {
	return &ReasonError{Reason: reason, Scope: scope, Detail: sanitizeDetail(detail), Err: err}
}

// Canceled returns the error a canceled session ends with.
func Canceled(reason model.ReasonCode) error {
	if reason == "" {
		reason = model.RCancelled
	}
	return &ReasonError{Reason: reason, Scope: model.ScopeSession}
}

// FromComponentState converts a terminal state into the matching error.
// It returns nil for non-terminal states.
func FromComponentState(s model.ComponentState) error {
	switch s.Kind {
	case model.KindError:
		scope := s.Scope
		if scope == "" {
			scope = DefaultScope(s.Reason)
		}
		reason := s.Reason
		if reason == "" {
			reason = model.RUnknown
		}
		return NewScopedError(scope, reason, s.Detail, nil)
	case model.KindFinished:
		reason := s.Reason
		if reason == "" {
			reason = model.REncoderFinished
		}
		return NewReasonError(reason, s.Detail, nil)
	default:
		return nil
	}
}

// WrapWithReasonClass leaves reason errors untouched and classifies anything else.
func WrapWithReasonClass(err error) error {
	if err == nil {
		return nil
	}
	var rerr *ReasonError
	if errors.As(err, &rerr) {
		return err
	}
	reason, detail := ClassifyReason(err)
	return NewReasonError(reason, detail, err)
}

// ClassifyReason derives a reason for an arbitrary error.
func ClassifyReason(err error) (model.ReasonCode, string) {
	if err == nil {
		return model.RNone, ""
	}
	var rerr *ReasonError
	if errors.As(err, &rerr) {
		return rerr.Reason, rerr.Detail
	}
	if errors.Is(err, context.Canceled) {
		return model.RCancelled, ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.RTimeout, ""
	}
	if errors.Is(err, model.ErrInvalidParams) {
		return model.RInvalidParams, sanitizeDetail(err.Error())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return model.REncoderFailed, fmt.Sprintf("process exit code %d", exitErr.ExitCode())
	}
	return model.RUnknown, sanitizeDetail(err.Error())
}

// ScopeOf returns the scope of err, defaulting to session.
func ScopeOf(err error) model.ErrorScope {
	var rerr *ReasonError
	if errors.As(err, &rerr) && rerr.Scope != "" {
		return rerr.Scope
	}
	return model.ScopeSession
}

func sanitizeDetail(detail string) string {
	if detail == "" {
		return ""
	}
	const maxLen = 160
	clean := strings.ReplaceAll(detail, "\n", " ")
	if len(clean) > maxLen {
		return clean[:maxLen] + "..."
	}
	return clean
}

// StateFromError is the inverse of FromComponentState. Completions become
// Finished and everything else becomes an Error with the error's scope.
func StateFromError(err error) model.ComponentState {
	if err == nil {
		return model.Running()
	}
	err = WrapWithReasonClass(err)
	reason, detail := ClassifyReason(err)
	if errors.Is(err, ErrJobCompleted) {
		return model.Finished(reason, detail)
	}
	return model.Failed(ScopeOf(err), reason, detail)
}
