// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"time"
)

// StateKind is the class of a ComponentState.
type StateKind int

const (
	KindStartingUp StateKind = iota
	KindRunning
	KindError
	KindFinished
)

func (k StateKind) String() string {
	switch k {
	case KindStartingUp:
		return "starting_up"
	case KindRunning:
		return "running"
	case KindError:
		return "error"
	case KindFinished:
		return "finished"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Terminal reports whether k absorbs every later transition.
func (k StateKind) Terminal() bool {
	return k == KindError || k == KindFinished
}

// ComponentState is the shared lifecycle vocabulary of every subcomponent.
// Scope is only set for KindError; Reason and Detail for the terminal kinds.
type ComponentState struct {
	Kind   StateKind
	Scope  ErrorScope
	Reason ReasonCode
	Detail string
}

func StartingUp() ComponentState { return ComponentState{Kind: KindStartingUp} }
func Running() ComponentState    { return ComponentState{Kind: KindRunning} }

// Finished is a graceful completion with the given reason.
func Finished(reason ReasonCode, detail string) ComponentState {
	return ComponentState{Kind: KindFinished, Reason: reason, Detail: detail}
}

// Failed is an error with an explicit scope.
func Failed(scope ErrorScope, reason ReasonCode, detail string) ComponentState {
	return ComponentState{Kind: KindError, Scope: scope, Reason: reason, Detail: detail}
}

func (s ComponentState) String() string {
	switch s.Kind {
	case KindError:
		return fmt.Sprintf("error(%s, %s: %s)", s.Scope, s.Reason, s.Detail)
	case KindFinished:
		return fmt.Sprintf("finished(%s)", s.Reason)
	default:
		return s.Kind.String()
	}
}

// JibriState is the public state of a JobManager.
type JibriState struct {
	Status    JibriStatus `json:"status"`
	SessionID string      `json:"sessionId,omitempty"`
	Mode      Mode        `json:"mode,omitempty"`
	Since     time.Time   `json:"since"`
	// Cause is set in StatusError.
	Cause ReasonCode `json:"cause,omitempty"`
	// Detail is a sanitized description of Cause.
	Detail string `json:"detail,omitempty"`
}
