// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"

	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/pipeline/exec/proc"
)

// Classifier maps one output line to a ParsedLine.
type Classifier func(line string) ParsedLine

// StatusMachine folds classified lines into a ComponentState.
// StartingUp moves to Running on the first EncodingLine; Error and Finished absorb.
type StatusMachine struct {
	classify Classifier
	state    model.ComponentState
}

// NewStatusMachine uses ClassifyLine when classify is nil.
func NewStatusMachine(classify Classifier) *StatusMachine {
	if classify == nil {
		classify = ClassifyLine
	}
	return &StatusMachine{classify: classify, state: model.StartingUp()}
}

// State returns the current state.
func (m *StatusMachine) State() model.ComponentState {
	return m.state
}

// Apply feeds one parsed line and reports whether the state changed.
func (m *StatusMachine) Apply(p ParsedLine) (model.ComponentState, bool) {
	if m.state.Kind.Terminal() {
		return m.state, false
	}
	var next model.ComponentState
	switch p.Kind {
	case EncodingLine:
		if m.state.Kind == model.KindRunning {
			return m.state, false
		}
		next = model.Running()
	case ErrorLine:
		next = model.Failed(model.ScopeSession, p.Reason, p.Detail)
	case FinishLine:
		next = model.Finished(p.Reason, p.Detail)
	default:
		return m.state, false
	}
	m.state = next
	return next, true
}

// ApplyProcessState feeds a process snapshot. An exit whose last line is not a
// finish line means the encoder quit abruptly.
func (m *StatusMachine) ApplyProcessState(ps proc.ProcessState) (model.ComponentState, bool) {
	parsed := m.classify(ps.MostRecentLine)
	if !ps.Exited {
		return m.Apply(parsed)
	}
	if parsed.Kind == FinishLine {
		return m.Apply(parsed)
	}
	if parsed.Kind == ErrorLine {
		return m.Apply(parsed)
	}
	detail := fmt.Sprintf("encoder quit abruptly (exit %d): %s", ps.ExitCode, ps.MostRecentLine)
	return m.Apply(ParsedLine{Kind: ErrorLine, Reason: model.REncoderFailed, Detail: detail})
}
