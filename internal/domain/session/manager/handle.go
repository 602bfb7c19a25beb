// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"

	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// Handle is the caller's view of an admitted session.
type Handle struct {
	session Session
	params  model.JobParams
	done    chan struct{}

	err     error
	outcome lifecycle.Outcome
}

// SessionID returns the id of the session.
func (h *Handle) SessionID() string { return h.params.SessionID }

// Params returns the admitted params, with the default usage timeout applied.
func (h *Handle) Params() model.JobParams { return h.params }

// Done is closed once the manager has recorded the session's end.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Await blocks until the session ended and the manager state was updated.
func (h *Handle) Await(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome is valid after Done is closed.
func (h *Handle) Outcome() lifecycle.Outcome {
	<-h.done
	return h.outcome
}

// OnRunning registers fn for when the session becomes running.
func (h *Handle) OnRunning(fn func()) { h.session.OnRunning(fn) }

// Cancel ends the session with reason.
func (h *Handle) Cancel(reason model.ReasonCode) { h.session.Cancel(reason) }

func (h *Handle) finish(err error, out lifecycle.Outcome) {
	h.err = err
	h.outcome = out
	close(h.done)
}
