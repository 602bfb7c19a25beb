package manager

import (
	"errors"

	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/metrics"
)

func recordStartOutcome(mode model.Mode, err error) {
	metrics.RecordSessionStart(string(mode), startResult(err))
}

func startResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrSystemUnhealthy):
		return "unhealthy"
	case errors.Is(err, lifecycle.ErrBadRequest):
		return "invalid"
	default:
		return "error"
	}
}

func recordEnd(mode model.Mode, out lifecycle.Outcome) {
	metrics.RecordSessionEnd(string(mode), string(out.Class), string(out.Reason))
}

func recordState(status model.JibriStatus) {
	switch status {
	case model.StatusIdle:
		metrics.SetJibriState("idle")
	case model.StatusBusy:
		metrics.SetJibriState("busy")
	case model.StatusError:
		metrics.SetJibriState("error")
	case model.StatusExpired:
		metrics.SetJibriState("expired")
	}
}
