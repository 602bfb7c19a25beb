package ports

import (
	"context"
	"time"

	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// SessionReport describes a finished session that produced output.
type SessionReport struct {
	Params       model.JobParams
	Dir          string
	Files        []string
	Participants []Participant
	StartedAt    time.Time
	EndedAt      time.Time
	Outcome      lifecycle.Outcome
}

// Finalizer post-processes a session's output. Errors never change the outcome.
type Finalizer interface {
	Finalize(ctx context.Context, report SessionReport) error
}
