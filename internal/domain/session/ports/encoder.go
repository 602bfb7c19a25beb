// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"
	"time"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// EncoderSink is the resolved output of one encoder run.
type EncoderSink struct {
	Mode model.Mode
	// Target is a file path for recordings, a URL for streams or a SIP address.
	Target string
}

// Encoder captures the call and writes it to a sink.
type Encoder interface {
	// Launch starts the process. Spawn failures are system errors.
	Launch(ctx context.Context, sink EncoderSink) error
	// States delivers every ComponentState transition. Closed after a terminal state or Stop.
	States() <-chan model.ComponentState
	// LastOutputAt is when the last output line arrived, zero before the first one.
	LastOutputAt() time.Time
	// LastOutput returns up to n of the most recent output lines.
	LastOutput(n int) []string
	// Outputs lists every file the encoder wrote to, oldest first.
	Outputs() []string
	// Stop ends the process gracefully. Idempotent.
	Stop(ctx context.Context) error
}

// EncoderFactory creates one encoder per session.
type EncoderFactory func(params model.JobParams) (Encoder, error)
