// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

func TestReasonErrorClasses(t *testing.T) {
	tests := []struct {
		reason model.ReasonCode
		class  error
	}{
		{model.REmptyCall, ErrJobCompleted},
		{model.RClientMuteLimitExceeded, ErrJobCompleted},
		{model.REncoderFinished, ErrJobCompleted},
		{model.RNoMediaReceived, ErrSessionFailure},
		{model.RFailedToJoinCall, ErrSessionFailure},
		{model.REncoderHung, ErrSessionFailure},
		{model.ROutputDirNotWritable, ErrSystemFailure},
		{model.RProcessFailedToStart, ErrSystemFailure},
		{model.RTimeout, ErrSessionCanceled},
		{model.RBusy, ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewReasonError(tt.reason, "", nil))
			assert.ErrorIs(t, err, tt.class)
		})
	}
}

func TestSystemScopeEscalatesSessionReason(t *testing.T) {
	err := NewScopedError(model.ScopeSystem, model.REncoderFailed, "", nil)
	assert.ErrorIs(t, err, ErrSystemFailure)
	assert.NotErrorIs(t, err, ErrSessionFailure)
	assert.Equal(t, model.ScopeSystem, ScopeOf(err))
}

func TestReasonErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("spawn failed")
	err := NewReasonError(model.RProcessFailedToStart, "ffmpeg", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "R_PROCESS_FAILED_TO_START: ffmpeg: spawn failed", err.Error())
}

func TestFromComponentState(t *testing.T) {
	assert.NoError(t, FromComponentState(model.Running()))
	assert.ErrorIs(t, FromComponentState(model.Finished("", "")), ErrJobCompleted)
	assert.ErrorIs(t, FromComponentState(model.Failed(model.ScopeSession, model.REncoderBrokenPipe, "")), ErrSessionFailure)
	assert.ErrorIs(t, FromComponentState(model.Failed(model.ScopeSystem, model.REncoderFailed, "")), ErrSystemFailure)
}

func TestClassifyReason(t *testing.T) {
	r, _ := ClassifyReason(context.Canceled)
	assert.Equal(t, model.RCancelled, r)
	r, _ = ClassifyReason(context.DeadlineExceeded)
	assert.Equal(t, model.RTimeout, r)
	r, _ = ClassifyReason(fmt.Errorf("%w: bad mode", model.ErrInvalidParams))
	assert.Equal(t, model.RInvalidParams, r)
	r, d := ClassifyReason(errors.New(strings.Repeat("x", 300)))
	assert.Equal(t, model.RUnknown, r)
	assert.Len(t, d, 163)
}

func TestOutcomeFromError(t *testing.T) {
	assert.Equal(t, Outcome{Class: OutcomeCompleted, Reason: model.RNone}, OutcomeFromError(nil))
	assert.Equal(t, Outcome{Class: OutcomeCompleted, Reason: model.REmptyCall}, OutcomeFromError(NewReasonError(model.REmptyCall, "", nil)))
	assert.Equal(t, Outcome{Class: OutcomeCanceled, Reason: model.RTimeout}, OutcomeFromError(Canceled(model.RTimeout)))
	assert.Equal(t,
		Outcome{Class: OutcomeSystemError, Reason: model.ROutputDirNotWritable, Scope: model.ScopeSystem, Detail: "/rec"},
		OutcomeFromError(NewReasonError(model.ROutputDirNotWritable, "/rec", nil)))
	out := OutcomeFromError(errors.New("boom"))
	assert.Equal(t, OutcomeSessionError, out.Class)
	assert.Equal(t, model.RUnknown, out.Reason)
}

func TestStateFromErrorRoundTrip(t *testing.T) {
	done := StateFromError(NewReasonError(model.REmptyCall, "alone", nil))
	assert.Equal(t, model.KindFinished, done.Kind)
	assert.Equal(t, model.REmptyCall, done.Reason)

	sys := StateFromError(NewReasonError(model.ROutputDirNotWritable, "ro", nil))
	assert.Equal(t, model.KindError, sys.Kind)
	assert.Equal(t, model.ScopeSystem, sys.Scope)
	assert.ErrorIs(t, FromComponentState(sys), ErrSystemFailure)

	plain := StateFromError(errors.New("boom"))
	assert.Equal(t, model.RUnknown, plain.Reason)
	assert.Equal(t, model.ScopeSession, plain.Scope)
}
