// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package finalize post-processes a finished recording: it drops a metadata
// file next to the recording and hands the directory to an operator script.
package finalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/jibri/internal/domain/session/lifecycle"
	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/pipeline/exec/proc"
	platformnet "github.com/ManuGH/jibri/internal/platform/net"
)

// MetadataFile is written into every finalized session directory.
const MetadataFile = "metadata.json"

const defaultScriptTimeout = 2 * time.Minute

// ErrScriptFailed wraps a non-zero exit of the finalize script.
var ErrScriptFailed = errors.New("finalize script failed")

// Metadata is the on-disk description of a recording session.
type Metadata struct {
	SessionID    string              `json:"sessionId"`
	CallName     string              `json:"callName,omitempty"`
	CallURL      string              `json:"callUrl"`
	Mode         model.Mode          `json:"mode"`
	Participants []ports.Participant `json:"participants"`
	AppData      map[string]any      `json:"appData,omitempty"`
	StartedAt    time.Time           `json:"startedAt"`
	EndedAt      time.Time           `json:"endedAt"`
	Files        []string            `json:"files"`
	Outcome      lifecycle.Outcome   `json:"outcome"`
}

// Finalizer implements ports.Finalizer.
type Finalizer struct {
	// Script is invoked as `<Script> <session dir>`. Empty disables it.
	Script string
	// Timeout bounds the script run.
	Timeout time.Duration
}

var _ ports.Finalizer = (*Finalizer)(nil)

// New returns a Finalizer with the default script timeout applied.
func New(script string, timeout time.Duration) *Finalizer {
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	return &Finalizer{Script: script, Timeout: timeout}
}

// Finalize writes the metadata file and runs the script. The script still runs
// when the metadata write fails; both errors are joined.
func (f *Finalizer) Finalize(ctx context.Context, report ports.SessionReport) error {
	logger := log.WithComponentFromContext(ctx, "finalize")

	var errs []error
	if err := WriteMetadata(ctx, report); err != nil {
		errs = append(errs, err)
	} else {
		logger.Debug().
			Str(log.FieldEvent, "finalize.metadata_written").
			Str(log.FieldPath, filepath.Join(report.Dir, MetadataFile)).
			Msg("metadata written")
	}
	if f.Script != "" {
		if err := f.runScript(ctx, report.Dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MetadataFor builds the metadata document. File names are reported relative to the session dir.
func MetadataFor(report ports.SessionReport) Metadata {
	files := make([]string, 0, len(report.Files))
	for _, f := range report.Files {
		files = append(files, filepath.Base(f))
	}
	participants := report.Participants
	if participants == nil {
		participants = []ports.Participant{}
	}
	return Metadata{
		SessionID:    report.Params.SessionID,
		CallName:     report.Params.Call.CallName,
		CallURL:      platformnet.SanitizeURL(report.Params.Call.URL),
		Mode:         report.Params.Mode,
		Participants: participants,
		AppData:      report.Params.AppData,
		StartedAt:    report.StartedAt.UTC(),
		EndedAt:      report.EndedAt.UTC(),
		Files:        files,
		Outcome:      report.Outcome,
	}
}

// WriteMetadata atomically replaces <dir>/metadata.json.
func WriteMetadata(ctx context.Context, report ports.SessionReport) error {
	if report.Dir == "" {
		return errors.New("finalize: empty session dir")
	}
	logger := log.FromContext(ctx)
	path := filepath.Join(report.Dir, MetadataFile)

	data, err := json.MarshalIndent(MetadataFor(report), "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending metadata file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending metadata file")
		}
	}()

	if _, err := pending.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace metadata file: %w", err)
	}
	return nil
}

func (f *Finalizer) runScript(ctx context.Context, dir string) error {
	logger := log.WithComponentFromContext(ctx, "finalize")
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	h, err := proc.Launch(ctx, proc.Command{Name: f.Script, Args: []string{dir}}, proc.Options{StopTimeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrScriptFailed, err)
	}
	out := h.Output()
	defer func() { _ = out.Close() }()

	lines := make(chan struct{})
	go func() {
		defer close(lines)
		_ = out.Each(ctx, func(line string) bool {
			logger.Info().Str(log.FieldEvent, "finalize.output").Str(log.FieldLine, line).Msg("finalize script")
			return true
		})
	}()

	code, err := h.Wait(ctx)
	if err != nil {
		_ = h.Stop(context.WithoutCancel(ctx))
		<-lines
		return fmt.Errorf("%w: %s: %v", ErrScriptFailed, f.Script, err)
	}
	<-lines
	if code != 0 {
		return fmt.Errorf("%w: %s exited with code %d: %s", ErrScriptFailed, f.Script, code, h.MostRecentLine())
	}
	logger.Info().
		Str(log.FieldEvent, "finalize.done").
		Str(log.FieldPath, dir).
		Msg("finalize script finished")
	return nil
}
