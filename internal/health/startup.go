// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/jibri/internal/config"
	"github.com/ManuGH/jibri/internal/log"
)

var (
	errDirMissing  = errors.New("directory does not exist")
	errNotDir      = errors.New("path is not a directory")
	errNotWritable = errors.New("directory is not writable")
)

// PerformStartupChecks validates the environment before the API starts serving.
// Per-session preflight repeats the relevant checks; this only fails fast on
// problems that would make every session fail.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if runtime.GOOS != "linux" {
		return fmt.Errorf("unsupported operating system %q", runtime.GOOS)
	}

	if err := checkOutputDir(logger, cfg.Data.OutputDir); err != nil {
		return fmt.Errorf("output directory check failed: %w", err)
	}

	if err := checkBinaries(logger, cfg); err != nil {
		return err
	}

	tempDir := filepath.Clean(os.TempDir())
	outDir := filepath.Clean(cfg.Data.OutputDir)
	if tempDir != "." && (outDir == tempDir || strings.HasPrefix(outDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str(log.FieldPath, cfg.Data.OutputDir).
			Msg("output directory is under temp; recordings may be lost on reboot")
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkOutputDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := probeWritable(path); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	logger.Info().Str(log.FieldPath, path).Msg("output directory is writable")
	return nil
}

// checkBinaries requires the encoder. The SIP client is optional: without it
// only SIP sessions fail, at their own preflight.
func checkBinaries(logger zerolog.Logger, cfg config.Config) error {
	if _, err := exec.LookPath(cfg.Encoder.Bin); err != nil {
		return fmt.Errorf("encoder binary not found (%s): %w", cfg.Encoder.Bin, err)
	}
	if _, err := exec.LookPath(cfg.SIP.Bin); err != nil {
		logger.Warn().
			Str("bin", cfg.SIP.Bin).
			Msg("sip client not found; sip sessions will be rejected")
	}
	logger.Info().Str("encoder", cfg.Encoder.Bin).Msg("encoder binary available")
	return nil
}
