// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/jibri/internal/log"
)

// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
// Use errors.Is(err, ErrUnknownConfigField) instead of string matching.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
	logger     zerolog.Logger

	// Lookup and Environ replace the process environment. Used by tests.
	Lookup  func(string) (string, bool)
	Environ func() []string
}

// NewLoader creates a new configuration loader. An empty path means env-only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath: configPath,
		version:    version,
		logger:     log.WithComponent("config"),
		Lookup:     os.LookupEnv,
		Environ:    os.Environ,
	}
}

// Path returns the watched config file, or "".
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults, strict file parse, env overrides, normalization, validation.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	env := newEnvReader(l.logger, l.Lookup)
	applyEnv(env, &cfg)
	if len(env.errs) > 0 {
		return cfg, fmt.Errorf("environment: %w", errors.Join(env.errs...))
	}
	if l.Environ != nil {
		for _, key := range env.unknownKeys(l.Environ()) {
			l.logger.Warn().
				Str("event", "config.unknown_env").
				Str("key", key).
				Msg("ignoring unknown environment variable")
		}
	}

	if cfg.Data.OutputDir != "" {
		if abs, err := filepath.Abs(cfg.Data.OutputDir); err == nil {
			cfg.Data.OutputDir = abs
		}
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg. Keys absent from the file keep their current value.
func (l *Loader) loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}
