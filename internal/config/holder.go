// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ManuGH/jibri/internal/log"
)

const defaultDebounce = 500 * time.Millisecond

// Holder holds configuration with atomic reloading capability.
// Reloaded values apply to sessions started afterwards.
type Holder struct {
	mu      sync.RWMutex
	current Config
	loader  *Loader
	logger  zerolog.Logger

	// Debounce collapses bursts of file events into one reload.
	Debounce time.Duration

	listenersMu sync.RWMutex
	listeners   []chan<- Config
}

// NewHolder creates a holder with the initial config.
func NewHolder(initial Config, loader *Loader) *Holder {
	return &Holder{
		current:  initial,
		loader:   loader,
		logger:   log.WithComponent("config"),
		Debounce: defaultDebounce,
	}
}

// Get returns the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the configuration. On failure the old config is kept.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	next, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("load config: %w", err)
	}

	h.mu.Lock()
	prev := h.current
	h.current = next
	h.mu.Unlock()

	h.notifyListeners(next)
	h.logChanges(prev, next)

	h.logger.Info().
		Str(log.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// Watch reloads on changes to the config file until ctx is done.
// Without a config file it blocks until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (h *Holder) Watch(ctx context.Context) error {
	path := h.loader.Path()
	if path == "" {
		h.logger.Info().
			Str(log.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str(log.FieldPath, path).
		Msg("watching config file for changes")

	name := filepath.Clean(path)
	debounce := h.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				h.logger.Debug().
					Str(log.FieldEvent, "config.file_changed").
					Str("op", event.Op.String()).
					Msg("config file changed")
				timer.Reset(debounce)
			}

		case <-timer.C:
			if err := h.Reload(ctx); err != nil {
				h.logger.Error().
					Err(err).
					Str(log.FieldEvent, "config.auto_reload_failed").
					Msg("automatic config reload failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error().
				Err(err).
				Str(log.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// RegisterListener registers a channel to receive every successfully reloaded config.
// Sends never block; a full channel misses the update.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(cfg Config) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()

	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str(log.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges logs which top-level sections differ. Values are not logged.
func (h *Holder) logChanges(prev, next Config) {
	pv, nv := reflect.ValueOf(prev), reflect.ValueOf(next)
	t := pv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("yaml")
		if tag == "-" || tag == "" {
			continue
		}
		if !reflect.DeepEqual(pv.Field(i).Interface(), nv.Field(i).Interface()) {
			h.logger.Info().
				Str(log.FieldEvent, "config.section_changed").
				Str("section", tag).
				Msg("config section changed")
		}
	}
}
