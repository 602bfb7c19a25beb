// Package platform implements ports.Platform on top of the local OS.
package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"github.com/ManuGH/jibri/internal/domain/session/ports"
)

// OSPlatform implements ports.Platform using standard OS operations.
type OSPlatform struct {
	// GOOS overrides runtime.GOOS. Tests only.
	GOOS string
}

func NewOSPlatform() *OSPlatform {
	return &OSPlatform{}
}

var _ ports.Platform = (*OSPlatform)(nil)

func (p *OSPlatform) Identity() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String()), nil
}

// EnsureWritableDir creates dir and proves it is writable with a probe file.
func (p *OSPlatform) EnsureWritableDir(dir string) error {
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("output directory must be absolute: %s", dir)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("write probe in %s: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("remove probe %s: %w", name, err)
	}
	return nil
}

func (p *OSPlatform) LookPath(bin string) (string, error) {
	return exec.LookPath(bin)
}

// Supported reports whether X11 capture with process groups is available.
func (p *OSPlatform) Supported() bool {
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return goos == "linux"
}

func (p *OSPlatform) Join(elem ...string) string {
	return filepath.Join(elem...)
}
