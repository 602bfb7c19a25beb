// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"sync"
)

// LineRing keeps the last N lines of encoder output for the exit log flush.
type LineRing struct {
	mu    sync.RWMutex
	lines []string
	head  int
	count int
}

// NewLineRing creates a LineRing with the specified capacity.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Add appends one line, evicting the oldest when full.
func (r *LineRing) Add(line string) {
	if line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
}

// LastN returns the last n lines in chronological order.
func (r *LineRing) LastN(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	size := len(r.lines)
	start := (r.head - n + size) % size
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%size])
	}
	return out
}
