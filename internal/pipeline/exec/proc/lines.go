// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
)

const maxLineBytes = 1 << 20

// LineReader turns a byte stream into an infinite, single-pass sequence of lines.
type LineReader struct {
	rc io.ReadCloser
	sc *bufio.Scanner
}

// NewLineReader wraps rc. Both '\n' and '\r' terminate a line; empty lines are skipped.
func NewLineReader(rc io.ReadCloser) *LineReader {
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	sc.Split(scanLines)
	return &LineReader{rc: rc, sc: sc}
}

// Next returns the next non-empty line, or io.EOF once the stream ended.
func (l *LineReader) Next() (string, error) {
	for l.sc.Scan() {
		if line := l.sc.Text(); line != "" {
			return line, nil
		}
	}
	if err := l.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Each calls fn for every line until the stream ends, ctx is done or fn returns false.
// It returns nil on a clean end of stream.
func (l *LineReader) Each(ctx context.Context, fn func(line string) bool) error {
	stop := context.AfterFunc(ctx, func() { _ = l.rc.Close() })
	defer stop()
	for {
		line, err := l.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !fn(line) {
			return nil
		}
	}
}

// Close releases the underlying stream.
func (l *LineReader) Close() error {
	return l.rc.Close()
}

func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// LineTail continuously tracks the most recent line of a stream.
type LineTail struct {
	last atomic.Pointer[string]
	done chan struct{}
}

// NewLineTail starts consuming lr in the background until it ends.
func NewLineTail(lr *LineReader) *LineTail {
	t := &LineTail{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer lr.Close()
		for {
			line, err := lr.Next()
			if err != nil {
				return
			}
			t.last.Store(&line)
		}
	}()
	return t
}

// MostRecentLine returns "" until the first line arrived.
func (t *LineTail) MostRecentLine() string {
	if p := t.last.Load(); p != nil {
		return *p
	}
	return ""
}

// Done is closed once the underlying stream ended.
func (t *LineTail) Done() <-chan struct{} {
	return t.done
}
