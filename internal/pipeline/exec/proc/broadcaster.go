// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proc

import (
	"errors"
	"io"
	"sync"
)

// ErrBranchClosed is returned by Branch.Read after the reader closed the branch.
var ErrBranchClosed = errors.New("broadcast branch closed")

// Broadcaster fans one byte stream out to any number of branches.
// A branch only sees data written after it was created; closing the
// source ends every branch with io.EOF (or the close error).
type Broadcaster struct {
	mu       sync.Mutex
	branches map[*Branch]struct{}
	closed   bool
	err      error
}

// NewBroadcaster returns an open broadcaster without branches.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{branches: make(map[*Branch]struct{})}
}

// Write copies p once and queues it on every live branch. It never blocks on readers.
func (b *Broadcaster) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) == 0 {
		return 0, nil
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	for br := range b.branches {
		br.push(chunk)
	}
	return len(p), nil
}

// Close ends the stream for every branch with io.EOF.
func (b *Broadcaster) Close() error {
	b.CloseWithError(nil)
	return nil
}

// CloseWithError ends the stream; branches return err once drained (io.EOF if nil).
func (b *Broadcaster) CloseWithError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if err == nil {
		err = io.EOF
	}
	b.err = err
	for br := range b.branches {
		br.finish(err)
	}
	b.branches = nil
}

// Branch creates a new reader that receives everything written from now on.
// Branching a closed broadcaster yields a branch that is already at its end.
func (b *Broadcaster) Branch() *Branch {
	br := &Branch{parent: b}
	br.cond = sync.NewCond(&br.mu)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		br.finish(b.err)
		return br
	}
	b.branches[br] = struct{}{}
	return br
}

// Branches reports the number of live branches.
func (b *Broadcaster) Branches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.branches)
}

func (b *Broadcaster) detach(br *Branch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.branches, br)
}

// Branch is one independent, single-pass reader of a Broadcaster.
// Its buffer is unbounded so a slow reader never stalls the source or its siblings.
type Branch struct {
	parent *Broadcaster

	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	off    int
	srcErr error // set once the source is closed
	closed bool  // set once the reader is closed
}

func (br *Branch) push(chunk []byte) {
	br.mu.Lock()
	if !br.closed {
		br.chunks = append(br.chunks, chunk)
	}
	br.mu.Unlock()
	br.cond.Broadcast()
}

func (br *Branch) finish(err error) {
	br.mu.Lock()
	if br.srcErr == nil {
		br.srcErr = err
	}
	br.mu.Unlock()
	br.cond.Broadcast()
}

// Read blocks until data is queued, the source ends or the branch is closed.
func (br *Branch) Read(p []byte) (int, error) {
	br.mu.Lock()
	defer br.mu.Unlock()

	for len(br.chunks) == 0 && br.srcErr == nil && !br.closed {
		br.cond.Wait()
	}
	if br.closed {
		return 0, ErrBranchClosed
	}
	if len(br.chunks) == 0 {
		return 0, br.srcErr
	}

	n := 0
	for n < len(p) && len(br.chunks) > 0 {
		head := br.chunks[0][br.off:]
		c := copy(p[n:], head)
		n += c
		br.off += c
		if br.off == len(br.chunks[0]) {
			br.chunks[0] = nil
			br.chunks = br.chunks[1:]
			br.off = 0
		}
	}
	return n, nil
}

// Close detaches the branch and unblocks a pending Read. Queued data is discarded.
func (br *Branch) Close() error {
	br.mu.Lock()
	if br.closed {
		br.mu.Unlock()
		return nil
	}
	br.closed = true
	br.chunks = nil
	br.mu.Unlock()
	br.cond.Broadcast()
	br.parent.detach(br)
	return nil
}
