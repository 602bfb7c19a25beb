// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus carries state changes from the session manager to adapters.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/metrics"
)

const (
	defaultBuffer = 64
	dropLogEvery  = 100
)

var dropCount atomic.Uint64

// MemoryBus is an in-process pub/sub. Publish never blocks: when a
// subscriber's buffer is full its oldest message is dropped, so slow
// subscribers always end up with the latest state.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memSub
	buffer int
}

// NewMemoryBus creates a bus whose subscriptions buffer 64 messages.
func NewMemoryBus() *MemoryBus {
	return NewMemoryBusWithBuffer(defaultBuffer)
}

// NewMemoryBusWithBuffer creates a bus with a custom per-subscription buffer.
func NewMemoryBusWithBuffer(n int) *MemoryBus {
	if n <= 0 {
		n = 1
	}
	return &MemoryBus{subs: make(map[string][]*memSub), buffer: n}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg interface{}) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	if err := ctx.Err(); err != nil {
		recordDrop(topic, "canceled")
		return fmt.Errorf("publish topic %q: %w", topic, err)
	}
	b.mu.RLock()
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()
	for _, s := range subs {
		if s.deliver(msg) {
			recordDrop(topic, "overflow")
		}
	}
	return nil
}

func recordDrop(topic, reason string) {
	metrics.IncBusDropReason(topic, reason)
	count := dropCount.Add(1)
	if count%dropLogEvery == 1 {
		log.L().Warn().
			Str("topic", topic).
			Str(log.FieldReason, reason).
			Uint64("dropped", count).
			Msg("memory bus dropped a message")
	}
}

// Subscribe registers a subscription. It is closed by Close or when ctx is done.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (ports.Subscription, error) {
	s := &memSub{b: b, topic: topic, ch: make(chan interface{}, b.buffer)}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() { _ = s.Close() })
		s.mu.Lock()
		s.stop = stop
		s.mu.Unlock()
	}
	return s, nil
}

type memSub struct {
	b     *MemoryBus
	topic string
	ch    chan interface{}

	mu     sync.Mutex
	stop   func() bool
	closed bool
}

// deliver reports whether an older message had to be dropped.
func (s *memSub) deliver(msg interface{}) (dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	for {
		select {
		case s.ch <- msg:
			return dropped
		default:
		}
		select {
		case <-s.ch:
			dropped = true
		default:
		}
	}
}

func (s *memSub) C() <-chan interface{} {
	return s.ch
}

func (s *memSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	stop := s.stop
	s.mu.Unlock()

	if stop != nil {
		stop()
	}

	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	lst := s.b.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(s.b.subs, s.topic)
	} else {
		s.b.subs[s.topic] = out
	}
	return nil
}

var _ ports.Bus = (*MemoryBus)(nil)
