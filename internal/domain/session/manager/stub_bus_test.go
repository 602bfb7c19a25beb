package manager

import (
	"context"
	"sync"

	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
)

// stubBus implements ports.Bus and records every published JibriState.
type stubBus struct {
	mu        sync.Mutex
	subs      map[string][]chan interface{}
	published []model.JibriState
}

func newStubBus() *stubBus {
	return &stubBus{subs: make(map[string][]chan interface{})}
}

func (b *stubBus) Publish(_ context.Context, topic string, event interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := event.(model.JibriState); ok {
		b.published = append(b.published, st)
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
			// Non-blocking publish for tests
		}
	}
	return nil
}

func (b *stubBus) Subscribe(_ context.Context, topic string) (ports.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan interface{}, 10)
	b.subs[topic] = append(b.subs[topic], ch)
	return &stubSubscription{ch: ch}, nil
}

func (b *stubBus) statuses() []model.JibriStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.JibriStatus, 0, len(b.published))
	for _, st := range b.published {
		out = append(out, st.Status)
	}
	return out
}

type stubSubscription struct {
	ch chan interface{}
}

func (s *stubSubscription) C() <-chan interface{} {
	return s.ch
}

func (s *stubSubscription) Close() error {
	return nil
}
