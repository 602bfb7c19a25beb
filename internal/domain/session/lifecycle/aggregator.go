// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import (
	"sync"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// Aggregator folds the states of several subcomponents into one.
//
// The first terminal state (Error or Finished) wins and sticks. Before that the
// aggregate becomes Running once every registered component is Running.
type Aggregator struct {
	deliverMu sync.Mutex
	mu        sync.Mutex
	states    map[string]model.ComponentState
	current   model.ComponentState
	listeners []func(model.ComponentState)
}

// NewAggregator starts in StartingUp with no components.
func NewAggregator() *Aggregator {
	return &Aggregator{
		states:  make(map[string]model.ComponentState),
		current: model.StartingUp(),
	}
}

// Register seeds id with StartingUp. Registering twice is a no-op.
func (a *Aggregator) Register(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.states[id]; !ok {
		a.states[id] = model.StartingUp()
	}
}

// OnChange adds a listener for aggregate class transitions.
func (a *Aggregator) OnChange(fn func(model.ComponentState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// State returns the current aggregate.
func (a *Aggregator) State() model.ComponentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Update records the latest state of id and returns the aggregate.
// Unregistered ids are registered implicitly.
func (a *Aggregator) Update(id string, s model.ComponentState) model.ComponentState {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	a.mu.Lock()
	a.states[id] = s
	prev := a.current
	next := a.recompute(prev)
	a.current = next
	var listeners []func(model.ComponentState)
	if next.Kind != prev.Kind {
		listeners = append(listeners, a.listeners...)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next
}

// recompute must be called with mu held.
func (a *Aggregator) recompute(prev model.ComponentState) model.ComponentState {
	if prev.Kind.Terminal() {
		return prev
	}
	var finished *model.ComponentState
	allRunning := len(a.states) > 0
	for _, s := range a.states {
		switch s.Kind {
		case model.KindError:
			return s
		case model.KindFinished:
			if finished == nil {
				f := s
				finished = &f
			}
		}
		if s.Kind != model.KindRunning {
			allRunning = false
		}
	}
	if finished != nil {
		return *finished
	}
	if allRunning {
		return model.Running()
	}
	return prev
}
