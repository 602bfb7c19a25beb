// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package job

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
)

type fakeObserver struct {
	mu        sync.Mutex
	joinErr   error
	blockJoin bool
	stats     ports.CallStats
	joins     int
	leaves    int
	quits     int
	presence  map[string]string
}

func (o *fakeObserver) Join(ctx context.Context, _ model.CallParams) error {
	o.mu.Lock()
	o.joins++
	block, err := o.blockJoin, o.joinErr
	o.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (o *fakeObserver) Poll(context.Context) (ports.CallStats, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats, nil
}

func (o *fakeObserver) Participants(context.Context) ([]ports.Participant, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats.Participants, nil
}

func (o *fakeObserver) AddToPresence(_ context.Context, k, v string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.presence == nil {
		o.presence = map[string]string{}
	}
	o.presence[k] = v
	return nil
}

func (o *fakeObserver) Leave(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.leaves++
	return nil
}

func (o *fakeObserver) Quit(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quits++
	return nil
}

func (o *fakeObserver) counts() (joins, leaves, quits int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.joins, o.leaves, o.quits
}

type fakeEncoder struct {
	mu        sync.Mutex
	launchErr error
	autoRun   bool
	output    func() time.Time
	sink      ports.EncoderSink
	launched  bool
	stops     int
	states    chan model.ComponentState
	closeOnce sync.Once
}

func newFakeEncoder(output func() time.Time) *fakeEncoder {
	return &fakeEncoder{output: output, autoRun: true, states: make(chan model.ComponentState, 8)}
}

func (e *fakeEncoder) Launch(_ context.Context, sink ports.EncoderSink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.launchErr != nil {
		return e.launchErr
	}
	e.sink = sink
	e.launched = true
	if e.autoRun {
		e.states <- model.Running()
	}
	return nil
}

func (e *fakeEncoder) emit(s model.ComponentState) { e.states <- s }

func (e *fakeEncoder) States() <-chan model.ComponentState { return e.states }

func (e *fakeEncoder) LastOutputAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.launched {
		return time.Time{}
	}
	return e.output()
}

func (e *fakeEncoder) LastOutput(int) []string { return []string{"frame=1 fps=30"} }

func (e *fakeEncoder) Outputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink.Mode != model.ModeRecord || !e.launched {
		return nil
	}
	return []string{e.sink.Target}
}

func (e *fakeEncoder) Stop(context.Context) error {
	e.mu.Lock()
	e.stops++
	e.mu.Unlock()
	e.closeOnce.Do(func() { close(e.states) })
	return nil
}

func (e *fakeEncoder) snapshot() (ports.EncoderSink, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink, e.stops
}

type fakePlatform struct {
	unsupported bool
	dirErr      error
	lookErr     error

	mu   sync.Mutex
	dirs []string
}

func (p *fakePlatform) Identity() (string, error) { return "test-host", nil }

func (p *fakePlatform) EnsureWritableDir(dir string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirs = append(p.dirs, dir)
	return p.dirErr
}

func (p *fakePlatform) LookPath(bin string) (string, error) {
	if p.lookErr != nil {
		return "", p.lookErr
	}
	return "/usr/bin/" + bin, nil
}

func (p *fakePlatform) Supported() bool { return !p.unsupported }

func (p *fakePlatform) Join(elem ...string) string { return filepath.Join(elem...) }

type fakeFinalizer struct {
	reports chan ports.SessionReport
}

func newFakeFinalizer() *fakeFinalizer {
	return &fakeFinalizer{reports: make(chan ports.SessionReport, 1)}
}

func (f *fakeFinalizer) Finalize(_ context.Context, r ports.SessionReport) error {
	f.reports <- r
	return errors.New("finalize errors are only logged")
}
