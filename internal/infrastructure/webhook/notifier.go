// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package webhook pushes every JibriState change to operator-configured URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/log"
	"github.com/ManuGH/jibri/internal/metrics"
	platformnet "github.com/ManuGH/jibri/internal/platform/net"
	"github.com/ManuGH/jibri/internal/platform/httpx"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 250 * time.Millisecond
)

// StatusUpdate is the JSON body posted to subscribers.
type StatusUpdate struct {
	JibriID string           `json:"jibriId"`
	Status  model.JibriState `json:"status"`
}

// Options configure a Notifier.
type Options struct {
	// Subscribers receive a POST per state change.
	Subscribers []string
	// JibriID identifies this instance to subscribers.
	JibriID  string
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
	Client   *http.Client
}

// Notifier forwards state events from the bus. Deliveries are sequential and
// a slow subscriber only delays later updates; the bus drops the oldest events.
type Notifier struct {
	opts   Options
	client *http.Client
	logger zerolog.Logger
}

// New creates a Notifier.
func New(opts Options) *Notifier {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	client := opts.Client
	if client == nil {
		client = httpx.New(httpx.Options{Timeout: opts.Timeout, SpanName: "webhook"})
	}
	return &Notifier{
		opts:   opts,
		client: client,
		logger: log.WithComponent("webhook"),
	}
}

// Run delivers state updates until ctx is done. Without subscribers it only waits.
func (n *Notifier) Run(ctx context.Context, bus ports.Bus) error {
	if len(n.opts.Subscribers) == 0 {
		<-ctx.Done()
		return nil
	}
	sub, err := bus.Subscribe(ctx, ports.TopicJibriState)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ports.TopicJibriState, err)
	}
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			state, ok := ev.(model.JibriState)
			if !ok {
				n.logger.Warn().
					Str(log.FieldEvent, "webhook.unexpected_event").
					Str("type", fmt.Sprintf("%T", ev)).
					Msg("ignoring unexpected bus event")
				continue
			}
			n.Notify(ctx, state)
		}
	}
}

// Notify posts state to every subscriber. Failures are logged and counted.
func (n *Notifier) Notify(ctx context.Context, state model.JibriState) {
	body, err := json.Marshal(StatusUpdate{JibriID: n.opts.JibriID, Status: state})
	if err != nil {
		n.logger.Error().Err(err).Str(log.FieldEvent, "webhook.encode_failed").Msg("encode status update")
		return
	}
	for _, url := range n.opts.Subscribers {
		err := n.deliver(ctx, url, body)
		if err != nil {
			metrics.IncWebhookDelivery("error")
			n.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "webhook.delivery_failed").
				Str(log.FieldURL, platformnet.SanitizeURL(url)).
				Str("status", string(state.Status)).
				Msg("status webhook delivery failed")
			continue
		}
		metrics.IncWebhookDelivery("ok")
	}
}

// deliver retries transport errors and 5xx answers with linear backoff.
func (n *Notifier) deliver(ctx context.Context, url string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= n.opts.Attempts; attempt++ {
		retry, err := n.post(ctx, url, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == n.opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * n.opts.Backoff):
		}
	}
	return lastErr
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("subscriber answered %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("subscriber answered %d", resp.StatusCode)
	}
}
