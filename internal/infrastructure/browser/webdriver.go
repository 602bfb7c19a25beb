// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/jibri/internal/metrics"
	"github.com/ManuGH/jibri/internal/platform/httpx"
	"github.com/ManuGH/jibri/internal/telemetry"
)

// ErrDriverUnavailable wraps transport failures towards the WebDriver endpoint.
var ErrDriverUnavailable = errors.New("webdriver unavailable")

// DriverError is a W3C WebDriver error response.
type DriverError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("webdriver %s (%d): %s", e.Code, e.Status, e.Message)
}

// DriverOptions configure the WebDriver client.
type DriverOptions struct {
	// CommandTimeout bounds one command, including page loads.
	CommandTimeout time.Duration
	MaxRetries     int
	Backoff        time.Duration
	RateLimit      rate.Limit
	RateLimitBurst int
}

const (
	defaultCommandTimeout = 60 * time.Second
	defaultRetries        = 2
	defaultBackoff        = 200 * time.Millisecond
	maxBackoff            = 2 * time.Second
	defaultRateLimit      = 20
	defaultRateLimitBurst = 40
)

func (o DriverOptions) normalize() DriverOptions {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = defaultCommandTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = defaultRetries
	}
	if o.Backoff <= 0 {
		o.Backoff = defaultBackoff
	}
	if o.RateLimit <= 0 {
		o.RateLimit = rate.Limit(defaultRateLimit)
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = defaultRateLimitBurst
	}
	return o
}

// Driver speaks the W3C WebDriver protocol to a chromedriver endpoint.
type Driver struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	opts    DriverOptions

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDriver creates a client for baseURL (e.g. http://127.0.0.1:9515).
func NewDriver(baseURL string, opts DriverOptions) *Driver {
	o := opts.normalize()
	return &Driver{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: httpx.New(httpx.Options{
			Timeout:               o.CommandTimeout,
			ResponseHeaderTimeout: o.CommandTimeout,
			SpanName:              "webdriver",
		}),
		limiter: rate.NewLimiter(o.RateLimit, o.RateLimitBurst),
		opts:    o,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

// NewSession starts a browser with the given chrome arguments.
func (d *Driver) NewSession(ctx context.Context, chromeArgs []string) (string, error) {
	body := map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": map[string]any{
				"browserName": "chrome",
				"goog:chromeOptions": map[string]any{
					"args": chromeArgs,
				},
			},
		},
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := d.do(ctx, "new_session", http.MethodPost, "/session", body, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrDriverUnavailable)
	}
	return out.SessionID, nil
}

// Navigate loads url and waits for the page load strategy to complete.
func (d *Driver) Navigate(ctx context.Context, sid, url string) error {
	return d.do(ctx, "navigate", http.MethodPost, "/session/"+sid+"/url", map[string]string{"url": url}, nil)
}

// Execute runs a synchronous script and decodes its return value into out.
func (d *Driver) Execute(ctx context.Context, sid, script string, args []any, out any) error {
	if args == nil {
		args = []any{}
	}
	body := map[string]any{"script": script, "args": args}
	return d.do(ctx, "execute", http.MethodPost, "/session/"+sid+"/execute/sync", body, out)
}

// DeleteSession closes the browser.
func (d *Driver) DeleteSession(ctx context.Context, sid string) error {
	return d.do(ctx, "delete_session", http.MethodDelete, "/session/"+sid, nil, nil)
}

// do sends one command. Only DELETE is retried; other commands change browser state.
func (d *Driver) do(ctx context.Context, command, method, path string, body, out any) error {
	ctx, span := telemetry.Tracer("jibri.webdriver").Start(ctx, "jibri.webdriver."+command, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("webdriver.command", command))
	defer span.End()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s: %w", command, err)
		}
	}

	attempts := 1
	if method == http.MethodDelete {
		attempts += d.opts.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		start := time.Now()
		status, err := d.roundTrip(ctx, method, path, payload, out)
		metrics.ObserveWebDriver(command, resultLabel(status, err), time.Since(start))
		span.SetAttributes(telemetry.HTTPAttributes(method, routeOf(path), path, status)...)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return nil
		}
		lastErr = err

		var derr *DriverError
		if errors.As(err, &derr) && status < http.StatusInternalServerError {
			break
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, d.backoffFor(attempt-1)); err != nil {
			lastErr = err
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return lastErr
}

func (d *Driver) roundTrip(ctx context.Context, method, path string, payload []byte, out any) (int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDriverUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&envelope); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("decode webdriver response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		derr := &DriverError{Status: resp.StatusCode}
		if len(envelope.Value) > 0 {
			_ = json.Unmarshal(envelope.Value, derr)
		}
		if derr.Code == "" {
			derr.Code = "unknown error"
		}
		return resp.StatusCode, derr
	}

	if out != nil && len(envelope.Value) > 0 && string(envelope.Value) != "null" {
		if err := json.Unmarshal(envelope.Value, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode webdriver value: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (d *Driver) backoffFor(attempt int) time.Duration {
	wait := d.opts.Backoff * time.Duration(1<<attempt)
	if wait > maxBackoff {
		wait = maxBackoff
	}
	d.mu.Lock()
	jitter := time.Duration(d.rnd.Int63n(int64(wait/5 + 1)))
	d.mu.Unlock()
	return wait + jitter
}

func resultLabel(status int, err error) string {
	switch {
	case err == nil:
		return "ok"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "error"
	}
}

// routeOf replaces the session id so span routes stay low-cardinality.
func routeOf(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "session" {
		parts[1] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
