// Package httpx builds the outbound HTTP clients used for WebDriver and webhooks.
package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
)

// Options shape a client. Zero values take the hardened defaults.
type Options struct {
	Timeout time.Duration
	// ResponseHeaderTimeout defaults to min(Timeout, 3s). Slow endpoints
	// such as a WebDriver navigate call need it raised.
	ResponseHeaderTimeout time.Duration
	// SpanName enables client spans named "<SpanName> <METHOD>".
	SpanName string
}

// NewClient returns a hardened HTTP client for short request/response calls.
func NewClient(timeout time.Duration) *http.Client {
	return New(Options{Timeout: timeout})
}

// New returns a hardened HTTP client, traced when opts.SpanName is set.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	dialTimeout := timeout
	if dialTimeout > defaultDialTimeout {
		dialTimeout = defaultDialTimeout
	}

	responseHeaderTimeout := opts.ResponseHeaderTimeout
	if responseHeaderTimeout <= 0 {
		responseHeaderTimeout = timeout
		if responseHeaderTimeout > defaultResponseHeaderTimeout {
			responseHeaderTimeout = defaultResponseHeaderTimeout
		}
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
	}
	if opts.SpanName != "" {
		name := opts.SpanName
		transport = otelhttp.NewTransport(transport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return name + " " + r.Method
			}))
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}
