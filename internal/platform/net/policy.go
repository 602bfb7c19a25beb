// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package net holds URL hygiene and the destination policy for calls and streams.
package net

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// ErrDestinationNotAllowed indicates a call or stream host outside the allowlist.
var ErrDestinationNotAllowed = errors.New("destination not allowed")

// DestinationPolicy restricts where sessions may connect.
// Empty allowlists allow every host.
type DestinationPolicy struct {
	// CallDomains match the call host or any of its subdomains.
	CallDomains []string
	// StreamHosts match rtmp destination hosts or any of their subdomains.
	StreamHosts []string
	// AllowLocal permits loopback, link-local and unspecified IP literals.
	AllowLocal bool
}

// NormalizeHost validates and normalizes a host for comparison.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	}
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host must not include path: %s", raw)
	}
	if strings.Contains(host, "@") {
		return "", fmt.Errorf("host must not include userinfo: %s", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// Validate checks the allowlist entries themselves.
func (p DestinationPolicy) Validate() error {
	for _, list := range [][]string{p.CallDomains, p.StreamHosts} {
		if _, err := normalizeAll(list); err != nil {
			return err
		}
	}
	return nil
}

// CheckCallURL verifies a call URL and returns it with a normalized host.
func (p DestinationPolicy) CheckCallURL(raw string) (string, error) {
	u, ok := ParseDirectHTTPURL(raw)
	if !ok {
		return "", fmt.Errorf("call url must be a plain http(s) url")
	}
	host, err := p.checkHost(u.Hostname(), p.CallDomains)
	if err != nil {
		return "", err
	}
	u.Host = joinHostPort(host, u.Port())
	return u.String(), nil
}

// CheckStreamURL verifies an rtmp(s) destination.
func (p DestinationPolicy) CheckStreamURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "rtmp" && scheme != "rtmps" {
		return fmt.Errorf("stream url scheme %q not allowed", u.Scheme)
	}
	_, err = p.checkHost(u.Hostname(), p.StreamHosts)
	return err
}

// Check applies the policy to params. Failures wrap model.ErrInvalidParams.
// The call URL in the returned params carries the normalized host.
func (p DestinationPolicy) Check(params model.JobParams) (model.JobParams, error) {
	callURL, err := p.CheckCallURL(params.Call.URL)
	if err != nil {
		return params, fmt.Errorf("%w: %w", model.ErrInvalidParams, err)
	}
	params.Call.URL = callURL
	if params.Mode == model.ModeStream {
		if err := p.CheckStreamURL(params.Sink.StreamURL); err != nil {
			return params, fmt.Errorf("%w: %w", model.ErrInvalidParams, err)
		}
	}
	return params, nil
}

func (p DestinationPolicy) checkHost(raw string, allow []string) (string, error) {
	host, err := NormalizeHost(raw)
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); ip != nil && isLocalIP(ip) && !p.AllowLocal {
		return "", fmt.Errorf("%w: local address %s", ErrDestinationNotAllowed, host)
	}
	if len(allow) == 0 {
		return host, nil
	}
	domains, err := normalizeAll(allow)
	if err != nil {
		return "", err
	}
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return host, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDestinationNotAllowed, host)
}

func normalizeAll(hosts []string) ([]string, error) {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		n, err := NormalizeHost(strings.TrimPrefix(strings.TrimSpace(h), "*."))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func isLocalIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast()
}

func joinHostPort(host, port string) string {
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}
