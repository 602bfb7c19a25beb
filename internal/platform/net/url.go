// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package net

import (
	"net/url"
	"strings"
)

// SanitizeURL removes user info, query and fragment for safe logging.
// Call URLs carry room passwords and JWTs in the query and fragment.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	parsedURL.Fragment = ""
	parsedURL.RawFragment = ""
	return parsedURL.String()
}

// ParseDirectHTTPURL validates if a string is a safe, direct HTTP/HTTPS URL.
// It enforces:
//   - Scheme must be "http" or "https"
//   - Host must be non-empty
//   - No embedded User/Password credentials
func ParseDirectHTTPURL(s string) (*url.URL, bool) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil {
		return nil, false
	}

	// strict scheme check (case-insensitive)
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, false
	}

	// require host
	if u.Host == "" {
		return nil, false
	}

	// reject credentials
	if u.User != nil {
		return nil, false
	}

	// reject fragments
	if u.Fragment != "" {
		return nil, false
	}

	return u, true
}
