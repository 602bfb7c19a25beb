// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Credentials authenticate the browser client against the call domain.
type Credentials struct {
	Domain   string `json:"domain,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// CallParams identifies the call to join.
type CallParams struct {
	URL         string      `json:"callUrl"`
	CallName    string      `json:"callName,omitempty"`
	DisplayName string      `json:"displayName,omitempty"`
	Login       Credentials `json:"login,omitempty"`
}

// Sink is where the encoder writes. Exactly one field matches the job mode.
type Sink struct {
	// Path is the recording file. When empty it is derived from the output directory.
	Path       string `json:"path,omitempty"`
	StreamURL  string `json:"streamUrl,omitempty"`
	SIPAddress string `json:"sipAddress,omitempty"`
}

// Target returns the field that matches mode.
func (s Sink) Target(mode Mode) string {
	switch mode {
	case ModeStream:
		return s.StreamURL
	case ModeSIP:
		return s.SIPAddress
	default:
		return s.Path
	}
}

// JobParams is everything needed to run one job.
type JobParams struct {
	SessionID    string         `json:"sessionId"`
	Mode         Mode           `json:"mode"`
	Call         CallParams     `json:"call"`
	Sink         Sink           `json:"sink"`
	UsageTimeout time.Duration  `json:"usageTimeout"`
	AppData      map[string]any `json:"appData,omitempty"`
}

// ErrInvalidParams is wrapped by every JobParams validation failure.
var ErrInvalidParams = errors.New("invalid job params")

// Validate checks the params for the selected mode.
func (p JobParams) Validate() error {
	if p.SessionID == "" || !IsSafeSessionID(p.SessionID) {
		return fmt.Errorf("%w: session id %q", ErrInvalidParams, p.SessionID)
	}
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, p.Mode)
	}
	u, err := url.Parse(p.Call.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: call url %q", ErrInvalidParams, p.Call.URL)
	}
	if p.UsageTimeout < 0 {
		return fmt.Errorf("%w: negative usage timeout", ErrInvalidParams)
	}
	switch p.Mode {
	case ModeStream:
		if !strings.HasPrefix(p.Sink.StreamURL, "rtmp://") && !strings.HasPrefix(p.Sink.StreamURL, "rtmps://") {
			return fmt.Errorf("%w: stream url must be rtmp(s)", ErrInvalidParams)
		}
	case ModeSIP:
		if p.Sink.SIPAddress == "" {
			return fmt.Errorf("%w: sip address required", ErrInvalidParams)
		}
	}
	return nil
}

// CallNameOrDefault derives a file-system friendly call name.
func (p JobParams) CallNameOrDefault() string {
	if p.Call.CallName != "" {
		return p.Call.CallName
	}
	u, err := url.Parse(p.Call.URL)
	if err != nil {
		return "call"
	}
	name := strings.Trim(u.Path, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || !IsSafeSessionID(name) {
		return "call"
	}
	return name
}
