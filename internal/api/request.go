// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// Sink types accepted by startService.
const (
	SinkTypeFile    = "FILE"
	SinkTypeStream  = "STREAM"
	SinkTypeGateway = "GATEWAY"
)

const youTubeIngest = "rtmp://a.rtmp.youtube.com/live2/"

// CallURLInfo is split so a call name can be reused as a file name.
type CallURLInfo struct {
	BaseURL  string `json:"baseUrl"`
	CallName string `json:"callName"`
}

type CallParamsRequest struct {
	CallURLInfo CallURLInfo `json:"callUrlInfo"`
	DisplayName string      `json:"displayName,omitempty"`
}

type SIPClientParams struct {
	SIPAddress  string `json:"sipAddress"`
	DisplayName string `json:"displayName,omitempty"`
}

// StartServiceRequest is the body of POST /startService.
type StartServiceRequest struct {
	SessionID        string             `json:"sessionId,omitempty"`
	SinkType         string             `json:"sinkType"`
	CallParams       CallParamsRequest  `json:"callParams"`
	CallLoginParams  *model.Credentials `json:"callLoginParams,omitempty"`
	StreamURL        string             `json:"streamUrl,omitempty"`
	YouTubeStreamKey string             `json:"youTubeStreamKey,omitempty"`
	SIPClientParams  *SIPClientParams   `json:"sipClientParams,omitempty"`
	// UsageTimeout is a Go duration ("90m"). Empty uses the configured default.
	UsageTimeout string         `json:"usageTimeout,omitempty"`
	AppData      map[string]any `json:"appData,omitempty"`
}

// StopServiceRequest is the optional body of POST /stopService.
type StopServiceRequest struct {
	SessionID string `json:"sessionId,omitempty"`
}

// JobParams converts the request. A missing session id is generated.
func (r StartServiceRequest) JobParams() (model.JobParams, error) {
	var p model.JobParams

	switch strings.ToUpper(strings.TrimSpace(r.SinkType)) {
	case SinkTypeFile:
		p.Mode = model.ModeRecord
	case SinkTypeStream:
		p.Mode = model.ModeStream
		p.Sink.StreamURL = r.StreamURL
		if p.Sink.StreamURL == "" && r.YouTubeStreamKey != "" {
			p.Sink.StreamURL = youTubeIngest + r.YouTubeStreamKey
		}
	case SinkTypeGateway:
		p.Mode = model.ModeSIP
		if r.SIPClientParams != nil {
			p.Sink.SIPAddress = r.SIPClientParams.SIPAddress
		}
	default:
		return p, fmt.Errorf("%w: unknown sink type %q", model.ErrInvalidParams, r.SinkType)
	}

	p.SessionID = r.SessionID
	if p.SessionID == "" {
		p.SessionID = model.NewSessionID()
	}

	info := r.CallParams.CallURLInfo
	p.Call.URL = strings.TrimRight(info.BaseURL, "/")
	if info.CallName != "" {
		p.Call.URL += "/" + info.CallName
	}
	p.Call.CallName = info.CallName
	p.Call.DisplayName = r.CallParams.DisplayName
	if p.Mode == model.ModeSIP && r.SIPClientParams != nil && r.SIPClientParams.DisplayName != "" {
		p.Call.DisplayName = r.SIPClientParams.DisplayName
	}
	if r.CallLoginParams != nil {
		p.Call.Login = *r.CallLoginParams
	}

	if r.UsageTimeout != "" {
		d, err := time.ParseDuration(r.UsageTimeout)
		if err != nil || d < 0 {
			return p, fmt.Errorf("%w: usage timeout %q", model.ErrInvalidParams, r.UsageTimeout)
		}
		p.UsageTimeout = d
	}
	p.AppData = r.AppData
	return p, nil
}
