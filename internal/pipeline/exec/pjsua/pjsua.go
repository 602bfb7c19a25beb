// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pjsua runs the SIP user agent that bridges a call to a SIP address.
// It plugs into the encoder supervisor as a dialect.
package pjsua

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ManuGH/jibri/internal/domain/session/model"
	"github.com/ManuGH/jibri/internal/domain/session/ports"
	"github.com/ManuGH/jibri/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/jibri/internal/pipeline/exec/proc"
)

var callStateRe = regexp.MustCompile(`Call \d+ state changed to ([A-Z_]+)`)

// Dialect launches pjsua against one SIP address.
type Dialect struct {
	Bin        string
	ConfigFile string
	// DisplayName is announced as the caller id.
	DisplayName string
}

var _ ffmpeg.Dialect = Dialect{}

func (d Dialect) Name() string { return "pjsua" }

func (d Dialect) Command(sink ports.EncoderSink) (proc.Command, error) {
	if sink.Mode != model.ModeSIP {
		return proc.Command{}, fmt.Errorf("pjsua cannot serve mode %q", sink.Mode)
	}
	addr := strings.TrimSpace(sink.Target)
	if !strings.HasPrefix(addr, "sip:") {
		addr = "sip:" + addr
	}
	bin := d.Bin
	if bin == "" {
		bin = "pjsua"
	}
	args := []string{"--no-tcp", "--auto-answer=200", "--max-calls=1"}
	if d.ConfigFile != "" {
		args = append(args, "--config-file="+d.ConfigFile)
	}
	if d.DisplayName != "" {
		args = append(args, fmt.Sprintf("--id=%q <%s>", d.DisplayName, addr))
	}
	args = append(args, addr)
	return proc.Command{Name: bin, Args: args}, nil
}

// Classify maps pjsua call-state lines onto the shared vocabulary.
func (d Dialect) Classify(line string) ffmpeg.ParsedLine {
	m := callStateRe.FindStringSubmatch(line)
	if m == nil {
		if strings.Contains(line, "Error initializing") || strings.Contains(line, "Unable to") {
			return ffmpeg.ParsedLine{Kind: ffmpeg.ErrorLine, Reason: model.REncoderFailed, Detail: strings.TrimSpace(line)}
		}
		return ffmpeg.ParsedLine{Kind: ffmpeg.OtherLine}
	}
	switch m[1] {
	case "CONFIRMED":
		return ffmpeg.ParsedLine{Kind: ffmpeg.EncodingLine, Fields: map[string]string{"call_state": m[1]}}
	case "DISCONNECTED", "DISCONNCTD":
		return ffmpeg.ParsedLine{Kind: ffmpeg.FinishLine, Reason: model.RRemoteHangup, Detail: strings.TrimSpace(line)}
	default:
		return ffmpeg.ParsedLine{Kind: ffmpeg.OtherLine}
	}
}

// SIP calls are never redialed.
func (d Dialect) Restartable(model.ComponentState) bool { return false }
