// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// LineKind classifies one line of encoder output.
type LineKind int

const (
	OtherLine LineKind = iota
	EncodingLine
	ErrorLine
	FinishLine
)

func (k LineKind) String() string {
	switch k {
	case EncodingLine:
		return "encoding"
	case ErrorLine:
		return "error"
	case FinishLine:
		return "finish"
	default:
		return "other"
	}
}

// ParsedLine is the result of classifying one output line.
type ParsedLine struct {
	Kind LineKind
	// Fields holds the key=value pairs of an EncodingLine.
	Fields map[string]string
	// Reason and Detail describe ErrorLine and FinishLine.
	Reason model.ReasonCode
	Detail string
}

// GracefulSignal is the signal Stop sends; an exit caused by it is a clean finish.
const GracefulSignal = int(syscall.SIGINT)

var (
	exitSignalRe = regexp.MustCompile(`Exiting normally, received signal (\d+)\.`)
	progressKVRe = regexp.MustCompile(`([A-Za-z_]+)=\s*(\S+)`)
)

// ClassifyLine applies the ordered encoder rules to line.
func ClassifyLine(line string) ParsedLine {
	line = strings.TrimSpace(line)

	if m := exitSignalRe.FindStringSubmatch(line); m != nil {
		sig, _ := strconv.Atoi(m[1])
		if sig == GracefulSignal {
			return ParsedLine{Kind: FinishLine, Reason: model.REncoderFinished, Detail: line}
		}
		return ParsedLine{Kind: ErrorLine, Reason: model.REncoderFailed, Detail: line}
	}

	if strings.HasPrefix(line, "frame=") || strings.HasPrefix(line, "size=") {
		return ParsedLine{Kind: EncodingLine, Fields: parseProgress(line)}
	}

	if strings.Contains(line, "Input/output error") && (strings.Contains(line, "rtmp://") || strings.Contains(line, "rtmps://")) {
		return ParsedLine{Kind: ErrorLine, Reason: model.REncoderBadDestination, Detail: line}
	}
	if strings.Contains(line, "Broken pipe") {
		return ParsedLine{Kind: ErrorLine, Reason: model.REncoderBrokenPipe, Detail: line}
	}

	return ParsedLine{Kind: OtherLine}
}

func parseProgress(line string) map[string]string {
	fields := make(map[string]string)
	for _, m := range progressKVRe.FindAllStringSubmatch(line, -1) {
		fields[m[1]] = m[2]
	}
	return fields
}
