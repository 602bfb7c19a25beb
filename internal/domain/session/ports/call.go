// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"context"

	"github.com/ManuGH/jibri/internal/domain/session/model"
)

// Participant is one remote member of the call as seen by the browser client.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	AudioMuted  bool   `json:"audioMuted"`
	VideoMuted  bool   `json:"videoMuted"`
	// Jigasi participants are telephony bridges; they count as muted for media checks.
	IsJigasi bool `json:"isJigasi"`
}

// Muted reports whether the participant contributes no media.
func (p Participant) Muted() bool {
	return p.IsJigasi || (p.AudioMuted && p.VideoMuted)
}

// CallStats is one poll of the call from the local participant's view.
type CallStats struct {
	// ParticipantCount includes the local participant.
	ParticipantCount int           `json:"participantCount"`
	Participants     []Participant `json:"participants"`
	// DownloadBitrate is the aggregate receive bitrate in kbit/s.
	DownloadBitrate int  `json:"downloadBitrate"`
	IceConnected    bool `json:"iceConnected"`
	Kicked          bool `json:"kicked"`
	// Ended is set only when the conference was closed for everyone.
	// Losing the room for any other reason leaves it false.
	Ended bool `json:"ended"`
}

// AllRemoteMuted reports whether every remote participant is muted. False when there are none.
func (s CallStats) AllRemoteMuted() bool {
	if len(s.Participants) == 0 {
		return false
	}
	for _, p := range s.Participants {
		if !p.Muted() {
			return false
		}
	}
	return true
}

// CallObserver drives a browser client that sits in the call.
type CallObserver interface {
	// Join enters the call. Failures are FailedToJoinCall session errors.
	Join(ctx context.Context, call model.CallParams) error
	// Poll samples the call state.
	Poll(ctx context.Context) (CallStats, error)
	// Participants lists remote participants.
	Participants(ctx context.Context) ([]Participant, error)
	// AddToPresence publishes a key/value in the client's presence.
	AddToPresence(ctx context.Context, key, value string) error
	// Leave hangs up. Safe to call when not joined.
	Leave(ctx context.Context) error
	// Quit releases the client. Idempotent.
	Quit(ctx context.Context) error
}

// CallObserverFactory creates one observer per session.
type CallObserverFactory func(ctx context.Context, params model.JobParams) (CallObserver, error)
