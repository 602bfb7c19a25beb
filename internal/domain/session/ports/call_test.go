// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllRemoteMuted(t *testing.T) {
	assert.False(t, CallStats{}.AllRemoteMuted(), "no remote participants")

	stats := CallStats{Participants: []Participant{
		{ID: "a", AudioMuted: true, VideoMuted: true},
		{ID: "b", IsJigasi: true},
	}}
	assert.True(t, stats.AllRemoteMuted())

	stats.Participants = append(stats.Participants, Participant{ID: "c", AudioMuted: true})
	assert.False(t, stats.AllRemoteMuted(), "video unmuted participant contributes media")
}
