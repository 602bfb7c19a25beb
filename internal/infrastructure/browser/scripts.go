// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package browser

// Scripts run inside the meeting page. They only touch the APP global of the
// web client and return plain JSON.
const (
	scriptSetCredentials = `
window.localStorage.setItem('xmpp_username_override', arguments[0]);
window.localStorage.setItem('xmpp_password_override', arguments[1]);
return true;`

	scriptIsJoined = `
try {
  return !!(APP.conference._room && APP.conference._room.isJoined());
} catch (e) {
  return false;
}`

	scriptStats = `
const room = APP.conference._room;
if (!room) {
  return null;
}
const mutedOf = (p, kind) => {
  const tracks = p.getTracksByMediaType(kind);
  return tracks.length === 0 || tracks.every(t => t.isMuted());
};
const remotes = room.getParticipants().map(p => ({
  id: p.getId(),
  displayName: p.getDisplayName() || '',
  audioMuted: mutedOf(p, 'audio'),
  videoMuted: mutedOf(p, 'video'),
  isJigasi: p.isJigasi ? p.isJigasi() : false,
}));
const stats = APP.conference.getStats ? APP.conference.getStats() : null;
const download = stats && stats.bitrate ? (stats.bitrate.download || 0) : 0;
return {
  participantCount: remotes.length + 1,
  participants: remotes,
  downloadBitrate: Math.round(download),
  iceConnected: room.isJoined() && (APP.conference.getConnectionState
    ? APP.conference.getConnectionState() === 'connected'
    : true),
  kicked: !!window.__jibriKicked,
  ended: !!window.__jibriEnded,
};`

	scriptParticipants = `
const room = APP.conference._room;
if (!room) {
  return [];
}
return room.getParticipants().map(p => ({
  id: p.getId(),
  displayName: p.getDisplayName() || '',
}));`

	scriptAddToPresence = `
const room = APP.conference._room;
if (!room) {
  return false;
}
room.room.addToPresence(arguments[0], { value: arguments[1] });
room.room.sendPresence();
return true;`

	scriptHangup = `
try {
  APP.conference.hangup();
} catch (e) {}
return true;`

	// Registered after join so Poll can report a kick or a conference
	// closed for everyone. Leaving the room for any other reason is not an end.
	scriptWatchRoom = `
const room = APP.conference._room;
room.on('conference.kicked', () => { window.__jibriKicked = true; });
room.on('conference.destroyed', () => { window.__jibriEnded = true; });
return true;`
)
