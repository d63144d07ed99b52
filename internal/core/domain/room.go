package domain

import "time"

// Room is the scoping boundary owning a pair of media routers and the
// peers, broadcaster peers, observers and bot attached to it. Room fields
// are mutated only from the room's own command loop (see
// internal/core/services.Room) so no mutex guards this struct itself.
//
// Invariants (spec.md §3):
//   - a peer-id appears in at most one of JoiningPeers/JoinedPeers/
//     JoiningBroadcasters/Broadcasters
//   - the room is live iff JoiningPeers or JoinedPeers is non-empty; it
//     closes as soon as that count reaches zero
//   - once Closed, no new peer may enter
//   - ProducerRouterID and ConsumerRouterID close iff the room closes
type Room struct {
	ID RoomID

	ProducerRouterID RouterID
	ConsumerRouterID RouterID
	ProducerServerID WebRTCServerID
	ConsumerServerID WebRTCServerID

	AudioLevelObserverID    ObserverID
	ActiveSpeakerObserverID ObserverID

	// ObservedProducers holds every producer the audio-level observer has
	// been asked to watch, keyed by producer id.
	ObservedProducers map[ProducerID]*Producer

	JoiningPeers map[PeerID]*Peer
	JoinedPeers  map[PeerID]*Peer

	JoiningBroadcasters map[PeerID]*BroadcasterPeer
	Broadcasters        map[PeerID]*BroadcasterPeer

	CreatedAt time.Time

	PipeMode         bool
	ConsumerReplicas int

	Closed bool
}

// RouterID and WebRTCServerID/ObserverID name engine-owned objects the room
// holds handles to; they are opaque strings minted by the engine facade.
type (
	RouterID       string
	WebRTCServerID string
	ObserverID     string
)

// Live reports whether the room has at least one joining-or-joined peer
// (spec.md §3 invariant I2). Broadcaster peers never count.
func (r *Room) Live() bool {
	return len(r.JoiningPeers) > 0 || len(r.JoinedPeers) > 0
}
