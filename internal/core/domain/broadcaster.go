package domain

import "time"

// BroadcasterPeer is an automation participant driven by the HTTP API: a
// plain-transport ledger only, no message channel, no join timer (spec.md
// §3 "Broadcaster Peer"). It may produce and consume but never counts
// toward room liveness.
type BroadcasterPeer struct {
	ID      PeerID
	RoomID  RoomID
	Display string
	Device  Device

	RTPCapabilities RTPCapabilities

	Transports    map[TransportID]*PeerTransport
	Producers     map[ProducerID]*Producer
	Consumers     map[ConsumerID]*Consumer

	State     PeerState
	CreatedAt time.Time
}

func (b *BroadcasterPeer) CanProduce() bool {
	return b.State == PeerJoined
}

func (b *BroadcasterPeer) ConsumeTransport() (*PeerTransport, bool) {
	for _, t := range b.Transports {
		if t.Direction == DirectionConsume {
			return t, true
		}
	}
	return nil, false
}

func (b *BroadcasterPeer) CanConsume() bool {
	return len(b.RTPCapabilities) > 0
}
