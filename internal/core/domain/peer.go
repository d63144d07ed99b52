package domain

import "time"

// PeerState is the lifecycle of an interactive or broadcaster peer.
// Transitions are documented in spec.md §4.2.
type PeerState string

const (
	PeerConnected    PeerState = "connected"
	PeerJoining      PeerState = "joining"
	PeerJoined       PeerState = "joined"
	PeerDisconnected PeerState = "disconnected"
	PeerClosed       PeerState = "closed"
)

// RTPCapabilities and SCTPCapabilities are opaque, engine-defined blobs the
// peer declares at join time; we pass them through to the engine facade's
// consumability checks without interpreting them ourselves.
type RTPCapabilities map[string]interface{}
type SCTPCapabilities map[string]interface{}

// Device describes the client's self-reported platform, used only for
// diagnostics and logging.
type Device struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Peer is an interactive participant: one message-channel session plus the
// five engine-object ledgers: transports, producers, consumers, data
// producers and data consumers.
//
// Invariants:
//   - P1: ledger entries are removed when the engine observes close of the
//     underlying object
//   - P2: producing operations are rejected unless Joined
//   - P3: the peer must join within the room's join timeout (joinTimeout in
//     internal/core/services) of attachment or it closes
//   - P4: a peer with an unhealthy consume-direction transport closes itself
type Peer struct {
	ID       PeerID
	RoomID   RoomID
	Address  string
	Device   Device
	Display  string

	RTPCapabilities  RTPCapabilities
	SCTPCapabilities SCTPCapabilities

	Transports    map[TransportID]*PeerTransport
	Producers     map[ProducerID]*Producer
	Consumers     map[ConsumerID]*Consumer
	DataProducers map[DataProducerID]*DataProducer
	DataConsumers map[DataConsumerID]*DataConsumer

	State     PeerState
	JoinedAt  time.Time
	CreatedAt time.Time
}

// PeerTransport records which direction an engine transport serves for a
// peer, so the fan-out engine can find "the" consume-direction transport.
type PeerTransport struct {
	ID        TransportID
	Direction TransportDirection
}

// CanProduce implements spec.md P2: producing is rejected unless joined.
func (p *Peer) CanProduce() bool {
	return p.State == PeerJoined
}

// ConsumeTransport returns the peer's consume-direction transport, if any.
func (p *Peer) ConsumeTransport() (*PeerTransport, bool) {
	for _, t := range p.Transports {
		if t.Direction == DirectionConsume {
			return t, true
		}
	}
	return nil, false
}

// CanConsume reports whether the peer ever declared receive capabilities;
// a peer with none is never consume-capable (spec.md §4.3).
func (p *Peer) CanConsume() bool {
	return len(p.RTPCapabilities) > 0
}
