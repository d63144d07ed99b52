package domain

// Producer, Consumer, DataProducer and DataConsumer are opaque engine
// objects (spec.md §3); the system holds exactly one owner reference per
// object, in the ledger of the peer that created it or consumes through
// it. AppData is the per-object metadata the fan-out engine and the
// dominant-speaker pipeline key off of.

type ProducerAppData struct {
	PeerID PeerID
	Source Source
}

type Producer struct {
	ID       ProducerID
	PeerID   PeerID
	RoomID   RoomID
	AppData  ProducerAppData
	Kind     string // "audio" or "video", mirrors the engine's RTP kind
	Paused   bool
	Closed   bool
}

type ConsumerAppData struct {
	PeerID PeerID
	Source Source
}

type Consumer struct {
	ID         ConsumerID
	PeerID     PeerID // owner: the consuming peer
	ProducerID ProducerID
	AppData    ConsumerAppData
	Paused     bool
	Closed     bool
}

type DataProducerAppData struct {
	PeerID  PeerID
	Channel Channel
}

type DataProducer struct {
	ID      DataProducerID
	PeerID  PeerID
	RoomID  RoomID
	AppData DataProducerAppData
	Closed  bool
}

// DataConsumerAppData's PeerID is absent (zero value) for bot-originated
// streams, per spec.md §3.
type DataConsumerAppData struct {
	PeerID  PeerID
	Channel Channel
}

type DataConsumer struct {
	ID             DataConsumerID
	PeerID         PeerID // owner: the consuming peer
	DataProducerID DataProducerID
	AppData        DataConsumerAppData
	Closed         bool
}
