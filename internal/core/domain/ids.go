package domain

// RoomID identifies a room. Rooms are created on demand and looked up by
// this opaque string.
type RoomID string

// PeerID scopes an interactive or broadcaster participant within its room.
type PeerID string

// TransportID, ProducerID, ConsumerID, DataProducerID and DataConsumerID
// identify objects owned by the media engine. They are opaque strings
// minted by the engine facade at creation time.
type (
	TransportID    string
	ProducerID     string
	ConsumerID     string
	DataProducerID string
	DataConsumerID string
)

// Source classifies the media kind carried by a producer or consumer.
type Source string

const (
	SourceAudio         Source = "audio"
	SourceVideo         Source = "video"
	SourceScreensharing Source = "screensharing"
)

// Channel classifies the purpose of a data-producer or data-consumer.
type Channel string

const (
	ChannelChat Channel = "chat"
	ChannelBot  Channel = "bot"
)

// TransportDirection distinguishes the producing side of a peer's media
// plane from the consuming side.
type TransportDirection string

const (
	DirectionProduce TransportDirection = "produce"
	DirectionConsume TransportDirection = "consume"
)
