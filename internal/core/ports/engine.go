// Package ports defines the interfaces the core depends on and never
// implements itself: the media engine facade, the room/peer registries and
// the cross-component event bus. Concrete implementations live under
// internal/infrastructure.
package ports

import (
	"context"

	"sfucore/internal/core/domain"
)

// Engine is the opaque handle to the external media engine (spec.md §1,
// §6 "Media engine interface (consumed)"). Everything the core needs from
// the engine — worker lifecycle, router/transport/producer/consumer
// creation, piping and observers — is reached through this interface so
// the room/peer/scheduler logic never imports a concrete media stack.
type Engine interface {
	// CreateWorker spawns one engine worker listening on the given port.
	CreateWorker(ctx context.Context, opts WorkerOptions) (Worker, error)
}

type WorkerOptions struct {
	LogLevel          string
	LogTags           []string
	Port              int
	DisableLiburing   bool
	DTLSCertFile      string
	DTLSKeyFile       string
}

// Worker owns routers and reports a fatal death exactly once.
type Worker interface {
	ID() domain.WorkerID
	CreateRouter(ctx context.Context, opts RouterOptions) (Router, error)
	CreateWebRTCServer(ctx context.Context, opts WebRTCServerOptions) (WebRTCServer, error)
	// OnDied registers a callback invoked at most once, when the worker
	// process dies or its control channel closes unexpectedly. Both cases
	// are fatal to the server (spec.md §4.8).
	OnDied(func(error))
	Close()
}

type RouterOptions struct {
	MediaCodecs []MediaCodec
}

type MediaCodec struct {
	Kind      string // "audio" | "video"
	MimeType  string
	ClockRate int
	Channels  int
}

// Router owns transports and rtp observers for one router-worker pairing.
// With pipe-mode off a room's producer-router and consumer-router are the
// same Router value; with pipe-mode on they are distinct Router values on
// distinct workers, connected with PipeToRouter.
type Router interface {
	ID() domain.RouterID
	RTPCapabilities() domain.RTPCapabilities

	// CanConsume resolves consumability for a candidate (producerID,
	// rtpCapabilities) pair (spec.md §4.3). Called against the
	// consumer-router even in pipe-mode (Open Question 1).
	CanConsume(producerID domain.ProducerID, rtpCapabilities domain.RTPCapabilities) bool

	CreateWebRTCTransport(ctx context.Context, opts WebRTCTransportOptions) (Transport, error)
	CreatePlainTransport(ctx context.Context, opts PlainTransportOptions) (Transport, error)
	CreateDirectTransport(ctx context.Context) (Transport, error)

	CreateAudioLevelObserver(ctx context.Context) (AudioLevelObserver, error)
	CreateActiveSpeakerObserver(ctx context.Context) (ActiveSpeakerObserver, error)

	// PipeToRouter pipes a producer or data-producer from this router into
	// target, returning handles for the piped objects (spec.md §4.3
	// trigger 4). Exactly one of ProducerID/DataProducerID is set.
	PipeToRouter(ctx context.Context, opts PipeToRouterOptions) (PipeToRouterResult, error)

	// OnClose is invoked exactly once, when the router itself closes
	// (worker death, explicit close, or the owning room closing it).
	OnClose(func())
	Close()
}

type PipeToRouterOptions struct {
	ProducerID     domain.ProducerID
	DataProducerID domain.DataProducerID
	Target         Router
}

type PipeToRouterResult struct {
	PipeProducerID     domain.ProducerID
	PipeDataProducerID domain.DataProducerID
}

type WebRTCServerOptions struct {
	ListenIP   string
	ListenPort int
}

// WebRTCServer groups WebRTC transports under one listening socket set; it
// exists so the server can tell whether "either media server" has closed
// (spec.md Open Question 2).
type WebRTCServer interface {
	ID() domain.WebRTCServerID
	OnClose(func())
	Close()
}

type WebRTCTransportOptions struct {
	WebRTCServer                    WebRTCServer
	Direction                       domain.TransportDirection
	EnableSCTP                      bool
	ForceTCP                        bool
	InitialAvailableOutgoingBitrate int
	MaxSCTPMessageSize              int
	MaxIncomingBitrate              int
}

type PlainTransportOptions struct {
	ListenIP     string
	RTCPMux      bool
	Comedia      bool
}

type ConnectParams struct {
	DTLSParameters map[string]interface{}
	IP             string
	Port           int
	RTCPPort       int
}

type ProduceOptions struct {
	Kind          string
	RTPParameters map[string]interface{}
	AppData       domain.ProducerAppData
	Paused        bool
}

type ConsumeOptions struct {
	ProducerID      domain.ProducerID
	RTPCapabilities domain.RTPCapabilities
	AppData         domain.ConsumerAppData
	Paused          bool
	EnableNACK      bool
	IgnoreDTX       bool
}

type ProduceDataOptions struct {
	SCTPStreamParameters map[string]interface{}
	Label                string
	Protocol             string
	AppData              domain.DataProducerAppData
}

type ConsumeDataOptions struct {
	DataProducerID domain.DataProducerID
	AppData        domain.DataConsumerAppData
}

// Transport is a WebRTC/plain/direct transport on one side (produce or
// consume) of one peer. All methods are suspension points (spec.md §5).
type Transport interface {
	ID() domain.TransportID
	Direction() domain.TransportDirection

	// IceDtlsParameters returns the engine-supplied ICE+DTLS(+SCTP)
	// parameters the client needs to complete its side of the transport
	// (spec.md §4.2 createWebRtcTransport).
	IceDtlsParameters() map[string]interface{}

	// PlainTransportInfo returns the listen IP and RTP/RTCP ports a plain
	// transport reports back to an HTTP broadcaster client (spec.md §6
	// CreateTransport response); the zero value for non-plain transports.
	PlainTransportInfo() (ip string, port, rtcpPort int)

	Connect(ctx context.Context, params ConnectParams) error
	RestartICE(ctx context.Context) (map[string]interface{}, error)

	Produce(ctx context.Context, opts ProduceOptions) (ProducerHandle, error)
	Consume(ctx context.Context, opts ConsumeOptions) (ConsumerHandle, error)
	ProduceData(ctx context.Context, opts ProduceDataOptions) (DataProducerHandle, error)
	ConsumeData(ctx context.Context, opts ConsumeDataOptions) (DataConsumerHandle, error)

	GetStats(ctx context.Context) (map[string]interface{}, error)
	SetMaxIncomingBitrate(ctx context.Context, bitrate int) error

	// OnStateChange reports the fused ICE/DTLS state as one of five
	// values: the three spec.md §4.8 treats as fatal ("disconnected",
	// "closed", "failed"), plus "connected"/"connecting" for
	// informational use.
	OnStateChange(func(state string))
	Close()
}

// ProducerHandle is the live engine-side producer a transport created.
type ProducerHandle interface {
	ID() domain.ProducerID
	Kind() string
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	GetStats(ctx context.Context) (map[string]interface{}, error)
	OnScore(func(score int))
	OnClose(func())
	Close()
}

// ConsumerHandle is created paused; Resume must only be called after the
// room has received the client's newConsumer acknowledgement (spec.md
// §4.3 step 3d).
type ConsumerHandle interface {
	ID() domain.ConsumerID
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SetPreferredLayers(ctx context.Context, spatial, temporal int) error
	SetPriority(ctx context.Context, priority int) error
	RequestKeyFrame(ctx context.Context) error
	GetStats(ctx context.Context) (map[string]interface{}, error)
	OnScore(func(score int))
	OnLayersChange(func(spatial, temporal int))
	OnProducerPause(func())
	OnProducerResume(func())
	OnProducerClose(func())
	OnTransportClose(func())
	OnClose(func())
	Close()
}

type DataProducerHandle interface {
	ID() domain.DataProducerID
	GetStats(ctx context.Context) (map[string]interface{}, error)
	OnMessage(func(payload []byte, ppid int))
	OnClose(func())
	Close()

	// Send pushes application data through a data producer to every data
	// consumer subscribed to it (spec.md §4.5 bot). The kind of transport
	// the data producer was created on does not change this.
	Send(ctx context.Context, payload []byte, ppid int) error
}

type DataConsumerHandle interface {
	ID() domain.DataConsumerID
	Send(ctx context.Context, payload []byte, ppid int) error
	GetStats(ctx context.Context) (map[string]interface{}, error)
	OnDataProducerClose(func())
	OnTransportClose(func())
	OnClose(func())
	Close()
}

// AudioLevelObserver emits periodic volume readings and silence.
type AudioLevelObserver interface {
	ID() domain.ObserverID
	AddProducer(ctx context.Context, producerID domain.ProducerID) error
	RemoveProducer(ctx context.Context, producerID domain.ProducerID) error
	OnVolumes(func(entries []VolumeEntry))
	OnSilence(func())
	Close()
}

type VolumeEntry struct {
	ProducerID domain.ProducerID
	Volume     int
}

// ActiveSpeakerObserver emits the current dominant speaker's producer id.
type ActiveSpeakerObserver interface {
	ID() domain.ObserverID
	AddProducer(ctx context.Context, producerID domain.ProducerID) error
	RemoveProducer(ctx context.Context, producerID domain.ProducerID) error
	OnDominantSpeaker(func(producerID domain.ProducerID))
	Close()
}

// ThrottleShaper is the process-wide network shaper the throttle
// coordinator drives (spec.md §4.6).
type ThrottleShaper interface {
	Start(ctx context.Context, opts domain.ThrottleOptions) error
	Stop(ctx context.Context, scope string) error
}
