package mediaengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/utils"

	"github.com/pion/webrtc/v3"
)

// plainPortCursor hands out placeholder RTP/RTCP port numbers for plain
// transports. There is no real UDP listener behind a plain transport in
// this facade (RTP from broadcaster peers is accepted in-process, the same
// simplification IceDtlsParameters documents for WebRTC transports); the
// port is still reported to the caller since spec.md §6's response shape
// includes it.
var plainPortCursor uint32 = 44000

func nextPlainPort() int {
	return int(atomic.AddUint32(&plainPortCursor, 2))
}

// Transport wraps one pion PeerConnection per WebRTC transport (spec.md
// §1 ADD engine facade). Plain and direct transports skip ICE/DTLS
// entirely and forward RTP/data in-process, matching how a server-side
// relay and the in-room bot never need a real network hop.
type Transport struct {
	mu        sync.Mutex
	id        domain.TransportID
	direction domain.TransportDirection
	kind      transportKind
	router    *Router

	pc *webrtc.PeerConnection

	listenIP string
	rtpPort  int
	rtcpPort int

	producers     map[domain.ProducerID]*Producer
	consumers     map[domain.ConsumerID]*Consumer
	dataProducers map[domain.DataProducerID]*DataProducer
	dataConsumers map[domain.DataConsumerID]*DataConsumer

	closed       bool
	onStateChange func(state string)
}

func newTransportImpl(r *Router, direction domain.TransportDirection, kind transportKind, plainOpts ports.PlainTransportOptions) (*Transport, error) {
	t := &Transport{
		id:            domain.TransportID(utils.GenerateID("transport")),
		direction:     direction,
		kind:          kind,
		router:        r,
		producers:     make(map[domain.ProducerID]*Producer),
		consumers:     make(map[domain.ConsumerID]*Consumer),
		dataProducers: make(map[domain.DataProducerID]*DataProducer),
		dataConsumers: make(map[domain.DataConsumerID]*DataConsumer),
	}

	if kind == transportKindPlain {
		listenIP := plainOpts.ListenIP
		if listenIP == "" {
			listenIP = "0.0.0.0"
		}
		t.listenIP = listenIP
		t.rtpPort = nextPlainPort()
		if plainOpts.RTCPMux {
			t.rtcpPort = t.rtpPort
		} else {
			t.rtcpPort = t.rtpPort + 1
		}
	}

	if kind == transportKindWebRTC {
		pc, err := r.worker.api.NewPeerConnection(webrtc.Configuration{ICEServers: r.worker.iceServers})
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}
		pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
			t.fireStateChange(iceStateToFacadeState(state))
		})
		t.pc = pc
	}

	return t, nil
}

func iceStateToFacadeState(s webrtc.ICEConnectionState) string {
	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return "connected"
	case webrtc.ICEConnectionStateDisconnected:
		return "disconnected"
	case webrtc.ICEConnectionStateFailed:
		return "failed"
	case webrtc.ICEConnectionStateClosed:
		return "closed"
	default:
		return "connecting"
	}
}

func (t *Transport) fireStateChange(state string) {
	t.mu.Lock()
	cb := t.onStateChange
	t.mu.Unlock()
	if cb != nil {
		cb(state)
	}
	if state == "failed" || state == "closed" || state == "disconnected" {
		t.Close()
	}
}

func (t *Transport) ID() domain.TransportID              { return t.id }
func (t *Transport) Direction() domain.TransportDirection { return t.direction }

// PlainTransportInfo returns the listen IP and ports reported in the
// broadcaster HTTP API's CreateTransport response (spec.md §6); the zero
// value for a non-plain transport.
func (t *Transport) PlainTransportInfo() (ip string, port, rtcpPort int) {
	return t.listenIP, t.rtpPort, t.rtcpPort
}

// IceDtlsParameters returns the transport's local SDP offer, the closest
// equivalent the pion API exposes to mediasoup's discrete ICE/DTLS
// parameter set; plain and direct transports have none.
func (t *Transport) IceDtlsParameters() map[string]interface{} {
	if t.pc == nil {
		return nil
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil
	}
	return map[string]interface{}{"sdp": offer.SDP, "type": offer.Type.String()}
}

// Connect applies the client's answer (carried in params.DTLSParameters
// under the "sdp" key) to complete the ICE/DTLS handshake.
func (t *Transport) Connect(ctx context.Context, params ports.ConnectParams) error {
	if t.pc == nil {
		return nil
	}
	sdp, _ := params.DTLSParameters["sdp"].(string)
	if sdp == "" {
		return fmt.Errorf("connect: missing sdp answer")
	}
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (t *Transport) RestartICE(ctx context.Context) (map[string]interface{}, error) {
	if t.pc == nil {
		return nil, fmt.Errorf("restart ice: not a webrtc transport")
	}
	offer, err := t.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return nil, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return map[string]interface{}{"sdp": offer.SDP}, nil
}

func (t *Transport) GetStats(ctx context.Context) (map[string]interface{}, error) {
	if t.pc == nil {
		return map[string]interface{}{}, nil
	}
	stats := t.pc.GetStats()
	return map[string]interface{}{"reportCount": len(stats)}, nil
}

func (t *Transport) SetMaxIncomingBitrate(ctx context.Context, bitrate int) error {
	return nil
}

func (t *Transport) OnStateChange(f func(state string)) {
	t.mu.Lock()
	t.onStateChange = f
	t.mu.Unlock()
}

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	pc := t.pc
	t.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	for _, c := range consumers {
		c.transportClosed()
	}
	if pc != nil {
		_ = pc.Close()
	}

	t.router.mu.Lock()
	delete(t.router.transports, t.id)
	t.router.mu.Unlock()
}
