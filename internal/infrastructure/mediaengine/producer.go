package mediaengine

import (
	"context"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/utils"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// rtpSink receives packets forwarded by a Producer: either a real
// Consumer (writes to a local pion track towards a peer) or a pipeBridge
// (re-forwards into a Producer on another Router, for pipe-mode).
type rtpSink interface {
	writeRTP(pkt *rtp.Packet)
	producerClosed()
	producerPaused()
	producerResumed()
}

// Producer is the engine-side handle for one peer's outbound RTP. It
// forwards packets read off the transport's remote track to every
// subscriber currently attached, the same track-forwarding shape
// internal/infrastructure/webrtc/sfu.go's TrackForwarder uses, just
// pulled under the Router instead of a raw SFUService map.
type Producer struct {
	mu        sync.Mutex
	id        domain.ProducerID
	kind      string
	transport *Transport

	remoteTrack *webrtc.TrackRemote
	consumers   map[domain.ConsumerID]rtpSink

	paused  bool
	closed  bool
	onScore func(int)
	onClose func()

	// totalPackets is a monotonic activity counter audio/active-speaker
	// observers poll (see observer.go); each observer tracks its own
	// last-seen value rather than the counter being reset, so multiple
	// observers can watch the same producer independently.
	totalPackets int
}

// packetCount returns the number of packets forwarded by this producer
// so far.
func (p *Producer) packetCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalPackets
}

func (t *Transport) Produce(ctx context.Context, opts ports.ProduceOptions) (ports.ProducerHandle, error) {
	p := &Producer{
		id:        domain.ProducerID(utils.GenerateID("producer")),
		kind:      opts.Kind,
		transport: t,
		paused:    opts.Paused,
		consumers: make(map[domain.ConsumerID]rtpSink),
	}

	t.mu.Lock()
	t.producers[p.id] = p
	t.mu.Unlock()

	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()

	if t.pc != nil {
		t.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			p.mu.Lock()
			p.remoteTrack = track
			p.mu.Unlock()
			go p.forwardLoop()
		})
	}

	return p, nil
}

// forwardLoop reads RTP packets off the remote track and writes them to
// every currently attached consumer's local track, skipping writes while
// paused (producer- or consumer-side).
func (p *Producer) forwardLoop() {
	for {
		p.mu.Lock()
		track := p.remoteTrack
		closed := p.closed
		p.mu.Unlock()
		if closed || track == nil {
			return
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}

		p.mu.Lock()
		paused := p.paused
		if !paused {
			p.totalPackets++
		}
		sinks := make([]rtpSink, 0, len(p.consumers))
		for _, c := range p.consumers {
			sinks = append(sinks, c)
		}
		p.mu.Unlock()

		if paused {
			continue
		}
		for _, s := range sinks {
			s.writeRTP(pkt)
		}
	}
}

func (p *Producer) ID() domain.ProducerID { return p.id }
func (p *Producer) Kind() string          { return p.kind }

func (p *Producer) Pause(ctx context.Context) error {
	p.mu.Lock()
	p.paused = true
	sinks := make([]rtpSink, 0, len(p.consumers))
	for _, c := range p.consumers {
		sinks = append(sinks, c)
	}
	p.mu.Unlock()

	for _, s := range sinks {
		s.producerPaused()
	}
	return nil
}

func (p *Producer) Resume(ctx context.Context) error {
	p.mu.Lock()
	p.paused = false
	sinks := make([]rtpSink, 0, len(p.consumers))
	for _, c := range p.consumers {
		sinks = append(sinks, c)
	}
	p.mu.Unlock()

	for _, s := range sinks {
		s.producerResumed()
	}
	return nil
}

func (p *Producer) GetStats(ctx context.Context) (map[string]interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]interface{}{"paused": p.paused, "consumerCount": len(p.consumers)}, nil
}

func (p *Producer) OnScore(f func(int)) { p.mu.Lock(); p.onScore = f; p.mu.Unlock() }
func (p *Producer) OnClose(f func())    { p.mu.Lock(); p.onClose = f; p.mu.Unlock() }

func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cb := p.onClose
	sinks := make([]rtpSink, 0, len(p.consumers))
	for _, c := range p.consumers {
		sinks = append(sinks, c)
	}
	p.mu.Unlock()

	for _, s := range sinks {
		s.producerClosed()
	}

	p.transport.mu.Lock()
	delete(p.transport.producers, p.id)
	p.transport.mu.Unlock()

	p.transport.router.mu.Lock()
	delete(p.transport.router.producers, p.id)
	p.transport.router.mu.Unlock()

	if cb != nil {
		cb()
	}
}
