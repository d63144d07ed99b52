package mediaengine

import (
	"context"
	"fmt"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/utils"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// Consumer is the engine-side handle a peer's consume-direction transport
// holds for one producer. It owns a local track written to from the
// producer's forwardLoop; RTP parameters negotiation itself is left to
// the client (spec.md frames rtpCapabilities/rtpParameters as opaque).
type Consumer struct {
	mu        sync.Mutex
	id        domain.ConsumerID
	transport *Transport
	producer  *Producer

	localTrack *webrtc.TrackLocalStaticRTP

	paused  bool
	closed  bool
	onScore            func(int)
	onLayersChange     func(spatial, temporal int)
	onProducerPauseCb  func()
	onProducerResumeCb func()
	onProducerCloseCb  func()
	onTransportCloseCb func()
	onClose            func()
}

func (t *Transport) Consume(ctx context.Context, opts ports.ConsumeOptions) (ports.ConsumerHandle, error) {
	t.router.mu.Lock()
	producer, ok := t.router.producers[opts.ProducerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, domain.ErrProducerNotFound
	}

	c := &Consumer{
		id:        domain.ConsumerID(utils.GenerateID("consumer")),
		transport: t,
		producer:  producer,
		paused:    opts.Paused,
	}

	if t.pc != nil {
		mimeType := webrtc.MimeTypeOpus
		if producer.Kind() == "video" {
			mimeType = webrtc.MimeTypeVP8
		}
		track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mimeType}, string(c.id), string(opts.ProducerID))
		if err != nil {
			return nil, fmt.Errorf("consumer local track: %w", err)
		}
		if _, err := t.pc.AddTrack(track); err != nil {
			return nil, fmt.Errorf("add consumer track: %w", err)
		}
		c.localTrack = track
	}

	producer.mu.Lock()
	producer.consumers[c.id] = c
	producer.mu.Unlock()

	t.mu.Lock()
	t.consumers[c.id] = c
	t.mu.Unlock()

	return c, nil
}

func (c *Consumer) writeRTP(pkt *rtp.Packet) {
	c.mu.Lock()
	track := c.localTrack
	paused := c.paused
	c.mu.Unlock()
	if track == nil || paused {
		return
	}
	_ = track.WriteRTP(pkt)
}

func (c *Consumer) ID() domain.ConsumerID { return c.id }

func (c *Consumer) Pause(ctx context.Context) error  { c.mu.Lock(); c.paused = true; c.mu.Unlock(); return nil }
func (c *Consumer) Resume(ctx context.Context) error { c.mu.Lock(); c.paused = false; c.mu.Unlock(); return nil }

func (c *Consumer) SetPreferredLayers(ctx context.Context, spatial, temporal int) error {
	c.mu.Lock()
	cb := c.onLayersChange
	c.mu.Unlock()
	if cb != nil {
		cb(spatial, temporal)
	}
	return nil
}

func (c *Consumer) SetPriority(ctx context.Context, priority int) error { return nil }

// RequestKeyFrame sends a PLI to the producer's transport so its
// underlying sender regenerates a keyframe (spec.md §4.2
// requestConsumerKeyFrame).
func (c *Consumer) RequestKeyFrame(ctx context.Context) error {
	if c.producer == nil || c.producer.transport == nil || c.producer.transport.pc == nil {
		return nil
	}
	return c.producer.transport.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{}})
}

func (c *Consumer) GetStats(ctx context.Context) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{"paused": c.paused}, nil
}

func (c *Consumer) OnScore(f func(int))                     { c.mu.Lock(); c.onScore = f; c.mu.Unlock() }
func (c *Consumer) OnLayersChange(f func(spatial, temporal int)) { c.mu.Lock(); c.onLayersChange = f; c.mu.Unlock() }
func (c *Consumer) OnProducerPause(f func())                { c.mu.Lock(); c.onProducerPauseCb = f; c.mu.Unlock() }
func (c *Consumer) OnProducerResume(f func())                { c.mu.Lock(); c.onProducerResumeCb = f; c.mu.Unlock() }
func (c *Consumer) OnProducerClose(f func())                { c.mu.Lock(); c.onProducerCloseCb = f; c.mu.Unlock() }
func (c *Consumer) OnTransportClose(f func())                { c.mu.Lock(); c.onTransportCloseCb = f; c.mu.Unlock() }
func (c *Consumer) OnClose(f func())                         { c.mu.Lock(); c.onClose = f; c.mu.Unlock() }

// producerClosed implements rtpSink: the source producer is gone, so this
// consumer tears itself down after notifying any registered callback.
func (c *Consumer) producerClosed() {
	c.mu.Lock()
	cb := c.onProducerCloseCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
	c.Close()
}

// producerPaused and producerResumed implement rtpSink: they relay the
// source producer's pause state without tearing the consumer down, since
// unlike producerClosed the consumer itself is still usable once the
// producer resumes.
func (c *Consumer) producerPaused() {
	c.mu.Lock()
	cb := c.onProducerPauseCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *Consumer) producerResumed() {
	c.mu.Lock()
	cb := c.onProducerResumeCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// transportClosed is the dedicated close path Transport.Close uses for its
// own consumers, distinct from producerClosed, so OnTransportClose fires
// instead of OnProducerClose.
func (c *Consumer) transportClosed() {
	c.mu.Lock()
	cb := c.onTransportCloseCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
	c.Close()
}

func (c *Consumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cb := c.onClose
	c.mu.Unlock()

	c.producer.mu.Lock()
	delete(c.producer.consumers, c.id)
	c.producer.mu.Unlock()

	c.transport.mu.Lock()
	delete(c.transport.consumers, c.id)
	c.transport.mu.Unlock()

	if cb != nil {
		cb()
	}
}
