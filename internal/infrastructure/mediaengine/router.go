package mediaengine

import (
	"context"
	"fmt"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/utils"
)

// Router owns every transport and RTP observer created against one
// Worker's pion API. Producers created on this router can be consumed
// directly by any transport on the same Router; PipeToRouter bridges a
// producer across two Routers (distinct workers) for pipe-mode rooms.
type Router struct {
	mu     sync.Mutex
	id     domain.RouterID
	worker *Worker
	codecs []ports.MediaCodec

	transports    map[domain.TransportID]*Transport
	producers     map[domain.ProducerID]*Producer
	dataProducers map[domain.DataProducerID]*DataProducer

	closed  bool
	onClose func()
}

func newRouter(w *Worker, codecs []ports.MediaCodec) *Router {
	return &Router{
		id:         domain.RouterID(utils.GenerateID("router")),
		worker:     w,
		codecs:     codecs,
		transports:    make(map[domain.TransportID]*Transport),
		producers:     make(map[domain.ProducerID]*Producer),
		dataProducers: make(map[domain.DataProducerID]*DataProducer),
	}
}

func (r *Router) ID() domain.RouterID { return r.id }

func (r *Router) RTPCapabilities() domain.RTPCapabilities {
	codecs := make([]map[string]interface{}, 0, len(r.codecs))
	for _, c := range r.codecs {
		codecs = append(codecs, map[string]interface{}{
			"kind":      c.Kind,
			"mimeType":  c.MimeType,
			"clockRate": c.ClockRate,
			"channels":  c.Channels,
		})
	}
	return domain.RTPCapabilities{"codecs": codecs}
}

// CanConsume reports whether producerID is a producer on this router.
// rtpCapabilities is not inspected: the reference engine keeps this
// permissive (capability negotiation is the client's problem in the
// protocol this spec describes) and only rejects an unknown producer.
func (r *Router) CanConsume(producerID domain.ProducerID, rtpCapabilities domain.RTPCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[producerID]
	return ok
}

func (r *Router) CreateWebRTCTransport(ctx context.Context, opts ports.WebRTCTransportOptions) (ports.Transport, error) {
	return r.newTransport(ctx, opts.Direction, transportKindWebRTC, ports.PlainTransportOptions{})
}

func (r *Router) CreatePlainTransport(ctx context.Context, opts ports.PlainTransportOptions) (ports.Transport, error) {
	return r.newTransport(ctx, domain.DirectionProduce, transportKindPlain, opts)
}

func (r *Router) CreateDirectTransport(ctx context.Context) (ports.Transport, error) {
	return r.newTransport(ctx, domain.DirectionProduce, transportKindDirect, ports.PlainTransportOptions{})
}

func (r *Router) newTransport(ctx context.Context, direction domain.TransportDirection, kind transportKind, plainOpts ports.PlainTransportOptions) (*Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("router %s is closed", r.id)
	}

	t, err := newTransportImpl(r, direction, kind, plainOpts)
	if err != nil {
		return nil, err
	}
	r.transports[t.id] = t
	return t, nil
}

func (r *Router) CreateAudioLevelObserver(ctx context.Context) (ports.AudioLevelObserver, error) {
	return newAudioLevelObserver(r), nil
}

func (r *Router) CreateActiveSpeakerObserver(ctx context.Context) (ports.ActiveSpeakerObserver, error) {
	return newActiveSpeakerObserver(r), nil
}

// PipeToRouter bridges a producer from r into target: it creates a
// consumer on r and a matching producer on target, relaying every RTP
// packet between them (spec.md §4.3 pipe-mode trigger 4). For a data
// producer it only registers a matching data producer on target; no
// messages are relayed (see pipeDataProducer).
func (r *Router) PipeToRouter(ctx context.Context, opts ports.PipeToRouterOptions) (ports.PipeToRouterResult, error) {
	target, ok := opts.Target.(*Router)
	if !ok {
		return ports.PipeToRouterResult{}, fmt.Errorf("pipe target is not a mediaengine router")
	}

	if opts.ProducerID != "" {
		pipeProducerID, err := pipeProducer(ctx, r, target, opts.ProducerID)
		if err != nil {
			return ports.PipeToRouterResult{}, err
		}
		return ports.PipeToRouterResult{PipeProducerID: pipeProducerID}, nil
	}
	if opts.DataProducerID != "" {
		pipeDataProducerID, err := pipeDataProducer(ctx, r, target, opts.DataProducerID)
		if err != nil {
			return ports.PipeToRouterResult{}, err
		}
		return ports.PipeToRouterResult{PipeDataProducerID: pipeDataProducerID}, nil
	}
	return ports.PipeToRouterResult{}, fmt.Errorf("pipe requires a producer or data producer id")
}

func (r *Router) OnClose(f func()) {
	r.mu.Lock()
	r.onClose = f
	r.mu.Unlock()
}

func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	cb := r.onClose
	r.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	if cb != nil {
		cb()
	}
}

type transportKind int

const (
	transportKindWebRTC transportKind = iota
	transportKindPlain
	transportKindDirect
)
