package services

import (
	"context"
	"time"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
)

// CreateBroadcaster registers a broadcaster peer (spec.md §6 POST
// broadcasters): unlike an interactive peer it has no message channel and
// never counts toward room liveness.
func (r *Room) CreateBroadcaster(ctx context.Context, id domain.PeerID, displayName string, device domain.Device) (*domain.BroadcasterPeer, error) {
	var retErr error
	bp := &domain.BroadcasterPeer{
		ID:        id,
		RoomID:    r.id,
		Display:   displayName,
		Device:    device,
		Transports: make(map[domain.TransportID]*domain.PeerTransport),
		Producers:  make(map[domain.ProducerID]*domain.Producer),
		Consumers:  make(map[domain.ConsumerID]*domain.Consumer),
		State:      domain.PeerConnected,
		CreatedAt:  time.Now(),
	}
	r.enqueueSync(func() {
		if r.closed {
			retErr = domain.ErrRoomClosed
			return
		}
		if _, exists := r.joiningBroadcasters[id]; exists {
			retErr = domain.ErrPeerAlreadyJoined
			return
		}
		if _, exists := r.broadcasters[id]; exists {
			retErr = domain.ErrPeerAlreadyJoined
			return
		}
		r.joiningBroadcasters[id] = &roomBroadcaster{peer: bp}
	})
	if retErr != nil {
		return nil, retErr
	}
	return bp, nil
}

// DeleteBroadcaster removes a broadcaster and closes every engine object
// it owns (spec.md §6 DELETE broadcasters/:id).
func (r *Room) DeleteBroadcaster(ctx context.Context, id domain.PeerID) error {
	var retErr error
	r.enqueueSync(func() {
		if b, ok := r.joiningBroadcasters[id]; ok {
			r.closeBroadcasterLocked(b)
			delete(r.joiningBroadcasters, id)
			return
		}
		if b, ok := r.broadcasters[id]; ok {
			r.closeBroadcasterLocked(b)
			delete(r.broadcasters, id)
			return
		}
		retErr = domain.ErrPeerNotFound
	})
	return retErr
}

func (r *Room) closeBroadcasterLocked(b *roomBroadcaster) {
	b.peer.State = domain.PeerClosed
	for _, p := range b.peer.Producers {
		delete(r.observedProducers, p.ID)
		delete(r.producerHandles, p.ID)
	}
	for _, c := range b.peer.Consumers {
		delete(r.consumerHandles, c.ID)
	}
	for _, t := range b.peer.Transports {
		delete(r.transportHandles, transportKey{b.peer.ID, t.ID})
	}
}

// JoinBroadcaster records the broadcaster's RTP capabilities and moves it
// into the joined registry, enabling produce/consume (spec.md §6 mirrors
// the interactive peer's join, minus the message channel).
func (r *Room) JoinBroadcaster(ctx context.Context, id domain.PeerID, rtpCapabilities domain.RTPCapabilities) error {
	var retErr error
	r.enqueueSync(func() {
		b, ok := r.joiningBroadcasters[id]
		if !ok {
			retErr = domain.ErrPeerNotFound
			return
		}
		delete(r.joiningBroadcasters, id)
		b.peer.RTPCapabilities = rtpCapabilities
		b.peer.State = domain.PeerJoined
		r.broadcasters[id] = b
	})
	return retErr
}

func (r *Room) broadcasterRouter(direction domain.TransportDirection) (ports.Router, ports.WebRTCServer) {
	if direction == domain.DirectionConsume {
		return r.consumerRouter, r.consumerServer
	}
	return r.producerRouter, r.producerServer
}

// CreateBroadcasterTransport creates a plain transport for a broadcaster
// (spec.md §6 POST transports): broadcasters are server-to-server or
// scripted clients, so plain (non-ICE) transports are the norm.
func (r *Room) CreateBroadcasterTransport(ctx context.Context, id domain.PeerID, direction domain.TransportDirection) (ports.Transport, error) {
	var (
		transport ports.Transport
		retErr    error
	)
	r.enqueueSync(func() {
		b, ok := r.broadcasters[id]
		if !ok {
			retErr = domain.ErrPeerNotFound
			return
		}
		router, _ := r.broadcasterRouter(direction)
		t, err := router.CreatePlainTransport(ctx, ports.PlainTransportOptions{RTCPMux: true})
		if err != nil {
			retErr = err
			return
		}
		b.peer.Transports[domain.TransportID(t.ID())] = &domain.PeerTransport{ID: domain.TransportID(t.ID()), Direction: direction}
		r.transportHandles[transportKey{id, domain.TransportID(t.ID())}] = t
		transport = t
	})
	return transport, retErr
}

func (r *Room) ConnectBroadcasterTransport(ctx context.Context, id domain.PeerID, transportID domain.TransportID, params ports.ConnectParams) error {
	transport, err := r.transportByID(id, transportID)
	if err != nil {
		return err
	}
	return transport.Connect(ctx, params)
}

// CreateBroadcasterProducer creates a producer for the broadcaster and
// fans it out to every joined interactive peer, exactly like an
// interactive peer's produce (spec.md §6, §4.3).
func (r *Room) CreateBroadcasterProducer(ctx context.Context, id domain.PeerID, transportID domain.TransportID, kind string, rtpParameters map[string]interface{}, source domain.Source) (ports.ProducerHandle, error) {
	transport, err := r.transportByID(id, transportID)
	if err != nil {
		return nil, err
	}

	handle, err := transport.Produce(ctx, ports.ProduceOptions{
		Kind:          kind,
		RTPParameters: rtpParameters,
		AppData:       domain.ProducerAppData{PeerID: id, Source: source},
	})
	if err != nil {
		return nil, err
	}

	var producerID domain.ProducerID
	r.enqueueSync(func() {
		b, ok := r.broadcasters[id]
		if !ok {
			return
		}
		producerID = domain.ProducerID(handle.ID())
		producer := &domain.Producer{ID: producerID, PeerID: id, RoomID: r.id, AppData: domain.ProducerAppData{PeerID: id, Source: source}, Kind: kind}
		b.peer.Producers[producerID] = producer
		r.observedProducers[producerID] = producer
		r.producerHandles[producerID] = handle
	})

	r.fanOutToOthers(ctx, id, producerID)

	return handle, nil
}

// CreateBroadcasterConsumer creates a paused consumer for the broadcaster
// against an existing producer (spec.md §6 POST consumers); the client
// resumes it explicitly via ResumeConsumer once ready, mirroring the
// interactive peer's ack-then-resume ordering without a message channel
// to carry the ack.
func (r *Room) CreateBroadcasterConsumer(ctx context.Context, id domain.PeerID, transportID domain.TransportID, producerID domain.ProducerID) (ports.ConsumerHandle, error) {
	var rtpCapabilities domain.RTPCapabilities
	r.enqueueSync(func() {
		b, ok := r.broadcasters[id]
		if !ok {
			return
		}
		rtpCapabilities = b.peer.RTPCapabilities
	})

	transport, err := r.transportByID(id, transportID)
	if err != nil {
		return nil, err
	}

	consumer, err := transport.Consume(ctx, ports.ConsumeOptions{
		ProducerID:      producerID,
		RTPCapabilities: rtpCapabilities,
		Paused:          true,
	})
	if err != nil {
		return nil, err
	}

	r.enqueueSync(func() {
		b, ok := r.broadcasters[id]
		if !ok {
			return
		}
		cid := domain.ConsumerID(consumer.ID())
		b.peer.Consumers[cid] = &domain.Consumer{ID: cid, PeerID: id, ProducerID: producerID}
		r.consumerHandles[cid] = consumer
	})

	return consumer, nil
}

// ResumeBroadcasterConsumer resumes a previously created, still-paused
// broadcaster consumer (spec.md §6 POST consumers/:id/resume).
func (r *Room) ResumeBroadcasterConsumer(ctx context.Context, consumerID domain.ConsumerID) error {
	var handle ports.ConsumerHandle
	r.enqueueSync(func() { handle = r.consumerHandles[consumerID] })
	if handle == nil {
		return domain.ErrConsumerNotFound
	}
	return handle.Resume(ctx)
}
