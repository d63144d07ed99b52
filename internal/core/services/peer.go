package services

import (
	"context"
	"time"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
)

// engineVersion is reported to every peer once at attach via
// mediasoupVersion (spec.md §4.2). Held here rather than in the media
// engine facade since the protocol the spec describes sends this as a
// room/peer-level notification, not an engine query.
const engineVersion = "3.12.9"

// AttachPeer registers a newly connected interactive peer as "joining" and
// arms the join timer (spec.md §3 peer state machine, P3). A peer still
// joining when joinTimeout expires has its channel closed and is dropped
// from the room; it gets no "disconnected" notification and no other peer
// is notified about it.
func (r *Room) AttachPeer(ctx context.Context, peerID domain.PeerID, address string, device domain.Device, channel ports.PeerChannel) error {
	var retErr error
	r.enqueueSync(func() {
		if r.closed {
			retErr = domain.ErrRoomClosed
			return
		}
		if existing, ok := r.joiningPeers[peerID]; ok {
			r.supersedeLocked(existing)
			delete(r.joiningPeers, peerID)
		}
		if existing, ok := r.joinedPeers[peerID]; ok {
			r.supersedeLocked(existing)
			delete(r.joinedPeers, peerID)
		}

		rp := &roomPeer{
			peer: &domain.Peer{
				ID:            peerID,
				RoomID:        r.id,
				Address:       address,
				Device:        device,
				State:         domain.PeerConnected,
				CreatedAt:     time.Now(),
				Transports:    make(map[domain.TransportID]*domain.PeerTransport),
				Producers:     make(map[domain.ProducerID]*domain.Producer),
				Consumers:     make(map[domain.ConsumerID]*domain.Consumer),
				DataProducers: make(map[domain.DataProducerID]*domain.DataProducer),
				DataConsumers: make(map[domain.DataConsumerID]*domain.DataConsumer),
			},
			channel: channel,
		}
		rp.peer.State = domain.PeerJoining
		rp.joinTimer = time.AfterFunc(joinTimeout, func() {
			r.enqueue(func() { r.expireJoinLocked(peerID) })
		})
		r.joiningPeers[peerID] = rp
	})
	if retErr == nil {
		_ = channel.Notify("mediasoupVersion", map[string]interface{}{"version": engineVersion})
	}
	return retErr
}

// supersedeLocked disconnects a previous connection for the same peer id
// without running the close-cascade (spec.md §4.7 "replaces, does not
// merge with, the stale one"). The caller deletes it from the registry.
func (r *Room) supersedeLocked(rp *roomPeer) {
	if rp.joinTimer != nil {
		rp.joinTimer.Stop()
	}
	if rp.channel != nil {
		_ = rp.channel.Close()
	}
}

// expireJoinLocked handles a joining peer's 10s join timer firing before
// join was called. The peer goes straight to closed, not disconnected
// (spec.md §4.2 "joining -> closed on join-timer expiry. No disconnected
// is emitted."): nobody else in the room has seen this peer yet, so there
// is nothing to notify either.
func (r *Room) expireJoinLocked(peerID domain.PeerID) {
	rp, ok := r.joiningPeers[peerID]
	if !ok {
		return
	}
	delete(r.joiningPeers, peerID)
	rp.peer.State = domain.PeerClosed
	if rp.channel != nil {
		_ = rp.channel.Close()
	}
	r.checkEmpty()
}

// Join moves a joining peer to joined, fans out existing producers to it
// and announces it to the rest of the room (spec.md §3 join, §4.2 "join").
func (r *Room) Join(ctx context.Context, peerID domain.PeerID, displayName string, device domain.Device, rtpCapabilities domain.RTPCapabilities, sctpCapabilities domain.SCTPCapabilities) (*domain.Peer, []*domain.Peer, error) {
	var (
		self    *domain.Peer
		others  []*domain.Peer
		retErr  error
		newPeer *domain.Peer
	)
	r.enqueueSync(func() {
		rp, ok := r.joiningPeers[peerID]
		if !ok {
			retErr = domain.ErrPeerNotFound
			return
		}
		if rp.joinTimer != nil {
			rp.joinTimer.Stop()
		}
		delete(r.joiningPeers, peerID)

		rp.peer.Display = displayName
		rp.peer.Device = device
		rp.peer.RTPCapabilities = rtpCapabilities
		rp.peer.SCTPCapabilities = sctpCapabilities
		rp.peer.State = domain.PeerJoined
		rp.peer.JoinedAt = time.Now()

		r.joinedPeers[peerID] = rp
		self = rp.peer
		newPeer = rp.peer

		for id, p := range r.joinedPeers {
			if id == peerID {
				continue
			}
			others = append(others, p.peer)
		}
	})
	if retErr != nil {
		return nil, nil, retErr
	}

	for id, p := range r.snapshotJoinedPeers() {
		if id == peerID {
			continue
		}
		_ = p.channel.Notify("newPeer", newPeer)
	}

	r.fanOutExistingProducers(ctx, peerID)
	r.giveBotConsumer(ctx, peerID)

	return self, others, nil
}

func (r *Room) snapshotJoinedPeers() map[domain.PeerID]*roomPeer {
	out := make(map[domain.PeerID]*roomPeer)
	r.enqueueSync(func() {
		for id, p := range r.joinedPeers {
			out[id] = p
		}
	})
	return out
}

// Disconnect handles transport-level loss of an interactive peer
// (spec.md §3 "joined -> disconnected"): it is removed from the room,
// its resources are closed, and the rest of the room is told unless the
// peer was only joining (no peerClosed for a peer nobody else ever saw).
func (r *Room) Disconnect(ctx context.Context, peerID domain.PeerID) {
	var wasJoined bool
	r.enqueueSync(func() {
		if rp, ok := r.joiningPeers[peerID]; ok {
			if rp.joinTimer != nil {
				rp.joinTimer.Stop()
			}
			delete(r.joiningPeers, peerID)
		}
		if rp, ok := r.joinedPeers[peerID]; ok {
			r.closePeerLocked(rp, true)
			delete(r.joinedPeers, peerID)
			wasJoined = true
		}
		r.checkEmpty()
	})

	if wasJoined {
		for id, p := range r.snapshotJoinedPeers() {
			if id == peerID {
				continue
			}
			_ = p.channel.Notify("peerClosed", map[string]domain.PeerID{"peerId": peerID})
		}
	}
}

// closePeerLocked releases every engine resource owned by a peer. Must be
// called from the actor goroutine. notifyOthers indicates the peer had
// reached "joined" and is included only for symmetry with callers that
// need to know whether to emit peerClosed; the notification itself is
// sent by the caller outside the lock.
func (r *Room) closePeerLocked(rp *roomPeer, notifyOthers bool) {
	_ = notifyOthers
	rp.peer.State = domain.PeerClosed
	for _, c := range rp.peer.Consumers {
		delete(r.consumerHandles, c.ID)
		delete(rp.peer.Consumers, c.ID)
	}
	for _, p := range rp.peer.Producers {
		delete(r.observedProducers, p.ID)
		delete(r.producerHandles, p.ID)
	}
	for _, dp := range rp.peer.DataProducers {
		delete(r.dataProducerHandles, dp.ID)
	}
	for _, dc := range rp.peer.DataConsumers {
		delete(r.dataConsumerHandles, dc.ID)
	}
	for _, t := range rp.peer.Transports {
		delete(r.transportHandles, transportKey{rp.peer.ID, t.ID})
	}
	if rp.channel != nil {
		_ = rp.channel.Close()
	}
}

// GetRouterRTPCapabilities returns the capabilities peers must negotiate
// against before producing or consuming (spec.md §4.2).
func (r *Room) GetRouterRTPCapabilities() domain.RTPCapabilities {
	var caps domain.RTPCapabilities
	r.enqueueSync(func() { caps = r.producerRouter.RTPCapabilities() })
	return caps
}

// CreateWebRTCTransport creates a produce- or consume-direction transport
// on the room's producer or consumer router respectively (spec.md §4.2).
// A still-joining peer may call this too: the real client provisions its
// send/recv transports before it ever sends "join", and §4.3 trigger 1
// needs the new peer's consume transport to already exist by the time
// Join fans existing producers out to it.
func (r *Room) CreateWebRTCTransport(ctx context.Context, peerID domain.PeerID, direction domain.TransportDirection, sctpCapabilities domain.SCTPCapabilities) (ports.Transport, error) {
	var (
		transport ports.Transport
		retErr    error
	)
	r.enqueueSync(func() {
		rp, ok := r.joinedPeers[peerID]
		if !ok {
			rp, ok = r.joiningPeers[peerID]
		}
		if !ok {
			retErr = domain.ErrPeerNotFound
			return
		}

		router := r.producerRouter
		server := r.producerServer
		if direction == domain.DirectionConsume {
			router = r.consumerRouter
			server = r.consumerServer
		}

		t, err := router.CreateWebRTCTransport(ctx, ports.WebRTCTransportOptions{
			WebRTCServer: server,
			Direction:    direction,
			EnableSCTP:   len(sctpCapabilities) > 0,
		})
		if err != nil {
			retErr = err
			return
		}
		rp.peer.Transports[domain.TransportID(t.ID())] = &domain.PeerTransport{
			ID:        domain.TransportID(t.ID()),
			Direction: direction,
		}
		r.transportHandles[transportKey{peerID, domain.TransportID(t.ID())}] = t
		transport = t
	})
	if retErr == nil {
		transport.OnStateChange(func(state string) {
			if state == "failed" || state == "closed" || state == "disconnected" {
				r.Disconnect(context.Background(), peerID)
			}
		})
	}
	return transport, retErr
}

// ChangeDisplayName records a joined peer's new display name and sends
// peerDisplayNameChanged to every other joined peer. Network throttle
// requests are not Room methods: the signal server hands them to the
// throttle coordinator (spec.md §4.6).
func (r *Room) ChangeDisplayName(peerID domain.PeerID, displayName string) {
	r.enqueueSync(func() {
		rp, ok := r.joinedPeers[peerID]
		if !ok {
			return
		}
		rp.peer.Display = displayName
	})

	for id, p := range r.snapshotJoinedPeers() {
		if id == peerID {
			continue
		}
		_ = p.channel.Notify("peerDisplayNameChanged", map[string]interface{}{
			"peerId":      peerID,
			"displayName": displayName,
		})
	}
}

func (r *Room) CloseProducer(peerID domain.PeerID, producerID domain.ProducerID) {
	var handle ports.ProducerHandle
	r.enqueueSync(func() {
		rp, ok := r.joinedPeers[peerID]
		if !ok {
			return
		}
		p, ok := rp.peer.Producers[producerID]
		if !ok {
			return
		}
		p.Closed = true
		delete(rp.peer.Producers, producerID)
		delete(r.observedProducers, producerID)
		handle = r.producerHandles[producerID]
		delete(r.producerHandles, producerID)
	})
	if handle != nil {
		handle.Close()
	}

	for id, p := range r.snapshotJoinedPeers() {
		if id == peerID {
			continue
		}
		_ = p.channel.Notify("producerClosed", map[string]interface{}{
			"peerId":     peerID,
			"producerId": producerID,
		})
	}
}

func (r *Room) PauseProducer(peerID domain.PeerID, producerID domain.ProducerID, paused bool) {
	var handle ports.ProducerHandle
	r.enqueueSync(func() {
		rp, ok := r.joinedPeers[peerID]
		if !ok {
			return
		}
		p, ok := rp.peer.Producers[producerID]
		if !ok {
			return
		}
		p.Paused = paused
		handle = r.producerHandles[producerID]
	})
	if handle == nil {
		return
	}
	if paused {
		_ = handle.Pause(context.Background())
	} else {
		_ = handle.Resume(context.Background())
	}
}
