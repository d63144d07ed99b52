package services

import (
	"context"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
)

// ConnectTransport completes the ICE/DTLS handshake on one of peerID's own
// transports (spec.md §4.2 "connectWebRtcTransport").
func (r *Room) ConnectTransport(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID, params ports.ConnectParams) error {
	transport, err := r.transportByID(peerID, transportID)
	if err != nil {
		return err
	}
	return transport.Connect(ctx, params)
}

// RestartIce restarts ICE on one of peerID's own transports (spec.md §4.2
// "restartIce").
func (r *Room) RestartIce(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID) (map[string]interface{}, error) {
	transport, err := r.transportByID(peerID, transportID)
	if err != nil {
		return nil, err
	}
	return transport.RestartICE(ctx)
}

func (r *Room) consumerHandleByID(consumerID domain.ConsumerID) (ports.ConsumerHandle, error) {
	var (
		h      ports.ConsumerHandle
		retErr error
	)
	r.enqueueSync(func() {
		handle, ok := r.consumerHandles[consumerID]
		if !ok {
			retErr = domain.ErrConsumerNotFound
			return
		}
		h = handle
	})
	return h, retErr
}

// ResumeConsumer resumes a paused consumer belonging to peerID (spec.md
// §4.2 "resumeConsumer").
func (r *Room) ResumeConsumer(ctx context.Context, peerID domain.PeerID, consumerID domain.ConsumerID) error {
	handle, err := r.consumerHandleByID(consumerID)
	if err != nil {
		return err
	}
	if err := handle.Resume(ctx); err != nil {
		return err
	}
	r.enqueueSync(func() {
		if rp, ok := r.joinedPeers[peerID]; ok {
			if c, ok := rp.peer.Consumers[consumerID]; ok {
				c.Paused = false
			}
		}
	})
	return nil
}

// PauseConsumer pauses a consumer belonging to peerID (spec.md §4.2
// "pauseConsumer").
func (r *Room) PauseConsumer(ctx context.Context, peerID domain.PeerID, consumerID domain.ConsumerID) error {
	handle, err := r.consumerHandleByID(consumerID)
	if err != nil {
		return err
	}
	if err := handle.Pause(ctx); err != nil {
		return err
	}
	r.enqueueSync(func() {
		if rp, ok := r.joinedPeers[peerID]; ok {
			if c, ok := rp.peer.Consumers[consumerID]; ok {
				c.Paused = true
			}
		}
	})
	return nil
}

// RequestConsumerKeyFrame asks the producer side to regenerate a keyframe
// for this consumer (spec.md §4.2 "requestConsumerKeyFrame").
func (r *Room) RequestConsumerKeyFrame(ctx context.Context, consumerID domain.ConsumerID) error {
	handle, err := r.consumerHandleByID(consumerID)
	if err != nil {
		return err
	}
	return handle.RequestKeyFrame(ctx)
}

// SetConsumerPriority forwards bandwidth-allocation priority to the
// consumer (spec.md §4.2 "setConsumerPriority").
func (r *Room) SetConsumerPriority(ctx context.Context, consumerID domain.ConsumerID, priority int) error {
	handle, err := r.consumerHandleByID(consumerID)
	if err != nil {
		return err
	}
	return handle.SetPriority(ctx, priority)
}

// SetConsumerPreferredLayers forwards simulcast layer preference to the
// consumer (spec.md §4.2 "setConsumerPreferredLayers").
func (r *Room) SetConsumerPreferredLayers(ctx context.Context, consumerID domain.ConsumerID, spatial, temporal int) error {
	handle, err := r.consumerHandleByID(consumerID)
	if err != nil {
		return err
	}
	return handle.SetPreferredLayers(ctx, spatial, temporal)
}

// GetTransportStats returns the engine's live stats for one of peerID's own
// transports (spec.md §4.2 "getTransportStats").
func (r *Room) GetTransportStats(ctx context.Context, peerID domain.PeerID, transportID domain.TransportID) (map[string]interface{}, error) {
	transport, err := r.transportByID(peerID, transportID)
	if err != nil {
		return nil, err
	}
	return transport.GetStats(ctx)
}

// GetProducerStats returns the engine's live stats for a producer
// (spec.md §4.2 "getProducerStats").
func (r *Room) GetProducerStats(ctx context.Context, producerID domain.ProducerID) (map[string]interface{}, error) {
	var (
		handle ports.ProducerHandle
		retErr error
	)
	r.enqueueSync(func() {
		h, ok := r.producerHandles[producerID]
		if !ok {
			retErr = domain.ErrProducerNotFound
			return
		}
		handle = h
	})
	if retErr != nil {
		return nil, retErr
	}
	return handle.GetStats(ctx)
}

// GetConsumerStats returns the engine's live stats for a consumer
// (spec.md §4.2 "getConsumerStats").
func (r *Room) GetConsumerStats(ctx context.Context, consumerID domain.ConsumerID) (map[string]interface{}, error) {
	handle, err := r.consumerHandleByID(consumerID)
	if err != nil {
		return nil, err
	}
	return handle.GetStats(ctx)
}

// GetDataProducerStats returns the engine's live stats for a data producer
// (spec.md §4.2 "getDataProducerStats").
func (r *Room) GetDataProducerStats(ctx context.Context, dataProducerID domain.DataProducerID) (map[string]interface{}, error) {
	var (
		handle ports.DataProducerHandle
		retErr error
	)
	r.enqueueSync(func() {
		h, ok := r.dataProducerHandles[dataProducerID]
		if !ok {
			retErr = domain.ErrDataProducerNotFound
			return
		}
		handle = h
	})
	if retErr != nil {
		return nil, retErr
	}
	return handle.GetStats(ctx)
}

// GetDataConsumerStats returns the engine's live stats for a data consumer
// (spec.md §4.2 "getDataConsumerStats").
func (r *Room) GetDataConsumerStats(ctx context.Context, dataConsumerID domain.DataConsumerID) (map[string]interface{}, error) {
	var (
		handle ports.DataConsumerHandle
		retErr error
	)
	r.enqueueSync(func() {
		h, ok := r.dataConsumerHandles[dataConsumerID]
		if !ok {
			retErr = domain.ErrDataConsumerNotFound
			return
		}
		handle = h
	})
	if retErr != nil {
		return nil, retErr
	}
	return handle.GetStats(ctx)
}
