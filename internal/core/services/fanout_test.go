package services

import (
	"context"
	"testing"
	"time"

	"sfucore/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

// joinPeer is a test helper: attach, provision a consume-direction
// transport, then join, mirroring the real client's request order
// (createWebRtcTransport before the final join) so §4.3 trigger-1 fan-out
// has somewhere to land.
func joinPeer(t *testing.T, r *Room, id domain.PeerID, rtpCaps domain.RTPCapabilities) (*fakeChannel, *fakeTransport) {
	ch := &fakeChannel{}
	assert.NoError(t, r.AttachPeer(context.Background(), id, "1.1.1.1", domain.Device{}, ch))

	transport, err := r.CreateWebRTCTransport(context.Background(), id, domain.DirectionConsume, nil)
	assert.NoError(t, err)

	_, _, err = r.Join(context.Background(), id, string(id), domain.Device{}, rtpCaps, nil)
	assert.NoError(t, err)
	return ch, transport.(*fakeTransport)
}

// TestProduce_FansOutNewConsumerBeforeResume is spec.md §4.3 scenario S3:
// peer A (already joined, consume-capable) gets a newConsumer request
// whose producerId matches B's new producer, the ack precedes resume, and
// the consumer ends up playing.
func TestProduce_FansOutNewConsumerBeforeResume(t *testing.T) {
	r := newTestRoom(0)
	chA, _ := joinPeer(t, r, domain.PeerID("A"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})
	_, _ = joinPeer(t, r, domain.PeerID("B"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})

	bTransport, err := r.CreateWebRTCTransport(context.Background(), domain.PeerID("B"), domain.DirectionProduce, nil)
	assert.NoError(t, err)

	handle, err := r.Produce(context.Background(), domain.PeerID("B"), bTransport.ID(), "video", map[string]interface{}{}, domain.SourceVideo)
	assert.NoError(t, err)
	producerID := domain.ProducerID(handle.ID())

	time.Sleep(30 * time.Millisecond)

	var req *request
	for i := range chA.requests {
		if chA.requests[i].method == "newConsumer" {
			req = &chA.requests[i]
		}
	}
	assert.NotNil(t, req)
	payload := req.payload.(map[string]interface{})
	assert.Equal(t, producerID, payload["producerId"])

	r.enqueueSync(func() {
		rp := r.joinedPeers[domain.PeerID("A")]
		assert.Len(t, rp.peer.Consumers, 1)
		for cid := range rp.peer.Consumers {
			consumer := r.consumerHandles[cid].(*fakeConsumerHandle)
			assert.False(t, consumer.paused)
		}
	})
}

// TestProduce_CreatesOneConsumerPerReplica checks spec.md §4.3 testable
// property #2: 1+consumerReplicas consumers land on a consume-capable
// target per (peer, producer) pair.
func TestProduce_CreatesOneConsumerPerReplica(t *testing.T) {
	r := newTestRoom(2)
	joinPeer(t, r, domain.PeerID("A"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})
	joinPeer(t, r, domain.PeerID("B"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})

	bTransport, err := r.CreateWebRTCTransport(context.Background(), domain.PeerID("B"), domain.DirectionProduce, nil)
	assert.NoError(t, err)
	_, err = r.Produce(context.Background(), domain.PeerID("B"), bTransport.ID(), "video", map[string]interface{}{}, domain.SourceVideo)
	assert.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	r.enqueueSync(func() {
		rp := r.joinedPeers[domain.PeerID("A")]
		assert.Len(t, rp.peer.Consumers, 3)
	})
}

// TestProduce_SkipsTargetsThatCannotConsume is spec.md §4.3 step 2: a
// target the consumer-router rejects gets no consumer at all.
func TestProduce_SkipsTargetsThatCannotConsume(t *testing.T) {
	r := newTestRoom(0)
	joinPeer(t, r, domain.PeerID("A"), nil)
	r.consumerRouter.(*fakeRouter).canConsume = false
	joinPeer(t, r, domain.PeerID("B"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})

	bTransport, err := r.CreateWebRTCTransport(context.Background(), domain.PeerID("B"), domain.DirectionProduce, nil)
	assert.NoError(t, err)
	_, err = r.Produce(context.Background(), domain.PeerID("B"), bTransport.ID(), "video", map[string]interface{}{}, domain.SourceVideo)
	assert.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	r.enqueueSync(func() {
		rp := r.joinedPeers[domain.PeerID("A")]
		assert.Len(t, rp.peer.Consumers, 0)
	})
}

// TestProduce_ConsumerAckFailureLeavesConsumerPausedAndDropped covers
// spec.md §4.3 step 3d's failure path: a newConsumer request the peer
// rejects must not be resumed, and the fan-out continues regardless.
func TestProduce_ConsumerAckFailureLeavesConsumerPausedAndDropped(t *testing.T) {
	r := newTestRoom(0)
	chA, _ := joinPeer(t, r, domain.PeerID("A"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})
	chA.requestErr = assert.AnError
	joinPeer(t, r, domain.PeerID("B"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})

	bTransport, err := r.CreateWebRTCTransport(context.Background(), domain.PeerID("B"), domain.DirectionProduce, nil)
	assert.NoError(t, err)
	_, err = r.Produce(context.Background(), domain.PeerID("B"), bTransport.ID(), "video", map[string]interface{}{}, domain.SourceVideo)
	assert.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	r.enqueueSync(func() {
		rp := r.joinedPeers[domain.PeerID("A")]
		assert.Len(t, rp.peer.Consumers, 0)
	})
}

// TestConsumer_ProducerCloseCascadesToConsumerClosed is invariant P1: the
// engine observing the source producer's close must remove the
// downstream consumer's ledger entry and notify the owning peer.
func TestConsumer_ProducerCloseCascadesToConsumerClosed(t *testing.T) {
	r := newTestRoom(0)
	chA, _ := joinPeer(t, r, domain.PeerID("A"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})
	joinPeer(t, r, domain.PeerID("B"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})

	bTransport, err := r.CreateWebRTCTransport(context.Background(), domain.PeerID("B"), domain.DirectionProduce, nil)
	assert.NoError(t, err)
	_, err = r.Produce(context.Background(), domain.PeerID("B"), bTransport.ID(), "video", map[string]interface{}{}, domain.SourceVideo)
	assert.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	var consumer *fakeConsumerHandle
	r.enqueueSync(func() {
		rp := r.joinedPeers[domain.PeerID("A")]
		for cid := range rp.peer.Consumers {
			consumer = r.consumerHandles[cid].(*fakeConsumerHandle)
		}
	})
	assert.NotNil(t, consumer)

	consumer.fireProducerClose()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, chA.notifyCount("consumerClosed"))
	r.enqueueSync(func() {
		rp := r.joinedPeers[domain.PeerID("A")]
		assert.Len(t, rp.peer.Consumers, 0)
	})
}
