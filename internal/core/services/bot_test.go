package services

import (
	"context"
	"testing"
	"time"

	"sfucore/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

// TestBot_RelaysChatMessageToEveryJoinedPeer is spec.md §4.5 scenario S6:
// a string message on peer B's chat data-producer comes back through the
// bot's own data-producer as "B told me: 'hi'", fanned out to every
// joined peer (including B itself).
func TestBot_RelaysChatMessageToEveryJoinedPeer(t *testing.T) {
	r := newTestRoom(0)
	assert.NoError(t, r.bot.start(context.Background(), r.producerRouter))

	chA, _ := joinPeer(t, r, domain.PeerID("A"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})
	chB, _ := joinPeer(t, r, domain.PeerID("B"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})

	bProduceTransport, err := r.CreateWebRTCTransport(context.Background(), domain.PeerID("B"), domain.DirectionProduce, nil)
	assert.NoError(t, err)

	dp, err := r.ProduceData(context.Background(), domain.PeerID("B"), bProduceTransport.ID(), map[string]interface{}{}, "chat", "", domain.ChannelChat)
	assert.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	var relayed string
	r.bot.producer.(*fakeDataProducerHandle).sendFn = func(payload []byte) {
		relayed = string(payload)
	}

	fdp := dp.(*fakeDataProducerHandle)
	fdp.messageCb([]byte("hi"), sctpStringPPID)

	assert.Equal(t, "B told me: 'hi'", relayed)

	_ = chA
	_ = chB
}

// TestBot_IgnoresNonStringPPIDMessages is spec.md §4.5 "non-string
// messages are ignored".
func TestBot_IgnoresNonStringPPIDMessages(t *testing.T) {
	r := newTestRoom(0)
	assert.NoError(t, r.bot.start(context.Background(), r.producerRouter))

	joinPeer(t, r, domain.PeerID("B"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})
	bProduceTransport, err := r.CreateWebRTCTransport(context.Background(), domain.PeerID("B"), domain.DirectionProduce, nil)
	assert.NoError(t, err)

	dp, err := r.ProduceData(context.Background(), domain.PeerID("B"), bProduceTransport.ID(), map[string]interface{}{}, "chat", "", domain.ChannelChat)
	assert.NoError(t, err)

	sent := false
	r.bot.producer.(*fakeDataProducerHandle).sendFn = func(payload []byte) { sent = true }

	fdp := dp.(*fakeDataProducerHandle)
	fdp.messageCb([]byte{0x01, 0x02}, 53)

	assert.False(t, sent)
}

// TestGiveBotConsumer_HandsJoinedPeerADataConsumer is spec.md §4.5 "every
// peer that joins consumes this data-producer".
func TestGiveBotConsumer_HandsJoinedPeerADataConsumer(t *testing.T) {
	r := newTestRoom(0)
	assert.NoError(t, r.bot.start(context.Background(), r.producerRouter))

	joinPeer(t, r, domain.PeerID("A"), domain.RTPCapabilities{"codecs": []interface{}{"VP8"}})

	r.enqueueSync(func() {
		rp := r.joinedPeers[domain.PeerID("A")]
		assert.Len(t, rp.peer.DataConsumers, 1)
	})
}
