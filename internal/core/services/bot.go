package services

import (
	"context"
	"fmt"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
)

// sctpStringPPID is the SCTP payload protocol identifier RFC 8831 reserves
// for UTF-8 string messages; the bot ignores every other PPID (spec.md
// §4.5 "only string messages on the chat data channel are echoed").
const sctpStringPPID = 51

// bot is the per-room direct-transport relay: every peer's "chat"
// DataProducer is consumed by the bot, and the bot's own DataProducer is
// fanned out to every joined peer exactly like a media producer, so a
// relayed message reaches everyone including the sender (spec.md §4.5).
type bot struct {
	room *Room

	transport ports.Transport
	producer  ports.DataProducerHandle
}

func newBot(r *Room) *bot {
	return &bot{room: r}
}

// start creates the bot's direct transport and its own DataProducer on
// the room's producer router. Called once by the scheduler right after
// the room's routers exist.
func (b *bot) start(ctx context.Context, router ports.Router) error {
	t, err := router.CreateDirectTransport(ctx)
	if err != nil {
		return fmt.Errorf("bot direct transport: %w", err)
	}
	b.transport = t

	dp, err := t.ProduceData(ctx, ports.ProduceDataOptions{
		Label:    "bot",
		Protocol: "",
		AppData:  domain.DataProducerAppData{Channel: domain.ChannelBot},
	})
	if err != nil {
		return fmt.Errorf("bot data producer: %w", err)
	}
	b.producer = dp
	return nil
}

// attachChatProducer wires a newly created "chat" data producer from a
// peer into the bot's relay: incoming string messages are echoed to
// everyone as "<displayName> told me: '<text>'" (spec.md §4.5).
func (b *bot) attachChatProducer(peerID domain.PeerID, displayName string, dp ports.DataProducerHandle) {
	dp.OnMessage(func(payload []byte, ppid int) {
		if ppid != sctpStringPPID {
			return
		}
		text := string(payload)
		relayed := fmt.Sprintf("%s told me: '%s'", displayName, text)
		if b.producer == nil {
			return
		}
		if err := b.producer.Send(context.Background(), []byte(relayed), sctpStringPPID); err != nil {
			b.room.logger.Warnw("bot relay send failed", "peer_id", peerID, "error", err)
		}
	})
}

// giveBotConsumer hands a freshly joined peer a DataConsumer on the bot's
// relay producer, run off the room goroutine since it involves an engine
// round trip.
func (r *Room) giveBotConsumer(ctx context.Context, peerID domain.PeerID) {
	var consumeTransport ports.Transport
	r.enqueueSync(func() {
		rp, ok := r.joinedPeers[peerID]
		if !ok {
			return
		}
		pt, ok := rp.peer.ConsumeTransport()
		if !ok {
			return
		}
		consumeTransport = r.transportHandles[transportKey{peerID, pt.ID}]
	})
	if consumeTransport == nil {
		return
	}

	dc, err := r.bot.consumeForPeer(ctx, peerID, consumeTransport)
	if err != nil {
		r.logger.Warnw("bot data consumer failed", "peer_id", peerID, "error", err)
		return
	}

	r.enqueueSync(func() {
		rp, ok := r.joinedPeers[peerID]
		if !ok {
			return
		}
		rp.peer.DataConsumers[domain.DataConsumerID(dc.ID())] = &domain.DataConsumer{
			ID:             domain.DataConsumerID(dc.ID()),
			PeerID:         peerID,
			DataProducerID: domain.DataProducerID(r.bot.producer.ID()),
			AppData:        domain.DataConsumerAppData{Channel: domain.ChannelBot},
		}
		r.dataConsumerHandles[domain.DataConsumerID(dc.ID())] = dc
	})
}

// consumeForPeer gives peerID a DataConsumer on the bot's DataProducer, so
// it receives relayed chat messages (mirrors media fan-out for a single,
// always-present "producer": the bot itself).
func (b *bot) consumeForPeer(ctx context.Context, peerID domain.PeerID, transport ports.Transport) (ports.DataConsumerHandle, error) {
	if b.producer == nil {
		return nil, fmt.Errorf("bot not started")
	}
	dc, err := transport.ConsumeData(ctx, ports.ConsumeDataOptions{
		DataProducerID: b.producer.ID(),
		AppData:        domain.DataConsumerAppData{Channel: domain.ChannelBot},
	})
	if err != nil {
		return nil, err
	}
	return dc, nil
}
