package mediaengine

import (
	"context"
	"fmt"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/utils"

	"github.com/pion/webrtc/v3"
)

// DataProducer is the engine-side handle for one peer's (or the room
// bot's) outbound SCTP data channel. WebRTC-transport data producers
// relay messages received over a pion DataChannel; direct-transport data
// producers (the bot) have no DataChannel and are driven purely by Send,
// matching spec.md §4.5.
type DataProducer struct {
	mu        sync.Mutex
	id        domain.DataProducerID
	transport *Transport
	dc        *webrtc.DataChannel

	consumers map[domain.DataConsumerID]*DataConsumer

	onMessage func(payload []byte, ppid int)
	onClose   func()
	closed    bool
}

func (t *Transport) ProduceData(ctx context.Context, opts ports.ProduceDataOptions) (ports.DataProducerHandle, error) {
	dp := &DataProducer{
		id:        domain.DataProducerID(utils.GenerateID("dataproducer")),
		transport: t,
		consumers: make(map[domain.DataConsumerID]*DataConsumer),
	}

	if t.pc != nil {
		dc, err := t.pc.CreateDataChannel(opts.Label, nil)
		if err != nil {
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			ppid := 51
			if msg.IsString {
				ppid = 51
			} else {
				ppid = 53
			}
			dp.mu.Lock()
			cb := dp.onMessage
			dp.mu.Unlock()
			if cb != nil {
				cb(msg.Data, ppid)
			}
		})
		dp.dc = dc
	}

	t.mu.Lock()
	t.dataProducers[dp.id] = dp
	t.mu.Unlock()

	t.router.mu.Lock()
	t.router.dataProducers[dp.id] = dp
	t.router.mu.Unlock()

	return dp, nil
}

func (dp *DataProducer) ID() domain.DataProducerID { return dp.id }

func (dp *DataProducer) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (dp *DataProducer) OnMessage(f func(payload []byte, ppid int)) {
	dp.mu.Lock()
	dp.onMessage = f
	dp.mu.Unlock()
}

func (dp *DataProducer) OnClose(f func()) { dp.mu.Lock(); dp.onClose = f; dp.mu.Unlock() }

// Send pushes payload to every DataConsumer subscribed to this producer.
// This is how the bot (a direct-transport DataProducer with no
// DataChannel of its own) actually emits a relayed chat message
// (spec.md §4.5).
func (dp *DataProducer) Send(ctx context.Context, payload []byte, ppid int) error {
	dp.mu.Lock()
	consumers := make([]*DataConsumer, 0, len(dp.consumers))
	for _, c := range dp.consumers {
		consumers = append(consumers, c)
	}
	dp.mu.Unlock()

	for _, c := range consumers {
		_ = c.deliver(payload, ppid)
	}
	return nil
}

func (dp *DataProducer) Close() {
	dp.mu.Lock()
	if dp.closed {
		dp.mu.Unlock()
		return
	}
	dp.closed = true
	cb := dp.onClose
	dp.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// DataConsumer is the engine-side handle a peer's (or the bot's) transport
// holds for receiving one DataProducer's messages.
type DataConsumer struct {
	mu       sync.Mutex
	id       domain.DataConsumerID
	transport *Transport
	producer *DataProducer
	dc       *webrtc.DataChannel

	onDataProducerClose func()
	onTransportClose    func()
	onClose             func()
	closed              bool
}

func (t *Transport) ConsumeData(ctx context.Context, opts ports.ConsumeDataOptions) (ports.DataConsumerHandle, error) {
	t.router.mu.Lock()
	producer, ok := t.router.dataProducers[opts.DataProducerID]
	t.router.mu.Unlock()
	if !ok {
		return nil, domain.ErrDataProducerNotFound
	}

	dc := &DataConsumer{
		id:        domain.DataConsumerID(utils.GenerateID("dataconsumer")),
		transport: t,
		producer:  producer,
	}

	if t.pc != nil {
		channel, err := t.pc.CreateDataChannel(fmt.Sprintf("consumer-%s", dc.id), nil)
		if err != nil {
			return nil, fmt.Errorf("create consumer data channel: %w", err)
		}
		dc.dc = channel
	}

	producer.mu.Lock()
	producer.consumers[dc.id] = dc
	producer.mu.Unlock()

	t.mu.Lock()
	t.dataConsumers[dc.id] = dc
	t.mu.Unlock()

	return dc, nil
}

func (dc *DataConsumer) deliver(payload []byte, ppid int) error {
	dc.mu.Lock()
	channel := dc.dc
	dc.mu.Unlock()
	if channel == nil {
		return nil
	}
	if ppid == 51 {
		return channel.SendText(string(payload))
	}
	return channel.Send(payload)
}

func (dc *DataConsumer) ID() domain.DataConsumerID { return dc.id }

func (dc *DataConsumer) Send(ctx context.Context, payload []byte, ppid int) error {
	return dc.deliver(payload, ppid)
}

func (dc *DataConsumer) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}

func (dc *DataConsumer) OnDataProducerClose(f func()) {
	dc.mu.Lock()
	dc.onDataProducerClose = f
	dc.mu.Unlock()
}
func (dc *DataConsumer) OnTransportClose(f func()) {
	dc.mu.Lock()
	dc.onTransportClose = f
	dc.mu.Unlock()
}
func (dc *DataConsumer) OnClose(f func()) { dc.mu.Lock(); dc.onClose = f; dc.mu.Unlock() }

func (dc *DataConsumer) Close() {
	dc.mu.Lock()
	if dc.closed {
		dc.mu.Unlock()
		return
	}
	dc.closed = true
	cb := dc.onClose
	dc.mu.Unlock()

	dc.producer.mu.Lock()
	delete(dc.producer.consumers, dc.id)
	dc.producer.mu.Unlock()

	if cb != nil {
		cb()
	}
}
