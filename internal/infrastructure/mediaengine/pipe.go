package mediaengine

import (
	"context"
	"fmt"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"
	"sfucore/pkg/utils"

	"github.com/pion/rtp"
)

// pipeBridge is an rtpSink that re-forwards every packet it receives from
// a consumer on src straight into a Producer on dst's router, so a room in
// pipe-mode behaves as if the original producer lived on dst too (spec.md
// §4.3 trigger 4, §1 ADD "pipe-mode").
type pipeBridge struct {
	target *Producer
}

func (b *pipeBridge) writeRTP(pkt *rtp.Packet) {
	b.target.mu.Lock()
	sinks := make([]rtpSink, 0, len(b.target.consumers))
	for _, s := range b.target.consumers {
		sinks = append(sinks, s)
	}
	b.target.mu.Unlock()
	for _, s := range sinks {
		s.writeRTP(pkt)
	}
}

// producerClosed cascades the close of the piped-in producer once the
// original, upstream producer goes away.
func (b *pipeBridge) producerClosed() {
	b.target.Close()
}

// producerPaused and producerResumed are no-ops: forwardLoop already skips
// writes while the upstream producer is paused, so the bridge needs no
// extra state of its own to stop relaying packets.
func (b *pipeBridge) producerPaused()  {}
func (b *pipeBridge) producerResumed() {}

// pipeProducer bridges a producer on src to a new producer on dst: a
// direct transport on each side, with a pipe consumer on src relaying raw
// RTP straight into a pipe producer on dst's side.
func pipeProducer(ctx context.Context, src, dst *Router, producerID domain.ProducerID) (domain.ProducerID, error) {
	src.mu.Lock()
	producer, ok := src.producers[producerID]
	src.mu.Unlock()
	if !ok {
		return "", domain.ErrProducerNotFound
	}

	srcPipeTransport, err := src.CreateDirectTransport(ctx)
	if err != nil {
		return "", fmt.Errorf("pipe src transport: %w", err)
	}
	dstPipeTransport, err := dst.CreateDirectTransport(ctx)
	if err != nil {
		return "", fmt.Errorf("pipe dst transport: %w", err)
	}
	dstT := dstPipeTransport.(*Transport)

	pipeProducerID := domain.ProducerID(utils.GenerateID("pipeproducer"))
	pipeProducerObj := &Producer{
		id:        pipeProducerID,
		kind:      producer.kind,
		transport: dstT,
		consumers: make(map[domain.ConsumerID]rtpSink),
	}

	dst.mu.Lock()
	dst.producers[pipeProducerID] = pipeProducerObj
	dst.mu.Unlock()

	dstT.mu.Lock()
	dstT.producers[pipeProducerID] = pipeProducerObj
	dstT.mu.Unlock()

	pipeConsumerHandle, err := srcPipeTransport.Consume(ctx, ports.ConsumeOptions{ProducerID: producerID})
	if err != nil {
		return "", fmt.Errorf("pipe consume: %w", err)
	}
	pipeConsumer := pipeConsumerHandle.(*Consumer)

	bridge := &pipeBridge{target: pipeProducerObj}
	producer.mu.Lock()
	producer.consumers[domain.ConsumerID(pipeConsumer.id)] = bridge
	producer.mu.Unlock()

	if err := pipeConsumer.Resume(ctx); err != nil {
		return "", fmt.Errorf("pipe resume: %w", err)
	}

	return pipeProducerID, nil
}

// pipeDataProducer checks that dataProducerID exists on src and registers a
// new DataProducer under a fresh id on dst. Unlike pipeProducer it sets up
// no bridge: messages sent on the source data producer are not forwarded
// to the new one, which has no transport.
func pipeDataProducer(ctx context.Context, src, dst *Router, dataProducerID domain.DataProducerID) (domain.DataProducerID, error) {
	src.mu.Lock()
	_, ok := src.dataProducers[dataProducerID]
	src.mu.Unlock()
	if !ok {
		return "", domain.ErrDataProducerNotFound
	}

	pipeID := domain.DataProducerID(utils.GenerateID("pipedataproducer"))
	pipeObj := &DataProducer{id: pipeID, consumers: make(map[domain.DataConsumerID]*DataConsumer)}

	dst.mu.Lock()
	dst.dataProducers[pipeID] = pipeObj
	dst.mu.Unlock()

	return pipeID, nil
}
