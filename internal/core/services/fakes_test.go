package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"go.uber.org/zap"
)

var fakeIDCounter int64

func nextFakeID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&fakeIDCounter, 1))
}

// fakeChannel is an in-memory ports.PeerChannel: Notify/Request calls are
// recorded for assertions, and Request answers immediately with a fixed
// response (or error) so fan-out's ack-before-resume ordering can be
// observed without a real transport.
type fakeChannel struct {
	mu sync.Mutex

	notifications []notification
	requests      []request

	requestErr error
	closed     bool
}

type notification struct {
	method  string
	payload interface{}
}

type request struct {
	method  string
	payload interface{}
}

func (f *fakeChannel) Notify(method string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, notification{method, payload})
	return nil
}

func (f *fakeChannel) Request(ctx context.Context, method string, payload interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request{method, payload})
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return map[string]interface{}{}, nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) snapshotNotifications() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notification, len(f.notifications))
	copy(out, f.notifications)
	return out
}

func (f *fakeChannel) notifyCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, note := range f.notifications {
		if note.method == method {
			n++
		}
	}
	return n
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeRouter is a minimal ports.Router: it hands out fakeTransports and
// tracks producers only enough for CanConsume to answer.
type fakeRouter struct {
	mu sync.Mutex

	id            domain.RouterID
	producers     map[domain.ProducerID]bool
	canConsume    bool
	closeCb       func()
	closed        bool
	aloCreateErr  error
	asoCreateErr  error
}

func newFakeRouter(id string) *fakeRouter {
	return &fakeRouter{id: domain.RouterID(id), producers: make(map[domain.ProducerID]bool), canConsume: true}
}

func (r *fakeRouter) ID() domain.RouterID { return r.id }
func (r *fakeRouter) RTPCapabilities() domain.RTPCapabilities {
	return domain.RTPCapabilities{"codecs": []interface{}{}}
}

func (r *fakeRouter) CanConsume(producerID domain.ProducerID, rtpCapabilities domain.RTPCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canConsume
}

func (r *fakeRouter) CreateWebRTCTransport(ctx context.Context, opts ports.WebRTCTransportOptions) (ports.Transport, error) {
	return newFakeTransport(r, opts.Direction), nil
}

func (r *fakeRouter) CreatePlainTransport(ctx context.Context, opts ports.PlainTransportOptions) (ports.Transport, error) {
	return newFakeTransport(r, domain.DirectionProduce), nil
}

func (r *fakeRouter) CreateDirectTransport(ctx context.Context) (ports.Transport, error) {
	return newFakeTransport(r, domain.DirectionProduce), nil
}

func (r *fakeRouter) CreateAudioLevelObserver(ctx context.Context) (ports.AudioLevelObserver, error) {
	if r.aloCreateErr != nil {
		return nil, r.aloCreateErr
	}
	return newFakeAudioLevelObserver(), nil
}

func (r *fakeRouter) CreateActiveSpeakerObserver(ctx context.Context) (ports.ActiveSpeakerObserver, error) {
	if r.asoCreateErr != nil {
		return nil, r.asoCreateErr
	}
	return newFakeActiveSpeakerObserver(), nil
}

func (r *fakeRouter) PipeToRouter(ctx context.Context, opts ports.PipeToRouterOptions) (ports.PipeToRouterResult, error) {
	return ports.PipeToRouterResult{}, nil
}

func (r *fakeRouter) OnClose(f func()) {
	r.mu.Lock()
	r.closeCb = f
	r.mu.Unlock()
}

func (r *fakeRouter) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// fakeTransport is a minimal ports.Transport: Produce/Consume mint fake
// handles directly, with no RTP flowing anywhere.
type fakeTransport struct {
	mu        sync.Mutex
	id        domain.TransportID
	direction domain.TransportDirection
	router    *fakeRouter

	consumeErr error
	produceErr error

	stateChangeCb func(state string)
}

func newFakeTransport(r *fakeRouter, direction domain.TransportDirection) *fakeTransport {
	return &fakeTransport{id: domain.TransportID(nextFakeID("transport")), direction: direction, router: r}
}

func (t *fakeTransport) ID() domain.TransportID              { return t.id }
func (t *fakeTransport) Direction() domain.TransportDirection { return t.direction }
func (t *fakeTransport) IceDtlsParameters() map[string]interface{} { return nil }
func (t *fakeTransport) PlainTransportInfo() (string, int, int)    { return "", 0, 0 }
func (t *fakeTransport) Connect(ctx context.Context, params ports.ConnectParams) error { return nil }
func (t *fakeTransport) RestartICE(ctx context.Context) (map[string]interface{}, error) {
	return nil, nil
}

func (t *fakeTransport) Produce(ctx context.Context, opts ports.ProduceOptions) (ports.ProducerHandle, error) {
	if t.produceErr != nil {
		return nil, t.produceErr
	}
	p := &fakeProducerHandle{id: domain.ProducerID(nextFakeID("producer")), kind: opts.Kind}
	t.router.mu.Lock()
	t.router.producers[p.id] = true
	t.router.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) Consume(ctx context.Context, opts ports.ConsumeOptions) (ports.ConsumerHandle, error) {
	if t.consumeErr != nil {
		return nil, t.consumeErr
	}
	return newFakeConsumerHandle(opts.ProducerID), nil
}

func (t *fakeTransport) ProduceData(ctx context.Context, opts ports.ProduceDataOptions) (ports.DataProducerHandle, error) {
	return &fakeDataProducerHandle{id: domain.DataProducerID(nextFakeID("dataproducer"))}, nil
}

func (t *fakeTransport) ConsumeData(ctx context.Context, opts ports.ConsumeDataOptions) (ports.DataConsumerHandle, error) {
	return &fakeDataConsumerHandle{id: domain.DataConsumerID(nextFakeID("dataconsumer"))}, nil
}

func (t *fakeTransport) GetStats(ctx context.Context) (map[string]interface{}, error) { return nil, nil }
func (t *fakeTransport) SetMaxIncomingBitrate(ctx context.Context, bitrate int) error  { return nil }
func (t *fakeTransport) OnStateChange(f func(state string)) {
	t.mu.Lock()
	t.stateChangeCb = f
	t.mu.Unlock()
}
func (t *fakeTransport) Close() {}

// fireStateChange simulates the engine reporting an ICE/DTLS state
// transition, the same way mediaengine.Transport.fireStateChange does.
func (t *fakeTransport) fireStateChange(state string) {
	t.mu.Lock()
	cb := t.stateChangeCb
	t.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

// fakeProducerHandle records pause/resume/close and lets tests fire the
// score callback to exercise producerScore wiring.
type fakeProducerHandle struct {
	mu      sync.Mutex
	id      domain.ProducerID
	kind    string
	paused  bool
	closed  bool
	scoreCb func(int)
	closeCb func()
}

func (p *fakeProducerHandle) ID() domain.ProducerID { return p.id }
func (p *fakeProducerHandle) Kind() string          { return p.kind }
func (p *fakeProducerHandle) Pause(ctx context.Context) error  { p.mu.Lock(); p.paused = true; p.mu.Unlock(); return nil }
func (p *fakeProducerHandle) Resume(ctx context.Context) error { p.mu.Lock(); p.paused = false; p.mu.Unlock(); return nil }
func (p *fakeProducerHandle) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return nil, nil
}
func (p *fakeProducerHandle) OnScore(f func(int)) { p.mu.Lock(); p.scoreCb = f; p.mu.Unlock() }
func (p *fakeProducerHandle) OnClose(f func())    { p.mu.Lock(); p.closeCb = f; p.mu.Unlock() }
func (p *fakeProducerHandle) Close() {
	p.mu.Lock()
	p.closed = true
	cb := p.closeCb
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// fakeConsumerHandle records pause state and lets tests fire every
// callback the fan-out path wires.
type fakeConsumerHandle struct {
	mu         sync.Mutex
	id         domain.ConsumerID
	producerID domain.ProducerID
	paused     bool
	closed     bool

	scoreCb             func(int)
	layersCb            func(int, int)
	producerPauseCb     func()
	producerResumeCb    func()
	producerCloseCb     func()
	transportCloseCb    func()
	closeCb             func()
}

func newFakeConsumerHandle(producerID domain.ProducerID) *fakeConsumerHandle {
	return &fakeConsumerHandle{id: domain.ConsumerID(nextFakeID("consumer")), producerID: producerID, paused: true}
}

func (c *fakeConsumerHandle) ID() domain.ConsumerID { return c.id }
func (c *fakeConsumerHandle) Pause(ctx context.Context) error  { c.mu.Lock(); c.paused = true; c.mu.Unlock(); return nil }
func (c *fakeConsumerHandle) Resume(ctx context.Context) error { c.mu.Lock(); c.paused = false; c.mu.Unlock(); return nil }
func (c *fakeConsumerHandle) SetPreferredLayers(ctx context.Context, spatial, temporal int) error {
	return nil
}
func (c *fakeConsumerHandle) SetPriority(ctx context.Context, priority int) error { return nil }
func (c *fakeConsumerHandle) RequestKeyFrame(ctx context.Context) error          { return nil }
func (c *fakeConsumerHandle) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return nil, nil
}
func (c *fakeConsumerHandle) OnScore(f func(int))                     { c.mu.Lock(); c.scoreCb = f; c.mu.Unlock() }
func (c *fakeConsumerHandle) OnLayersChange(f func(int, int))         { c.mu.Lock(); c.layersCb = f; c.mu.Unlock() }
func (c *fakeConsumerHandle) OnProducerPause(f func())                { c.mu.Lock(); c.producerPauseCb = f; c.mu.Unlock() }
func (c *fakeConsumerHandle) OnProducerResume(f func())               { c.mu.Lock(); c.producerResumeCb = f; c.mu.Unlock() }
func (c *fakeConsumerHandle) OnProducerClose(f func())                { c.mu.Lock(); c.producerCloseCb = f; c.mu.Unlock() }
func (c *fakeConsumerHandle) OnTransportClose(f func())               { c.mu.Lock(); c.transportCloseCb = f; c.mu.Unlock() }
func (c *fakeConsumerHandle) OnClose(f func())                        { c.mu.Lock(); c.closeCb = f; c.mu.Unlock() }
func (c *fakeConsumerHandle) Close() {
	c.mu.Lock()
	c.closed = true
	cb := c.closeCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// fireProducerClose simulates the upstream producer closing, the same way
// mediaengine.Consumer.producerClosed cascades it.
func (c *fakeConsumerHandle) fireProducerClose() {
	c.mu.Lock()
	cb := c.producerCloseCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type fakeDataProducerHandle struct {
	id        domain.DataProducerID
	messageCb func(payload []byte, ppid int)

	// sendFn lets a test observe what the bot relays through its own
	// data-producer (spec.md §4.5).
	sendFn func(payload []byte)
}

func (d *fakeDataProducerHandle) ID() domain.DataProducerID { return d.id }
func (d *fakeDataProducerHandle) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return nil, nil
}
func (d *fakeDataProducerHandle) OnMessage(f func(payload []byte, ppid int)) { d.messageCb = f }
func (d *fakeDataProducerHandle) OnClose(f func())                          {}
func (d *fakeDataProducerHandle) Close()                                    {}
func (d *fakeDataProducerHandle) Send(ctx context.Context, payload []byte, ppid int) error {
	if d.sendFn != nil {
		d.sendFn(payload)
	}
	return nil
}

type fakeDataConsumerHandle struct {
	id domain.DataConsumerID
}

func (d *fakeDataConsumerHandle) ID() domain.DataConsumerID { return d.id }
func (d *fakeDataConsumerHandle) Send(ctx context.Context, payload []byte, ppid int) error {
	return nil
}
func (d *fakeDataConsumerHandle) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return nil, nil
}
func (d *fakeDataConsumerHandle) OnDataProducerClose(f func()) {}
func (d *fakeDataConsumerHandle) OnTransportClose(f func())    {}
func (d *fakeDataConsumerHandle) OnClose(f func())             {}
func (d *fakeDataConsumerHandle) Close()                       {}

type fakeAudioLevelObserver struct {
	mu        sync.Mutex
	producers map[domain.ProducerID]bool
	volumesCb func([]ports.VolumeEntry)
	silenceCb func()
}

func newFakeAudioLevelObserver() *fakeAudioLevelObserver {
	return &fakeAudioLevelObserver{producers: make(map[domain.ProducerID]bool)}
}

func (o *fakeAudioLevelObserver) ID() domain.ObserverID { return "alo" }
func (o *fakeAudioLevelObserver) AddProducer(ctx context.Context, producerID domain.ProducerID) error {
	o.mu.Lock()
	o.producers[producerID] = true
	o.mu.Unlock()
	return nil
}
func (o *fakeAudioLevelObserver) RemoveProducer(ctx context.Context, producerID domain.ProducerID) error {
	o.mu.Lock()
	delete(o.producers, producerID)
	o.mu.Unlock()
	return nil
}
func (o *fakeAudioLevelObserver) OnVolumes(f func([]ports.VolumeEntry)) { o.mu.Lock(); o.volumesCb = f; o.mu.Unlock() }
func (o *fakeAudioLevelObserver) OnSilence(f func())                   { o.mu.Lock(); o.silenceCb = f; o.mu.Unlock() }
func (o *fakeAudioLevelObserver) Close()                               {}

type fakeActiveSpeakerObserver struct {
	mu        sync.Mutex
	producers map[domain.ProducerID]bool
	dominantCb func(domain.ProducerID)
}

func newFakeActiveSpeakerObserver() *fakeActiveSpeakerObserver {
	return &fakeActiveSpeakerObserver{producers: make(map[domain.ProducerID]bool)}
}

func (o *fakeActiveSpeakerObserver) ID() domain.ObserverID { return "aso" }
func (o *fakeActiveSpeakerObserver) AddProducer(ctx context.Context, producerID domain.ProducerID) error {
	o.mu.Lock()
	o.producers[producerID] = true
	o.mu.Unlock()
	return nil
}
func (o *fakeActiveSpeakerObserver) RemoveProducer(ctx context.Context, producerID domain.ProducerID) error {
	o.mu.Lock()
	delete(o.producers, producerID)
	o.mu.Unlock()
	return nil
}
func (o *fakeActiveSpeakerObserver) OnDominantSpeaker(f func(domain.ProducerID)) {
	o.mu.Lock()
	o.dominantCb = f
	o.mu.Unlock()
}
func (o *fakeActiveSpeakerObserver) Close() {}

// fakeWebRTCServer is a minimal ports.WebRTCServer used by scheduler tests
// in place of a real per-worker listener.
type fakeWebRTCServer struct {
	mu      sync.Mutex
	id      domain.WebRTCServerID
	closeCb func()
	closed  bool
}

func newFakeWebRTCServer() *fakeWebRTCServer {
	return &fakeWebRTCServer{id: domain.WebRTCServerID(nextFakeID("webrtcserver"))}
}

func (s *fakeWebRTCServer) ID() domain.WebRTCServerID { return s.id }
func (s *fakeWebRTCServer) OnClose(f func())          { s.mu.Lock(); s.closeCb = f; s.mu.Unlock() }
func (s *fakeWebRTCServer) Close() {
	s.mu.Lock()
	s.closed = true
	cb := s.closeCb
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// newTestRoom builds a Room directly (bypassing the scheduler) against two
// fakeRouters, the way every fan-out/peer-lifecycle test in this package
// wants it: no worker pool, no real engine.
func newTestRoom(consumerReplicas int) *Room {
	producerRouter := newFakeRouter("producer-router")
	consumerRouter := newFakeRouter("consumer-router")
	return newRoom(
		domain.RoomID("room-1"),
		producerRouter, consumerRouter,
		nil, nil,
		nil, nil,
		false, consumerReplicas,
		noopMetrics{}, zap.NewNop().Sugar(),
		func(domain.RoomID) {},
	)
}

// newTestRoomWithObservers is the newTestRoom variant tests exercising
// wireObservers/notifyVolumesLocked/notifySilenceLocked/notifyDominantSpeakerLocked
// need: it wires fake observers in on the producer router, matching how
// the scheduler always creates them against the producer-router.
func newTestRoomWithObservers(consumerReplicas int) (*Room, *fakeAudioLevelObserver, *fakeActiveSpeakerObserver) {
	producerRouter := newFakeRouter("producer-router")
	consumerRouter := newFakeRouter("consumer-router")
	alo := newFakeAudioLevelObserver()
	aso := newFakeActiveSpeakerObserver()
	r := newRoom(
		domain.RoomID("room-1"),
		producerRouter, consumerRouter,
		nil, nil,
		alo, aso,
		false, consumerReplicas,
		noopMetrics{}, zap.NewNop().Sugar(),
		func(domain.RoomID) {},
	)
	return r, alo, aso
}
