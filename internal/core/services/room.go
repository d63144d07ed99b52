package services

import (
	"time"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"go.uber.org/zap"
)

// joinTimeout is the fixed window spec.md §3 P3 gives a peer to call join
// after message-channel attachment. A var, not a const, so tests can
// shrink it instead of sleeping for the full 10s.
var joinTimeout = 10 * time.Second

// roomPeer bundles the domain peer with its message channel and join
// timer; only the room's actor goroutine touches it.
type roomPeer struct {
	peer      *domain.Peer
	channel   ports.PeerChannel
	joinTimer *time.Timer
}

type roomBroadcaster struct {
	peer *domain.BroadcasterPeer
}

// Room is the per-room actor: every method that mutates room state
// schedules a closure onto cmdCh and the single goroutine started by run()
// executes closures one at a time, giving the "single logical event loop
// per room" guarantee spec.md §5 asks for.
type Room struct {
	id domain.RoomID

	producerRouter ports.Router
	consumerRouter ports.Router
	producerServer ports.WebRTCServer
	consumerServer ports.WebRTCServer

	audioLevelObserver    ports.AudioLevelObserver
	activeSpeakerObserver ports.ActiveSpeakerObserver

	observedProducers map[domain.ProducerID]*domain.Producer

	joiningPeers map[domain.PeerID]*roomPeer
	joinedPeers  map[domain.PeerID]*roomPeer

	joiningBroadcasters map[domain.PeerID]*roomBroadcaster
	broadcasters        map[domain.PeerID]*roomBroadcaster

	transportHandles    map[transportKey]ports.Transport
	consumerHandles     map[domain.ConsumerID]ports.ConsumerHandle
	producerHandles     map[domain.ProducerID]ports.ProducerHandle
	dataProducerHandles map[domain.DataProducerID]ports.DataProducerHandle
	dataConsumerHandles map[domain.DataConsumerID]ports.DataConsumerHandle

	bot *bot

	pipeMode         bool
	consumerReplicas int
	createdAt        time.Time
	closed           bool

	cmdCh  chan func()
	stopCh chan struct{}

	onEmptied func(domain.RoomID) // called once, after the room closes itself

	metrics roomMetrics
	logger  *zap.SugaredLogger
}

func newRoom(
	id domain.RoomID,
	producerRouter, consumerRouter ports.Router,
	producerServer, consumerServer ports.WebRTCServer,
	audioLevelObserver ports.AudioLevelObserver,
	activeSpeakerObserver ports.ActiveSpeakerObserver,
	pipeMode bool,
	consumerReplicas int,
	metrics roomMetrics,
	logger *zap.SugaredLogger,
	onEmptied func(domain.RoomID),
) *Room {
	r := &Room{
		id:                    id,
		producerRouter:        producerRouter,
		consumerRouter:        consumerRouter,
		producerServer:        producerServer,
		consumerServer:        consumerServer,
		audioLevelObserver:    audioLevelObserver,
		activeSpeakerObserver: activeSpeakerObserver,
		observedProducers:     make(map[domain.ProducerID]*domain.Producer),
		joiningPeers:          make(map[domain.PeerID]*roomPeer),
		joinedPeers:           make(map[domain.PeerID]*roomPeer),
		joiningBroadcasters:   make(map[domain.PeerID]*roomBroadcaster),
		broadcasters:          make(map[domain.PeerID]*roomBroadcaster),
		transportHandles:      make(map[transportKey]ports.Transport),
		consumerHandles:       make(map[domain.ConsumerID]ports.ConsumerHandle),
		producerHandles:       make(map[domain.ProducerID]ports.ProducerHandle),
		dataProducerHandles:   make(map[domain.DataProducerID]ports.DataProducerHandle),
		dataConsumerHandles:   make(map[domain.DataConsumerID]ports.DataConsumerHandle),
		pipeMode:              pipeMode,
		consumerReplicas:      consumerReplicas,
		createdAt:             time.Now(),
		cmdCh:                 make(chan func()),
		stopCh:                make(chan struct{}),
		metrics:               metrics,
		logger:                logger.With("room_id", id),
		onEmptied:             onEmptied,
	}
	r.bot = newBot(r)
	go r.run()
	r.wireMediaServerClose()
	r.wireRouterClose()
	r.wireObservers()
	return r
}

func (r *Room) run() {
	for {
		select {
		case f := <-r.cmdCh:
			f()
		case <-r.stopCh:
			return
		}
	}
}

// enqueue schedules f on the room's actor goroutine without waiting; used
// by engine observer callbacks that fire from arbitrary goroutines.
func (r *Room) enqueue(f func()) {
	select {
	case r.cmdCh <- f:
	case <-r.stopCh:
	}
}

// enqueueSync schedules f and blocks until it has run (or the room has
// stopped accepting work).
func (r *Room) enqueueSync(f func()) {
	done := make(chan struct{})
	r.enqueue(func() {
		f()
		close(done)
	})
	select {
	case <-done:
	case <-r.stopCh:
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) Closed() bool {
	var closed bool
	r.enqueueSync(func() { closed = r.closed })
	return closed
}

// live implements spec.md §3 I2: the room is live iff it has at least one
// joining-or-joined peer. Must be called from the actor goroutine.
func (r *Room) live() bool {
	return len(r.joiningPeers) > 0 || len(r.joinedPeers) > 0
}

// checkEmpty closes the room if it has gone empty; called from the actor
// goroutine after every peer removal (spec.md §3 I2 "on the next scheduler
// turn"). We run it synchronously rather than deferring to a separate
// tick since all room mutation is already serialized to this goroutine.
func (r *Room) checkEmpty() {
	if !r.closed && !r.live() {
		r.closeLocked()
	}
}

// closeLocked tears the room down. Must be called from the actor
// goroutine (I3: once closed, no new peer may enter; I4: both routers
// close iff the room closes).
func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true

	for id, jp := range r.joiningPeers {
		r.closePeerLocked(jp, false)
		delete(r.joiningPeers, id)
	}
	for id, jp := range r.joinedPeers {
		r.closePeerLocked(jp, true)
		delete(r.joinedPeers, id)
	}
	for id, b := range r.joiningBroadcasters {
		r.closeBroadcasterLocked(b)
		delete(r.joiningBroadcasters, id)
	}
	for id, b := range r.broadcasters {
		r.closeBroadcasterLocked(b)
		delete(r.broadcasters, id)
	}

	if r.audioLevelObserver != nil {
		r.audioLevelObserver.Close()
	}
	if r.activeSpeakerObserver != nil {
		r.activeSpeakerObserver.Close()
	}

	r.producerRouter.Close()
	if r.consumerRouter != r.producerRouter {
		r.consumerRouter.Close()
	}

	if r.metrics != nil {
		r.metrics.RoomClosed(r.id)
	}
	r.logger.Infow("room closed")

	close(r.stopCh)

	if r.onEmptied != nil {
		r.onEmptied(r.id)
	}
}

// wireRouterClose cascades a router closing (worker death or explicit
// close) into a room close (spec.md §4.8 "Room's producer-router or
// consumer-router closes -> Room closes").
func (r *Room) wireRouterClose() {
	r.producerRouter.OnClose(func() { r.enqueue(r.closeLocked) })
	if r.consumerRouter != r.producerRouter {
		r.consumerRouter.OnClose(func() { r.enqueue(r.closeLocked) })
	}
}

// wireMediaServerClose closes the room if either WebRTC server closes.
// This fixes the source's copy-paste bug (spec.md Open Question 2: the
// original wires the consumer-server's close handler to the
// producer-server's close event); here both are wired explicitly and
// independently.
func (r *Room) wireMediaServerClose() {
	if r.producerServer != nil {
		r.producerServer.OnClose(func() { r.enqueue(r.closeLocked) })
	}
	if r.consumerServer != nil && r.consumerServer != r.producerServer {
		r.consumerServer.OnClose(func() { r.enqueue(r.closeLocked) })
	}
}
