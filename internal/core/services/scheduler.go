package services

import (
	"context"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"go.uber.org/zap"
)

// roomEntry is the pending-or-ready state for one room id; callers racing
// on the same id all wait on ready, but only the first one enqueues the
// creation task (spec.md §4.1 scenario S1: exactly-once creation).
type roomEntry struct {
	ready chan struct{}
	room  *Room
	err   error
}

// Scheduler implements ports.RoomScheduler: a FIFO-serialized creator of
// rooms, each handed a worker (or worker pair, for pipe-mode) from the
// fixed WorkerPool. Grounded on the single-goroutine drain loop of
// pkg/batch.Batcher, generalized from size/interval-triggered flush to
// strict one-at-a-time FIFO (see task_queue.go).
type Scheduler struct {
	mu      sync.Mutex
	pending map[domain.RoomID]*roomEntry

	queue  *serialQueue
	pool   *WorkerPool
	codecs []ports.MediaCodec

	eventBus ports.EventBus
	metrics  roomMetrics
	logger   *zap.SugaredLogger

	// OnRoomClosed is an optional extra hook the server supervisor can set
	// to learn about room closure (e.g. to drop it from a directory).
	OnRoomClosed func(domain.RoomID)
}

func NewScheduler(pool *WorkerPool, codecs []ports.MediaCodec, eventBus ports.EventBus, metrics roomMetrics, logger *zap.SugaredLogger) *Scheduler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	s := &Scheduler{
		pending:  make(map[domain.RoomID]*roomEntry),
		queue:    newSerialQueue(),
		pool:     pool,
		codecs:   codecs,
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger,
	}
	go s.queue.run()
	return s
}

// GetOrCreate implements spec.md §4.1: the first caller for roomID builds
// it (enqueued behind every other pending build), every caller — first
// included — blocks on the same outcome.
func (s *Scheduler) GetOrCreate(ctx context.Context, roomID domain.RoomID, consumerReplicas int, usePipeTransports bool) (ports.RoomHandle, error) {
	s.mu.Lock()
	entry, exists := s.pending[roomID]
	if exists {
		select {
		case <-entry.ready:
			if entry.room == nil || entry.room.Closed() {
				exists = false // stale entry for a now-closed room, fall through to rebuild
			}
		default:
			// Build still in flight; wait for it below.
		}
	}
	if exists {
		s.mu.Unlock()
		select {
		case <-entry.ready:
			return entry.room, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	entry = &roomEntry{ready: make(chan struct{})}
	s.pending[roomID] = entry
	s.mu.Unlock()

	err := s.queue.push(func() {
		room, buildErr := s.createRoom(ctx, roomID, consumerReplicas, usePipeTransports)
		entry.room, entry.err = room, buildErr
		close(entry.ready)
	})
	if err != nil {
		entry.err = err
		close(entry.ready)
		s.mu.Lock()
		delete(s.pending, roomID)
		s.mu.Unlock()
		return nil, err
	}

	select {
	case <-entry.ready:
		return entry.room, entry.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// createRoom runs on the scheduler's single queue goroutine: worker
// assignment, router/server/observer creation, pipe-mode wiring and bot
// startup all happen here, in order, before the room is handed to any
// caller (spec.md §4.1).
func (s *Scheduler) createRoom(ctx context.Context, roomID domain.RoomID, consumerReplicas int, usePipeTransports bool) (*Room, error) {
	var (
		producerSlot, consumerSlot domain.WorkerSlot
		producerWorker, consumerWorker ports.Worker
		err error
	)

	if usePipeTransports {
		producerSlot, producerWorker, consumerSlot, consumerWorker, err = s.pool.NextPair()
		if err != nil {
			return nil, err
		}
	} else {
		producerSlot, producerWorker = s.pool.Next()
		consumerSlot, consumerWorker = producerSlot, producerWorker
	}

	producerRouter, err := producerWorker.CreateRouter(ctx, ports.RouterOptions{MediaCodecs: s.codecs})
	if err != nil {
		return nil, err
	}

	consumerRouter := producerRouter
	if usePipeTransports {
		consumerRouter, err = consumerWorker.CreateRouter(ctx, ports.RouterOptions{MediaCodecs: s.codecs})
		if err != nil {
			producerRouter.Close()
			return nil, err
		}
	}

	producerServer, err := producerWorker.CreateWebRTCServer(ctx, ports.WebRTCServerOptions{ListenPort: producerSlot.Port})
	if err != nil {
		producerRouter.Close()
		if usePipeTransports {
			consumerRouter.Close()
		}
		return nil, err
	}

	consumerServer := producerServer
	if usePipeTransports {
		consumerServer, err = consumerWorker.CreateWebRTCServer(ctx, ports.WebRTCServerOptions{ListenPort: consumerSlot.Port})
		if err != nil {
			producerServer.Close()
			producerRouter.Close()
			consumerRouter.Close()
			return nil, err
		}
	}

	// Observers wire onto the producer-router: they watch producers, which
	// always live on the producer-router even in pipe-mode, where the
	// consumer-router only exists for capability negotiation and holds no
	// producers of its own (spec.md §9 Open Question 1).
	audioLevelObserver, err := producerRouter.CreateAudioLevelObserver(ctx)
	if err != nil {
		s.logger.Warnw("audio level observer unavailable", "room_id", roomID, "error", err)
	}
	activeSpeakerObserver, err := producerRouter.CreateActiveSpeakerObserver(ctx)
	if err != nil {
		s.logger.Warnw("active speaker observer unavailable", "room_id", roomID, "error", err)
	}

	room := newRoom(
		roomID,
		producerRouter, consumerRouter,
		producerServer, consumerServer,
		audioLevelObserver, activeSpeakerObserver,
		usePipeTransports, consumerReplicas,
		s.metrics, s.logger,
		func(id domain.RoomID) { s.roomEmptied(ctx, id) },
	)

	if err := room.bot.start(ctx, producerRouter); err != nil {
		s.logger.Warnw("bot relay unavailable", "room_id", roomID, "error", err)
	}

	s.metrics.RoomCreated(roomID)
	if s.eventBus != nil {
		_ = s.eventBus.Publish(ctx, ports.Event{Type: ports.EventRoomCreated, RoomID: roomID})
	}

	return room, nil
}

// roomEmptied runs after a room closes itself (spec.md §3 I2): it drops
// the room from the pending/ready table so a later GetOrCreate for the
// same id builds a fresh room, publishes room.closed, and defers to the
// server supervisor's own hook, if any.
func (s *Scheduler) roomEmptied(ctx context.Context, roomID domain.RoomID) {
	s.mu.Lock()
	delete(s.pending, roomID)
	s.mu.Unlock()

	if s.eventBus != nil {
		_ = s.eventBus.Publish(ctx, ports.Event{Type: ports.EventRoomClosed, RoomID: roomID})
	}
	if s.OnRoomClosed != nil {
		s.OnRoomClosed(roomID)
	}
}

// Stop halts the creation queue; rooms already created keep running until
// individually closed.
func (s *Scheduler) Stop() {
	s.queue.stop()
}

// CloseAll closes every room that has finished building (spec.md §4.8: a
// worker death is fatal to the whole server, not just the rooms it
// happened to host).
func (s *Scheduler) CloseAll() {
	s.mu.Lock()
	entries := make([]*roomEntry, 0, len(s.pending))
	for _, e := range s.pending {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		<-e.ready
		if e.room != nil {
			e.room.enqueueSync(e.room.closeLocked)
		}
	}
}
