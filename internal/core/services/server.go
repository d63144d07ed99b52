package services

import (
	"context"
	"fmt"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"go.uber.org/zap"
)

// Server is the process-wide supervisor (spec.md §2, §4.8): it owns the
// worker pool, the room scheduler and the throttle coordinator, and
// cascades a fatal worker death into closing every room.
type Server struct {
	pool      *WorkerPool
	scheduler *Scheduler
	throttle  *ThrottleCoordinator
	eventBus  ports.EventBus
	logger    *zap.SugaredLogger
}

func NewServer(pool *WorkerPool, scheduler *Scheduler, throttle *ThrottleCoordinator, eventBus ports.EventBus, logger *zap.SugaredLogger) *Server {
	s := &Server{pool: pool, scheduler: scheduler, throttle: throttle, eventBus: eventBus, logger: logger}
	scheduler.OnRoomClosed = func(roomID domain.RoomID) {
		throttle.RoomClosed(context.Background(), roomID)
	}
	return s
}

// OnWorkerDied is the callback NewWorkerPool invokes at most once per
// worker. Any single worker dying is treated as fatal to the whole
// server: every room is closed, new room creation is stopped, and the
// event is published for anything listening (monitoring, orchestration).
func (s *Server) OnWorkerDied(workerID domain.WorkerID, err error) {
	s.logger.Errorw("worker died, closing all rooms", "worker_id", workerID, "error", err)
	if s.eventBus != nil {
		_ = s.eventBus.Publish(context.Background(), ports.Event{Type: ports.EventWorkerDied})
	}
	s.scheduler.Stop()
	s.scheduler.CloseAll()
}

// GetOrCreateRoom is the entry point both the message-channel handler and
// the broadcaster HTTP handler use to resolve a room id to a live Room.
func (s *Server) GetOrCreateRoom(ctx context.Context, roomID domain.RoomID, consumerReplicas int, usePipeTransports bool) (*Room, error) {
	handle, err := s.scheduler.GetOrCreate(ctx, roomID, consumerReplicas, usePipeTransports)
	if err != nil {
		return nil, err
	}
	room, ok := handle.(*Room)
	if !ok {
		return nil, fmt.Errorf("unexpected room handle type %T", handle)
	}
	return room, nil
}

func (s *Server) Throttle() *ThrottleCoordinator { return s.throttle }

// Shutdown stops accepting new rooms, closes everything running and tears
// down the worker pool.
func (s *Server) Shutdown() {
	s.scheduler.Stop()
	s.scheduler.CloseAll()
	s.pool.CloseAll()
}
