package ports

import (
	"context"

	"sfucore/internal/core/domain"
)

// RoomScheduler is the serialized FIFO room-creation scheduler (spec.md
// §4.1): two concurrent GetOrCreate calls for the same id observe
// at-most-one creation.
type RoomScheduler interface {
	GetOrCreate(ctx context.Context, roomID domain.RoomID, consumerReplicas int, usePipeTransports bool) (RoomHandle, error)
	Stop()
}

// RoomHandle is the supervisor-facing view of a running room; the fan-out
// and peer-lifecycle logic lives behind it (internal/core/services.Room
// implements it).
type RoomHandle interface {
	ID() domain.RoomID
	Closed() bool
}

// ThrottleCoordinator serializes apply/stop of the process-wide network
// shaper behind a shared-secret gate (spec.md §4.6).
type ThrottleCoordinator interface {
	Apply(ctx context.Context, opts domain.ThrottleOptions) error
	Stop(ctx context.Context, secret string) error
	// RoomClosed tells the coordinator a room closed so it can issue an
	// implicit stop if that room was the one holding the shaper enabled.
	RoomClosed(ctx context.Context, roomID domain.RoomID)
	State() domain.ThrottleState
}

// EventBus fans server-level lifecycle events (worker death, room
// creation/closure) to interested listeners. The in-process
// implementation calls each subscribed handler synchronously inside
// Publish; a Redis-backed implementation additionally republishes to
// other instances.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, handler func(Event)) error
	Close() error
}

type EventType string

const (
	EventRoomCreated EventType = "room.created"
	EventRoomClosed  EventType = "room.closed"
	EventWorkerDied  EventType = "worker.died"
	EventThrottleChanged EventType = "throttle.changed"
)

type Event struct {
	Type   EventType
	RoomID domain.RoomID
}
