// Package distributed holds ports.EventBus implementations: an in-process
// broadcaster for single-instance deployments, and a Redis pub/sub
// republisher for multi-instance ones, adapted from the teacher's
// Redis-backed coordination bus onto spec.md's narrower room-lifecycle
// event vocabulary (room created/closed, worker died, throttle changed)
// instead of the teacher's peer/stream/mesh events.
package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LocalEventBus fans events to in-process subscribers only. It is the
// default wiring for a single sfu instance.
type LocalEventBus struct {
	mu       sync.RWMutex
	handlers []func(ports.Event)
}

func NewLocalEventBus() *LocalEventBus { return &LocalEventBus{} }

func (b *LocalEventBus) Publish(ctx context.Context, event ports.Event) error {
	b.mu.RLock()
	handlers := make([]func(ports.Event), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *LocalEventBus) Subscribe(ctx context.Context, handler func(ports.Event)) error {
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
	return nil
}

func (b *LocalEventBus) Close() error { return nil }

var _ ports.EventBus = (*LocalEventBus)(nil)

// wireEvent is the JSON shape published on the Redis channel; InstanceID
// lets a subscriber drop the echo of its own publishes.
type wireEvent struct {
	Type       ports.EventType `json:"type"`
	RoomID     domain.RoomID   `json:"room_id,omitempty"`
	InstanceID string          `json:"instance_id"`
}

// RedisEventBus wraps a LocalEventBus for same-process delivery and
// republishes every event on a shared Redis channel so sibling sfu
// instances (e.g. behind a load balancer) learn about each other's room
// lifecycle without a shared database.
type RedisEventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
	local      *LocalEventBus

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewRedisEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *RedisEventBus {
	return &RedisEventBus{
		client:     client,
		instanceID: instanceID,
		channel:    "sfucore:room-events",
		logger:     logger,
		local:      NewLocalEventBus(),
	}
}

func (b *RedisEventBus) Publish(ctx context.Context, event ports.Event) error {
	if err := b.local.Publish(ctx, event); err != nil {
		return err
	}

	data, err := json.Marshal(wireEvent{Type: event.Type, RoomID: event.RoomID, InstanceID: b.instanceID})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisEventBus) Subscribe(ctx context.Context, handler func(ports.Event)) error {
	_ = b.local.Subscribe(ctx, handler)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		b.pubsub = b.client.Subscribe(ctx, b.channel)
		go b.relay(ctx)
	}
	return nil
}

func (b *RedisEventBus) relay(ctx context.Context) {
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var we wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
				b.logger.Warnw("failed to unmarshal room event", "error", err)
				continue
			}
			if we.InstanceID == b.instanceID {
				continue
			}
			_ = b.local.Publish(ctx, ports.Event{Type: we.Type, RoomID: we.RoomID})
		}
	}
}

func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}

var _ ports.EventBus = (*RedisEventBus)(nil)
