package distributed

import (
	"context"
	"sync"
	"testing"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"github.com/stretchr/testify/assert"
)

func TestLocalEventBus_FansOutToAllSubscribers(t *testing.T) {
	bus := NewLocalEventBus()

	var mu sync.Mutex
	var received1, received2 []ports.Event

	assert.NoError(t, bus.Subscribe(context.Background(), func(e ports.Event) {
		mu.Lock()
		received1 = append(received1, e)
		mu.Unlock()
	}))
	assert.NoError(t, bus.Subscribe(context.Background(), func(e ports.Event) {
		mu.Lock()
		received2 = append(received2, e)
		mu.Unlock()
	}))

	event := ports.Event{Type: ports.EventRoomCreated, RoomID: domain.RoomID("room-1")}
	assert.NoError(t, bus.Publish(context.Background(), event))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ports.Event{event}, received1)
	assert.Equal(t, []ports.Event{event}, received2)
}

func TestLocalEventBus_PublishBeforeSubscribeIsDropped(t *testing.T) {
	bus := NewLocalEventBus()
	assert.NoError(t, bus.Publish(context.Background(), ports.Event{Type: ports.EventWorkerDied}))

	var got []ports.Event
	assert.NoError(t, bus.Subscribe(context.Background(), func(e ports.Event) {
		got = append(got, e)
	}))
	assert.Empty(t, got)
}

func TestLocalEventBus_Close_IsNoOp(t *testing.T) {
	bus := NewLocalEventBus()
	assert.NoError(t, bus.Close())
}
