package services

import (
	"context"
	"sync"
	"testing"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, numWorkers int) (*Scheduler, *fakeEngine) {
	engine := &fakeEngine{}
	pool, err := NewWorkerPool(context.Background(), engine, numWorkers, 41000, "warn", func(domain.WorkerID, error) {}, zap.NewNop().Sugar())
	assert.NoError(t, err)
	return NewScheduler(pool, nil, nil, nil, zap.NewNop().Sugar()), engine
}

// TestScheduler_GetOrCreateIsExactlyOncePerID exercises spec.md §4.1
// scenario S1: two concurrent callers for the same room id observe the
// same Room instance, and only one set of router-creation calls is made.
func TestScheduler_GetOrCreateIsExactlyOncePerID(t *testing.T) {
	s, _ := newTestScheduler(t, 1)

	var wg sync.WaitGroup
	rooms := make([]ports.RoomHandle, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i], errs[i] = s.GetOrCreate(context.Background(), domain.RoomID("R"), 0, false)
		}(i)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Same(t, rooms[0], rooms[1])

	worker := s.pool.engine[s.pool.slots[0].ID].(*fakeWorker)
	assert.Equal(t, 1, worker.routersCreated)
}

// TestScheduler_PipeModeRequiresAtLeastTwoWorkers covers the first half of
// S2: numWorkers=1 fails pipe-mode room creation with the pipe-mode error.
func TestScheduler_PipeModeRequiresAtLeastTwoWorkers(t *testing.T) {
	s, _ := newTestScheduler(t, 1)

	_, err := s.GetOrCreate(context.Background(), domain.RoomID("R"), 0, true)
	assert.ErrorIs(t, err, domain.ErrPipeModeNeedsWorkers)
}

// TestScheduler_PipeModeWithTwoWorkersGetsDistinctRouters covers the
// second half of S2: numWorkers=2 succeeds and producer/consumer routers
// are distinct engine objects.
func TestScheduler_PipeModeWithTwoWorkersGetsDistinctRouters(t *testing.T) {
	s, _ := newTestScheduler(t, 2)

	handle, err := s.GetOrCreate(context.Background(), domain.RoomID("R"), 0, true)
	assert.NoError(t, err)

	room, ok := handle.(*Room)
	assert.True(t, ok)
	assert.NotSame(t, room.producerRouter, room.consumerRouter)
}

// TestScheduler_GetOrCreateRebuildsAfterRoomCloses checks that a closed
// room doesn't poison the pending table: a later call for the same id
// builds a fresh room (spec.md §3 I2, roomEmptied).
func TestScheduler_GetOrCreateRebuildsAfterRoomCloses(t *testing.T) {
	s, _ := newTestScheduler(t, 1)

	handle, err := s.GetOrCreate(context.Background(), domain.RoomID("R"), 0, false)
	assert.NoError(t, err)
	room := handle.(*Room)
	room.enqueueSync(room.closeLocked)

	handle2, err := s.GetOrCreate(context.Background(), domain.RoomID("R"), 0, false)
	assert.NoError(t, err)
	assert.NotSame(t, handle, handle2)
}
