package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeEngine and fakeWorker give WorkerPool real Worker values to hand out
// without touching any concrete media engine implementation.
type fakeEngine struct {
	nextID  int
	workers []*fakeWorker
}

func (e *fakeEngine) CreateWorker(ctx context.Context, opts ports.WorkerOptions) (ports.Worker, error) {
	e.nextID++
	w := &fakeWorker{id: domain.WorkerID(fmt.Sprintf("worker-%d", e.nextID))}
	e.workers = append(e.workers, w)
	return w, nil
}

type fakeWorker struct {
	id     domain.WorkerID
	died   func(error)
	closed bool

	// createRouterErr/createServerErr let scheduler tests exercise the
	// rollback paths in Scheduler.createRoom without a real engine.
	createRouterErr error
	createServerErr error
	routersCreated   int
}

func (w *fakeWorker) ID() domain.WorkerID { return w.id }
func (w *fakeWorker) CreateRouter(ctx context.Context, opts ports.RouterOptions) (ports.Router, error) {
	if w.createRouterErr != nil {
		return nil, w.createRouterErr
	}
	w.routersCreated++
	return newFakeRouter(fmt.Sprintf("%s-router-%d", w.id, w.routersCreated)), nil
}
func (w *fakeWorker) CreateWebRTCServer(ctx context.Context, opts ports.WebRTCServerOptions) (ports.WebRTCServer, error) {
	if w.createServerErr != nil {
		return nil, w.createServerErr
	}
	return newFakeWebRTCServer(), nil
}
func (w *fakeWorker) OnDied(fn func(error)) { w.died = fn }
func (w *fakeWorker) Close()                { w.closed = true }

func TestNewWorkerPool_RejectsNonPositiveWorkerCount(t *testing.T) {
	_, err := NewWorkerPool(context.Background(), &fakeEngine{}, 0, 41000, "warn", func(domain.WorkerID, error) {}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestNewWorkerPool_SpawnsOneWorkerPerSlot(t *testing.T) {
	engine := &fakeEngine{}
	pool, err := NewWorkerPool(context.Background(), engine, 3, 41000, "warn", func(domain.WorkerID, error) {}, zap.NewNop().Sugar())
	assert.NoError(t, err)
	assert.Equal(t, 3, pool.Size())
	assert.Len(t, engine.workers, 3)
}

func TestWorkerPool_NextRoundRobinsAndWraps(t *testing.T) {
	engine := &fakeEngine{}
	pool, err := NewWorkerPool(context.Background(), engine, 2, 41000, "warn", func(domain.WorkerID, error) {}, zap.NewNop().Sugar())
	assert.NoError(t, err)

	slot1, _ := pool.Next()
	slot2, _ := pool.Next()
	slot3, _ := pool.Next()

	assert.NotEqual(t, slot1.ID, slot2.ID)
	assert.Equal(t, slot1.ID, slot3.ID)
}

func TestWorkerPool_NextPairRequiresAtLeastTwoWorkers(t *testing.T) {
	engine := &fakeEngine{}
	pool, err := NewWorkerPool(context.Background(), engine, 1, 41000, "warn", func(domain.WorkerID, error) {}, zap.NewNop().Sugar())
	assert.NoError(t, err)

	_, _, _, _, err = pool.NextPair()
	assert.Error(t, err)
}

func TestWorkerPool_NextPairReturnsDistinctSlots(t *testing.T) {
	engine := &fakeEngine{}
	pool, err := NewWorkerPool(context.Background(), engine, 2, 41000, "warn", func(domain.WorkerID, error) {}, zap.NewNop().Sugar())
	assert.NoError(t, err)

	slotA, _, slotB, _, err := pool.NextPair()
	assert.NoError(t, err)
	assert.NotEqual(t, slotA.ID, slotB.ID)
}

func TestWorkerPool_OnDiedCallbackFires(t *testing.T) {
	engine := &fakeEngine{}
	var diedID domain.WorkerID
	var diedErr error
	pool, err := NewWorkerPool(context.Background(), engine, 1, 41000, "warn", func(id domain.WorkerID, e error) {
		diedID = id
		diedErr = e
	}, zap.NewNop().Sugar())
	assert.NoError(t, err)

	boom := errors.New("worker process exited")
	engine.workers[0].died(boom)

	assert.Equal(t, pool.slots[0].ID, diedID)
	assert.ErrorIs(t, diedErr, boom)
}

func TestWorkerPool_CloseAllClosesEveryWorker(t *testing.T) {
	engine := &fakeEngine{}
	pool, err := NewWorkerPool(context.Background(), engine, 2, 41000, "warn", func(domain.WorkerID, error) {}, zap.NewNop().Sugar())
	assert.NoError(t, err)

	pool.CloseAll()

	for _, w := range engine.workers {
		assert.True(t, w.closed)
	}
}
