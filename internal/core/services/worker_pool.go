package services

import (
	"context"
	"fmt"
	"sync"

	"sfucore/internal/core/domain"
	"sfucore/internal/core/ports"

	"go.uber.org/zap"
)

// WorkerPool is the fixed pool of engine workers launched at boot
// (spec.md §4.1). Hand-out is round-robin with a single rotating cursor;
// the cursor and the slot slice are only ever touched from the scheduler
// goroutine that owns this pool, so no lock is required in steady state —
// we still guard with a mutex because workers can also be inspected from
// health-check/metrics goroutines.
type WorkerPool struct {
	mu     sync.Mutex
	slots  []domain.WorkerSlot
	engine map[domain.WorkerID]ports.Worker
	cursor int

	logger *zap.SugaredLogger
}

// NewWorkerPool spawns numWorkers engine workers, each listening on
// basePort+index (spec.md §4.1 "Each slot gets a distinct listening port
// derived by incrementing the base port by the slot index").
func NewWorkerPool(ctx context.Context, engine ports.Engine, numWorkers int, basePort int, logLevel string, onDied func(domain.WorkerID, error), logger *zap.SugaredLogger) (*WorkerPool, error) {
	if numWorkers <= 0 {
		return nil, fmt.Errorf("numWorkers must be > 0")
	}

	p := &WorkerPool{
		slots:  make([]domain.WorkerSlot, 0, numWorkers),
		engine: make(map[domain.WorkerID]ports.Worker, numWorkers),
		logger: logger,
	}

	for i := 0; i < numWorkers; i++ {
		port := basePort + i
		w, err := engine.CreateWorker(ctx, ports.WorkerOptions{
			LogLevel: logLevel,
			Port:     port,
		})
		if err != nil {
			return nil, fmt.Errorf("create worker %d: %w", i, err)
		}
		id := w.ID()
		w.OnDied(func(err error) {
			logger.Errorw("engine worker died", "worker_id", id, "error", err)
			onDied(id, err)
		})

		p.slots = append(p.slots, domain.WorkerSlot{Index: i, ID: id, Port: port})
		p.engine[id] = w
	}

	return p, nil
}

// Next returns the next worker slot, advancing and wrapping the cursor.
func (p *WorkerPool) Next() (domain.WorkerSlot, ports.Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot := p.slots[p.cursor]
	w := p.engine[slot.ID]
	p.cursor = (p.cursor + 1) % len(p.slots)
	return slot, w
}

// NextPair draws two consecutive cursor values for pipe-mode room creation
// (spec.md §4.1). Requires len(slots) >= 2.
func (p *WorkerPool) NextPair() (domain.WorkerSlot, ports.Worker, domain.WorkerSlot, ports.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.slots) < 2 {
		return domain.WorkerSlot{}, nil, domain.WorkerSlot{}, nil, domain.ErrPipeModeNeedsWorkers
	}

	slotA := p.slots[p.cursor]
	wA := p.engine[slotA.ID]
	p.cursor = (p.cursor + 1) % len(p.slots)

	slotB := p.slots[p.cursor]
	wB := p.engine[slotB.ID]
	p.cursor = (p.cursor + 1) % len(p.slots)

	return slotA, wA, slotB, wB, nil
}

// Size returns the number of workers in the pool.
func (p *WorkerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// CloseAll closes every worker in the pool (spec.md §4.8 worker death /
// server shutdown cascades).
func (p *WorkerPool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.engine {
		w.Close()
	}
}
