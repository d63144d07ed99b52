package services

import (
	"sync"

	"sfucore/internal/core/domain"
)

// serialQueue is a mutex-protected FIFO task queue drained by exactly one
// goroutine: each task runs to completion before the next starts
// (spec.md §4.1 room-creation scheduler, §4.6 throttle coordinator).
// Adapted from the batch-and-flush shape of pkg/batch.Batcher, trading its
// size/interval-triggered flush for strict one-at-a-time FIFO draining.
type serialQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	stopped bool
}

func newSerialQueue() *serialQueue {
	q := &serialQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues task. Returns domain.ErrSchedulerStopped if the queue has
// been stopped (spec.md: "on scheduler stop, enqueued tasks are rejected
// with a shutdown error").
func (q *serialQueue) push(task func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return domain.ErrSchedulerStopped
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return nil
}

// run drains the queue until stop() is called and it is empty. Call this
// from exactly one goroutine.
func (q *serialQueue) run() {
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 && q.stopped {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}

func (q *serialQueue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
