package domain

// WorkerID identifies one engine worker process/goroutine-group.
type WorkerID string

// WorkerSlot is one entry in the server's ordered worker sequence
// (spec.md §3 "Worker Slot" / §4.1).
type WorkerSlot struct {
	Index int
	ID    WorkerID
	Port  int
}
