package queue

import (
	"context"
	"sync"
)

// Queue delivers job ids to workers at least once, with no ordering
// guarantee. A job is acknowledged only after its terminal state is
// persisted; Nack puts it back for re-delivery.
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	Dequeue(ctx context.Context) (string, error)
	Ack(jobID string)
	Nack(jobID string)
}

// MemoryQueue is the in-process Queue used by the single-binary deployment.
// Dequeued ids stay in the in-flight set until Ack, so an unacknowledged job
// is never lost silently: Nack re-delivers it.
type MemoryQueue struct {
	ch chan string

	mu       sync.Mutex
	inflight map[string]struct{}
	overflow []string
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{
		ch:       make(chan string, size),
		inflight: make(map[string]struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (string, error) {
	q.mu.Lock()
	if len(q.overflow) > 0 {
		jobID := q.overflow[0]
		q.overflow = q.overflow[1:]
		q.inflight[jobID] = struct{}{}
		q.mu.Unlock()
		return jobID, nil
	}
	q.mu.Unlock()

	select {
	case jobID := <-q.ch:
		q.mu.Lock()
		q.inflight[jobID] = struct{}{}
		q.mu.Unlock()
		return jobID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *MemoryQueue) Ack(jobID string) {
	q.mu.Lock()
	delete(q.inflight, jobID)
	q.mu.Unlock()
}

// Nack returns an in-flight job to the queue for re-delivery.
func (q *MemoryQueue) Nack(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[jobID]; !ok {
		return
	}
	delete(q.inflight, jobID)

	select {
	case q.ch <- jobID:
	default:
		// Channel full; park the id, Dequeue drains overflow first.
		q.overflow = append(q.overflow, jobID)
	}
}

// InFlight returns how many delivered jobs await acknowledgment.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}
