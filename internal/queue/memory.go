package queue

import (
	"context"
	"sync"
	"time"

	"github.com/scale-search/scalesearch/internal/db"
	"github.com/scale-search/scalesearch/internal/domain"
)

// MemoryQueue is an in-process Queue for tests and single-node runs.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan *domain.StageMessage
}

// NewMemoryQueue creates an in-memory stage message queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{queues: make(map[string]chan *domain.StageMessage)}
}

func (q *MemoryQueue) channel(name string) chan *domain.StageMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan *domain.StageMessage, 1024)
		q.queues[name] = ch
	}
	return ch
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, queue string, msg *domain.StageMessage) error {
	select {
	case q.channel(queue) <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*domain.StageMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-q.channel(queue):
		return msg, nil
	case <-timer.C:
		return nil, db.ErrQueueEmpty
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the current depth of the named queue.
func (q *MemoryQueue) Len(queue string) int {
	return len(q.channel(queue))
}

var _ Queue = (*MemoryQueue)(nil)
