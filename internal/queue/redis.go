package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scale-search/scalesearch/internal/domain"
)

// store is the consumer interface for the queue transport (ISP).
type store interface {
	Push(ctx context.Context, queue string, payload []byte) error
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
}

// RedisQueue is a list-backed FIFO queue with JSON payloads.
type RedisQueue struct {
	store store
}

// NewRedisQueue creates a Redis-backed stage message queue.
func NewRedisQueue(s store) *RedisQueue {
	return &RedisQueue{store: s}
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, queue string, msg *domain.StageMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal stage message: %w", err)
	}
	if err := q.store.Push(ctx, queue, data); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// Dequeue implements Queue.
func (q *RedisQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*domain.StageMessage, error) {
	data, err := q.store.Pop(ctx, queue, timeout)
	if err != nil {
		return nil, err
	}

	var msg domain.StageMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal stage message: %w", err)
	}
	return &msg, nil
}

var _ Queue = (*RedisQueue)(nil)
