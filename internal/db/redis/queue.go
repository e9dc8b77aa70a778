package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/scale-search/scalesearch/internal/db"
)

// Push appends a payload to the tail of a list-backed queue.
func (s *Store) Push(ctx context.Context, queue string, payload []byte) error {
	cmd := s.b().Lpush().Key(queue).Element(string(payload)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpLPush, Err: err}
	}
	return nil
}

// Pop blocks up to timeout for the next queued payload (BRPOP).
// Returns db.ErrQueueEmpty when the timeout elapses with no message.
func (s *Store) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	cmd := s.b().Brpop().Key(queue).Timeout(timeout.Seconds()).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrQueueEmpty
		}
		return nil, &db.Error{Op: db.OpBRPop, Err: err}
	}
	// BRPOP replies [queue, payload]
	if len(raw) < 2 {
		return nil, db.ErrQueueEmpty
	}
	payload, err := raw[1].AsBytes()
	if err != nil {
		return nil, &db.Error{Op: db.OpBRPop, Err: err}
	}
	return payload, nil
}
