package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/db"
	"github.com/scale-search/scalesearch/internal/domain"
	"github.com/scale-search/scalesearch/internal/metrics"
)

// Handler executes one stage of work for a message. The pool inspects
// the returned error's classification to decide between retry and
// terminal failure; OnExhausted runs exactly once per abandoned message.
type Handler interface {
	Handle(ctx context.Context, msg *domain.StageMessage) error
	OnExhausted(ctx context.Context, msg *domain.StageMessage, err error)
}

// RetryPolicy bounds per-message retries.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// Pool consumes one queue with a fixed number of workers.
type Pool struct {
	queue   Queue
	name    string
	workers int
	handler Handler
	retry   RetryPolicy
	logger  *zap.Logger

	pollTimeout time.Duration
	wg          sync.WaitGroup
}

// NewPool creates a worker pool over the named queue.
func NewPool(q Queue, name string, workers int, handler Handler, retry RetryPolicy, logger *zap.Logger) *Pool {
	return &Pool{
		queue:       q,
		name:        name,
		workers:     workers,
		handler:     handler,
		retry:       retry,
		logger:      logger,
		pollTimeout: time.Second,
	}
}

// Start launches the workers. They run until ctx is canceled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker and pending retry timer has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	logger := p.logger.With(zap.String("queue", p.name), zap.Int("worker", id))
	logger.Info("Worker started")

	for {
		if ctx.Err() != nil {
			logger.Info("Worker stopped")
			return
		}

		msg, err := p.queue.Dequeue(ctx, p.name, p.pollTimeout)
		if err != nil {
			if errors.Is(err, db.ErrQueueEmpty) || errors.Is(err, context.Canceled) {
				continue
			}
			logger.Warn("Dequeue failed", zap.Error(err))
			continue
		}

		p.process(ctx, msg, logger)
	}
}

func (p *Pool) process(ctx context.Context, msg *domain.StageMessage, logger *zap.Logger) {
	start := time.Now()
	err := p.handle(ctx, msg)
	metrics.StageDuration.WithLabelValues(string(msg.Stage)).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.StageOutcomesTotal.WithLabelValues(string(msg.Stage), "ok").Inc()
		return
	}

	if domain.IsTransient(err) && msg.Attempt < p.retry.MaxAttempts {
		metrics.StageOutcomesTotal.WithLabelValues(string(msg.Stage), "retry").Inc()
		logger.Warn("Stage failed, scheduling retry",
			zap.String("task_id", msg.TaskID),
			zap.String("stage", string(msg.Stage)),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err))
		p.scheduleRetry(ctx, msg)
		return
	}

	metrics.StageOutcomesTotal.WithLabelValues(string(msg.Stage), "failed").Inc()
	logger.Error("Stage failed terminally",
		zap.String("task_id", msg.TaskID),
		zap.String("stage", string(msg.Stage)),
		zap.Int("attempt", msg.Attempt),
		zap.Bool("transient", domain.IsTransient(err)),
		zap.Error(err))
	p.handler.OnExhausted(ctx, msg, err)
}

// handle invokes the handler with a panic guard. A panicking stage is
// a failure like any other, not a dead worker.
func (p *Pool) handle(ctx context.Context, msg *domain.StageMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.PermanentError(fmt.Errorf("stage %s panicked: %v", msg.Stage, r))
		}
	}()
	return p.handler.Handle(ctx, msg)
}

// scheduleRetry re-enqueues the message with an incremented attempt
// counter after the backoff delay, without blocking the worker.
func (p *Pool) scheduleRetry(ctx context.Context, msg *domain.StageMessage) {
	retry := *msg
	retry.Attempt++
	delay := Backoff(p.retry.BackoffBase, msg.Attempt)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}

		if err := p.queue.Enqueue(ctx, p.name, &retry); err != nil {
			p.logger.Error("Failed to re-enqueue for retry",
				zap.String("task_id", retry.TaskID),
				zap.String("stage", string(retry.Stage)),
				zap.Error(err))
		}
	}()
}
