package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/domain"
)

type mockHandler struct {
	mu        sync.Mutex
	calls     []int // attempt numbers seen by Handle
	exhausted []error
	handleFn  func(msg *domain.StageMessage) error
	done      chan struct{} // closed by tests via doneAfter
	doneAfter int           // close done after this many terminal events
	terminals int
}

func (h *mockHandler) Handle(_ context.Context, msg *domain.StageMessage) error {
	h.mu.Lock()
	h.calls = append(h.calls, msg.Attempt)
	h.mu.Unlock()
	return h.handleFn(msg)
}

func (h *mockHandler) OnExhausted(_ context.Context, _ *domain.StageMessage, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exhausted = append(h.exhausted, err)
	h.terminal()
}

// markSuccess lets handleFn count successful completions as terminal.
func (h *mockHandler) markSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminal()
}

func (h *mockHandler) terminal() {
	h.terminals++
	if h.terminals == h.doneAfter {
		close(h.done)
	}
}

func (h *mockHandler) attempts() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.calls...)
}

func (h *mockHandler) exhaustedErrs() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.exhausted...)
}

func startTestPool(t *testing.T, h *mockHandler, maxAttempts int) (*MemoryQueue, context.CancelFunc) {
	t.Helper()
	q := NewMemoryQueue()
	pool := NewPool(q, QueueUploads, 1, h, RetryPolicy{
		MaxAttempts: maxAttempts,
		BackoffBase: time.Millisecond,
	}, zap.NewNop())
	pool.pollTimeout = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Wait()
	})
	return q, cancel
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pipeline outcome")
	}
}

func testMessage() *domain.StageMessage {
	return &domain.StageMessage{
		TaskID:    "task-1",
		MediaID:   "media-1",
		MediaType: domain.MediaImage,
		Stage:     domain.StageUploading,
		Attempt:   1,
	}
}

func TestPoolSuccess(t *testing.T) {
	h := &mockHandler{done: make(chan struct{}), doneAfter: 1}
	h.handleFn = func(_ *domain.StageMessage) error {
		defer h.markSuccess()
		return nil
	}
	q, _ := startTestPool(t, h, 3)

	if err := q.Enqueue(context.Background(), QueueUploads, testMessage()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, h.done)

	if got := h.attempts(); len(got) != 1 || got[0] != 1 {
		t.Errorf("attempts = %v, want [1]", got)
	}
	if len(h.exhaustedErrs()) != 0 {
		t.Errorf("OnExhausted called for a successful message")
	}
}

func TestPoolRetriesTransientUntilBudget(t *testing.T) {
	h := &mockHandler{done: make(chan struct{}), doneAfter: 1}
	h.handleFn = func(_ *domain.StageMessage) error {
		return domain.TransientError(errors.New("storage flake"))
	}
	q, _ := startTestPool(t, h, 3)

	if err := q.Enqueue(context.Background(), QueueUploads, testMessage()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, h.done)

	got := h.attempts()
	if len(got) != 3 {
		t.Fatalf("attempts = %v, want 3 executions", got)
	}
	for i, a := range got {
		if a != i+1 {
			t.Errorf("attempt %d numbered %d", i, a)
		}
	}
	if len(h.exhaustedErrs()) != 1 {
		t.Fatalf("OnExhausted called %d times, want 1", len(h.exhaustedErrs()))
	}
}

func TestPoolPermanentErrorFailsImmediately(t *testing.T) {
	h := &mockHandler{done: make(chan struct{}), doneAfter: 1}
	h.handleFn = func(_ *domain.StageMessage) error {
		return domain.PermanentError(domain.ErrMediaUndecodable)
	}
	q, _ := startTestPool(t, h, 3)

	if err := q.Enqueue(context.Background(), QueueUploads, testMessage()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, h.done)

	if got := h.attempts(); len(got) != 1 {
		t.Errorf("attempts = %v, want a single execution", got)
	}
	errs := h.exhaustedErrs()
	if len(errs) != 1 || !errors.Is(errs[0], domain.ErrMediaUndecodable) {
		t.Errorf("exhausted errors = %v", errs)
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	h := &mockHandler{done: make(chan struct{}), doneAfter: 1}
	h.handleFn = func(_ *domain.StageMessage) error {
		panic("stage blew up")
	}
	q, _ := startTestPool(t, h, 3)

	if err := q.Enqueue(context.Background(), QueueUploads, testMessage()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, h.done)

	// panics are classified permanent: no retries
	if got := h.attempts(); len(got) != 1 {
		t.Errorf("attempts = %v, want a single execution", got)
	}
	if len(h.exhaustedErrs()) != 1 {
		t.Errorf("OnExhausted not called after panic")
	}
}

func TestQueueFor(t *testing.T) {
	if QueueFor(domain.StageUploading) != QueueUploads {
		t.Error("upload stage must route to the uploads queue")
	}
	if QueueFor(domain.StageDeriving) != QueueUploads {
		t.Error("derive stage must route to the uploads queue")
	}
	if QueueFor(domain.StageEmbedding) != QueueEmbeddings {
		t.Error("embed stage must route to the embeddings queue")
	}
	if QueueFor(domain.StageIndexing) != QueueEmbeddings {
		t.Error("index stage must route to the embeddings queue")
	}
}
