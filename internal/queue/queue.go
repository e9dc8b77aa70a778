// Package queue moves stage messages between the API and the pipeline
// workers and drives the retry policy.
package queue

import (
	"context"
	"time"

	"github.com/scale-search/scalesearch/internal/domain"
)

// Per-stage work queues. Upload workers run the upload and derive
// stages; embedding workers run the embed and index stages, bounding
// provider concurrency independently of upload throughput.
const (
	QueueUploads    = domain.KeyPrefix + "queue:uploads"
	QueueEmbeddings = domain.KeyPrefix + "queue:embeddings"
)

// QueueFor returns the work queue that serves a stage.
func QueueFor(stage domain.Stage) string {
	switch stage {
	case domain.StageEmbedding, domain.StageIndexing:
		return QueueEmbeddings
	default:
		return QueueUploads
	}
}

// Queue is the stage message transport.
type Queue interface {
	// Enqueue appends a message to the named queue.
	Enqueue(ctx context.Context, queue string, msg *domain.StageMessage) error
	// Dequeue blocks up to timeout for the next message. Returns
	// db.ErrQueueEmpty when the timeout elapses with no message.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (*domain.StageMessage, error)
}
