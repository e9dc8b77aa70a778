package ingest

import (
	"context"
	"time"

	"github.com/scale-search/scalesearch/internal/derive"
	"github.com/scale-search/scalesearch/internal/domain"
)

// TaskRepository persists ingestion tasks.
type TaskRepository interface {
	Save(ctx context.Context, task *domain.Task) error
	Get(ctx context.Context, taskID string) (*domain.Task, error)
	GetByMedia(ctx context.Context, mediaID string) (*domain.Task, error)
}

// EmbeddingStore persists per-media vectors between the embed and
// index stages.
type EmbeddingStore interface {
	Save(ctx context.Context, emb *domain.Embedding) error
	Get(ctx context.Context, mediaID string) (*domain.Embedding, error)
}

// PointWriter upserts vector points into the search index.
type PointWriter interface {
	Upsert(ctx context.Context, p *domain.Point) error
}

// ObjectStore uploads originals and derivatives and issues presigned
// read URLs.
type ObjectStore interface {
	PutFile(ctx context.Context, key, path, contentType string) error
	PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Fetcher resolves a source location to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (localPath string, cleanup func(), err error)
}

// Deriver generates thumbnails and preview clips.
type Deriver interface {
	Image(ctx context.Context, srcPath string) (derive.Derivatives, error)
	Video(ctx context.Context, srcPath string) (derive.Derivatives, error)
}

// Enqueuer pushes stage messages onto a work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, msg *domain.StageMessage) error
}
