// Package search executes multimodal similarity queries with a
// cache-aside response cache.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/domain"
	"github.com/scale-search/scalesearch/internal/domain/search/query"
	"github.com/scale-search/scalesearch/internal/domain/search/result"
)

// Config holds search behavior settings.
type Config struct {
	Dimensions int
}

// Service handles the query path: embed, KNN search, rank, cache.
type Service struct {
	index   Index
	cache   Cache
	embed   domain.Embedder
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New creates a search service.
func New(index Index, cache Cache, embed domain.Embedder, fetcher Fetcher, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		index:   index,
		cache:   cache,
		embed:   embed,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
}

// Search runs a validated query. Identical queries within the cache TTL
// are served from the cache; query-path failures are never retried,
// they surface to the caller immediately.
func (s *Service) Search(ctx context.Context, q *query.Query) (*result.Response, error) {
	start := time.Now()
	key := q.CacheKey()

	if resp, ok := s.cache.Get(ctx, key); ok {
		resp.CacheHit = true
		resp.LatencyMs = msSince(start)
		return resp, nil
	}

	embStart := time.Now()
	vector, err := s.embedQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	embeddingMs := msSince(embStart)

	searchStart := time.Now()
	hits, err := s.index.Search(ctx, vector, q.TopK(), q.Filters())
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	searchMs := msSince(searchStart)

	results := make([]result.Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, result.Result{
			ID:           h.ID,
			Score:        h.Score,
			MediaType:    h.Payload.MediaType,
			ThumbnailURL: h.Payload.ThumbnailURL,
			PreviewURL:   h.Payload.PreviewURL,
			Metadata:     h.Payload.Metadata,
		})
	}
	result.SortStable(results)

	resp := &result.Response{
		Results:   results,
		Total:     len(results),
		Query:     q.Raw(),
		Modality:  q.Modality(),
		CacheHit:  false,
		LatencyMs: msSince(start),
		Metrics: result.Metrics{
			EmbeddingMs: embeddingMs,
			SearchMs:    searchMs,
		},
	}

	s.cache.Set(ctx, key, resp)
	return resp, nil
}

// embedQuery vectorizes the query per its modality. Text embeds the raw
// string; other modalities resolve the reference to a local file first.
func (s *Service) embedQuery(ctx context.Context, q *query.Query) ([]float32, error) {
	var input domain.MediaInput
	if q.Modality() == domain.MediaText {
		input = domain.TextInput(q.Raw())
	} else {
		local, cleanup, err := s.fetcher.Fetch(ctx, q.Raw())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrQueryFetch, err)
		}
		defer cleanup()
		input = domain.FileInput(q.Modality(), local)
	}

	res, err := s.embed.Embed(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	if err := domain.ValidateVector(res.Embedding, s.cfg.Dimensions); err != nil {
		return nil, err
	}
	domain.NormalizeL2(res.Embedding)
	return res.Embedding, nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
