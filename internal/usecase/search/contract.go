package search

import (
	"context"

	"github.com/scale-search/scalesearch/internal/domain"
	"github.com/scale-search/scalesearch/internal/domain/search/result"
)

// Index runs KNN vector search with exact-match metadata pre-filters.
type Index interface {
	Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.SearchHit, error)
}

// Cache stores full search responses keyed by the canonical query hash.
type Cache interface {
	Get(ctx context.Context, key string) (*result.Response, bool)
	Set(ctx context.Context, key string, resp *result.Response)
}

// Fetcher resolves a non-text query reference to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (localPath string, cleanup func(), err error)
}
