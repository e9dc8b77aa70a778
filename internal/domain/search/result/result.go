// Package result defines search hits and the assembled search response.
package result

import (
	"sort"

	"github.com/scale-search/scalesearch/internal/domain"
)

// Result is a single search hit.
type Result struct {
	ID           string            `json:"id"`
	Score        float64           `json:"score"`
	MediaType    domain.MediaType  `json:"media_type"`
	ThumbnailURL string            `json:"thumbnail_url,omitempty"`
	PreviewURL   string            `json:"preview_url,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Metrics is the per-call latency breakdown.
type Metrics struct {
	EmbeddingMs float64 `json:"embedding_ms"`
	SearchMs    float64 `json:"search_ms"`
}

// Response is the full search outcome, also the unit of caching.
type Response struct {
	Results   []Result         `json:"results"`
	Total     int              `json:"total"`
	Query     string           `json:"query"`
	Modality  domain.MediaType `json:"modality"`
	CacheHit  bool             `json:"cache_hit"`
	LatencyMs float64          `json:"latency_ms"`
	Metrics   Metrics          `json:"metrics"`
}

// SortStable orders results by descending score with ties broken by
// ascending id. The index returns hits pre-sorted, so for distinct
// scores this is a no-op; equal scores get a deterministic order.
func SortStable(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
