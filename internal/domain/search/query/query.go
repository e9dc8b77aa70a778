// Package query defines the search query value object and its canonical
// cache key encoding.
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/scale-search/scalesearch/internal/domain"
)

// TopK bounds. A request that omits top_k gets DefaultTopK; an explicit
// value outside [MinTopK, MaxTopK] is a validation error.
const (
	MinTopK     = 1
	MaxTopK     = 1000
	DefaultTopK = 10
)

const cacheKeyPrefix = "search:"

// Query is a validated search request.
type Query struct {
	raw      string
	modality domain.MediaType
	topK     int
	filters  map[string]string
}

// New validates and builds a search query. topK == 0 means "not set"
// and is replaced by DefaultTopK. Validation happens before any
// provider or index call is made.
func New(raw string, modality domain.MediaType, topK int, filters map[string]string) (Query, error) {
	if raw == "" {
		return Query{}, fmt.Errorf("query is required")
	}
	if !modality.IsValid() {
		return Query{}, fmt.Errorf("%w: %q", domain.ErrUnknownModality, modality)
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < MinTopK || topK > MaxTopK {
		return Query{}, fmt.Errorf("%w: %d not in [%d, %d]", domain.ErrInvalidTopK, topK, MinTopK, MaxTopK)
	}
	return Query{raw: raw, modality: modality, topK: topK, filters: filters}, nil
}

// Raw returns the query text or media reference.
func (q *Query) Raw() string { return q.raw }

// Modality returns the query modality.
func (q *Query) Modality() domain.MediaType { return q.modality }

// TopK returns the requested result count.
func (q *Query) TopK() int { return q.topK }

// Filters returns the exact-match metadata filters.
func (q *Query) Filters() map[string]string { return q.filters }

// CacheKey returns the stable cache key for this query. Filter keys are
// sorted so {a:1,b:2} and {b:2,a:1} hash identically.
func (q *Query) CacheKey() string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(q.raw)
	b.WriteString("|m=")
	b.WriteString(string(q.modality))
	b.WriteString("|k=")
	b.WriteString(strconv.Itoa(q.topK))

	keys := make([]string, 0, len(q.filters))
	for k := range q.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("|f:")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(q.filters[k])
	}

	h := sha256.Sum256([]byte(b.String()))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}
