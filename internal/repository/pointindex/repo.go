// Package pointindex stores indexed vector points as Redis hashes under
// an FT vector index.
package pointindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/scale-search/scalesearch/internal/db"
	"github.com/scale-search/scalesearch/internal/domain"
)

var pointKeyPrefix = domain.KeyPrefix + "point:"

// metaFieldPrefix namespaces filterable metadata keys in the hash so
// they cannot collide with the reserved payload fields.
const metaFieldPrefix = "meta_"

// store is the consumer interface for the point index (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Config holds the index shape.
type Config struct {
	IndexName       string
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
	// FilterFields are metadata keys exposed to tag pre-filtering.
	FilterFields []string
	// CallTimeout bounds each index call. Zero leaves calls unbounded.
	CallTimeout time.Duration
}

// Repo implements vector point upsert and KNN search. Point keys derive
// from the mediaId, so a pipeline retry overwrites the same point.
type Repo struct {
	store store
	cfg   Config
}

// New creates a point index repository.
func New(s store, cfg Config) *Repo {
	return &Repo{store: s, cfg: cfg}
}

// opCtx derives the per-call context.
func (r *Repo) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.CallTimeout)
}

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	exists, err := r.store.IndexExists(ctx, r.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.cfg.IndexName, err)
	}
	if exists {
		return nil
	}

	def := r.indexDefinition()
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition %s: %w", r.cfg.IndexName, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		return fmt.Errorf("create index %s: %w", r.cfg.IndexName, err)
	}
	return nil
}

// Upsert writes a point. The same ID always maps to the same key.
func (r *Repo) Upsert(ctx context.Context, p *domain.Point) error {
	meta, err := json.Marshal(p.Payload.Metadata)
	if err != nil {
		return fmt.Errorf("marshal point metadata: %w", err)
	}

	fields := map[string]string{
		"vector":        vectorToBytes(p.Vector),
		"media_type":    string(p.Payload.MediaType),
		"thumbnail_url": p.Payload.ThumbnailURL,
		"preview_url":   p.Payload.PreviewURL,
		"storage_key":   p.Payload.StorageKey,
		"metadata":      string(meta),
	}
	for k, v := range p.Payload.Metadata {
		fields[metaFieldPrefix+k] = v
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.store.HSet(ctx, pointKey(p.ID), fields); err != nil {
		return fmt.Errorf("upsert point %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes a point from the index.
func (r *Repo) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.store.Del(ctx, pointKey(id)); err != nil {
		return fmt.Errorf("delete point %s: %w", id, err)
	}
	return nil
}

// Search runs a KNN query with optional AND-of-exact-match metadata
// filters and returns scored hits in engine order.
func (r *Repo) Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]domain.SearchHit, error) {
	q := &db.KNNQuery{
		IndexName: r.cfg.IndexName,
		Vector:    vector,
		K:         k,
		Filters:   prefixFilters(filters),
		ReturnFields: []string{
			"media_type", "thumbnail_url", "preview_url", "storage_key", "metadata",
		},
	}

	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	result, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("knn search %s: %w", r.cfg.IndexName, err)
	}

	hits := make([]domain.SearchHit, 0, len(result.Entries))
	for _, entry := range result.Entries {
		hits = append(hits, domain.SearchHit{
			ID:      strings.TrimPrefix(entry.Key, pointKeyPrefix),
			Score:   entry.Score,
			Payload: payloadFromFields(entry.Fields),
		})
	}
	return hits, nil
}

func (r *Repo) indexDefinition() *db.IndexDefinition {
	fields := []db.IndexField{
		{
			Name:              "vector",
			Type:              db.IndexFieldVector,
			VectorAlgo:        db.VectorHNSW,
			VectorDim:         r.cfg.Dimensions,
			VectorDistance:    db.DistanceCosine,
			VectorM:           r.cfg.HNSWM,
			VectorEFConstruct: r.cfg.HNSWEFConstruct,
		},
		{Name: "media_type", Type: db.IndexFieldTag},
	}
	for _, f := range r.cfg.FilterFields {
		fields = append(fields, db.IndexField{
			Name: metaFieldPrefix + f,
			Type: db.IndexFieldTag,
		})
	}

	return &db.IndexDefinition{
		Name:     r.cfg.IndexName,
		Prefixes: []string{pointKeyPrefix},
		Fields:   fields,
	}
}

func pointKey(id string) string {
	return pointKeyPrefix + id
}

func prefixFilters(filters map[string]string) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string]string, len(filters))
	for k, v := range filters {
		out[metaFieldPrefix+k] = v
	}
	return out
}

func payloadFromFields(fields map[string]string) domain.PointPayload {
	p := domain.PointPayload{
		MediaType:    domain.MediaType(fields["media_type"]),
		ThumbnailURL: fields["thumbnail_url"],
		PreviewURL:   fields["preview_url"],
		StorageKey:   fields["storage_key"],
	}
	if raw := fields["metadata"]; raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &p.Metadata)
	}
	return p
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
