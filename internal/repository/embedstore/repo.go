// Package embedstore persists per-media embeddings as compact binary
// float32 blobs.
package embedstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/scale-search/scalesearch/internal/db"
	"github.com/scale-search/scalesearch/internal/domain"
)

// store is the consumer interface for embedding persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo stores one embedding per mediaId. A pipeline re-run overwrites
// the previous vector under the same key.
type Repo struct {
	store store
}

// New creates an embedding repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save writes the embedding vector for a media item.
func (r *Repo) Save(ctx context.Context, emb *domain.Embedding) error {
	if err := r.store.Set(ctx, embKey(emb.MediaID), vectorToBytes(emb.Vector)); err != nil {
		return fmt.Errorf("save embedding %s: %w", emb.MediaID, err)
	}
	return nil
}

// Get returns the stored embedding for a media item. Missing embeddings
// surface as db.ErrKeyNotFound.
func (r *Repo) Get(ctx context.Context, mediaID string) (*domain.Embedding, error) {
	data, err := r.store.Get(ctx, embKey(mediaID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get embedding %s: %w", mediaID, err)
	}

	vec, err := bytesToVector(data)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", mediaID, err)
	}

	return &domain.Embedding{MediaID: mediaID, Vector: vec, Normalized: true}, nil
}

func embKey(mediaID string) string {
	return domain.KeyPrefix + "embedding:" + mediaID
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
