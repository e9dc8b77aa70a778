// Package storage provides access to the S3-compatible object store
// holding originals and derivatives.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the object storage contract. All writes are private;
// clients receive presigned URLs for time-limited read access.
type ObjectStore interface {
	// Put uploads content under key, overwriting any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// PresignedGet returns a time-limited URL granting read access to key.
	PresignedGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
