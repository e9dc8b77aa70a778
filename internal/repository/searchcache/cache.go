// Package searchcache caches full search responses keyed by the
// canonical query hash.
package searchcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/db"
	"github.com/scale-search/scalesearch/internal/domain"
	"github.com/scale-search/scalesearch/internal/domain/search/result"
)

// store is the consumer interface for the response cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is a read-through search response cache. Cache faults are
// logged and swallowed: a broken cache degrades to slower searches,
// never to failed ones.
type Cache struct {
	store       store
	ttl         time.Duration
	callTimeout time.Duration
	cacheTotal  *prometheus.CounterVec
	logger      *zap.Logger
}

// New creates a search response cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	return &Cache{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// WithCallTimeout bounds each cache operation. A slow cache must not
// hold the search path for longer than this.
func (c *Cache) WithCallTimeout(d time.Duration) *Cache {
	c.callTimeout = d
	return c
}

func (c *Cache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

// Get returns the cached response for key, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*result.Response, bool) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	data, err := c.store.Get(ctx, c.redisKey(key))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached search response", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss")
		return nil, false
	}

	var resp result.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("Failed to parse cached search response", zap.String("key", key), zap.Error(err))
		c.incCache("miss")
		return nil, false
	}

	c.incCache("hit")
	return &resp, true
}

// Set stores a response under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, resp *result.Response) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("Failed to marshal search response for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, c.redisKey(key), data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache search response", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// redisKey namespaces the query hash under the service key prefix.
func (c *Cache) redisKey(key string) string {
	return domain.KeyPrefix + key
}
