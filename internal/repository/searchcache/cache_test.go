package searchcache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/db"
	"github.com/scale-search/scalesearch/internal/domain"
	"github.com/scale-search/scalesearch/internal/domain/search/result"
)

type mockStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	return m.getFn(ctx, key)
}

func (m *mockStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.setFn(ctx, key, value, ttl)
}

func sampleResponse() *result.Response {
	return &result.Response{
		Results: []result.Result{{
			ID:        "media-1",
			Score:     0.9,
			MediaType: domain.MediaImage,
		}},
		Total:    1,
		Query:    "red cat",
		Modality: domain.MediaText,
	}
}

func TestGetHit(t *testing.T) {
	data, _ := json.Marshal(sampleResponse())
	ms := &mockStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) { return data, nil },
	}
	c := New(ms, time.Hour, nil, zap.NewNop())

	resp, ok := c.Get(context.Background(), "search:abc")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if resp.Total != 1 || resp.Results[0].ID != "media-1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetMiss(t *testing.T) {
	ms := &mockStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) { return nil, db.ErrKeyNotFound },
	}
	c := New(ms, time.Hour, nil, zap.NewNop())

	if _, ok := c.Get(context.Background(), "search:abc"); ok {
		t.Fatal("expected cache miss")
	}
}

func TestGetCorruptPayloadIsMiss(t *testing.T) {
	ms := &mockStore{
		getFn: func(_ context.Context, _ string) ([]byte, error) { return []byte("{broken"), nil },
	}
	c := New(ms, time.Hour, nil, zap.NewNop())

	if _, ok := c.Get(context.Background(), "search:abc"); ok {
		t.Fatal("corrupt payload must read as a miss")
	}
}

func TestSetStoresWithTTL(t *testing.T) {
	var gotKey string
	var gotTTL time.Duration
	var gotValue []byte
	ms := &mockStore{
		setFn: func(_ context.Context, key string, value []byte, ttl time.Duration) error {
			gotKey = key
			gotValue = value
			gotTTL = ttl
			return nil
		},
	}
	c := New(ms, 30*time.Minute, nil, zap.NewNop())

	c.Set(context.Background(), "search:abc", sampleResponse())

	if gotKey != domain.KeyPrefix+"search:abc" {
		t.Errorf("key = %s", gotKey)
	}
	if gotTTL != 30*time.Minute {
		t.Errorf("ttl = %v", gotTTL)
	}

	var resp result.Response
	if err := json.Unmarshal(gotValue, &resp); err != nil {
		t.Fatalf("stored payload is not valid JSON: %v", err)
	}
	if resp.Query != "red cat" {
		t.Errorf("query = %s", resp.Query)
	}
}

func TestCallTimeoutBoundsStoreCalls(t *testing.T) {
	var getDeadline, setDeadline bool
	ms := &mockStore{
		getFn: func(ctx context.Context, _ string) ([]byte, error) {
			_, getDeadline = ctx.Deadline()
			return nil, db.ErrKeyNotFound
		},
		setFn: func(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
			_, setDeadline = ctx.Deadline()
			return nil
		},
	}
	c := New(ms, time.Hour, nil, zap.NewNop()).WithCallTimeout(5 * time.Second)

	c.Get(context.Background(), "search:abc")
	c.Set(context.Background(), "search:abc", sampleResponse())

	if !getDeadline || !setDeadline {
		t.Errorf("deadline on get = %v, on set = %v, want both bounded", getDeadline, setDeadline)
	}
}

func TestZeroCallTimeoutLeavesContextUnbounded(t *testing.T) {
	var hasDeadline bool
	ms := &mockStore{
		getFn: func(ctx context.Context, _ string) ([]byte, error) {
			_, hasDeadline = ctx.Deadline()
			return nil, db.ErrKeyNotFound
		},
	}
	c := New(ms, time.Hour, nil, zap.NewNop())

	c.Get(context.Background(), "search:abc")
	if hasDeadline {
		t.Error("no configured timeout must not impose a deadline")
	}
}

func TestSetFailureIsSwallowed(t *testing.T) {
	ms := &mockStore{
		setFn: func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
			return db.ErrKeyNotFound
		},
	}
	c := New(ms, time.Hour, nil, zap.NewNop())

	// must not panic or surface the error
	c.Set(context.Background(), "search:abc", sampleResponse())
}
