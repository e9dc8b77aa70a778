package embcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/db"
	"github.com/scale-search/scalesearch/internal/domain"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ domain.MediaInput) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

// mockKVStore implements the consumer interface for tests.
type mockKVStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
}

func (m *mockKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKVStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *mockKVStore) {
	t.Helper()
	ms := &mockKVStore{}
	ce := New(inner, ms, nil, zap.NewNop())
	return ce, ms
}

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	var setCalled bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalled = true
		return nil
	}

	result, err := ce.Embed(context.Background(), domain.TextInput("test text"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if !setCalled {
		t.Fatal("expected SET to be called for cache put")
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	ce, ms := newTestCachedEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(context.Background(), domain.TextInput("test text"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if inner.calls != 0 {
		t.Fatalf("expected 0 inner calls on hit, got %d", inner.calls)
	}
}

func TestEmbed_FileInputHashesContent(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.jpg")
	pathB := filepath.Join(dir, "b.jpg")
	if err := os.WriteFile(pathA, []byte("same bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pathB, []byte("same bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	var keys []string
	ms.setFn = func(_ context.Context, key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}

	if _, err := ce.Embed(context.Background(), domain.FileInput(domain.MediaImage, pathA)); err != nil {
		t.Fatalf("embed a: %v", err)
	}
	if _, err := ce.Embed(context.Background(), domain.FileInput(domain.MediaImage, pathB)); err != nil {
		t.Fatalf("embed b: %v", err)
	}

	if len(keys) != 2 || keys[0] != keys[1] {
		t.Errorf("identical bytes must hash to the same key, got %v", keys)
	}
}

func TestEmbed_ModalityChangesKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip")
	if err := os.WriteFile(path, []byte("bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	var keys []string
	ms.setFn = func(_ context.Context, key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}

	if _, err := ce.Embed(context.Background(), domain.FileInput(domain.MediaAudio, path)); err != nil {
		t.Fatalf("embed audio: %v", err)
	}
	if _, err := ce.Embed(context.Background(), domain.FileInput(domain.MediaVideo, path)); err != nil {
		t.Fatalf("embed video: %v", err)
	}

	if len(keys) != 2 || keys[0] == keys[1] {
		t.Errorf("same bytes with different modality must hash differently, got %v", keys)
	}
}

func TestEmbed_UnreadableFileSkipsCache(t *testing.T) {
	wantErr := errors.New("no such file")
	inner := &mockEmbedder{err: wantErr}
	ce, ms := newTestCachedEmbedder(t, inner)

	var getCalled bool
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		getCalled = true
		return nil, db.ErrKeyNotFound
	}

	_, err := ce.Embed(context.Background(), domain.FileInput(domain.MediaImage, "/nonexistent/file.jpg"))
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected inner error, got %v", err)
	}
	if getCalled {
		t.Error("cache must be skipped for unhashable input")
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	ce, ms := newTestCachedEmbedder(t, inner)

	var setCalled bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalled = true
		return nil
	}

	_, err := ce.Embed(context.Background(), domain.TextInput("test text"))
	if err == nil {
		t.Fatal("expected error from inner embedder")
	}
	if setCalled {
		t.Error("failed embedding must not be cached")
	}
}

func TestEmbed_CorruptCacheFallsThrough(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.7}}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte{1, 2, 3}, nil // not a multiple of 4
	}

	result, err := ce.Embed(context.Background(), domain.TextInput("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embedding[0] != 0.7 {
		t.Errorf("expected inner vector on corrupt cache, got %v", result.Embedding)
	}
}
