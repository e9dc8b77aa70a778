package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/scale-search/scalesearch/internal/domain"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		modality domain.MediaType
		topK     int
		wantErr  error
	}{
		{"valid text", "red cat", domain.MediaText, 10, nil},
		{"topk zero defaults", "q", domain.MediaText, 0, nil},
		{"topk min", "q", domain.MediaText, 1, nil},
		{"topk max", "q", domain.MediaText, 1000, nil},
		{"topk negative", "q", domain.MediaText, -1, domain.ErrInvalidTopK},
		{"topk too large", "q", domain.MediaText, 1001, domain.ErrInvalidTopK},
		{"unknown modality", "q", domain.MediaType("hologram"), 10, domain.ErrUnknownModality},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New(tt.raw, tt.modality, tt.topK, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.topK == 0 && q.TopK() != DefaultTopK {
				t.Errorf("TopK = %d, want default %d", q.TopK(), DefaultTopK)
			}
		})
	}
}

func TestNewEmptyQuery(t *testing.T) {
	if _, err := New("", domain.MediaText, 10, nil); err == nil {
		t.Fatal("empty query must be rejected")
	}
}

func TestCacheKeyShape(t *testing.T) {
	q, err := New("red cat", domain.MediaText, 10, nil)
	if err != nil {
		t.Fatal(err)
	}

	key := q.CacheKey()
	if !strings.HasPrefix(key, "search:") {
		t.Errorf("key %q must start with search:", key)
	}
	// sha256 hex digest after the prefix
	if len(key) != len("search:")+64 {
		t.Errorf("key length = %d", len(key))
	}
}

func TestCacheKeyFilterOrderInsensitive(t *testing.T) {
	a, _ := New("cat", domain.MediaText, 10, map[string]string{"category": "pets", "source": "web"})
	b, _ := New("cat", domain.MediaText, 10, map[string]string{"source": "web", "category": "pets"})

	if a.CacheKey() != b.CacheKey() {
		t.Error("filter iteration order must not change the cache key")
	}
}

func TestCacheKeyDistinguishes(t *testing.T) {
	base, _ := New("cat", domain.MediaText, 10, nil)

	variants := []Query{}
	if q, err := New("dog", domain.MediaText, 10, nil); err == nil {
		variants = append(variants, q)
	}
	if q, err := New("cat", domain.MediaImage, 10, nil); err == nil {
		variants = append(variants, q)
	}
	if q, err := New("cat", domain.MediaText, 20, nil); err == nil {
		variants = append(variants, q)
	}
	if q, err := New("cat", domain.MediaText, 10, map[string]string{"category": "pets"}); err == nil {
		variants = append(variants, q)
	}

	for i := range variants {
		if variants[i].CacheKey() == base.CacheKey() {
			t.Errorf("variant %d must produce a distinct cache key", i)
		}
	}
}
