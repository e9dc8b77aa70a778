package domain

import (
	"fmt"
	"math"
)

// normEpsilon guards against division by zero for degenerate vectors.
const normEpsilon = 1e-8

// ValidateVector checks dimensionality and numeric sanity of a vector
// returned by the embedding provider. A failure here indicates a
// provider/config mismatch, not a transient fault.
func ValidateVector(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrVectorDimMismatch, len(v), dim)
	}
	for i, f := range v {
		f64 := float64(f)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			return fmt.Errorf("%w: component %d", ErrVectorNotFinite, i)
		}
	}
	return nil
}

// NormalizeL2 scales v to unit L2 norm in place. Unnormalized vectors
// must never reach the vector index or a similarity comparison.
func NormalizeL2(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum) + normEpsilon
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// Embedding is the persisted vector for a media item. Written once per
// pipeline run; a re-run under the same mediaId overwrites it.
type Embedding struct {
	MediaID    string
	Vector     []float32
	Normalized bool
}

// EmbeddingResult carries a provider vector and token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}
