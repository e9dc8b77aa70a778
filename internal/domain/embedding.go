package domain

import "context"

// MediaInput is the input to a multimodal embedding call. Construct via
// TextInput or FileInput; the modality determines which field is set.
type MediaInput struct {
	Modality MediaType
	Text     string // set for MediaText
	Path     string // local file path, set for image/audio/video
}

// TextInput builds an embedding input for a raw text string.
func TextInput(text string) MediaInput {
	return MediaInput{Modality: MediaText, Text: text}
}

// FileInput builds an embedding input for a local media file.
func FileInput(modality MediaType, path string) MediaInput {
	return MediaInput{Modality: modality, Path: path}
}

// Embedder is the shared multimodal vectorization contract between
// layers. Implementations must be deterministic for identical bytes
// and modality.
type Embedder interface {
	Embed(ctx context.Context, input MediaInput) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple inputs of the same modality in a
// single provider call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, inputs []MediaInput) ([]EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
