// Package openai adapts an OpenAI-compatible multimodal embedding API
// to the domain Embedder contract.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/scale-search/scalesearch/internal/domain"
	"github.com/scale-search/scalesearch/internal/metrics"
)

// Embedder is a multimodal embedding provider using an OpenAI-compatible
// API. Text is sent verbatim; binary media is sent as a base64 data URI
// input, which multimodal embedding endpoints accept alongside text.
type Embedder struct {
	client      *openai.Client
	model       openai.EmbeddingModel
	dims        int
	provider    string
	callTimeout time.Duration
	logger      *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Provider   string
	// CallTimeout bounds each provider call. Zero leaves calls unbounded.
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible multimodal embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Embedder{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       openai.EmbeddingModel(cfg.Model),
		dims:        cfg.Dimensions,
		provider:    cfg.Provider,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
	}
}

// callCtx derives the per-call context.
func (e *Embedder) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.callTimeout)
}

// Embed implements domain.Embedder for a single input.
func (e *Embedder) Embed(ctx context.Context, input domain.MediaInput) (domain.EmbeddingResult, error) {
	results, err := e.BatchEmbed(ctx, []domain.MediaInput{input})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return results[0], nil
}

// BatchEmbed implements domain.BatchEmbedder. All inputs go out in one
// provider call; the response order matches the input order.
func (e *Embedder) BatchEmbed(ctx context.Context, inputs []domain.MediaInput) ([]domain.EmbeddingResult, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	encoded := make([]string, len(inputs))
	modality := inputs[0].Modality
	for i, in := range inputs {
		s, err := encodeInput(in)
		if err != nil {
			return nil, err
		}
		encoded[i] = s
	}

	req := openai.EmbeddingRequest{
		Input:          encoded,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dims > 0 {
		req.Dimensions = e.dims
	}

	start := time.Now()

	callCtx, cancel := e.callCtx(ctx)
	resp, err := e.client.CreateEmbeddings(callCtx, req)
	cancel()

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "api_error").Inc()
		e.logger.Warn("embedding request failed",
			zap.String("model", string(e.model)),
			zap.String("modality", string(modality)),
			zap.Int("inputs", len(inputs)),
			zap.Error(err))
		return nil, parseAPIError(err)
	}

	if len(resp.Data) != len(inputs) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), "short_response").Inc()
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(inputs), domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, string(e.model), string(modality)).
		Observe(duration.Seconds())

	totalTokens := resp.Usage.TotalTokens
	promptTokens := resp.Usage.PromptTokens
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "prompt").Add(float64(promptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "total").Add(float64(totalTokens))
	}

	results := make([]domain.EmbeddingResult, len(resp.Data))
	for i, d := range resp.Data {
		results[i] = domain.EmbeddingResult{
			Embedding:    d.Embedding,
			PromptTokens: promptTokens / len(resp.Data),
			TotalTokens:  totalTokens / len(resp.Data),
		}
	}
	return results, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	ctx, cancel := e.callCtx(ctx)
	defer cancel()

	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// encodeInput converts a MediaInput into a provider input string.
func encodeInput(in domain.MediaInput) (string, error) {
	if in.Modality == domain.MediaText {
		return in.Text, nil
	}

	data, err := os.ReadFile(filepath.Clean(in.Path))
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", in.Path, err)
	}

	return "data:" + contentType(in) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// contentType guesses the MIME type from the file extension, falling
// back to a generic type per modality.
func contentType(in domain.MediaInput) string {
	if t := mime.TypeByExtension(filepath.Ext(in.Path)); t != "" {
		return t
	}
	switch in.Modality {
	case domain.MediaImage:
		return "image/jpeg"
	case domain.MediaAudio:
		return "audio/wav"
	case domain.MediaVideo:
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingProviderError.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingProviderError

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("embedding API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
