// Package siglip talks to a SigLIP-style inference endpoint that serves the
// visual embedding space: image → vector, and text → vector in the same
// space (cross-modal text-to-image search).
package siglip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/metrics"
)

const space = string(domain.SpaceImage)

// Config holds the inference endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Embedder implements domain.ImageEmbedder over HTTP.
type Embedder struct {
	baseURL    string
	apiKey     string
	dimensions int
	client     *http.Client
	logger     *zap.Logger
}

// NewEmbedder creates a visual-space embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Embedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}
}

type embedRequest struct {
	ImageURL string `json:"image_url,omitempty"`
	Text     string `json:"text,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedImage embeds an image reference into the visual space.
func (e *Embedder) EmbedImage(ctx context.Context, imageURL string) ([]float32, error) {
	if imageURL == "" {
		return nil, fmt.Errorf("image url is required")
	}
	return e.call(ctx, "/embed/image", embedRequest{ImageURL: imageURL})
}

// EmbedImageText embeds query text with the visual model's text encoder, so
// the result is comparable against image vectors.
func (e *Embedder) EmbedImageText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	return e.call(ctx, "/embed/text", embedRequest{Text: text})
}

// HealthCheck verifies endpoint availability.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("health request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

func (e *Embedder) call(ctx context.Context, path string, payload embedRequest) ([]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()

	resp, err := e.client.Do(req)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, "siglip", "error").Inc()
		return nil, fmt.Errorf("visual embed request: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, "siglip", "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("visual embed status %d: %s: %w",
			resp.StatusCode, string(msg), domain.ErrEmbeddingProviderError)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, "siglip", "error").Inc()
		return nil, fmt.Errorf("decode visual embedding: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	if len(parsed.Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, "siglip", "error").Inc()
		return nil, fmt.Errorf("empty visual embedding: %w", domain.ErrEmbeddingProviderError)
	}
	if e.dimensions > 0 && len(parsed.Embedding) != e.dimensions {
		metrics.EmbeddingRequestsTotal.WithLabelValues(space, "siglip", "error").Inc()
		return nil, fmt.Errorf("visual embedding has %d dimensions, want %d: %w",
			len(parsed.Embedding), e.dimensions, domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(space, "siglip", "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(space, "siglip").Observe(time.Since(start).Seconds())

	return normalize(parsed.Embedding), nil
}

// normalize L2-normalizes the vector. Cosine similarity over image vectors
// depends on unit length; well-behaved endpoints return vectors already
// normalized, in which case this is a no-op.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.Abs(norm-1) < 1e-6 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
