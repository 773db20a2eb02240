package domain

import "context"

// Space identifies an embedding space. Vectors from different spaces have
// different dimensionality and are never compared directly.
type Space string

const (
	// SpaceText is the lexical-semantic text embedding space.
	SpaceText Space = "text"
	// SpaceImage is the visual embedding space.
	SpaceImage Space = "image"
)

// SpaceOrder returns the canonical space iteration order. Merging walks
// spaces in this order so result ordering is deterministic.
func SpaceOrder() []Space { return []Space{SpaceText, SpaceImage} }

// SpaceVectors maps each embedding space to its query vector. A space absent
// from the map produced no vector for this query.
type SpaceVectors map[Space][]float32

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single provider call.
// Single and batch calls return equivalent vectors for the same input.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// ImageEmbedder produces vectors in the visual space, either from an image
// reference or from text routed through the visual model's text encoder.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, imageURL string) ([]float32, error)
	EmbedImageText(ctx context.Context, text string) ([]float32, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate
// token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}
