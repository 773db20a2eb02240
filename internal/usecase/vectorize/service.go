// Package vectorize turns one shopper query into vectors for every embedding
// space, fanning provider calls out concurrently.
package vectorize

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
)

// Service coordinates the per-space embedding fan-out. Providers run
// concurrently; a failed provider only removes its own space from the result.
type Service struct {
	text   domain.Embedder
	visual domain.ImageEmbedder
	logger *zap.Logger
}

// New creates the fan-out coordinator. Either provider may be nil when the
// deployment does not configure that space.
func New(text domain.Embedder, visual domain.ImageEmbedder, logger *zap.Logger) *Service {
	return &Service{text: text, visual: visual, logger: logger}
}

// Vectorize produces one vector per reachable embedding space for the query.
//
// The text space embeds the query text. The visual space prefers the actual
// image when the query carries one; with text only, the text is routed
// through the visual model's text encoder so text queries still recall
// visually similar products. An image-derived vector always wins over a
// text-derived one.
//
// Providers that fail are logged and their space is left absent. The result
// may be empty; callers decide what an all-provider outage means.
func (s *Service) Vectorize(ctx context.Context, q domain.Query) domain.SpaceVectors {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		vectors  = make(domain.SpaceVectors, 2)
		setSpace = func(space domain.Space, vec []float32) {
			mu.Lock()
			vectors[space] = vec
			mu.Unlock()
		}
	)

	if s.text != nil && q.HasText() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.text.Embed(ctx, q.Text)
			if err != nil {
				s.logger.Warn("Text embedding failed", zap.Error(err))
				return
			}
			setSpace(domain.SpaceText, result.Embedding)
		}()
	}

	if s.visual != nil && (q.HasImage() || q.HasText()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := s.embedVisual(ctx, q)
			if err != nil {
				return
			}
			setSpace(domain.SpaceImage, vec)
		}()
	}

	wg.Wait()
	return vectors
}

// embedVisual fills the visual space. The real image takes priority; a text
// query is routed through the visual model's text encoder, both as the
// text-only path and as the fallback when the image embedding fails.
func (s *Service) embedVisual(ctx context.Context, q domain.Query) ([]float32, error) {
	if q.HasImage() {
		vec, err := s.visual.EmbedImage(ctx, q.ImageURL)
		if err == nil {
			return vec, nil
		}
		s.logger.Warn("Image embedding failed", zap.String("image_url", q.ImageURL), zap.Error(err))
		if !q.HasText() {
			return nil, err
		}
	}

	vec, err := s.visual.EmbedImageText(ctx, q.Text)
	if err != nil {
		s.logger.Warn("Visual text embedding failed", zap.Error(err))
		return nil, err
	}
	return vec, nil
}
