// Package ingest vectorizes a product catalog and loads it into the search
// index, one document per product with a vector per embedding space.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index"
)

const (
	textBatchSize = 64
	docBatchSize  = 100
)

// Config tunes the ingestion run.
type Config struct {
	TextDimensions  int
	ImageDimensions int
	ImageWorkers    int // default 4
}

// Stats summarizes one ingestion run.
type Stats struct {
	Indexed      int
	ImagesFailed int
}

// Service builds index documents from catalog products. Text embeddings are
// batched; image embeddings run on a bounded worker pool and a failed image
// only costs that product its visual vector.
type Service struct {
	texts  domain.BatchEmbedder
	images domain.ImageEmbedder
	admin  index.Admin
	cfg    Config
	logger *zap.Logger
}

// New creates the ingestion service. images may be nil to index without a
// visual space.
func New(texts domain.BatchEmbedder, images domain.ImageEmbedder, admin index.Admin, cfg Config, logger *zap.Logger) *Service {
	if cfg.ImageWorkers <= 0 {
		cfg.ImageWorkers = 4
	}
	return &Service{texts: texts, images: images, admin: admin, cfg: cfg, logger: logger}
}

// Run ensures the index exists and loads every product into it.
func (s *Service) Run(ctx context.Context, products []domain.Product) (Stats, error) {
	if len(products) == 0 {
		return Stats{}, nil
	}

	dims := map[domain.Space]int{domain.SpaceText: s.cfg.TextDimensions}
	if s.images != nil {
		dims[domain.SpaceImage] = s.cfg.ImageDimensions
	}
	if err := s.admin.EnsureIndex(ctx, dims); err != nil {
		return Stats{}, fmt.Errorf("ensure index: %w", err)
	}

	docs := make([]index.Document, len(products))
	for i, p := range products {
		docs[i] = index.Document{
			Product:    p,
			SearchText: searchText(p),
			Vectors:    make(domain.SpaceVectors, 2),
		}
	}

	if err := s.embedTexts(ctx, docs); err != nil {
		return Stats{}, err
	}

	var stats Stats
	stats.ImagesFailed = s.embedImages(ctx, docs)

	for start := 0; start < len(docs); start += docBatchSize {
		end := min(start+docBatchSize, len(docs))
		if err := s.admin.AddDocuments(ctx, docs[start:end]); err != nil {
			return stats, fmt.Errorf("add documents [%d:%d]: %w", start, end, err)
		}
		stats.Indexed = end
		s.logger.Info("Indexed batch", zap.Int("done", end), zap.Int("total", len(docs)))
	}

	return stats, nil
}

func (s *Service) embedTexts(ctx context.Context, docs []index.Document) error {
	for start := 0; start < len(docs); start += textBatchSize {
		end := min(start+textBatchSize, len(docs))

		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.SearchText)
		}

		result, err := s.texts.BatchEmbed(ctx, texts)
		if err != nil {
			return fmt.Errorf("batch embed [%d:%d]: %w", start, end, err)
		}
		for i, vec := range result.Embeddings {
			docs[start+i].Vectors[domain.SpaceText] = vec
		}
	}
	return nil
}

// embedImages fills visual vectors for documents with an image, returning
// the number of failures.
func (s *Service) embedImages(ctx context.Context, docs []index.Document) int {
	if s.images == nil {
		return 0
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
		jobs   = make(chan int)
	)

	for w := 0; w < s.cfg.ImageWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				vec, err := s.images.EmbedImage(ctx, docs[i].Product.ImageURL)
				if err != nil {
					s.logger.Warn("Image embedding failed, product keeps text vector only",
						zap.String("handle", docs[i].Product.Handle),
						zap.Error(err))
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				docs[i].Vectors[domain.SpaceImage] = vec
			}
		}()
	}

	for i := range docs {
		if docs[i].Product.ImageURL == "" {
			continue
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return failed
		}
	}
	close(jobs)
	wg.Wait()
	return failed
}

func searchText(p domain.Product) string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(p.Title)
	if p.Description != "" {
		b.WriteString(". Description: ")
		b.WriteString(p.Description)
	}
	if p.Category != "" {
		b.WriteString(". Category: ")
		b.WriteString(p.Category)
	}
	return b.String()
}
