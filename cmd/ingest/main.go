// Command ingest loads a product catalog JSON file into the search index,
// embedding every product for each configured space.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/config"
	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index/meili"
	logpkg "github.com/veltra/findex/internal/logger"
	"github.com/veltra/findex/internal/metrics"
	"github.com/veltra/findex/internal/transport/openai"
	"github.com/veltra/findex/internal/transport/siglip"
	"github.com/veltra/findex/internal/usecase/ingest"
	"github.com/veltra/findex/internal/version"
)

func main() {
	var (
		file    = flag.String("file", "products.json", "path to the catalog JSON file")
		workers = flag.Int("image-workers", 4, "concurrent image embedding workers")
	)
	flag.Parse()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting catalog ingestion",
		zap.String("version", version.Version),
		zap.String("file", *file),
		zap.String("index", cfg.Index.Name),
	)

	metrics.RegisterEmbeddingMetrics()

	products, err := loadProducts(*file)
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}
	logger.Info("Catalog loaded", zap.Int("products", len(products)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx, err := meili.NewClient(meili.Config{
		Host:   cfg.Index.Host,
		APIKey: cfg.Index.APIKey,
		Index:  cfg.Index.Name,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create index client", zap.Error(err))
	}
	defer idx.Close()

	if err := idx.WaitForReady(ctx, time.Duration(cfg.Index.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Index not ready", zap.Error(err))
	}

	texts := openai.NewEmbedder(&openai.Config{
		APIKey:     cfg.Embedding.Text.APIKey,
		BaseURL:    cfg.Embedding.Text.BaseURL,
		Model:      cfg.Embedding.Text.Model,
		Dimensions: cfg.Embedding.Text.Dimensions,
		Logger:     logger,
	})

	var images domain.ImageEmbedder
	if cfg.Embedding.Image.BaseURL != "" {
		images = siglip.NewEmbedder(&siglip.Config{
			BaseURL:    cfg.Embedding.Image.BaseURL,
			APIKey:     cfg.Embedding.Image.APIKey,
			Dimensions: cfg.Embedding.Image.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.Image.TimeoutSec) * time.Second,
			Logger:     logger,
		})
	} else {
		logger.Warn("No visual embedder configured, indexing without image vectors")
	}

	svc := ingest.New(texts, images, idx, ingest.Config{
		TextDimensions:  cfg.Embedding.Text.Dimensions,
		ImageDimensions: cfg.Embedding.Image.Dimensions,
		ImageWorkers:    *workers,
	}, logger)

	stats, err := svc.Run(ctx, products)
	if err != nil {
		logger.Fatal("Ingestion failed", zap.Error(err), zap.Int("indexed", stats.Indexed))
	}

	logger.Info("Ingestion complete",
		zap.Int("indexed", stats.Indexed),
		zap.Int("images_failed", stats.ImagesFailed),
	)
}

func loadProducts(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return products, nil
}
