package index

import (
	"context"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/domain/filter"
)

// HybridQuery is one lexical+vector query against a single embedding space.
type HybridQuery struct {
	Text          string
	Space         domain.Space
	Vector        []float32
	SemanticRatio float64
	Filter        filter.Predicate
	MinScore      float64 // 0 = no floor
	Limit         int
}

// Hit is a single scored document returned by the index. Score is the
// normalized relevance in [0,1].
type Hit struct {
	Product domain.Product
	Score   float64
}

// Document is an indexable catalog item carrying the unified search text and
// one vector per embedding space.
type Document struct {
	Product    domain.Product
	SearchText string
	Vectors    domain.SpaceVectors
}

// Searcher runs hybrid queries against the catalog index.
type Searcher interface {
	HybridSearch(ctx context.Context, q *HybridQuery) ([]Hit, error)
}

// Admin manages the index lifecycle (ingestion path).
type Admin interface {
	EnsureIndex(ctx context.Context, dims map[domain.Space]int) error
	AddDocuments(ctx context.Context, docs []Document) error
}

// Pinger checks index availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Client is the full index facade. Consumers depend on the narrow
// sub-interfaces.
type Client interface {
	Searcher
	Admin
	Pinger
	Close()
}
