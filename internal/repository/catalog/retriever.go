// Package catalog runs hybrid lexical+vector retrieval against the product
// index, one concurrent query per embedding space.
package catalog

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/domain/filter"
	"github.com/veltra/findex/internal/index"
)

// Request describes one retrieval pass: the same text, predicate and limit
// fanned out across every space that produced a query vector.
type Request struct {
	Text     string
	Vectors  domain.SpaceVectors
	Filter   filter.Predicate
	MinScore float64 // 0 = no floor
	Limit    int
}

// Retriever fans a retrieval request out across embedding spaces. A failed
// space degrades to an empty hit list so one slow or broken space never sinks
// the whole pass.
type Retriever struct {
	searcher      index.Searcher
	semanticRatio float64
	errorsTotal   *prometheus.CounterVec
	logger        *zap.Logger
}

// New creates a retriever. errorsTotal is a counter vec labelled by space;
// nil disables counting.
func New(searcher index.Searcher, semanticRatio float64, errorsTotal *prometheus.CounterVec, logger *zap.Logger) *Retriever {
	return &Retriever{
		searcher:      searcher,
		semanticRatio: semanticRatio,
		errorsTotal:   errorsTotal,
		logger:        logger,
	}
}

// Retrieve queries every space present in req.Vectors concurrently and
// returns per-space hit lists. Spaces without a vector are skipped. The error
// return is reserved for context cancellation; index failures are degraded.
func (r *Retriever) Retrieve(ctx context.Context, req *Request) (map[domain.Space][]index.Hit, error) {
	results := make(map[domain.Space][]index.Hit, len(req.Vectors))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, space := range domain.SpaceOrder() {
		vector, ok := req.Vectors[space]
		if !ok {
			continue
		}
		g.Go(func() error {
			hits, err := r.searchSpace(gctx, space, vector, req)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.countError(space)
				r.logger.Warn("Space retrieval failed, degrading to empty",
					zap.String("space", string(space)),
					zap.Error(err))
				hits = nil
			}
			mu.Lock()
			results[space] = hits
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Retriever) searchSpace(ctx context.Context, space domain.Space, vector []float32, req *Request) ([]index.Hit, error) {
	return r.searcher.HybridSearch(ctx, &index.HybridQuery{
		Text:          req.Text,
		Space:         space,
		Vector:        vector,
		SemanticRatio: r.semanticRatio,
		Filter:        req.Filter,
		MinScore:      req.MinScore,
		Limit:         req.Limit,
	})
}

func (r *Retriever) countError(space domain.Space) {
	if r.errorsTotal != nil {
		r.errorsTotal.WithLabelValues(string(space)).Inc()
	}
}
