package resolve

import (
	"context"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index"
	"github.com/veltra/findex/internal/repository/catalog"
)

// Vectorizer produces query vectors for every reachable embedding space.
type Vectorizer interface {
	Vectorize(ctx context.Context, q domain.Query) domain.SpaceVectors
}

// Retriever fans one retrieval pass out across embedding spaces.
type Retriever interface {
	Retrieve(ctx context.Context, req *catalog.Request) (map[domain.Space][]index.Hit, error)
}

// SessionStore is the per-user shown-items memory consumed by the engine.
type SessionStore interface {
	ExcludedKeys(ctx context.Context, user string) ([]string, error)
	Append(ctx context.Context, user string, items []domain.Product) error
}

// Hooks are optional callbacks fired at fixed points of the cascade, for
// side effects like progress notifications. Nil fields are skipped. Hooks
// run synchronously on the resolution path and must be cheap.
type Hooks struct {
	OnStageStart func(ctx context.Context, stage Stage)
	OnResolved   func(ctx context.Context, result *Result)
}

func (h Hooks) stageStart(ctx context.Context, stage Stage) {
	if h.OnStageStart != nil {
		h.OnStageStart(ctx, stage)
	}
}

func (h Hooks) resolved(ctx context.Context, result *Result) {
	if h.OnResolved != nil {
		h.OnResolved(ctx, result)
	}
}
