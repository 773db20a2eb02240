// Package resolve turns a shopper query into a small ranked set of catalog
// items, relaxing filters in stages until something plausible is found and
// remembering what each shopper was already shown.
package resolve

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/metrics"
	"github.com/veltra/findex/internal/repository/catalog"
)

// Config tunes the cascade.
type Config struct {
	TopK       int
	MinScore   float64  // stage-4 relevance floor
	RelaxOrder []string // two entries, constraints dropped in this order
}

// Result is the caller-facing resolution outcome. Results carries the full
// candidates for linking; Context is the stripped projection fed back into
// the conversational loop; Narrative explains which requested constraints
// were actually honored.
type Result struct {
	Results   []domain.Candidate
	Context   []domain.LeanItem
	Narrative string
	Stage     Stage
}

// Service drives the four-stage relaxation cascade.
type Service struct {
	vectorizer Vectorizer
	retriever  Retriever
	sessions   SessionStore
	cfg        Config
	hooks      Hooks
	logger     *zap.Logger
}

// New creates the resolution engine. sessions may be nil for a deployment
// with no shopper memory.
func New(
	vectorizer Vectorizer,
	retriever Retriever,
	sessions SessionStore,
	cfg Config,
	hooks Hooks,
	logger *zap.Logger,
) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = domain.DefaultLimit
	}
	if len(cfg.RelaxOrder) != 2 {
		cfg.RelaxOrder = []string{"price", "color"}
	}
	return &Service{
		vectorizer: vectorizer,
		retriever:  retriever,
		sessions:   sessions,
		cfg:        cfg,
		hooks:      hooks,
		logger:     logger,
	}
}

// Resolve runs the full pipeline: exclusion lookup, embedding fan-out, the
// relaxation cascade, truncation to K, and session persistence. The error
// return is reserved for a cancelled context; every degradation inside the
// pipeline resolves to an honest result instead.
func (s *Service) Resolve(ctx context.Context, q domain.Query) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	if !q.HasSignal() {
		return s.finish(ctx, &Result{Narrative: narrativeNoSignal, Stage: StageNoSignal}), nil
	}

	excluded := s.exclusions(ctx, q.UserID)
	vectors := s.vectorizer.Vectorize(ctx, q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		s.logger.Warn("No embedding space produced a vector", zap.String("user_id", q.UserID))
		return s.finish(ctx, &Result{Narrative: narrativeEmpty, Stage: StageEmpty}), nil
	}

	result, err := s.runCascade(ctx, q, vectors, excluded, s.limit(q))
	if err != nil {
		return nil, err
	}

	s.persist(ctx, q.UserID, result.Results)
	return s.finish(ctx, result), nil
}

// runCascade tries stages strictly in order and halts on the first stage
// with at least one merged candidate.
func (s *Service) runCascade(ctx context.Context, q domain.Query, vectors domain.SpaceVectors, excluded []string, limit int) (*Result, error) {
	for _, plan := range planStages(q, excluded, s.cfg.RelaxOrder, s.cfg.MinScore) {
		s.hooks.stageStart(ctx, plan.stage)

		hits, err := s.retriever.Retrieve(ctx, &catalog.Request{
			Text:     q.Text,
			Vectors:  vectors,
			Filter:   plan.predicate,
			MinScore: plan.minScore,
			Limit:    limit,
		})
		if err != nil {
			return nil, err
		}

		merged := mergeSpaces(hits)
		if len(merged) == 0 {
			continue
		}

		if len(merged) > limit {
			merged = merged[:limit]
		}
		s.logger.Info("Resolution terminated",
			zap.String("stage", string(plan.stage)),
			zap.Int("results", len(merged)),
			zap.String("user_id", q.UserID))
		return &Result{
			Results:   merged,
			Context:   leanContext(merged),
			Narrative: plan.narrative,
			Stage:     plan.stage,
		}, nil
	}

	return &Result{Narrative: narrativeEmpty, Stage: StageEmpty}, nil
}

// limit is the effective result cap: the caller's requested count, or the
// configured TopK when the caller asked for no particular number.
func (s *Service) limit(q domain.Query) int {
	if q.Limit > 0 {
		return q.Limit
	}
	return s.cfg.TopK
}

// exclusions reads the shopper's already-shown keys. A read failure fails
// safe to no exclusions: a repeated recommendation beats a blocked search.
func (s *Service) exclusions(ctx context.Context, userID string) []string {
	if s.sessions == nil || userID == "" {
		return nil
	}
	keys, err := s.sessions.ExcludedKeys(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to read exclusion set, proceeding without",
			zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return keys
}

// persist records the shown items. A cancelled resolution writes nothing,
// and a write failure never fails the resolution itself.
func (s *Service) persist(ctx context.Context, userID string, results []domain.Candidate) {
	if s.sessions == nil || userID == "" || len(results) == 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}
	items := make([]domain.Product, len(results))
	for i, c := range results {
		items[i] = c.Product
	}
	if err := s.sessions.Append(ctx, userID, items); err != nil {
		s.logger.Warn("Failed to persist shown items",
			zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) finish(ctx context.Context, result *Result) *Result {
	metrics.ResolveTotal.WithLabelValues(string(result.Stage)).Inc()
	s.hooks.resolved(ctx, result)
	return result
}

func leanContext(candidates []domain.Candidate) []domain.LeanItem {
	items := make([]domain.LeanItem, len(candidates))
	for i, c := range candidates {
		items[i] = c.Product.Lean()
	}
	return items
}
