package meili

import (
	"context"
	"fmt"

	"github.com/meilisearch/meilisearch-go"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index"
)

// HybridSearch runs one lexical+vector query against a single embedding
// space. The space name doubles as the index-side embedder name.
func (c *Client) HybridSearch(ctx context.Context, q *index.HybridQuery) ([]index.Hit, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	req := &meilisearch.SearchRequest{
		Limit:            int64(q.Limit),
		ShowRankingScore: true,
		Vector:           q.Vector,
		Hybrid: &meilisearch.SearchRequestHybrid{
			SemanticRatio: q.SemanticRatio,
			Embedder:      string(q.Space),
		},
	}
	if f := q.Filter.Render(); f != "" {
		req.Filter = f
	}
	if q.MinScore > 0 {
		req.RankingScoreThreshold = q.MinScore
	}

	resp, err := c.index.SearchWithContext(ctx, q.Text, req)
	if err != nil {
		return nil, fmt.Errorf("hybrid search %s/%s: %w", c.name, q.Space, err)
	}

	return parseHits(resp.Hits, q.MinScore), nil
}

// parseHits converts raw index hits to typed index.Hit values. The min-score
// floor is re-checked client-side in case the index version ignores the
// threshold parameter.
func parseHits(raw []interface{}, minScore float64) []index.Hit {
	hits := make([]index.Hit, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		h := index.Hit{
			Product: productFromFields(m),
			Score:   numField(m, "_rankingScore"),
		}
		if h.Product.Handle == "" {
			continue
		}
		if minScore > 0 && h.Score < minScore {
			continue
		}
		hits = append(hits, h)
	}
	return hits
}

func productFromFields(m map[string]interface{}) domain.Product {
	return domain.Product{
		Handle:      strField(m, "handle"),
		Title:       strField(m, "title"),
		Description: strField(m, "description"),
		Category:    strField(m, "category"),
		Color:       strField(m, "color"),
		Size:        strField(m, "size"),
		Price:       numField(m, "price"),
		ImageURL:    strField(m, "image_url"),
	}
}

func strField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func numField(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
