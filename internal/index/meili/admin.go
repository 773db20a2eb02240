package meili

import (
	"context"
	"fmt"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index"
)

// filterableAttributes are the attributes the relaxation cascade filters on.
var filterableAttributes = []string{"color", "size", "price", "handle"}

// searchableAttributes limits full-text matching to the unified search text.
var searchableAttributes = []string{"search_text"}

// EnsureIndex creates the index if missing and configures embedders plus
// filterable and searchable attributes. Idempotent.
func (c *Client) EnsureIndex(ctx context.Context, dims map[domain.Space]int) error {
	if _, err := c.sm.GetIndexWithContext(ctx, c.name); err != nil {
		info, err := c.sm.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{
			Uid:        c.name,
			PrimaryKey: "id",
		})
		if err != nil {
			return fmt.Errorf("create index %s: %w", c.name, err)
		}
		if err := c.waitForTask(ctx, info.TaskUID); err != nil {
			return fmt.Errorf("create index %s: %w", c.name, err)
		}
		c.logger.Info("Created index", zap.String("index", c.name))
	}

	embedders := make(map[string]meilisearch.Embedder, len(dims))
	for space, dim := range dims {
		embedders[string(space)] = meilisearch.Embedder{
			Source:     "userProvided",
			Dimensions: dim,
		}
	}

	info, err := c.index.UpdateSettingsWithContext(ctx, &meilisearch.Settings{
		FilterableAttributes: filterableAttributes,
		SearchableAttributes: searchableAttributes,
		Embedders:            embedders,
	})
	if err != nil {
		return fmt.Errorf("update settings %s: %w", c.name, err)
	}
	if err := c.waitForTask(ctx, info.TaskUID); err != nil {
		return fmt.Errorf("update settings %s: %w", c.name, err)
	}

	c.logger.Info("Index settings updated",
		zap.String("index", c.name),
		zap.Int("embedders", len(embedders)),
	)
	return nil
}

// AddDocuments uploads a batch of catalog documents with their per-space
// vectors and waits for the indexing task to settle.
func (c *Client) AddDocuments(ctx context.Context, docs []index.Document) error {
	if len(docs) == 0 {
		return nil
	}

	payload := make([]map[string]interface{}, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		m := map[string]interface{}{
			"id":          d.Product.Handle,
			"handle":      d.Product.Handle,
			"title":       d.Product.Title,
			"search_text": d.SearchText,
		}
		if d.Product.Description != "" {
			m["description"] = d.Product.Description
		}
		if d.Product.Category != "" {
			m["category"] = d.Product.Category
		}
		if d.Product.Color != "" {
			m["color"] = d.Product.Color
		}
		if d.Product.Size != "" {
			m["size"] = d.Product.Size
		}
		if d.Product.Price > 0 {
			m["price"] = d.Product.Price
		}
		if d.Product.ImageURL != "" {
			m["image_url"] = d.Product.ImageURL
		}
		if len(d.Vectors) > 0 {
			vectors := make(map[string]interface{}, len(d.Vectors))
			for space, vec := range d.Vectors {
				vectors[string(space)] = vec
			}
			m["_vectors"] = vectors
		}
		payload = append(payload, m)
	}

	info, err := c.index.AddDocumentsWithContext(ctx, payload, "id")
	if err != nil {
		return fmt.Errorf("add documents %s: %w", c.name, err)
	}
	if err := c.waitForTask(ctx, info.TaskUID); err != nil {
		return fmt.Errorf("add documents %s: %w", c.name, err)
	}
	return nil
}
