package meili

import (
	"context"
	"fmt"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index"
)

// Compile-time check: Client implements index.Client.
var _ index.Client = (*Client)(nil)

// Config holds connection parameters for a Meilisearch index.
type Config struct {
	Host   string
	APIKey string
	Index  string
}

// Client implements index.Client on top of Meilisearch.
type Client struct {
	sm     meilisearch.ServiceManager
	index  meilisearch.IndexManager
	name   string
	logger *zap.Logger
}

// NewClient creates a Meilisearch-backed index client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("meilisearch host is required")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}

	sm := meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.APIKey))

	return &Client{
		sm:     sm,
		index:  sm.Index(cfg.Index),
		name:   cfg.Index,
		logger: logger,
	}, nil
}

// Ping checks index availability.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.sm.HealthWithContext(ctx); err != nil {
		return fmt.Errorf("meilisearch health: %w: %w", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Close shuts down the underlying HTTP client.
func (c *Client) Close() {
	c.sm.Close()
}

// WaitForReady polls Ping until the index responds or the timeout expires.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for index: %w", ctx.Err())
		case <-ticker.C:
			if err := c.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// waitForTask blocks until the given Meilisearch task settles.
func (c *Client) waitForTask(ctx context.Context, taskUID int64) error {
	task, err := c.sm.WaitForTaskWithContext(ctx, taskUID, 0)
	if err != nil {
		return fmt.Errorf("wait for task %d: %w", taskUID, err)
	}
	if task.Status != meilisearch.TaskStatusSucceeded {
		return fmt.Errorf("index task %d finished with status %s", taskUID, task.Status)
	}
	return nil
}
