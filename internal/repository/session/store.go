// Package session persists the per-shopper history of products already
// shown, and derives the exclusion set subtracted from every search.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/db/redis"
	"github.com/veltra/findex/internal/domain"
)

// kv is the consumer interface over the backing store (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Store keeps every product ever shown to a user, uncapped. Entries are
// merged by handle with last-write-wins attributes; handle-less items are
// always appended. Only Clear removes data.
type Store struct {
	kv     kv
	prefix string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a session store over a key-value backend.
func New(kv kv, keyPrefix string, logger *zap.Logger) *Store {
	return &Store{
		kv:     kv,
		prefix: keyPrefix + "session:",
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// GetAll returns all stored products for this user in insertion order, or
// nil for an unknown user.
func (s *Store) GetAll(ctx context.Context, user string) ([]domain.Product, error) {
	data, err := s.kv.Get(ctx, s.key(user))
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session %s: %w", user, err)
	}

	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", user, err)
	}
	return products, nil
}

// ExcludedKeys returns the handles already shown to this user.
func (s *Store) ExcludedKeys(ctx context.Context, user string) ([]string, error) {
	products, err := s.GetAll(ctx, user)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(products))
	for _, p := range products {
		if p.Handle != "" {
			keys = append(keys, p.Handle)
		}
	}
	return keys, nil
}

// Append merges items into the user's session. The read-modify-write cycle
// holds a per-user lock so concurrent messages from the same shopper cannot
// lose each other's updates.
func (s *Store) Append(ctx context.Context, user string, items []domain.Product) error {
	if len(items) == 0 {
		return nil
	}

	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.GetAll(ctx, user)
	if err != nil {
		return err
	}

	merged := mergeProducts(existing, items)

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", user, err)
	}
	if err := s.kv.Set(ctx, s.key(user), data); err != nil {
		return fmt.Errorf("store session %s: %w", user, err)
	}
	return nil
}

// Clear removes all stored products for a user.
func (s *Store) Clear(ctx context.Context, user string) error {
	lock := s.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	if err := s.kv.Del(ctx, s.key(user)); err != nil {
		return fmt.Errorf("clear session %s: %w", user, err)
	}
	return nil
}

// Ping checks backend availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.kv.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSessionStoreUnavailable, err)
	}
	return nil
}

func (s *Store) key(user string) string {
	return s.prefix + user
}

func (s *Store) userLock(user string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[user]
	if !ok {
		l = &sync.Mutex{}
		s.locks[user] = l
	}
	return l
}

// mergeProducts keeps existing insertion order, overwrites attributes for
// repeated handles (last write wins), appends unseen handles, and carries
// handle-less items at the tail without deduplication.
func mergeProducts(existing, items []domain.Product) []domain.Product {
	order := make([]string, 0, len(existing)+len(items))
	byHandle := make(map[string]domain.Product, len(existing)+len(items))
	var keyless []domain.Product

	upsert := func(p domain.Product) {
		if p.Handle == "" {
			keyless = append(keyless, p)
			return
		}
		if _, seen := byHandle[p.Handle]; !seen {
			order = append(order, p.Handle)
		}
		byHandle[p.Handle] = p
	}

	for _, p := range existing {
		upsert(p)
	}
	for _, p := range items {
		upsert(p)
	}

	merged := make([]domain.Product, 0, len(order)+len(keyless))
	for _, h := range order {
		merged = append(merged, byHandle[h])
	}
	merged = append(merged, keyless...)
	return merged
}
