// Package settings resolves runtime business settings such as the purchase
// master-rate flags. Values are looked up on every call so a change made
// through the provider is visible to the very next operation.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledgersync/internal/platform/db"
)

// Keys consumed by the engine.
const (
	KeyPurchaseUpdateItemRate = "purchase.update_item_rate"
	KeyPurchaseUpdateItemUnit = "purchase.update_item_unit"
)

// Provider returns the raw string value for a key; missing keys resolve to "".
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
}

// Store persists settings.
type Store interface {
	Provider
	Set(ctx context.Context, key, value string) error
}

// PGStore reads app_settings directly on every call.
type PGStore struct {
	db db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn}
}

// Get returns the stored value or "" when absent.
func (s *PGStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM app_settings WHERE key=$1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("settings: get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts a value.
func (s *PGStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

// CachedProvider fronts a Store with redis. Writes go through Set, which
// invalidates the cached entry before returning.
type CachedProvider struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
}

// NewCachedProvider wraps store with a redis cache. A nil client disables caching.
func NewCachedProvider(store Store, client *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{store: store, client: client, ttl: ttl}
}

func cacheKey(key string) string {
	return "ledgersync:settings:" + key
}

// Get resolves key from cache, falling back to the store.
func (p *CachedProvider) Get(ctx context.Context, key string) (string, error) {
	if p.client == nil {
		return p.store.Get(ctx, key)
	}
	value, err := p.client.Get(ctx, cacheKey(key)).Result()
	if err == nil {
		return value, nil
	}
	if err != redis.Nil {
		// a broken cache must not block reads
		return p.store.Get(ctx, key)
	}
	value, err = p.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if err := p.client.Set(ctx, cacheKey(key), value, p.ttl).Err(); err != nil {
		return value, nil
	}
	return value, nil
}

// Set writes through to the store and drops the cached value.
func (p *CachedProvider) Set(ctx context.Context, key, value string) error {
	if err := p.store.Set(ctx, key, value); err != nil {
		return err
	}
	if p.client == nil {
		return nil
	}
	if err := p.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("settings: invalidate %s: %w", key, err)
	}
	return nil
}

// Bool interprets a setting as a flag. Unknown or empty values are false.
func Bool(ctx context.Context, p Provider, key string) (bool, error) {
	if p == nil {
		return false, nil
	}
	raw, err := p.Get(ctx, key)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	}
	return false, nil
}
