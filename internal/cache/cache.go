// Package cache provides caching for placeholder tiles and tile addresses.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	TileCacheSizeMB  int
	TileTTL          time.Duration
	AddressCacheSize int
}

// Manager manages tile and address caches.
type Manager struct {
	tileCache    *bigcache.BigCache
	addressCache *lru.Cache[string, string]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	tileCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       16 * 1024, // placeholder tiles are flat and compress well
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	addressCache, err := lru.New[string, string](cfg.AddressCacheSize)
	if err != nil {
		tileCache.Close()
		return nil, fmt.Errorf("failed to create address cache: %w", err)
	}

	return &Manager{
		tileCache:    tileCache,
		addressCache: addressCache,
	}, nil
}

// GetTile retrieves a tile from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTile stores a tile in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	return m.tileCache.Set(key, data)
}

// GetAddress retrieves a rendered address from cache.
func (m *Manager) GetAddress(key string) (string, bool) {
	return m.addressCache.Get(key)
}

// SetAddress stores a rendered address in cache.
func (m *Manager) SetAddress(key, address string) {
	m.addressCache.Add(key, address)
}

// PlaceholderKey generates a cache key for a placeholder tile.
func PlaceholderKey(level, z, size int) string {
	return fmt.Sprintf("placeholder:%d/%d:%d", level, z, size)
}

// AddressKey generates a cache key for a tile address. The channel kind is part
// of the key because each kind carries its own modifiers.
func AddressKey(kind string, level, x, y, z int) string {
	return fmt.Sprintf("addr:%s:%d/%d/%d/%d", kind, level, x, y, z)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"tile_cache_len":    m.tileCache.Len(),
		"tile_cache_cap":    m.tileCache.Capacity(),
		"address_cache_len": m.addressCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileCache.Close()
}
