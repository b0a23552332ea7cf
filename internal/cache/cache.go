// Package cache provides caching for served dataset artifacts and listings.
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
	ArtifactCacheSizeMB int
	ArtifactTTL         time.Duration
	MaxEntrySize        int
	ListingCacheSize    int
}

// Manager manages the artifact and listing caches.
type Manager struct {
	artifacts    *bigcache.BigCache
	listings     *lru.Cache[string, []byte]
	maxEntrySize int
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.ArtifactTTL <= 0 {
		cfg.ArtifactTTL = 10 * time.Minute
	}
	if cfg.MaxEntrySize <= 0 {
		cfg.MaxEntrySize = 4 << 20
	}
	if cfg.ArtifactCacheSizeMB <= 0 {
		cfg.ArtifactCacheSizeMB = 256
	}
	if cfg.ListingCacheSize <= 0 {
		cfg.ListingCacheSize = 128
	}

	artifactConfig := bigcache.Config{
		Shards:             16,
		LifeWindow:         cfg.ArtifactTTL,
		CleanWindow:        cfg.ArtifactTTL / 2,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       64 * 1024, // sizing hint; frames are usually small PNGs
		HardMaxCacheSize:   cfg.ArtifactCacheSizeMB,
		Verbose:            false,
	}
	artifacts, err := bigcache.New(context.Background(), artifactConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact cache: %w", err)
	}

	listings, err := lru.New[string, []byte](cfg.ListingCacheSize)
	if err != nil {
		artifacts.Close()
		return nil, fmt.Errorf("failed to create listing cache: %w", err)
	}

	return &Manager{
		artifacts:    artifacts,
		listings:     listings,
		maxEntrySize: cfg.MaxEntrySize,
	}, nil
}

// GetArtifact retrieves a dataset file from cache.
func (m *Manager) GetArtifact(key string) ([]byte, bool) {
	data, err := m.artifacts.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetArtifact stores a dataset file. Files larger than the entry limit are
// not cached and report false.
func (m *Manager) SetArtifact(key string, data []byte) bool {
	if len(data) > m.maxEntrySize {
		return false
	}
	return m.artifacts.Set(key, data) == nil
}

// GetListing retrieves a cached listing document.
func (m *Manager) GetListing(key string) ([]byte, bool) {
	return m.listings.Get(key)
}

// SetListing stores a listing document.
func (m *Manager) SetListing(key string, data []byte) {
	m.listings.Add(key, data)
}

// InvalidateListings drops every cached listing, e.g. after a conversion.
func (m *Manager) InvalidateListings() {
	m.listings.Purge()
}

// ArtifactKey generates a cache key for a dataset file. The modification
// time and size make keys of rewritten files distinct.
func ArtifactKey(dataset, file string, modTime time.Time, size int64) string {
	return fmt.Sprintf("artifact:%s/%s:%d:%d", dataset, file, modTime.UnixNano(), size)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	stats := m.artifacts.Stats()
	return map[string]interface{}{
		"artifact_cache_len":  m.artifacts.Len(),
		"artifact_cache_cap":  m.artifacts.Capacity(),
		"artifact_cache_hits": stats.Hits,
		"artifact_cache_miss": stats.Misses,
		"listing_cache_len":   m.listings.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.artifacts.Close()
}
