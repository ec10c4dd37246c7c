package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"gitbridge/internal/apperr"
	"gitbridge/internal/models"
)

// Index is the persisted catalog of generated podcasts, one JSON document
// guarded by a single mutex. Every mutation rewrites the whole document;
// with one index per deployment that is cheap and keeps recovery trivial.
type Index struct {
	mu      sync.Mutex
	backend Backend
	entries map[string]models.PodcastCacheEntry
}

// LoadIndex reads the catalog from storage; a missing document starts empty.
func LoadIndex(ctx context.Context, backend Backend) (*Index, error) {
	ix := &Index{backend: backend, entries: map[string]models.PodcastCacheEntry{}}

	data, err := backend.Get(ctx, IndexKey)
	if apperr.Is(err, apperr.KindNotFound) {
		return ix, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &ix.entries); err != nil {
		// A corrupt index is recoverable: artifacts are still on disk, the
		// catalog just forgets them. Start fresh rather than refuse to boot.
		ix.entries = map[string]models.PodcastCacheEntry{}
	}
	return ix, nil
}

// Get returns the entry for key, if present.
func (ix *Index) Get(key string) (models.PodcastCacheEntry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.entries[key]
	return e, ok
}

// Put inserts or replaces an entry and persists the catalog.
func (ix *Index) Put(ctx context.Context, entry models.PodcastCacheEntry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[entry.CacheKey] = entry
	return ix.persistLocked(ctx)
}

// Touch records a cache hit: bumps the access count and timestamp.
func (ix *Index) Touch(ctx context.Context, key string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.entries[key]
	if !ok {
		return apperr.E(apperr.KindNotFound, "cache entry %s not found", key)
	}
	e.AccessCount++
	e.LastAccessed = time.Now().UTC()
	ix.entries[key] = e
	return ix.persistLocked(ctx)
}

// Remove drops an entry and persists the catalog. Removing a missing key
// is a no-op.
func (ix *Index) Remove(ctx context.Context, key string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.entries[key]; !ok {
		return nil
	}
	delete(ix.entries, key)
	return ix.persistLocked(ctx)
}

// All returns every entry, most recently accessed first. Entries never
// served fall back to their creation time.
func (ix *Index) All() []models.PodcastCacheEntry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]models.PodcastCacheEntry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return accessTime(out[i]).After(accessTime(out[j])) })
	return out
}

func accessTime(e models.PodcastCacheEntry) time.Time {
	if !e.LastAccessed.IsZero() {
		return e.LastAccessed
	}
	return e.CreatedAt
}

// Len reports the number of cataloged podcasts.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.entries)
}

func (ix *Index) persistLocked(ctx context.Context) error {
	data, err := json.MarshalIndent(ix.entries, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "encode cache index")
	}
	return ix.backend.Put(ctx, IndexKey, data, "application/json")
}
