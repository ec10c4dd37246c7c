// Package storage persists generated artifacts (podcast audio, scripts,
// metadata) behind a small backend interface with local-filesystem and
// S3-compatible implementations. Object keys use forward slashes on every
// backend.
package storage

import (
	"context"
	"time"
)

// Standard key prefixes; keep these in sync with Stats and CleanupOlderThan.
const (
	PrefixAudio    = "podcasts/audio/"
	PrefixScripts  = "podcasts/scripts/"
	PrefixMetadata = "podcasts/metadata/"
	PrefixSegments = "podcasts/segments/"
	IndexKey       = "cache/index.json"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Backend stores and retrieves artifacts by key.
//
// Get returns an apperr.KindNotFound error for missing keys. Presign
// returns (url, true, nil) when the backend can mint a direct download
// URL; local storage returns ok=false and the HTTP layer serves the bytes
// itself.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Presign(ctx context.Context, key string, expiry time.Duration) (string, bool, error)
}
