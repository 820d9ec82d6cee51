package cache

import (
	"context"
	"strings"
)

// CacheKind is used to separate key spaces and tuning.
type CacheKind uint8

const (
	CacheKindUnknown CacheKind = iota
	CacheKindBlob              // blob store blocks
	CacheKindHeader            // decoded chunk headers
)

// CacheKey identifies a cached block.
type CacheKey struct {
	Kind CacheKind
	// Path is the blob name the block belongs to.
	Path string
	// Offset is the block's byte offset within the blob.
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key CacheKey) (b []byte, ok bool)
	// Set caches a block. Implementations may copy or retain; caller must treat b as immutable.
	Set(ctx context.Context, key CacheKey, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key CacheKey) bool)
	// Close releases any resources (e.g. background workers).
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}

// PathInvalidator is implemented by caches that index blocks by blob path.
type PathInvalidator interface {
	InvalidatePath(kind CacheKind, path string)
}

// InvalidatePath removes every block of kind cached for the blob at path.
func InvalidatePath(c BlockCache, kind CacheKind, path string) {
	if pi, ok := c.(PathInvalidator); ok {
		pi.InvalidatePath(kind, path)
		return
	}
	c.Invalidate(func(k CacheKey) bool { return k.Kind == kind && k.Path == path })
}

// InvalidatePrefix removes every block of kind whose blob path starts with prefix.
func InvalidatePrefix(c BlockCache, kind CacheKind, prefix string) {
	c.Invalidate(func(k CacheKey) bool {
		return k.Kind == kind && strings.HasPrefix(k.Path, prefix)
	})
}
