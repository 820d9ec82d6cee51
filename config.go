package chunkcache

import "fmt"

const (
	// MinChunkSize is the smallest accepted chunk size in bytes.
	MinChunkSize = 1024

	// MaxChunkSize bounds a single chunk so its size fits the chunk header.
	MaxChunkSize = 64 << 20
)

// Config identifies a cache and sizes its chunks.
//
// Config is comparable; two configs are equal when every field is equal.
// CacheKey and CacheBuster are normally fixed for a session while ChunkSize
// and MaxTotalChunks are tuned at runtime.
type Config struct {
	// CacheKey names the cache and is the secret the encryption key is
	// derived from.
	CacheKey string
	// CacheBuster tags written items. Items written under another buster are
	// treated as absent and removed by Cleanup.
	CacheBuster string
	// ChunkSize is the maximum plaintext size of one chunk in bytes.
	ChunkSize int
	// MaxTotalChunks is the number of chunks Cleanup keeps at most.
	MaxTotalChunks int
}

// Validate checks c and returns a *ConfigError for the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.CacheKey == "":
		return &ConfigError{Field: "CacheKey", Reason: "must not be empty"}
	case c.CacheBuster == "":
		return &ConfigError{Field: "CacheBuster", Reason: "must not be empty"}
	case c.ChunkSize < MinChunkSize:
		return &ConfigError{Field: "ChunkSize", Reason: fmt.Sprintf("%d is below the minimum of %d bytes", c.ChunkSize, MinChunkSize)}
	case c.ChunkSize > MaxChunkSize:
		return &ConfigError{Field: "ChunkSize", Reason: fmt.Sprintf("%d exceeds the maximum of %d bytes", c.ChunkSize, MaxChunkSize)}
	case c.MaxTotalChunks < 1:
		return &ConfigError{Field: "MaxTotalChunks", Reason: "must be at least 1"}
	}
	return nil
}

// ChunksFor returns the number of chunks an item of size bytes occupies.
// An empty item occupies one chunk.
func (c Config) ChunksFor(size int) int {
	if size <= 0 || c.ChunkSize <= 0 {
		return 1
	}
	return (size + c.ChunkSize - 1) / c.ChunkSize
}
