package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/chunkcache"
)

// Backend names accepted by BackendConfig.Type.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendS3     = "s3"
	BackendMinIO  = "minio"
)

// Config is the complete chunkbench configuration.
type Config struct {
	// Session is the path of the persisted session file. Empty keeps the
	// session in memory.
	Session    string           `yaml:"session"`
	Cache      CacheConfig      `yaml:"cache"`
	Backend    BackendConfig    `yaml:"backend"`
	BlockCache BlockCacheConfig `yaml:"block_cache"`
	Resources  ResourceConfig   `yaml:"resources"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// CacheConfig holds the benchmark form and the cache engine settings.
type CacheConfig struct {
	ItemSize        Size     `yaml:"item_size"`
	NumItems        int      `yaml:"num_items"`
	ChunkSize       Size     `yaml:"chunk_size"`
	MaxTotalChunks  int      `yaml:"max_total_chunks"`
	Compression     string   `yaml:"compression"`
	GCTime          Duration `yaml:"gc_time"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	KDFIterations   int      `yaml:"kdf_iterations"`
}

// BackendConfig selects the blob store.
type BackendConfig struct {
	Type  string      `yaml:"type"`
	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`
	MinIO MinIOConfig `yaml:"minio"`
}

type LocalConfig struct {
	Root string `yaml:"root"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// BlockCacheConfig configures the read-through cache in front of the
// backend. Both tiers are disabled when their size is zero.
type BlockCacheConfig struct {
	MemorySize Size   `yaml:"memory_size"`
	Sharded    bool   `yaml:"sharded"`
	DiskDir    string `yaml:"disk_dir"`
	DiskSize   Size   `yaml:"disk_size"`
	BlockSize  Size   `yaml:"block_size"`

	// HeaderCache keeps decoded chunk headers across cache rebuilds.
	HeaderCache Size `yaml:"header_cache"`
}

// Enabled reports whether any block cache tier is configured.
func (c BlockCacheConfig) Enabled() bool {
	return c.MemorySize > 0 || c.DiskSize > 0
}

type ResourceConfig struct {
	MemoryLimit Size  `yaml:"memory_limit"`
	MaxWorkers  int64 `yaml:"max_workers"`
	IOLimit     Size  `yaml:"io_limit_per_sec"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Addr serves Prometheus metrics on /metrics when set, e.g. ":9090".
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			ItemSize:       32 * 1024,
			NumItems:       1,
			ChunkSize:      25 * 1024,
			MaxTotalChunks: 5000,
			Compression:    chunkcache.CompressionNone.String(),
			GCTime:         Duration(chunkcache.DefaultGCTime),
			KDFIterations:  chunkcache.DefaultKDFIterations,
		},
		Backend: BackendConfig{Type: BackendMemory},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates the file at path. An empty path yields Default.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, field, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
		}
	}

	cc := c.Cache
	check(cc.ItemSize >= chunkcache.MinChunkSize, "cache.item_size", "must be at least %d bytes", chunkcache.MinChunkSize)
	check(cc.NumItems >= 1, "cache.num_items", "must be at least 1")
	check(cc.ChunkSize >= chunkcache.MinChunkSize && cc.ChunkSize <= chunkcache.MaxChunkSize,
		"cache.chunk_size", "must be between %d and %d bytes", chunkcache.MinChunkSize, chunkcache.MaxChunkSize)
	check(cc.MaxTotalChunks >= 1, "cache.max_total_chunks", "must be at least 1")
	_, err := chunkcache.ParseCompression(cc.Compression)
	check(err == nil, "cache.compression", "%v", err)
	check(cc.GCTime >= 0, "cache.gc_time", "must not be negative")
	check(cc.CleanupInterval >= 0, "cache.cleanup_interval", "must not be negative")
	check(cc.KDFIterations >= 1, "cache.kdf_iterations", "must be at least 1")

	b := c.Backend
	switch b.Type {
	case BackendMemory:
	case BackendLocal:
		check(b.Local.Root != "", "backend.local.root", "is required")
	case BackendS3:
		check(b.S3.Bucket != "", "backend.s3.bucket", "is required")
	case BackendMinIO:
		check(b.MinIO.Endpoint != "", "backend.minio.endpoint", "is required")
		check(b.MinIO.Bucket != "", "backend.minio.bucket", "is required")
	default:
		check(false, "backend.type", "unknown backend %q", b.Type)
	}

	bc := c.BlockCache
	check(bc.MemorySize >= 0, "block_cache.memory_size", "must not be negative")
	check(bc.DiskSize >= 0, "block_cache.disk_size", "must not be negative")
	check(bc.DiskSize == 0 || bc.DiskDir != "", "block_cache.disk_dir", "is required when disk_size is set")
	check(bc.BlockSize >= 0, "block_cache.block_size", "must not be negative")
	check(bc.HeaderCache >= 0, "block_cache.header_cache", "must not be negative")

	r := c.Resources
	check(r.MemoryLimit >= 0, "resources.memory_limit", "must not be negative")
	check(r.MaxWorkers >= 0, "resources.max_workers", "must not be negative")
	check(r.IOLimit >= 0, "resources.io_limit_per_sec", "must not be negative")

	_, err = c.Log.SlogLevel()
	check(err == nil, "log.level", "%v", err)
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format", "must be text or json, got %q", c.Log.Format)

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level)))
	return level, err
}

// Logger builds the logger described by l. Load validates the level, so an
// unparsable level here falls back to info.
func (l LogConfig) Logger() *chunkcache.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if l.Format == "json" {
		return chunkcache.NewJSONLogger(level)
	}
	return chunkcache.NewTextLogger(level)
}
