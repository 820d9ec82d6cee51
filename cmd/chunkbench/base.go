package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/maruel/subcommands"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/chunkcache"
	"github.com/hupe1980/chunkcache/bench"
	"github.com/hupe1980/chunkcache/blobstore"
	"github.com/hupe1980/chunkcache/internal/config"
	"github.com/hupe1980/chunkcache/internal/session"
	"github.com/hupe1980/chunkcache/internal/telemetry"
	"github.com/hupe1980/chunkcache/resource"
)

// Exit codes.
const (
	ecOK = iota
	ecArgs
	ecSetup
	ecFailed
)

const shutdownTimeout = 10 * time.Second

// commandBase holds the flags every command shares.
type commandBase struct {
	subcommands.CommandRunBase

	configPath  string
	sessionPath string
}

func (c *commandBase) initFlags() {
	c.Flags.StringVar(&c.configPath, "config", "", "path of the YAML `file` to load; defaults are used when empty")
	c.Flags.StringVar(&c.sessionPath, "session", "", "session `file`, overrides the session setting of the config")
}

func (c *commandBase) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.sessionPath != "" {
		cfg.Session = c.sessionPath
	}
	return cfg, nil
}

// environment is everything a benchmark run needs, built from the config.
type environment struct {
	cfg       config.Config
	logger    *chunkcache.Logger
	session   *session.Store
	stores    *stores
	telemetry *telemetry.Collector
	harness   *bench.Harness
	resources *resource.Controller
	server    *http.Server
}

func (c *commandBase) setup(ctx context.Context) (*environment, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return newEnvironment(ctx, cfg)
}

func newEnvironment(ctx context.Context, cfg config.Config) (env *environment, err error) {
	env = &environment{
		cfg:    cfg,
		logger: cfg.Log.Logger(),
	}
	defer func() {
		if err != nil {
			_ = env.close(context.Background())
		}
	}()

	if env.session, err = session.Open(cfg.Session); err != nil {
		return nil, err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   int64(cfg.Resources.MemoryLimit),
		MaxWorkers:         cfg.Resources.MaxWorkers,
		IOLimitBytesPerSec: int64(cfg.Resources.IOLimit),
	})

	env.resources = rc
	if env.stores, err = openStores(ctx, cfg, rc); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	env.telemetry = telemetry.New(registry)
	telemetry.RegisterUsage(registry, rc)
	if cfg.Metrics.Addr != "" {
		env.serveMetrics(cfg.Metrics.Addr, registry)
	}

	compression, err := chunkcache.ParseCompression(cfg.Cache.Compression)
	if err != nil {
		return nil, err
	}
	opts := []chunkcache.Option{
		chunkcache.WithLogger(env.logger),
		chunkcache.WithMetricsCollector(env.telemetry),
		chunkcache.WithCompression(compression),
		chunkcache.WithGCTime(time.Duration(cfg.Cache.GCTime)),
		chunkcache.WithCleanupInterval(time.Duration(cfg.Cache.CleanupInterval)),
		chunkcache.WithKDFIterations(cfg.Cache.KDFIterations),
		chunkcache.WithResourceController(rc),
	}
	if env.stores.headers != nil {
		opts = append(opts, chunkcache.WithBlockCache(env.stores.headers))
	}

	store := env.stores.store
	open := func(ctx context.Context, cc chunkcache.Config) (*chunkcache.Cache, error) {
		return chunkcache.Open(ctx, store, cc, opts...)
	}

	env.harness, err = bench.New(open, env.session,
		bench.WithLogger(env.logger),
		bench.WithObserver(env.telemetry),
		bench.WithForm(formFromConfig(cfg)),
	)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func formFromConfig(cfg config.Config) bench.Form {
	return bench.Form{
		ItemSize:       cfg.Cache.ItemSize.Int(),
		ChunkSize:      cfg.Cache.ChunkSize.Int(),
		MaxTotalChunks: cfg.Cache.MaxTotalChunks,
		NumItems:       cfg.Cache.NumItems,
	}
}

func (e *environment) serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	e.logger.Info("serving metrics", "addr", addr)
}

// close tears down the harness first so no cache outlives its store.
func (e *environment) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if e.harness != nil {
		errs = append(errs, e.harness.Close(ctx))
	}
	if e.server != nil {
		errs = append(errs, e.server.Shutdown(ctx))
	}
	if e.stores != nil {
		errs = append(errs, e.stores.close())
	}
	return errors.Join(errs...)
}

// storeDescription names the backend for status output.
func (e *environment) storeDescription() string {
	b := e.cfg.Backend
	var desc string
	switch b.Type {
	case config.BackendLocal:
		desc = "local:" + b.Local.Root
	case config.BackendS3:
		desc = "s3://" + b.S3.Bucket + "/" + b.S3.Prefix
	case config.BackendMinIO:
		desc = "minio://" + b.MinIO.Endpoint + "/" + b.MinIO.Bucket + "/" + b.MinIO.Prefix
	default:
		desc = b.Type
	}
	if _, ok := e.stores.store.(*blobstore.CachingStore); ok {
		desc += " (cached)"
	}
	return desc
}

func reportErr(a subcommands.Application, err error) {
	fmt.Fprintf(a.GetErr(), "%s: %s\n", a.GetName(), err)
}
