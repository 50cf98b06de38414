// Package app wires the service together: store, cache, job queue,
// tracker comment poster, RPC registry, websocket hub and HTTP server.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/caseflow/caseflow/internal/auth"
	"github.com/caseflow/caseflow/internal/cache"
	"github.com/caseflow/caseflow/internal/config"
	"github.com/caseflow/caseflow/internal/jobs"
	"github.com/caseflow/caseflow/internal/rpc"
	"github.com/caseflow/caseflow/internal/store"
	"github.com/caseflow/caseflow/internal/telemetry"
	"github.com/caseflow/caseflow/internal/tracker"
	"github.com/caseflow/caseflow/internal/web"
	"github.com/caseflow/caseflow/internal/web/events"
)

// App owns every long-lived component of the service
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	store   *store.Store
	cache   cache.Cache
	queue   *jobs.Queue
	workers *jobs.WorkerPool
	hub     *events.Hub
	server  *web.Server
}

// New builds the full dependency graph from the configuration. The caller
// owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}

	telemetryCache := openCache(cfg, logger)

	authSvc := auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	queue := jobs.NewQueue(st.DB())
	trackerOpts := tracker.Options{BaseURL: cfg.Server.BaseURL}
	poster := tracker.NewCommentPoster(st, queue, cfg.Workers.Queue, trackerOpts, logger)

	// The queue dequeues with SKIP LOCKED, which only postgres supports
	var workers *jobs.WorkerPool
	if cfg.Database.Driver == "postgres" {
		workers = jobs.NewWorkerPool(queue, cfg.Workers.Queue, cfg.Workers.Count, logger)
		workers.RegisterHandler(tracker.JobTypePostComment, poster.Handle)
	} else {
		logger.Warn("job workers disabled: the job queue requires postgres",
			zap.String("driver", cfg.Database.Driver))
	}

	hub := events.NewHub(logger)

	telemetrySvc := telemetry.NewService(st, telemetryCache, cfg.Redis.CacheTTL, logger)

	registry := rpc.NewRegistry(logger)
	rpc.NewExecutionService(st, poster, trackerOpts, hub, logger).RegisterMethods(registry)
	rpc.NewTelemetryService(telemetrySvc).RegisterMethods(registry)

	router := web.NewRouter(web.RouterConfig{
		RPC:       registry,
		Hub:       hub,
		Store:     st,
		Validator: authSvc,
		Logger:    logger,
	})

	server, err := web.NewServer(cfg.Server, router, logger)
	if err != nil {
		st.Close()
		telemetryCache.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		cache:   telemetryCache,
		queue:   queue,
		workers: workers,
		hub:     hub,
		server:  server,
	}, nil
}

// openCache connects to Redis, falling back to the in-process cache when
// Redis is unreachable
func openCache(cfg *config.Config, logger *zap.Logger) cache.Cache {
	cacheCfg := cache.Config{DefaultTTL: cfg.Redis.CacheTTL}

	if cfg.Redis.Addr == "" {
		return cache.NewMemoryCache(cacheCfg)
	}

	redisCache, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Config:   cacheCfg,
	})
	if err != nil {
		logger.Warn("redis unavailable, using in-process cache",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return cache.NewMemoryCache(cacheCfg)
	}
	return redisCache
}

// Run starts the server, the websocket hub and the worker pool, and blocks
// until the context is cancelled or a component fails
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})

	if a.workers != nil {
		group.Go(func() error {
			a.workers.Start(ctx)
			<-ctx.Done()
			a.workers.Stop()
			return nil
		})
	}

	group.Go(func() error {
		return a.server.Start()
	})

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		a.logger.Info("shutting down")
		return a.server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// Store exposes the relational store, mainly for the migrate subcommand
func (a *App) Store() *store.Store {
	return a.store
}

// Close releases every resource the app holds
func (a *App) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("cache close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
}
