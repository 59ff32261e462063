package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/gigboard/internal/api"
	"github.com/terra-clan/gigboard/internal/auth"
	"github.com/terra-clan/gigboard/internal/catalog"
	"github.com/terra-clan/gigboard/internal/config"
	"github.com/terra-clan/gigboard/internal/health"
	"github.com/terra-clan/gigboard/internal/lifecycle"
	"github.com/terra-clan/gigboard/internal/metrics"
	"github.com/terra-clan/gigboard/internal/notify"
	"github.com/terra-clan/gigboard/internal/observability"
	"github.com/terra-clan/gigboard/internal/payments"
	"github.com/terra-clan/gigboard/internal/ratelimit"
	"github.com/terra-clan/gigboard/internal/reconcile"
	"github.com/terra-clan/gigboard/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	slog.Info("starting gigboard",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"notify", cfg.Notify.Backend,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	shutdownTracing, err := observability.InitTracing(initCtx, "gigboard", observability.TracingConfig{
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Environment: cfg.Tracing.Environment,
	})
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		slog.Error("failed to create token manager", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	checks := health.NewRegistry()

	repo, err := openStore(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	checks.Register("store", health.FromPinger(repo))

	var redisClient *redis.Client
	if cfg.Notify.Backend == config.NotifyRedis || (cfg.RateLimit.ApplyPerMinute > 0 && cfg.Redis.Address != "") {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(initCtx).Err(); err != nil {
			if cfg.Notify.Backend == config.NotifyRedis {
				slog.Error("failed to connect to redis", "error", err, "address", cfg.Redis.Address)
				os.Exit(1)
			}
			slog.Warn("redis unavailable, using in-process rate limiter", "error", err)
			_ = redisClient.Close()
			redisClient = nil
		} else {
			checks.Register("redis", health.FromRedis(redisClient))
		}
	}

	// Load category catalog
	categories := catalog.NewLoader()
	if err := categories.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Warn("failed to load catalog from dir", "dir", cfg.Catalog.Dir, "error", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notify.NewHub()
	var (
		emitter      notify.Emitter
		closeEmitter func()
	)
	switch cfg.Notify.Backend {
	case config.NotifyRedis:
		queue := notify.NewRedisQueue(redisClient, cfg.Notify.QueueKey, repo, hub, m)
		queue.Start(ctx)
		emitter = queue
		closeEmitter = func() {}
	default:
		dispatcher := notify.NewDispatcher(repo, cfg.Notify.BufferSize,
			notify.WithHub(hub),
			notify.WithObserver(m),
			notify.WithWorkers(cfg.Notify.Workers),
		)
		dispatcher.Start(ctx)
		emitter = dispatcher
		closeEmitter = dispatcher.Close
	}

	opts := []lifecycle.Option{
		lifecycle.WithEmitter(emitter),
		lifecycle.WithGateway(payments.NewMockGateway()),
		lifecycle.WithObserver(m),
		lifecycle.WithChargeTimeout(cfg.Payments.ChargeTimeout),
	}
	if len(categories.List()) > 0 {
		opts = append(opts, lifecycle.WithCategories(categories))
	}
	engine := lifecycle.New(repo, opts...)

	if cfg.Reconcile.Enabled {
		reconcile.New(repo, engine, cfg.Reconcile.Interval, cfg.Reconcile.Grace,
			reconcile.WithObserver(m),
		).Start(ctx)
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, "")
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, api.Deps{
		Engine:         engine,
		Tokens:         tokens,
		Catalog:        categories,
		Hub:            hub,
		Health:         checks,
		Metrics:        m,
		Limiter:        limiter,
		ApplyPerMinute: cfg.RateLimit.ApplyPerMinute,
	})
	httpServer := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Stop background workers, then drain queued notifications
	cancel()
	closeEmitter()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if err := repo.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown error", "error", err)
	}

	slog.Info("gigboard stopped")
}

// openStore returns the configured entity store, migrating Postgres first when enabled
func openStore(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.Store.Backend != config.StorePostgres {
		slog.Info("using in-memory store")
		return storage.NewMemoryRepository(), nil
	}

	if cfg.Database.Migrate {
		slog.Info("running database migrations")
		if err := storage.MigrateFromDSN(ctx, cfg.Database.DSN); err != nil {
			return nil, err
		}
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("database connected successfully")
	return repo, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
