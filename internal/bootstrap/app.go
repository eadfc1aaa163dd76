package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/brunovarela/notesync/internal/infrastructure/config"
	"github.com/brunovarela/notesync/internal/infrastructure/observability"
	infraPostgres "github.com/brunovarela/notesync/internal/infrastructure/postgres"
	infraRedis "github.com/brunovarela/notesync/internal/infrastructure/redis"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the shared infrastructure for one process. Pool and Redis are nil
// when the in-memory store driver is configured.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)
	logger.Info().Msg("Metrics initialized")

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	}

	if cfg.Sync.StoreDriver == "postgres" {
		pool, err := infraPostgres.NewPool(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info().Msg("Connected to PostgreSQL")

		redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Msg("Connected to Redis")

		app.Pool = pool
		app.Redis = redisClient
	} else {
		logger.Info().Msg("Using in-memory outbox store")
	}

	return app, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
