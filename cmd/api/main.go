package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"snapify/internal/cache"
	"snapify/internal/config"
	"snapify/internal/database"
	"snapify/internal/handlers"
	"snapify/internal/imagehost"
	"snapify/internal/jobs"
	"snapify/internal/log"
	"snapify/internal/middleware"
	"snapify/internal/queue"
	"snapify/internal/repository"
	"snapify/internal/server"
	"snapify/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	if cfg.Postgres.Migrate {
		if err := database.Migrate(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate postgres")
		}
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	host, err := imagehost.NewMinioHost(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init image host")
	}
	if err := host.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	users := repository.NewUserRepository(dbPool)
	sessions := repository.NewSessionRepository(dbPool)
	events := repository.NewEventRepository(dbPool)
	photos := repository.NewPhotoRepository(dbPool)

	producer := queue.NewProducer(redisClient, cfg.Redis.Stream)
	eventCache := cache.NewEventCache(cfg.Cache.Size, cfg.Cache.TTL)

	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Config:   cfg,
		Log:      logger,
		Database: dbPool,
		Cache: handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
		Auth:     service.NewAuthService(users, sessions, cfg.Security, logger),
		Events:   service.NewEventService(events, photos, host, producer, eventCache, cfg.Quota.MaxEventsPerOwner, logger),
		Photos:   service.NewPhotoService(events, photos, host, eventCache, logger),
		Users:    users,
		Sessions: sessions,
		Nonces:   middleware.NewRedisNonces(redisClient),
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	var scheduler *jobs.Scheduler
	if cfg.Retention.PurgeAfter > 0 {
		scheduler = jobs.NewScheduler(producer, cfg.Retention.Schedule, logger)
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("scheduler start failed")
		}
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
