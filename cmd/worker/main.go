package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"snapify/internal/cache"
	"snapify/internal/config"
	"snapify/internal/database"
	"snapify/internal/imagehost"
	"snapify/internal/log"
	"snapify/internal/queue"
	"snapify/internal/repository"
	"snapify/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	host, err := imagehost.NewMinioHost(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init image host")
	}

	processor := tasks.NewProcessor(
		host,
		repository.NewEventRepository(dbPool),
		cfg.Retention.PurgeAfter,
		logger,
	)
	consumer := queue.NewConsumer(client, queue.ConsumerConfig{
		Stream:        cfg.Redis.Stream,
		Group:         cfg.Worker.Group,
		Name:          cfg.Worker.Consumer,
		ClaimInterval: cfg.Worker.ClaimInterval,
	}, logger, processor)

	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("create consumer group failed")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
