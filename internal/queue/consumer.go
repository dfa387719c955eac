package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Handler interface {
	Handle(ctx context.Context, task Task) error
}

type ConsumerConfig struct {
	Stream        string
	Group         string
	Name          string
	ClaimInterval time.Duration
}

// Consumer reads tasks from a Redis stream consumer group. A task is acked
// only after its handler succeeds; failed tasks stay pending and are
// re-claimed once they have been idle for ClaimInterval.
type Consumer struct {
	client  *redis.Client
	cfg     ConsumerConfig
	logger  zerolog.Logger
	handler Handler
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig, logger zerolog.Logger, handler Handler) *Consumer {
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = time.Minute
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		logger:  logger.With().Str("stream", cfg.Stream).Str("group", cfg.Group).Logger(),
		handler: handler,
	}
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.read(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("stream read error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}

		select {
		case <-ticker.C:
			if err := c.claimStalled(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("claim stalled tasks failed")
			}
		default:
		}
	}
}

func (c *Consumer) read(ctx context.Context) error {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    10,
		Block:    5 * time.Second,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	for _, stream := range result {
		for _, msg := range stream.Messages {
			c.process(ctx, msg)
		}
	}
	return nil
}

func (c *Consumer) claimStalled(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.ClaimInterval,
		Start:  "-",
		End:    "+",
		Count:  10,
	}).Result()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, 0, len(pending))
	for _, entry := range pending {
		ids = append(ids, entry.ID)
	}
	msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		MinIdle:  c.cfg.ClaimInterval,
		Messages: ids,
	}).Result()
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		c.process(ctx, msg)
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	log := c.logger.With().Str("message_id", msg.ID).Logger()

	task, err := DecodeTask(msg.Values)
	if err != nil {
		// Nothing will ever decode it; ack so it does not cycle forever.
		log.Error().Err(err).Msg("dropping malformed task")
		c.ack(ctx, msg.ID, log)
		return
	}

	if err := c.handler.Handle(ctx, task); err != nil {
		log.Error().Err(err).Str("type", string(task.Type)).Msg("handle task failed")
		return
	}
	c.ack(ctx, msg.ID, log)
}

func (c *Consumer) ack(ctx context.Context, id string, log zerolog.Logger) {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
}
