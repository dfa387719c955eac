package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"snapify/internal/models"
	"snapify/internal/queue"
	"snapify/internal/rules"
)

type ImageDeleter interface {
	Delete(ctx context.Context, publicID string) error
}

type ExpiredEvents interface {
	ListExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Event, error)
	// Delete removes the event with its photos and returns their public ids.
	Delete(ctx context.Context, id string) ([]string, error)
}

const retentionBatch = 50

type Processor struct {
	images     ImageDeleter
	events     ExpiredEvents
	purgeAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

func NewProcessor(images ImageDeleter, events ExpiredEvents, purgeAfter time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		images:     images,
		events:     events,
		purgeAfter: purgeAfter,
		now:        time.Now,
		logger:     logger,
	}
}

func (p *Processor) Handle(ctx context.Context, task queue.Task) error {
	switch task.Type {
	case queue.TaskPurge:
		return p.purge(ctx, task.EventCode, task.PublicIDs)
	case queue.TaskRetention:
		return p.retention(ctx)
	default:
		p.logger.Warn().Str("type", string(task.Type)).Msg("unknown task type")
		return nil
	}
}

// purge deletes every binary it can. A binary that is already gone counts as
// deleted, so replaying the task is harmless.
func (p *Processor) purge(ctx context.Context, eventCode string, publicIDs []string) error {
	var failed int
	for _, id := range publicIDs {
		if err := p.images.Delete(ctx, id); err != nil && !errors.Is(err, rules.ErrNotFound) {
			failed++
			p.logger.Warn().Err(err).Str("event_code", eventCode).Str("public_id", id).Msg("delete binary failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("purge %s: %d of %d binaries not deleted", eventCode, failed, len(publicIDs))
	}
	p.logger.Info().Str("event_code", eventCode).Int("count", len(publicIDs)).Msg("binaries purged")
	return nil
}

func (p *Processor) retention(ctx context.Context) error {
	if p.purgeAfter <= 0 {
		return nil
	}
	cutoff := p.now().Add(-p.purgeAfter)

	events, err := p.events.ListExpiredBefore(ctx, cutoff, retentionBatch)
	if err != nil {
		return fmt.Errorf("list expired events: %w", err)
	}

	var errs []error
	for _, event := range events {
		publicIDs, err := p.events.Delete(ctx, event.ID)
		if errors.Is(err, rules.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("delete event %s: %w", event.Code, err))
			continue
		}
		p.logger.Info().Str("event_id", event.ID).Str("event_code", event.Code).Msg("expired event removed")
		if err := p.purge(ctx, event.Code, publicIDs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
