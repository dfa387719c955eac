package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"snapify/internal/cache"
	"snapify/internal/ids"
	"snapify/internal/imagehost"
	"snapify/internal/models"
	"snapify/internal/queue"
	"snapify/internal/rules"
)

const (
	codeAttempts   = 5
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type EventService struct {
	events     EventStore
	photos     PhotoStore
	images     imagehost.Host
	tasks      TaskQueue
	cache      *cache.EventCache
	ownerLimit int
	now        func() time.Time
	log        zerolog.Logger
}

// NewEventService wires the event operations. tasks and eventCache may be
// nil; without a queue, binaries of deleted events are removed inline.
func NewEventService(
	events EventStore,
	photos PhotoStore,
	images imagehost.Host,
	tasks TaskQueue,
	eventCache *cache.EventCache,
	ownerLimit int,
	log zerolog.Logger,
) *EventService {
	return &EventService{
		events:     events,
		photos:     photos,
		images:     images,
		tasks:      tasks,
		cache:      eventCache,
		ownerLimit: ownerLimit,
		now:        time.Now,
		log:        log,
	}
}

// Create validates and stores a new event. ownerID is empty for events
// created without an account.
func (s *EventService) Create(ctx context.Context, ownerID string, in rules.NewEvent) (models.Event, error) {
	if ownerID != "" {
		owned, err := s.events.CountByOwner(ctx, ownerID)
		if err != nil {
			return models.Event{}, fmt.Errorf("count owner events: %w", err)
		}
		if err := rules.CheckOwnerQuota(owned, s.ownerLimit); err != nil {
			return models.Event{}, err
		}
	}

	in, err := rules.ValidateNewEvent(in, s.now())
	if err != nil {
		return models.Event{}, err
	}

	event := models.Event{
		Title:            in.Title,
		MaxPhotos:        in.MaxPhotos,
		MaxPhotosPerUser: in.MaxPhotosPerUser,
		ExpiresAt:        in.ExpiresAt,
		AllowedFilters:   in.AllowedFilters,
	}
	if ownerID != "" {
		event.CreatedByID = &ownerID
	}

	if in.Code != "" {
		event.ID = ids.New()
		event.Code = in.Code
		return s.events.Create(ctx, event, s.ownerLimit)
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := ids.NewEventCode(ids.DefaultCodeLength)
		if err != nil {
			return models.Event{}, err
		}
		event.ID = ids.New()
		event.Code = code

		created, err := s.events.Create(ctx, event, s.ownerLimit)
		if errors.Is(err, rules.ErrCodeTaken) {
			s.log.Debug().Str("code", code).Msg("generated event code collided, retrying")
			continue
		}
		return created, err
	}
	return models.Event{}, fmt.Errorf("generate event code: %w", rules.ErrCodeTaken)
}

func (s *EventService) GetByID(ctx context.Context, id string) (models.Event, error) {
	if id == "" {
		return models.Event{}, fmt.Errorf("%w: id is required", rules.ErrInvalidInput)
	}
	return s.events.GetByID(ctx, id)
}

// GetByCode looks an event up by its join code, ignoring case.
func (s *EventService) GetByCode(ctx context.Context, code string) (models.Event, error) {
	code = rules.NormalizeCode(code)
	if err := rules.ValidateCode(code); err != nil {
		return models.Event{}, fmt.Errorf("event %w", rules.ErrNotFound)
	}
	if event, ok := s.cache.Get(code); ok {
		return event, nil
	}
	event, err := s.events.GetByCode(ctx, code)
	if err != nil {
		return models.Event{}, err
	}
	s.cache.Set(event)
	return event, nil
}

func (s *EventService) ListOwnerEvents(ctx context.Context, ownerID string) ([]models.Event, error) {
	return s.events.ListByOwner(ctx, ownerID)
}

type EventPage struct {
	Events  []models.Event
	Total   int
	Page    int
	PerPage int
}

func (s *EventService) ListAll(ctx context.Context, page, perPage int) (EventPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	total, err := s.events.Count(ctx)
	if err != nil {
		return EventPage{}, fmt.Errorf("count events: %w", err)
	}
	events, err := s.events.List(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return EventPage{}, err
	}
	return EventPage{Events: events, Total: total, Page: page, PerPage: perPage}, nil
}

func (s *EventService) Update(ctx context.Context, event models.Event, patch rules.EventPatch) (models.Event, error) {
	if patch.Empty() {
		return event, nil
	}
	updated, err := s.events.Update(ctx, event.ID, patch)
	s.cache.Invalidate(event.Code)
	if err != nil {
		return models.Event{}, err
	}
	return updated, nil
}

// Delete removes the event and its photo records, then schedules removal of
// the hosted binaries.
func (s *EventService) Delete(ctx context.Context, event models.Event) error {
	publicIDs, err := s.events.Delete(ctx, event.ID)
	if err != nil {
		return err
	}
	s.cache.Invalidate(event.Code)

	if len(publicIDs) > 0 {
		s.purge(ctx, event, publicIDs)
	}
	return nil
}

func (s *EventService) purge(ctx context.Context, event models.Event, publicIDs []string) {
	log := s.log.With().Str("event_id", event.ID).Str("event_code", event.Code).Logger()

	if s.tasks != nil {
		err := s.tasks.Enqueue(ctx, queue.Task{
			Type:      queue.TaskPurge,
			EventID:   event.ID,
			EventCode: event.Code,
			PublicIDs: publicIDs,
		})
		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("enqueue purge failed, deleting binaries inline")
	}

	for _, publicID := range publicIDs {
		if err := s.images.Delete(ctx, publicID); err != nil {
			log.Warn().Err(err).Str("public_id", publicID).Msg("delete binary failed")
		}
	}
}
