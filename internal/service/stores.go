package service

import (
	"context"
	"time"

	"snapify/internal/models"
	"snapify/internal/queue"
	"snapify/internal/rules"
)

// EventStore is the event record store. Create and Update run their checks
// inside the store transaction.
type EventStore interface {
	Create(ctx context.Context, event models.Event, ownerLimit int) (models.Event, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Count(ctx context.Context) (int, error)
	GetByID(ctx context.Context, id string) (models.Event, error)
	GetByCode(ctx context.Context, code string) (models.Event, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Event, error)
	List(ctx context.Context, limit, offset int) ([]models.Event, error)
	Update(ctx context.Context, id string, patch rules.EventPatch) (models.Event, error)
	// Delete removes the event with its photos and returns their public ids.
	Delete(ctx context.Context, id string) ([]string, error)
}

// PhotoStore is the photo record store. Admit must insert the photo and
// increment the event counter atomically, re-checking admission against the
// locked event row.
type PhotoStore interface {
	Admit(ctx context.Context, photo models.Photo, now time.Time) (models.Photo, models.Event, error)
	CountByDevice(ctx context.Context, eventID, deviceID string) (int, error)
	GetByID(ctx context.Context, id string) (models.Photo, error)
	ListByEvent(ctx context.Context, eventID, deviceID string) ([]models.Photo, error)
	Delete(ctx context.Context, id string) error
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) error
}
