package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"snapify/internal/models"
	"snapify/internal/rules"
)

// ErrCodeTaken is returned by Create when the event code already exists.
var ErrCodeTaken = rules.ErrCodeTaken

const eventColumns = `
	id, code, title, max_photos, max_photos_per_user, used_photos, expires_at,
	allowed_filters, created_by_id, created_at, updated_at
`

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Create inserts event. When the event has an owner and ownerLimit > 0, the
// owner's row is locked for the duration of the transaction so that the
// count and the insert cannot interleave with another create.
func (r *EventRepository) Create(ctx context.Context, event models.Event, ownerLimit int) (models.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Event{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if event.CreatedByID != nil {
		var ownerID string
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, *event.CreatedByID).Scan(&ownerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.Event{}, ErrUserNotFound
			}
			return models.Event{}, fmt.Errorf("lock owner: %w", err)
		}

		var owned int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE created_by_id = $1`, ownerID).Scan(&owned); err != nil {
			return models.Event{}, fmt.Errorf("count owner events: %w", err)
		}
		if err := rules.CheckOwnerQuota(owned, ownerLimit); err != nil {
			return models.Event{}, err
		}
	}

	const query = `
		INSERT INTO events (
			id, code, title, max_photos, max_photos_per_user, used_photos, expires_at,
			allowed_filters, created_by_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, 0, $6, $7, $8, NOW(), NOW()
		)
		RETURNING ` + eventColumns

	created, err := scanEvent(tx.QueryRow(ctx, query,
		event.ID,
		event.Code,
		event.Title,
		event.MaxPhotos,
		event.MaxPhotosPerUser,
		event.ExpiresAt,
		joinFilters(event.AllowedFilters),
		event.CreatedByID,
	))
	if err != nil {
		if isUniqueViolation(err, "events_code_key") {
			return models.Event{}, ErrCodeTaken
		}
		return models.Event{}, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Event{}, fmt.Errorf("commit transaction: %w", err)
	}
	return created, nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return scanEvent(r.pool.QueryRow(ctx, query, id))
}

func (r *EventRepository) GetByCode(ctx context.Context, code string) (models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE code = $1`
	return scanEvent(r.pool.QueryRow(ctx, query, code))
}

func (r *EventRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE created_by_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, ownerID)
}

func (r *EventRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE created_by_id = $1`, ownerID).Scan(&count)
	return count, err
}

func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&count)
	return count, err
}

func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.list(ctx, query, limit, offset)
}

// ListExpiredBefore returns events whose expiry is older than cutoff, oldest
// first.
func (r *EventRepository) ListExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM events
		WHERE expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, cutoff, limit)
}

// Update applies patch to the event under a row lock and returns the stored
// result.
func (r *EventRepository) Update(ctx context.Context, id string, patch rules.EventPatch) (models.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Event{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return models.Event{}, err
	}

	next, err := rules.ApplyPatch(current, patch)
	if err != nil {
		return models.Event{}, err
	}

	const query = `
		UPDATE events
		SET title = $2,
		    max_photos = $3,
		    max_photos_per_user = $4,
		    expires_at = $5,
		    allowed_filters = $6,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + eventColumns

	updated, err := scanEvent(tx.QueryRow(ctx, query,
		id,
		next.Title,
		next.MaxPhotos,
		next.MaxPhotosPerUser,
		next.ExpiresAt,
		joinFilters(next.AllowedFilters),
	))
	if err != nil {
		return models.Event{}, fmt.Errorf("update event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Event{}, fmt.Errorf("commit transaction: %w", err)
	}
	return updated, nil
}

// Delete removes the event and its photo records and returns the public ids
// of the removed photos. The event row is locked first, so an admission
// racing the delete either lands before it and is returned here, or fails
// with not found. Hosted binaries are not touched.
func (r *EventRepository) Delete(ctx context.Context, id string) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event: %w", err)
	}

	rows, err := tx.Query(ctx, `DELETE FROM photos WHERE event_id = $1 RETURNING public_id`, id)
	if err != nil {
		return nil, fmt.Errorf("delete photos: %w", err)
	}
	publicIDs := make([]string, 0)
	for rows.Next() {
		var publicID string
		if err := rows.Scan(&publicID); err != nil {
			rows.Close()
			return nil, err
		}
		if publicID != "" {
			publicIDs = append(publicIDs, publicID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete photos: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return publicIDs, nil
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (models.Event, error) {
	var (
		event   models.Event
		filters string
	)
	if err := row.Scan(
		&event.ID,
		&event.Code,
		&event.Title,
		&event.MaxPhotos,
		&event.MaxPhotosPerUser,
		&event.UsedPhotos,
		&event.ExpiresAt,
		&filters,
		&event.CreatedByID,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Event{}, ErrEventNotFound
		}
		return models.Event{}, err
	}
	event.AllowedFilters = splitFilters(filters)
	return event, nil
}

func joinFilters(filters []string) string {
	return strings.Join(filters, ",")
}

func splitFilters(stored string) []string {
	parts := strings.Split(stored, ",")
	filters := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			filters = append(filters, p)
		}
	}
	if len(filters) == 0 {
		filters = append(filters, rules.DefaultFilter)
	}
	return filters
}
