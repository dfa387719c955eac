package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"snapify/internal/models"
	"snapify/internal/rules"
)

const photoColumns = `id, event_id, url, public_id, width, height, creator, device_id, created_at`

type PhotoRepository struct {
	pool *pgxpool.Pool
}

func NewPhotoRepository(pool *pgxpool.Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

// Admit records photo and bumps the owning event's used_photos counter in a
// single transaction.
//
// The event row is locked with SELECT ... FOR UPDATE before the admission
// rules are evaluated, so concurrent admissions for the same event run one
// after another and each sees the counter left by the previous one. Two
// uploads racing for the last slot therefore cannot both pass the cap check.
//
// The returned event reflects the incremented counter.
func (r *PhotoRepository) Admit(ctx context.Context, photo models.Photo, now time.Time) (models.Photo, models.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Photo{}, models.Event{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	event, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`,
		photo.EventID,
	))
	if err != nil {
		return models.Photo{}, models.Event{}, err
	}

	deviceID := ""
	deviceCount := 0
	if photo.DeviceID != nil && *photo.DeviceID != "" {
		deviceID = *photo.DeviceID
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM photos WHERE event_id = $1 AND device_id = $2`,
			event.ID, deviceID,
		).Scan(&deviceCount); err != nil {
			return models.Photo{}, models.Event{}, fmt.Errorf("count device photos: %w", err)
		}
	}

	if err := rules.CheckPhotoAdmission(event, deviceID, deviceCount, now); err != nil {
		return models.Photo{}, models.Event{}, err
	}

	const insert = `
		INSERT INTO photos (id, event_id, url, public_id, width, height, creator, device_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + photoColumns

	stored, err := scanPhoto(tx.QueryRow(ctx, insert,
		photo.ID,
		event.ID,
		photo.URL,
		photo.PublicID,
		photo.Width,
		photo.Height,
		photo.Creator,
		photo.DeviceID,
	))
	if err != nil {
		return models.Photo{}, models.Event{}, fmt.Errorf("insert photo: %w", err)
	}

	if err := tx.QueryRow(ctx,
		`UPDATE events SET used_photos = used_photos + 1, updated_at = NOW() WHERE id = $1 RETURNING used_photos, updated_at`,
		event.ID,
	).Scan(&event.UsedPhotos, &event.UpdatedAt); err != nil {
		return models.Photo{}, models.Event{}, fmt.Errorf("increment used_photos: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Photo{}, models.Event{}, fmt.Errorf("commit transaction: %w", err)
	}
	return stored, event, nil
}

func (r *PhotoRepository) CountByDevice(ctx context.Context, eventID, deviceID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM photos WHERE event_id = $1 AND device_id = $2`,
		eventID, deviceID,
	).Scan(&count)
	return count, err
}

func (r *PhotoRepository) GetByID(ctx context.Context, id string) (models.Photo, error) {
	return scanPhoto(r.pool.QueryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = $1`, id))
}

// ListByEvent returns the event's photos, newest first. A non-empty deviceID
// restricts the result to that device.
func (r *PhotoRepository) ListByEvent(ctx context.Context, eventID, deviceID string) ([]models.Photo, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if deviceID == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT `+photoColumns+`
			FROM photos
			WHERE event_id = $1
			ORDER BY created_at DESC, id DESC
		`, eventID)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+photoColumns+`
			FROM photos
			WHERE event_id = $1 AND device_id = $2
			ORDER BY created_at DESC, id DESC
		`, eventID, deviceID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := make([]models.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// Delete removes the photo record. used_photos is left as is.
func (r *PhotoRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPhotoNotFound
	}
	return nil
}

func scanPhoto(row pgx.Row) (models.Photo, error) {
	var photo models.Photo
	if err := row.Scan(
		&photo.ID,
		&photo.EventID,
		&photo.URL,
		&photo.PublicID,
		&photo.Width,
		&photo.Height,
		&photo.Creator,
		&photo.DeviceID,
		&photo.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Photo{}, ErrPhotoNotFound
		}
		return models.Photo{}, err
	}
	return photo, nil
}
