package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"snapify/internal/cache"
	"snapify/internal/ids"
	"snapify/internal/imagehost"
	"snapify/internal/media/sniffer"
	"snapify/internal/models"
	"snapify/internal/rules"
)

type PhotoService struct {
	events EventStore
	photos PhotoStore
	images imagehost.Host
	cache  *cache.EventCache
	now    func() time.Time
	log    zerolog.Logger
}

func NewPhotoService(events EventStore, photos PhotoStore, images imagehost.Host, eventCache *cache.EventCache, log zerolog.Logger) *PhotoService {
	return &PhotoService{
		events: events,
		photos: photos,
		images: images,
		cache:  eventCache,
		now:    time.Now,
		log:    log,
	}
}

type CaptureInput struct {
	EventCode string
	Creator   string
	DeviceID  string
	Data      []byte
}

// Capture uploads a guest photo and records it. Admission is checked before
// the upload so a closed event never costs an upload, and again inside the
// store transaction so concurrent captures cannot overshoot the caps.
func (s *PhotoService) Capture(ctx context.Context, in CaptureInput) (photo models.Photo, err error) {
	defer func() { observeAdmission(err) }()

	creator, deviceID, err := normalizeContributor(in.Creator, in.DeviceID)
	if err != nil {
		return models.Photo{}, err
	}
	if len(in.Data) == 0 {
		return models.Photo{}, fmt.Errorf("%w: photo is empty", rules.ErrInvalidInput)
	}
	if _, err := sniffer.DetectHead(in.Data); err != nil {
		return models.Photo{}, fmt.Errorf("%w: photo must be a jpeg, png, gif, webp or heic image", rules.ErrInvalidInput)
	}

	// Read through to the store: the cached copy may lag the counter.
	event, err := s.events.GetByCode(ctx, rules.NormalizeCode(in.EventCode))
	if err != nil {
		return models.Photo{}, err
	}
	if err := s.precheck(ctx, event, deviceID); err != nil {
		return models.Photo{}, err
	}

	uploaded, err := s.images.Upload(ctx, in.Data, imagehost.EventFolder(event.Code))
	if err != nil {
		if errors.Is(err, rules.ErrInvalidInput) || errors.Is(err, rules.ErrUpstream) {
			return models.Photo{}, err
		}
		return models.Photo{}, fmt.Errorf("%w: %v", rules.ErrUpstream, err)
	}

	photo, err = s.admit(ctx, event, creator, deviceID, uploaded)
	if err != nil {
		if delErr := s.images.Delete(ctx, uploaded.PublicID); delErr != nil {
			s.log.Warn().Err(delErr).
				Str("event_id", event.ID).
				Str("public_id", uploaded.PublicID).
				Msg("remove rejected upload failed")
		}
		return models.Photo{}, err
	}
	return photo, nil
}

type RecordInput struct {
	EventID  string
	URL      string
	PublicID string
	Width    int
	Height   int
	Creator  string
	DeviceID string
}

// RecordPhoto admits a photo that has already been uploaded to the image
// host by the client. The stored URL is always derived from the public id;
// a URL sent along must match it.
func (s *PhotoService) RecordPhoto(ctx context.Context, in RecordInput) (photo models.Photo, err error) {
	defer func() { observeAdmission(err) }()

	creator, deviceID, err := normalizeContributor(in.Creator, in.DeviceID)
	if err != nil {
		return models.Photo{}, err
	}
	in.URL = strings.TrimSpace(in.URL)
	in.PublicID = strings.TrimSpace(in.PublicID)
	if in.EventID == "" || in.PublicID == "" {
		return models.Photo{}, fmt.Errorf("%w: eventId and publicId are required", rules.ErrInvalidInput)
	}
	if in.Width < 0 || in.Height < 0 {
		return models.Photo{}, fmt.Errorf("%w: dimensions must not be negative", rules.ErrInvalidInput)
	}

	event, err := s.events.GetByID(ctx, in.EventID)
	if err != nil {
		return models.Photo{}, err
	}
	if !imagehost.InFolder(in.PublicID, imagehost.EventFolder(event.Code)) {
		return models.Photo{}, fmt.Errorf("%w: publicId does not belong to this event", rules.ErrInvalidInput)
	}
	hostedURL := s.images.URL(in.PublicID)
	if in.URL != "" && in.URL != hostedURL {
		return models.Photo{}, fmt.Errorf("%w: url does not match publicId", rules.ErrInvalidInput)
	}
	if err := s.precheck(ctx, event, deviceID); err != nil {
		return models.Photo{}, err
	}

	return s.admit(ctx, event, creator, deviceID, imagehost.UploadResult{
		URL:      hostedURL,
		PublicID: in.PublicID,
		Width:    in.Width,
		Height:   in.Height,
	})
}

func (s *PhotoService) precheck(ctx context.Context, event models.Event, deviceID string) error {
	if err := rules.CheckEventOpen(event, s.now()); err != nil {
		return err
	}
	if deviceID == "" {
		return nil
	}
	count, err := s.photos.CountByDevice(ctx, event.ID, deviceID)
	if err != nil {
		return fmt.Errorf("count device photos: %w", err)
	}
	return rules.CheckPhotoAdmission(event, deviceID, count, s.now())
}

func (s *PhotoService) admit(ctx context.Context, event models.Event, creator, deviceID string, uploaded imagehost.UploadResult) (models.Photo, error) {
	photo := models.Photo{
		ID:       ids.New(),
		EventID:  event.ID,
		URL:      uploaded.URL,
		PublicID: uploaded.PublicID,
		Width:    uploaded.Width,
		Height:   uploaded.Height,
		Creator:  creator,
	}
	if deviceID != "" {
		photo.DeviceID = &deviceID
	}

	stored, _, err := s.photos.Admit(ctx, photo, s.now())
	s.cache.Invalidate(event.Code)
	if err != nil {
		return models.Photo{}, err
	}
	return stored, nil
}

func (s *PhotoService) ListPhotos(ctx context.Context, eventID, deviceID string) ([]models.Photo, error) {
	deviceID, err := rules.NormalizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	return s.photos.ListByEvent(ctx, eventID, deviceID)
}

func (s *PhotoService) GetPhoto(ctx context.Context, id string) (models.Photo, error) {
	return s.photos.GetByID(ctx, id)
}

// DeletePhoto removes the photo record and, best effort, its binary. The
// event's used counter is not given back.
func (s *PhotoService) DeletePhoto(ctx context.Context, photo models.Photo) error {
	if photo.PublicID != "" {
		if err := s.images.Delete(ctx, photo.PublicID); err != nil {
			s.log.Warn().Err(err).
				Str("photo_id", photo.ID).
				Str("public_id", photo.PublicID).
				Msg("delete binary failed")
		}
	}
	return s.photos.Delete(ctx, photo.ID)
}

func normalizeContributor(creator, deviceID string) (string, string, error) {
	creator, err := rules.NormalizeCreator(creator)
	if err != nil {
		return "", "", err
	}
	deviceID, err = rules.NormalizeDeviceID(deviceID)
	if err != nil {
		return "", "", err
	}
	return creator, deviceID, nil
}
