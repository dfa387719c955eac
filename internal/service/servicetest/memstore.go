// Package servicetest provides in-memory stand-ins for the stores and
// collaborators the services depend on.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"snapify/internal/imagehost"
	"snapify/internal/models"
	"snapify/internal/queue"
	"snapify/internal/rules"
)

// MemStore keeps events and photos in memory. One mutex guards both so
// Admit behaves like the row-locked transaction of the real store.
type MemStore struct {
	mu     sync.Mutex
	events map[string]models.Event
	photos map[string]models.Photo
	seq    int
}

func NewMemStore() *MemStore {
	return &MemStore{
		events: map[string]models.Event{},
		photos: map[string]models.Photo{},
	}
}

func (m *MemStore) Create(_ context.Context, event models.Event, ownerLimit int) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.CreatedByID != nil {
		if err := rules.CheckOwnerQuota(m.countByOwnerLocked(*event.CreatedByID), ownerLimit); err != nil {
			return models.Event{}, err
		}
	}
	for _, e := range m.events {
		if e.Code == event.Code {
			return models.Event{}, rules.ErrCodeTaken
		}
	}
	event.UsedPhotos = 0
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	m.events[event.ID] = event
	return event, nil
}

func (m *MemStore) countByOwnerLocked(ownerID string) int {
	n := 0
	for _, e := range m.events {
		if e.OwnedBy(ownerID) {
			n++
		}
	}
	return n
}

func (m *MemStore) CountByOwner(_ context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countByOwnerLocked(ownerID), nil
}

func (m *MemStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), nil
}

func (m *MemStore) GetByID(_ context.Context, id string) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return models.Event{}, fmt.Errorf("event %w", rules.ErrNotFound)
	}
	return e, nil
}

func (m *MemStore) GetByCode(_ context.Context, code string) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Code == code {
			return e, nil
		}
	}
	return models.Event{}, fmt.Errorf("event %w", rules.ErrNotFound)
}

func (m *MemStore) ListByOwner(_ context.Context, ownerID string) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.events {
		if e.OwnedBy(ownerID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) List(_ context.Context, limit, offset int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]models.Event, 0, len(m.events))
	for _, e := range m.events {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	if offset >= len(all) {
		return []models.Event{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MemStore) Update(_ context.Context, id string, patch rules.EventPatch) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return models.Event{}, fmt.Errorf("event %w", rules.ErrNotFound)
	}
	next, err := rules.ApplyPatch(e, patch)
	if err != nil {
		return models.Event{}, err
	}
	m.events[id] = next
	return next, nil
}

func (m *MemStore) Delete(_ context.Context, id string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return nil, fmt.Errorf("event %w", rules.ErrNotFound)
	}
	delete(m.events, id)
	publicIDs := make([]string, 0)
	for pid, p := range m.photos {
		if p.EventID == id {
			delete(m.photos, pid)
			if p.PublicID != "" {
				publicIDs = append(publicIDs, p.PublicID)
			}
		}
	}
	sort.Strings(publicIDs)
	return publicIDs, nil
}

// PhotoView exposes the photo half of a MemStore; its Delete removes photos.
type PhotoView struct{ *MemStore }

func (m *MemStore) Photos() PhotoView { return PhotoView{m} }

func (p PhotoView) Admit(_ context.Context, photo models.Photo, now time.Time) (models.Photo, models.Event, error) {
	m := p.MemStore
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[photo.EventID]
	if !ok {
		return models.Photo{}, models.Event{}, fmt.Errorf("event %w", rules.ErrNotFound)
	}
	deviceID := ""
	if photo.DeviceID != nil {
		deviceID = *photo.DeviceID
	}
	if err := rules.CheckPhotoAdmission(event, deviceID, m.countByDeviceLocked(event.ID, deviceID), now); err != nil {
		return models.Photo{}, models.Event{}, err
	}

	m.seq++
	photo.CreatedAt = now.Add(time.Duration(m.seq) * time.Millisecond)
	m.photos[photo.ID] = photo
	event.UsedPhotos++
	m.events[event.ID] = event
	return photo, event, nil
}

func (m *MemStore) countByDeviceLocked(eventID, deviceID string) int {
	if deviceID == "" {
		return 0
	}
	n := 0
	for _, ph := range m.photos {
		if ph.EventID == eventID && ph.DeviceID != nil && *ph.DeviceID == deviceID {
			n++
		}
	}
	return n
}

func (p PhotoView) CountByDevice(_ context.Context, eventID, deviceID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countByDeviceLocked(eventID, deviceID), nil
}

func (p PhotoView) GetByID(_ context.Context, id string) (models.Photo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ph, ok := p.photos[id]
	if !ok {
		return models.Photo{}, fmt.Errorf("photo %w", rules.ErrNotFound)
	}
	return ph, nil
}

func (p PhotoView) ListByEvent(_ context.Context, eventID, deviceID string) ([]models.Photo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Photo, 0)
	for _, ph := range p.photos {
		if ph.EventID != eventID {
			continue
		}
		if deviceID != "" && (ph.DeviceID == nil || *ph.DeviceID != deviceID) {
			continue
		}
		out = append(out, ph)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (p PhotoView) Delete(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.photos[id]; !ok {
		return fmt.Errorf("photo %w", rules.ErrNotFound)
	}
	delete(p.photos, id)
	return nil
}

type FakeHost struct {
	mu      sync.Mutex
	uploads int
	deleted []string

	UploadErr error
	DeleteErr error
}

func (h *FakeHost) Upload(_ context.Context, _ []byte, folder string) (imagehost.UploadResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.UploadErr != nil {
		return imagehost.UploadResult{}, h.UploadErr
	}
	h.uploads++
	id := fmt.Sprintf("%s/photo-%03d.jpg", folder, h.uploads)
	return imagehost.UploadResult{
		URL:      h.URL(id),
		PublicID: id,
		Width:    800,
		Height:   600,
	}, nil
}

func (h *FakeHost) URL(publicID string) string {
	return "https://img.example.test/" + publicID
}

func (h *FakeHost) Delete(_ context.Context, publicID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.DeleteErr != nil {
		return h.DeleteErr
	}
	h.deleted = append(h.deleted, publicID)
	return nil
}

func (h *FakeHost) Deleted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.deleted...)
}

type FakeQueue struct {
	mu    sync.Mutex
	tasks []queue.Task

	Err error
}

func (q *FakeQueue) Enqueue(_ context.Context, task queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

// JPEG is enough of a JPEG header for the sniffer.
var JPEG = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func (h *FakeHost) Uploads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uploads
}

func (q *FakeQueue) Tasks() []queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Task(nil), q.tasks...)
}

// SetUsedPhotos overwrites an event's counter, bypassing admission.
func (m *MemStore) SetUsedPhotos(eventID string, used int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.events[eventID]
	e.UsedPhotos = used
	m.events[eventID] = e
}
