package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"snapify/internal/cache"
	"snapify/internal/ids"
	"snapify/internal/models"
	"snapify/internal/queue"
	"snapify/internal/rules"
	"snapify/internal/service/servicetest"
)

type eventFixture struct {
	store  *servicetest.MemStore
	host   *servicetest.FakeHost
	queue  *servicetest.FakeQueue
	events *EventService
	photos *PhotoService
}

func newFixture(t *testing.T, withQueue bool) *eventFixture {
	t.Helper()
	f := &eventFixture{store: servicetest.NewMemStore(), host: &servicetest.FakeHost{}}
	eventCache := cache.NewEventCache(16, time.Minute)

	var tasks TaskQueue
	if withQueue {
		f.queue = &servicetest.FakeQueue{}
		tasks = f.queue
	}
	f.events = NewEventService(f.store, f.store.Photos(), f.host, tasks, eventCache, 2, zerolog.Nop())
	f.photos = NewPhotoService(f.store, f.store.Photos(), f.host, eventCache, zerolog.Nop())
	return f
}

func validEvent() rules.NewEvent {
	return rules.NewEvent{
		Title:     "Summer party",
		MaxPhotos: 50,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
}

func TestCreateGeneratesCode(t *testing.T) {
	f := newFixture(t, false)

	event, err := f.events.Create(context.Background(), "", validEvent())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(event.Code) != ids.DefaultCodeLength {
		t.Fatalf("code %q has length %d", event.Code, len(event.Code))
	}
	for _, r := range event.Code {
		if !strings.ContainsRune(ids.CodeAlphabet, r) {
			t.Fatalf("code %q contains %q outside the alphabet", event.Code, r)
		}
	}
	if event.UsedPhotos != 0 || event.CreatedByID != nil {
		t.Fatalf("unexpected event %+v", event)
	}
	if len(event.AllowedFilters) != 1 || event.AllowedFilters[0] != rules.DefaultFilter {
		t.Fatalf("filters = %v", event.AllowedFilters)
	}
}

func TestCreateWithExplicitCode(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	in := validEvent()
	in.Code = " party1 "
	event, err := f.events.Create(ctx, "", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if event.Code != "PARTY1" {
		t.Fatalf("code = %q, want PARTY1", event.Code)
	}

	in.Code = "Party1"
	if _, err := f.events.Create(ctx, "", in); !errors.Is(err, rules.ErrCodeTaken) {
		t.Fatalf("duplicate code err = %v, want ErrCodeTaken", err)
	}
}

type collidingStore struct {
	*servicetest.MemStore
	collisions int
	attempts   int
}

func (c *collidingStore) Create(ctx context.Context, event models.Event, ownerLimit int) (models.Event, error) {
	c.attempts++
	if c.attempts <= c.collisions {
		return models.Event{}, rules.ErrCodeTaken
	}
	return c.MemStore.Create(ctx, event, ownerLimit)
}

func TestCreateRetriesGeneratedCode(t *testing.T) {
	store := &collidingStore{MemStore: servicetest.NewMemStore(), collisions: 3}
	svc := NewEventService(store, store.Photos(), &servicetest.FakeHost{}, nil, nil, 0, zerolog.Nop())

	if _, err := svc.Create(context.Background(), "", validEvent()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if store.attempts != 4 {
		t.Fatalf("attempts = %d, want 4", store.attempts)
	}

	store = &collidingStore{MemStore: servicetest.NewMemStore(), collisions: 100}
	svc = NewEventService(store, store.Photos(), &servicetest.FakeHost{}, nil, nil, 0, zerolog.Nop())
	if _, err := svc.Create(context.Background(), "", validEvent()); !errors.Is(err, rules.ErrCodeTaken) {
		t.Fatalf("err = %v, want ErrCodeTaken", err)
	}
	if store.attempts != codeAttempts {
		t.Fatalf("attempts = %d, want %d", store.attempts, codeAttempts)
	}
}

func TestCreateOwnerQuota(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.events.Create(ctx, "owner-1", validEvent()); err != nil {
			t.Fatalf("create #%d: %v", i+1, err)
		}
	}

	_, err := f.events.Create(ctx, "owner-1", validEvent())
	if !errors.Is(err, rules.ErrOwnerEventQuota) || !errors.Is(err, rules.ErrQuotaExceeded) {
		t.Fatalf("third create err = %v, want owner quota", err)
	}
	if errors.Is(err, rules.ErrDeviceQuotaExceeded) {
		t.Fatal("owner quota must be distinguishable from device quota")
	}

	// The quota is checked before the input.
	bad := validEvent()
	bad.MaxPhotos = 42
	if _, err := f.events.Create(ctx, "owner-1", bad); !errors.Is(err, rules.ErrOwnerEventQuota) {
		t.Fatalf("err = %v, want owner quota before validation", err)
	}

	if _, err := f.events.Create(ctx, "owner-2", validEvent()); err != nil {
		t.Fatalf("other owner: %v", err)
	}
	if _, err := f.events.Create(ctx, "", validEvent()); err != nil {
		t.Fatalf("anonymous create: %v", err)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	cases := map[string]func(*rules.NewEvent){
		"max photos outside packages": func(in *rules.NewEvent) { in.MaxPhotos = 60 },
		"per user above max":          func(in *rules.NewEvent) { v := 51; in.MaxPhotosPerUser = &v },
		"empty filters":               func(in *rules.NewEvent) { in.AllowedFilters = []string{} },
		"expiry in the past":          func(in *rules.NewEvent) { in.ExpiresAt = time.Now().Add(-time.Minute) },
		"blank title":                 func(in *rules.NewEvent) { in.Title = "  " },
	}
	for name, mutate := range cases {
		in := validEvent()
		mutate(&in)
		if _, err := f.events.Create(ctx, "", in); !errors.Is(err, rules.ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
	if n, _ := f.store.Count(ctx); n != 0 {
		t.Fatalf("%d events stored after rejected creates", n)
	}
}

func TestGetByCodeIsCaseInsensitiveAndStable(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	in := validEvent()
	in.Code = "ABCD12"
	created, err := f.events.Create(ctx, "", in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := f.events.GetByCode(ctx, "abcd12")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	second, err := f.events.GetByCode(ctx, "ABCD12")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if first.ID != created.ID || second.ID != created.ID || first.UsedPhotos != second.UsedPhotos {
		t.Fatalf("lookups disagree: %+v %+v", first, second)
	}

	if _, err := f.events.GetByCode(ctx, "NOPE99"); !errors.Is(err, rules.ErrNotFound) {
		t.Fatalf("unknown code err = %v", err)
	}
	if _, err := f.events.GetByCode(ctx, "../x"); !errors.Is(err, rules.ErrNotFound) {
		t.Fatalf("malformed code err = %v", err)
	}
}

func TestUpdateInvalidatesCachedEvent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	event, err := f.events.Create(ctx, "", validEvent())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.events.GetByCode(ctx, event.Code); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	title := "Renamed"
	if _, err := f.events.Update(ctx, event, rules.EventPatch{Title: &title}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := f.events.GetByCode(ctx, event.Code)
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if got.Title != "Renamed" {
		t.Fatalf("title = %q after update", got.Title)
	}
}

func TestUpdateCanCloseEventEarly(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	event, err := f.events.Create(ctx, "", validEvent())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	if _, err := f.events.Update(ctx, event, rules.EventPatch{ExpiresAt: &past}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, err = f.photos.Capture(ctx, CaptureInput{EventCode: event.Code, Creator: "Ana", Data: servicetest.JPEG})
	if !errors.Is(err, rules.ErrEventExpired) {
		t.Fatalf("capture after early close err = %v", err)
	}
}

func TestDeleteSchedulesPurge(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	event, err := f.events.Create(ctx, "", validEvent())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.photos.Capture(ctx, CaptureInput{EventCode: event.Code, Creator: "Ana", Data: servicetest.JPEG}); err != nil {
			t.Fatalf("Capture: %v", err)
		}
	}

	if err := f.events.Delete(ctx, event); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.events.GetByCode(ctx, event.Code); !errors.Is(err, rules.ErrNotFound) {
		t.Fatalf("deleted event still readable: %v", err)
	}
	if len(f.queue.Tasks()) != 1 {
		t.Fatalf("tasks = %+v", f.queue.Tasks())
	}
	task := f.queue.Tasks()[0]
	if task.Type != queue.TaskPurge || task.EventID != event.ID || len(task.PublicIDs) != 3 {
		t.Fatalf("unexpected task %+v", task)
	}
	if len(f.host.Deleted()) != 0 {
		t.Fatal("binaries should be left to the worker")
	}
}

func TestDeletePurgesInlineWithoutQueue(t *testing.T) {
	f := newFixture(t, true)
	f.queue.Err = errors.New("redis down")
	ctx := context.Background()

	event, err := f.events.Create(ctx, "", validEvent())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.photos.Capture(ctx, CaptureInput{EventCode: event.Code, Creator: "Ana", Data: servicetest.JPEG}); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if err := f.events.Delete(ctx, event); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.host.Deleted(); len(got) != 1 {
		t.Fatalf("inline purge deleted %v", got)
	}
}

func TestDeleteUnknownEvent(t *testing.T) {
	f := newFixture(t, false)
	err := f.events.Delete(context.Background(), models.Event{ID: "missing", Code: "MISS01"})
	if !errors.Is(err, rules.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListAllPaginates(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := f.events.Create(ctx, "", validEvent()); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	page, err := f.events.ListAll(ctx, 2, 2)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if page.Total != 5 || len(page.Events) != 2 || page.Page != 2 {
		t.Fatalf("page = %+v", page)
	}

	page, err = f.events.ListAll(ctx, 0, 1000)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if page.Page != 1 || page.PerPage != MaxPerPage || len(page.Events) != 5 {
		t.Fatalf("clamped page = %+v", page)
	}
}

func TestListOwnerEvents(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	if _, err := f.events.Create(ctx, "owner-1", validEvent()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.events.Create(ctx, "owner-2", validEvent()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	events, err := f.events.ListOwnerEvents(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListOwnerEvents: %v", err)
	}
	if len(events) != 1 || !events[0].OwnedBy("owner-1") {
		t.Fatalf("events = %+v", events)
	}
}
