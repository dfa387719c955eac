package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"snapify/internal/models"
	"snapify/internal/queue"
	"snapify/internal/rules"
)

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]error
}

func (f *fakeDeleter) Delete(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[publicID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, publicID)
	return nil
}

type fakeEvents struct {
	events  []models.Event
	photos  map[string][]string
	gone    map[string]bool
	deleted []string
	cutoff  time.Time
}

func (f *fakeEvents) ListExpiredBefore(_ context.Context, cutoff time.Time, limit int) ([]models.Event, error) {
	f.cutoff = cutoff
	var out []models.Event
	for _, e := range f.events {
		if e.ExpiresAt.Before(cutoff) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) Delete(_ context.Context, id string) ([]string, error) {
	if f.gone[id] {
		return nil, rules.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	return f.photos[id], nil
}

func TestPurgeDeletesAllBinaries(t *testing.T) {
	images := &fakeDeleter{fail: map[string]error{"gone": rules.ErrNotFound}}
	p := NewProcessor(images, &fakeEvents{}, 0, zerolog.Nop())

	err := p.Handle(context.Background(), queue.Task{
		Type:      queue.TaskPurge,
		EventCode: "ABC123",
		PublicIDs: []string{"a", "gone", "b"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(images.deleted) != 2 {
		t.Fatalf("deleted = %v", images.deleted)
	}
}

func TestPurgeReportsUpstreamFailure(t *testing.T) {
	images := &fakeDeleter{fail: map[string]error{"b": rules.ErrUpstream}}
	p := NewProcessor(images, &fakeEvents{}, 0, zerolog.Nop())

	err := p.Handle(context.Background(), queue.Task{Type: queue.TaskPurge, PublicIDs: []string{"a", "b"}})
	if err == nil {
		t.Fatal("expected error so the task is retried")
	}
	if len(images.deleted) != 1 || images.deleted[0] != "a" {
		t.Fatalf("deleted = %v", images.deleted)
	}
}

func TestRetentionRemovesOldEvents(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeEvents{
		events: []models.Event{
			{ID: "old", Code: "OLD111", ExpiresAt: now.Add(-48 * time.Hour)},
			{ID: "recent", Code: "NEW222", ExpiresAt: now.Add(-time.Hour)},
		},
		photos: map[string][]string{"old": {"snapify/events/OLD111/p1.jpg"}},
	}
	images := &fakeDeleter{}
	p := NewProcessor(images, store, 24*time.Hour, zerolog.Nop())
	p.now = func() time.Time { return now }

	if err := p.Handle(context.Background(), queue.Task{Type: queue.TaskRetention}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !store.cutoff.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("cutoff = %v", store.cutoff)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "old" {
		t.Fatalf("deleted events = %v", store.deleted)
	}
	if len(images.deleted) != 1 {
		t.Fatalf("deleted binaries = %v", images.deleted)
	}
}

func TestRetentionDisabled(t *testing.T) {
	store := &fakeEvents{events: []models.Event{{ID: "old", ExpiresAt: time.Unix(0, 0)}}}
	p := NewProcessor(&fakeDeleter{}, store, 0, zerolog.Nop())

	if err := p.Handle(context.Background(), queue.Task{Type: queue.TaskRetention}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(store.deleted) != 0 {
		t.Fatalf("retention should be disabled, deleted %v", store.deleted)
	}
}

func TestUnknownTaskIsAcked(t *testing.T) {
	p := NewProcessor(&fakeDeleter{}, &fakeEvents{}, 0, zerolog.Nop())
	if err := p.Handle(context.Background(), queue.Task{Type: "thumbnail"}); err != nil {
		t.Fatalf("unknown task should not error, got %v", err)
	}
}


func TestRetentionSkipsEventsDeletedMeanwhile(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeEvents{
		events: []models.Event{
			{ID: "raced", Code: "RACE11", ExpiresAt: now.Add(-72 * time.Hour)},
			{ID: "old", Code: "OLD111", ExpiresAt: now.Add(-48 * time.Hour)},
		},
		photos: map[string][]string{"old": {"snapify/events/OLD111/p1.jpg", "snapify/events/OLD111/p2.jpg"}},
		gone:   map[string]bool{"raced": true},
	}
	images := &fakeDeleter{}
	p := NewProcessor(images, store, 24*time.Hour, zerolog.Nop())
	p.now = func() time.Time { return now }

	if err := p.Handle(context.Background(), queue.Task{Type: queue.TaskRetention}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "old" {
		t.Fatalf("deleted events = %v", store.deleted)
	}
	if len(images.deleted) != 2 {
		t.Fatalf("deleted binaries = %v", images.deleted)
	}
}
