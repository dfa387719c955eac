package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"snapify/internal/models"
)

var (
	eventCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapify_event_cache_hits_total",
		Help: "Event lookups served from the in-process cache.",
	})
	eventCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapify_event_cache_misses_total",
		Help: "Event lookups that went to the database.",
	})
)

// EventCache keeps recently read events keyed by code. It only serves reads;
// admission always re-reads the event under a row lock.
type EventCache struct {
	lru *expirable.LRU[string, models.Event]
}

func NewEventCache(size int, ttl time.Duration) *EventCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &EventCache{lru: expirable.NewLRU[string, models.Event](size, nil, ttl)}
}

func (c *EventCache) Get(code string) (models.Event, bool) {
	if c == nil {
		return models.Event{}, false
	}
	event, ok := c.lru.Get(code)
	if ok {
		eventCacheHits.Inc()
		return event, true
	}
	eventCacheMisses.Inc()
	return models.Event{}, false
}

func (c *EventCache) Set(event models.Event) {
	if c == nil {
		return
	}
	c.lru.Add(event.Code, event)
}

func (c *EventCache) Invalidate(code string) {
	if c == nil {
		return
	}
	c.lru.Remove(code)
}
