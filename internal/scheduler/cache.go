package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// PreferenceStore is the external boundary owning subscriber lifecycle. The
// scheduler only reads from it.
type PreferenceStore interface {
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
}

// SubscriberCache is a read-through cache over the preference store,
// refreshed on an interval. When a refresh fails it keeps serving the last
// good snapshot so a flaky store cannot stall scheduling.
type SubscriberCache struct {
	store   PreferenceStore
	logger  *log.Logger
	refresh time.Duration

	mu      sync.RWMutex
	subs    []Subscriber
	fetched time.Time
}

func NewSubscriberCache(store PreferenceStore, logger *log.Logger, refresh time.Duration) *SubscriberCache {
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	return &SubscriberCache{
		store:   store,
		logger:  logger,
		refresh: refresh,
	}
}

// Subscribers returns the current snapshot, refreshing it when stale.
func (c *SubscriberCache) Subscribers(ctx context.Context) []Subscriber {
	c.mu.RLock()
	fresh := time.Since(c.fetched) < c.refresh && c.subs != nil
	subs := c.subs
	c.mu.RUnlock()
	if fresh {
		return subs
	}

	updated, err := c.store.ListSubscribers(ctx)
	if err != nil {
		c.logger.Printf("Subscriber refresh failed, serving stale snapshot of %d: %v", len(subs), err)
		return subs
	}

	c.mu.Lock()
	c.subs = updated
	c.fetched = time.Now()
	c.mu.Unlock()
	return updated
}

// Invalidate forces the next read to hit the store.
func (c *SubscriberCache) Invalidate() {
	c.mu.Lock()
	c.fetched = time.Time{}
	c.mu.Unlock()
}
