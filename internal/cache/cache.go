// Package cache keeps a short-lived copy of the reservation listing so
// read-heavy endpoints do not hammer the record store. Mutations
// invalidate the copy; a singleflight group collapses concurrent
// refreshes into one backend read.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/linyucheng/seatbook-backend/internal/records"
	"github.com/linyucheng/seatbook-backend/pkg/metrics"
)

const refreshKey = "reservations"

// Lister is the slice of the record store the cache reads through.
type Lister interface {
	ListAll(ctx context.Context) ([]records.Reservation, error)
}

// ReservationCache is a TTL read-through cache over the full
// reservation listing.
type ReservationCache struct {
	source Lister
	ttl    time.Duration
	m      *metrics.BookingMetrics

	group singleflight.Group

	mu        sync.Mutex
	entries   []records.Reservation
	fetchedAt time.Time
	valid     bool
	// gen moves on every Invalidate; a refresh that started before the
	// invalidation must not commit its result as valid.
	gen uint64
}

// New wires the cache to its record source.
func New(source Lister, ttl time.Duration, m *metrics.BookingMetrics) (*ReservationCache, error) {
	if source == nil {
		return nil, fmt.Errorf("cache source required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &ReservationCache{source: source, ttl: ttl, m: m}, nil
}

// List returns the cached reservation listing, refreshing it from the
// record store when stale. The returned slice is a copy.
func (c *ReservationCache) List(ctx context.Context) ([]records.Reservation, error) {
	c.mu.Lock()
	if c.valid && time.Since(c.fetchedAt) < c.ttl {
		out := cloneList(c.entries)
		c.mu.Unlock()
		c.m.ObserveCacheHit()
		return out, nil
	}
	c.mu.Unlock()

	c.m.ObserveCacheMiss()
	fresh, err, _ := c.group.Do(refreshKey, func() (any, error) {
		c.mu.Lock()
		startGen := c.gen
		c.mu.Unlock()

		entries, err := c.source.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == startGen {
			c.entries = entries
			c.fetchedAt = time.Now()
			c.valid = true
		}
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneList(fresh.([]records.Reservation)), nil
}

// Invalidate drops the cached listing. Call after any mutation.
func (c *ReservationCache) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.valid = false
	c.entries = nil
	c.mu.Unlock()
	c.group.Forget(refreshKey)
}

func cloneList(in []records.Reservation) []records.Reservation {
	out := make([]records.Reservation, len(in))
	copy(out, in)
	return out
}
