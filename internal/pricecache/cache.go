// Package pricecache keeps the most recent live price per car and refreshes
// the prices of the cars currently in the live view.
package pricecache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/metrics"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/schedule"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
)

// RefreshInterval is how often the live set is re-fetched
const RefreshInterval = 3 * time.Second

// Fetcher fetches one car's price
type Fetcher interface {
	FetchPrice(ctx context.Context, itemID string) (models.LivePrice, error)
}

// Cache maps item id to its last known price. Refresh results are sequenced
// per id so a slow, older response never overwrites a newer one.
type Cache struct {
	fetcher Fetcher
	log     *slog.Logger

	mu      sync.Mutex
	prices  map[string]models.LivePrice
	issued  map[string]uint64 // last sequence handed out per id
	applied map[string]uint64 // sequence of the stored value per id
	gen     uint64            // bumped by Clear

	inflight sync.WaitGroup
	sched    *schedule.Periodic
}

// New creates an empty cache
func New(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		log:     slog.With("component", "pricecache"),
		prices:  make(map[string]models.LivePrice),
		issued:  make(map[string]uint64),
		applied: make(map[string]uint64),
	}
}

// Refresh fetches the price for itemID and stores it. On failure the
// previous value is left untouched and the error is returned.
func (c *Cache) Refresh(ctx context.Context, itemID string) error {
	c.mu.Lock()
	c.issued[itemID]++
	seq, gen := c.issued[itemID], c.gen
	c.mu.Unlock()

	price, err := c.fetcher.FetchPrice(ctx, itemID)
	if err != nil {
		metrics.PriceRefreshes.WithLabelValues("error").Inc()
		c.log.Warn("price refresh failed", "item", itemID, "error", err)
		return err
	}
	if price.FetchedAt.IsZero() {
		price.FetchedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || seq < c.applied[itemID] {
		metrics.PriceRefreshes.WithLabelValues("stale").Inc()
		return nil
	}
	c.prices[itemID] = price
	c.applied[itemID] = seq
	metrics.PriceRefreshes.WithLabelValues("ok").Inc()
	return nil
}

// RefreshAll starts one background refresh per id and returns immediately.
// Use Wait to join them.
func (c *Cache) RefreshAll(ctx context.Context, ids []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		c.inflight.Add(1)
		go func(id string) {
			defer c.inflight.Done()
			c.Refresh(ctx, id)
		}(id)
	}
}

// Wait blocks until every refresh started by RefreshAll has finished
func (c *Cache) Wait() {
	c.inflight.Wait()
}

// Apply stores a pushed price. It supersedes any fetch still in flight.
func (c *Cache) Apply(itemID string, price models.LivePrice) {
	if price.Price < 0 {
		price.Price = 0
	}
	if price.FetchedAt.IsZero() {
		price.FetchedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[itemID]++
	c.applied[itemID] = c.issued[itemID]
	c.prices[itemID] = price
}

// Get returns the cached price, or a zero price when none is known
func (c *Cache) Get(itemID string) models.LivePrice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prices[itemID]
}

// Price returns the cached amount, 0 when unknown
func (c *Cache) Price(itemID string) int64 {
	return c.Get(itemID).Price
}

// Lookup tries each key in order and returns the first cached price.
// Cars can be keyed by id, beadingCarId or bidCarId.
func (c *Cache) Lookup(keys ...string) (models.LivePrice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if p, ok := c.prices[k]; ok {
			return p, true
		}
	}
	return models.LivePrice{}, false
}

// Snapshot returns a copy of every cached price
func (c *Cache) Snapshot() map[string]models.LivePrice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.LivePrice, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

// Clear drops all prices. Fetches still in flight are discarded on arrival.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.prices = make(map[string]models.LivePrice)
	c.issued = make(map[string]uint64)
	c.applied = make(map[string]uint64)
}

// Run refreshes active() every RefreshInterval while it is non-empty and
// parks otherwise. Call Wake when the active set may have grown.
func (c *Cache) Run(ctx context.Context, active func() []string) {
	c.run(ctx, RefreshInterval, active)
}

func (c *Cache) run(ctx context.Context, interval time.Duration, active func() []string) {
	c.mu.Lock()
	c.sched = schedule.NewPeriodic(interval,
		func() bool { return len(active()) > 0 },
		func(time.Time) { c.RefreshAll(ctx, active()) },
	)
	sched := c.sched
	c.mu.Unlock()

	sched.Run(ctx)
}

// Wake nudges a parked Run loop
func (c *Cache) Wake() {
	c.mu.Lock()
	sched := c.sched
	c.mu.Unlock()
	if sched != nil {
		sched.Wake()
	}
}
