// Package pricing provides the time-bounded price cache and the
// bounded-concurrency fetcher that shield the rest of the system from
// excessive provider calls.
package pricing

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashwinm/foliotrack/internal/clientdata"
)

// Snapshot tables in cache.db.
const (
	tableCurrentPrices  = "current_prices"
	tablePreviousCloses = "previous_closes"
)

// cachedPrice is the structure persisted per ticker.
type cachedPrice struct {
	Price float64 `json:"price"`
}

type cacheEntry struct {
	price      float64
	observedAt time.Time
}

// PriceCache maps ticker to (price, observation time) and answers
// "do I have a fresh price?". A read is fresh only while its age is
// below the TTL; stale entries are transparently treated as misses.
//
// Previous closes are held under a separate key space with their own
// TTL - a previous close rarely changes intraday and can be cached far
// longer than a live price.
//
// The cache optionally writes through to a clientdata repository so a
// restart warm-starts from disk. A missing or corrupt snapshot store
// is never fatal; the cache just starts empty.
type PriceCache struct {
	mu      sync.RWMutex
	prices  map[string]cacheEntry
	prev    map[string]cacheEntry
	ttl     time.Duration
	prevTTL time.Duration

	snapshots *clientdata.Repository // optional, nil disables persistence
	log       zerolog.Logger
}

// NewPriceCache creates a price cache. snapshots may be nil, in which
// case the cache is purely in-memory.
func NewPriceCache(ttl, prevTTL time.Duration, snapshots *clientdata.Repository, log zerolog.Logger) *PriceCache {
	c := &PriceCache{
		prices:    make(map[string]cacheEntry),
		prev:      make(map[string]cacheEntry),
		ttl:       ttl,
		prevTTL:   prevTTL,
		snapshots: snapshots,
		log:       log.With().Str("service", "price_cache").Logger(),
	}
	c.warmStart()
	return c
}

// warmStart loads unexpired snapshots from disk. Best effort only -
// any failure degrades to an empty cache.
func (c *PriceCache) warmStart() {
	if c.snapshots == nil {
		return
	}

	loaded := 0

	load := func(table string, target map[string]cacheEntry, ttl time.Duration) {
		entries, err := c.snapshots.LoadFresh(table)
		if err != nil {
			c.log.Warn().Err(err).Str("table", table).Msg("Failed to load price snapshots, starting empty")
			return
		}
		for _, e := range entries {
			var cached cachedPrice
			if err := json.Unmarshal(e.Data, &cached); err != nil {
				continue
			}
			// Reconstruct the observation time from the stored expiry so
			// the in-memory TTL check stays consistent with disk.
			target[e.Ticker] = cacheEntry{
				price:      cached.Price,
				observedAt: e.ExpiresAt.Add(-ttl),
			}
			loaded++
		}
	}

	load(tableCurrentPrices, c.prices, c.ttl)
	load(tablePreviousCloses, c.prev, c.prevTTL)

	if loaded > 0 {
		c.log.Info().Int("entries", loaded).Msg("Warm-started price cache from disk")
	}
}

// Get returns the cached current price for a ticker. found is false if
// the ticker was never cached or the entry has aged past the TTL.
// No side effects - stale entries are left for the cleanup job.
func (c *PriceCache) Get(ticker string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.prices[ticker]
	c.mu.RUnlock()

	if !ok || time.Since(entry.observedAt) >= c.ttl {
		return 0, false
	}
	return entry.price, true
}

// Put stores a current price with the current wall-clock timestamp.
// Last write wins; prices are only ever freshened, never reconciled.
func (c *PriceCache) Put(ticker string, price float64) {
	c.mu.Lock()
	c.prices[ticker] = cacheEntry{price: price, observedAt: time.Now()}
	c.mu.Unlock()

	c.persist(tableCurrentPrices, ticker, price, c.ttl)
}

// GetPreviousClose returns the cached previous close for a ticker.
func (c *PriceCache) GetPreviousClose(ticker string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.prev[ticker]
	c.mu.RUnlock()

	if !ok || time.Since(entry.observedAt) >= c.prevTTL {
		return 0, false
	}
	return entry.price, true
}

// PutPreviousClose stores a previous close with the current wall-clock timestamp.
func (c *PriceCache) PutPreviousClose(ticker string, price float64) {
	c.mu.Lock()
	c.prev[ticker] = cacheEntry{price: price, observedAt: time.Now()}
	c.mu.Unlock()

	c.persist(tablePreviousCloses, ticker, price, c.prevTTL)
}

// persist writes through to the snapshot store. Failures are logged
// and swallowed - persistence is a warm-start optimization, not a
// correctness requirement.
func (c *PriceCache) persist(table, ticker string, price float64, ttl time.Duration) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.Store(table, ticker, cachedPrice{Price: price}, ttl); err != nil {
		c.log.Warn().Err(err).Str("ticker", ticker).Str("table", table).Msg("Failed to persist price snapshot")
	}
}

// Len returns the number of current-price entries, fresh or stale.
// Used for diagnostics.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

// Evict drops in-memory entries (both key spaces) whose age exceeds
// their TTL. Returns the number of entries removed.
func (c *PriceCache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for ticker, entry := range c.prices {
		if time.Since(entry.observedAt) >= c.ttl {
			delete(c.prices, ticker)
			removed++
		}
	}
	for ticker, entry := range c.prev {
		if time.Since(entry.observedAt) >= c.prevTTL {
			delete(c.prev, ticker)
			removed++
		}
	}
	return removed
}
