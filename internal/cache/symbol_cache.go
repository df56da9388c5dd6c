package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"equity-trading-bot/internal/broker"
	"equity-trading-bot/internal/logging"
	"equity-trading-bot/internal/market"
)

// FetchFunc produces a SymbolData snapshot for a cache miss
type FetchFunc func(ctx context.Context) (*market.SymbolData, error)

// Config holds cache sizing and freshness policy
type Config struct {
	Capacity    int           `json:"capacity"`     // Max ready entries (LRU beyond this)
	TTLIntraday time.Duration `json:"ttl_intraday"` // Freshness for intraday intervals
	TTLDaily    time.Duration `json:"ttl_daily"`    // Freshness for daily interval
}

// DefaultConfig returns the standard cache policy
func DefaultConfig() *Config {
	return &Config{
		Capacity:    2048,
		TTLIntraday: 30 * time.Minute,
		TTLDaily:    24 * time.Hour,
	}
}

// TTLFor returns the freshness window for an interval
func (c *Config) TTLFor(interval market.Interval) time.Duration {
	if interval.IsIntraday() {
		return c.TTLIntraday
	}
	return c.TTLDaily
}

// Stats holds cache counters
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	InFlight  int
	Entries   int
}

type entry struct {
	key      market.Key
	data     *market.SymbolData
	err      error
	inflight bool
	done     chan struct{}
	elem     *list.Element // LRU position; nil while in flight (pinned)
}

// SymbolCache is the shared time-bounded cache of fetched bars and derived
// indicators. Concurrent callers for the same key share one underlying
// fetch; a published SymbolData is immutable.
type SymbolCache struct {
	mu      sync.Mutex
	clock   market.Clock
	config  *Config
	log     *logging.Logger
	entries map[market.Key]*entry
	lru     *list.List // market.Key values, front = most recently used
	stats   Stats
}

// New creates an empty symbol cache
func New(clock market.Clock, config *Config, log *logging.Logger) *SymbolCache {
	if config == nil {
		config = DefaultConfig()
	}
	return &SymbolCache{
		clock:   clock,
		config:  config,
		log:     log.WithComponent("symbol_cache"),
		entries: make(map[market.Key]*entry),
		lru:     list.New(),
	}
}

// GetOrFetch returns a fresh entry for the key, or runs fetch exactly once
// across all concurrent callers and shares the outcome. A caller whose
// context expires receives a timeout; the in-flight fetch keeps running and
// its result is stored for later readers.
func (c *SymbolCache) GetOrFetch(ctx context.Context, key market.Key, fetch FetchFunc) (*market.SymbolData, error) {
	c.mu.Lock()
	now := c.clock.Now()

	if e, ok := c.entries[key]; ok {
		if e.inflight {
			c.mu.Unlock()
			return c.wait(ctx, e)
		}
		if e.data.Fresh(now) {
			c.stats.Hits++
			c.lru.MoveToFront(e.elem)
			data := e.data
			c.mu.Unlock()
			return data, nil
		}
		// Stale entries are treated as absent
		c.removeLocked(e)
	}

	c.stats.Misses++
	e := &entry{key: key, inflight: true, done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	// The fetch is detached from the caller's deadline: waiters may time out
	// individually while the underlying call finishes and populates the
	// cache. The fetcher's own per-call caps bound the detached work.
	go c.runFetch(context.WithoutCancel(ctx), e, fetch)

	return c.wait(ctx, e)
}

func (c *SymbolCache) runFetch(ctx context.Context, e *entry, fetch FetchFunc) {
	data, err := fetch(ctx)

	c.mu.Lock()
	e.err = err
	e.inflight = false
	if err != nil || data == nil {
		delete(c.entries, e.key)
		if err == nil {
			e.err = broker.NewError(broker.KindTransient, e.key.Symbol, nil)
		}
	} else {
		if data.FetchedAt.IsZero() {
			data.FetchedAt = c.clock.Now()
		}
		if data.ValidUntil.IsZero() {
			data.ValidUntil = data.FetchedAt.Add(c.config.TTLFor(e.key.Interval))
		}
		e.data = data
		e.elem = c.lru.PushFront(e.key)
		c.evictLocked()
	}
	close(e.done)
	c.mu.Unlock()
}

// wait blocks until the shared fetch completes or the caller's deadline
// elapses. All waiters observe the same SymbolData or the same error.
func (c *SymbolCache) wait(ctx context.Context, e *entry) (*market.SymbolData, error) {
	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, broker.NewError(broker.KindTimeout, e.key.Symbol, ctx.Err())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.data, nil
}

// Invalidate removes a ready entry. A concurrent in-flight fetch for the
// same key is unaffected.
func (c *SymbolCache) Invalidate(key market.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && !e.inflight {
		c.removeLocked(e)
	}
}

// Sweep drops all stale ready entries; optional periodic housekeeping on
// top of the lazy on-read eviction.
func (c *SymbolCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	removed := 0
	for _, e := range c.entries {
		if !e.inflight && !e.data.Fresh(now) {
			c.removeLocked(e)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of the cache counters
func (c *SymbolCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	s.InFlight = len(c.entries) - c.lru.Len()
	return s
}

func (c *SymbolCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
}

// evictLocked drops least-recently-used ready entries beyond capacity.
// In-flight entries are pinned by construction (not on the LRU list).
func (c *SymbolCache) evictLocked() {
	for c.lru.Len() > c.config.Capacity {
		back := c.lru.Back()
		if back == nil {
			return
		}
		key := back.Value.(market.Key)
		if e, ok := c.entries[key]; ok {
			c.removeLocked(e)
			c.stats.Evictions++
			c.log.Debug("evicted cache entry", "key", key.String())
		} else {
			c.lru.Remove(back)
		}
	}
}
