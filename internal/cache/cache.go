// Package cache is the read-path query cache: entries are fresh for TTL,
// then served stale for up to Stale more while a single background load
// refreshes them. It is never consulted on the booking write path.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	ResultHit   = "hit"
	ResultStale = "stale"
	ResultMiss  = "miss"
)

// refreshTimeout bounds a background refresh started by a stale read.
const refreshTimeout = 10 * time.Second

type entry struct {
	value      any
	freshUntil time.Time
}

type Option func(*QueryCache)

// WithObserver reports every lookup result (hit, stale, miss).
func WithObserver(fn func(result string)) Option {
	return func(c *QueryCache) { c.observe = fn }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *QueryCache) { c.now = now }
}

type QueryCache struct {
	store *gocache.Cache
	ttl   time.Duration
	stale time.Duration

	now     func() time.Time
	observe func(string)

	mu       sync.Mutex
	inflight map[string]struct{}
	// gen moves on every invalidation; loads started under an older
	// generation are not stored.
	gen uint64
	wg  sync.WaitGroup
}

func New(ttl, stale time.Duration, opts ...Option) *QueryCache {
	c := &QueryCache{
		// go-cache keeps the entry through the stale window; freshness is
		// tracked on the entry itself.
		store:    gocache.New(ttl+stale, ttl+stale),
		ttl:      ttl,
		stale:    stale,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch returns the cached value for key, loading it with load on a miss.
// A stale value is returned immediately and refreshed in the background;
// concurrent stale reads start at most one refresh per key.
func Fetch[T any](ctx context.Context, c *QueryCache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	if raw, ok := c.store.Get(key); ok {
		e := raw.(entry)
		now := c.now()
		if v, ok := e.value.(T); ok && now.Before(e.freshUntil.Add(c.stale)) {
			if now.Before(e.freshUntil) {
				c.report(ResultHit)
				return v, nil
			}
			c.report(ResultStale)
			c.refresh(ctx, key, func(ctx context.Context) (any, error) { return load(ctx) })
			return v, nil
		}
	}

	c.report(ResultMiss)
	gen := c.generation()
	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.set(key, v, gen)
	return v, nil
}

func (c *QueryCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// set stores v unless the cache was invalidated after gen was read.
func (c *QueryCache) set(key string, v any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.store.Set(key, entry{value: v, freshUntil: c.now().Add(c.ttl)}, gocache.DefaultExpiration)
	return true
}

func (c *QueryCache) refresh(ctx context.Context, key string, load func(ctx context.Context) (any, error)) {
	c.mu.Lock()
	if _, busy := c.inflight[key]; busy {
		c.mu.Unlock()
		return
	}
	c.inflight[key] = struct{}{}
	gen := c.gen
	c.mu.Unlock()

	logger := zerolog.Ctx(ctx)
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
		}()

		v, err := load(bg)
		if err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("cache refresh failed, keeping stale value")
			return
		}
		if !c.set(key, v, gen) {
			logger.Debug().Str("key", key).Msg("cache invalidated during refresh, result dropped")
		}
	}()
}

func (c *QueryCache) report(result string) {
	if c.observe != nil {
		c.observe(result)
	}
}

// Invalidate drops key.
func (c *QueryCache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.store.Delete(key)
}

// InvalidatePrefix drops every key starting with prefix.
func (c *QueryCache) InvalidatePrefix(prefix string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for k := range c.store.Items() {
		if strings.HasPrefix(k, prefix) {
			c.store.Delete(k)
		}
	}
}

// Clear drops everything.
func (c *QueryCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.store.Flush()
}

// Wait blocks until background refreshes finish.
func (c *QueryCache) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

// Len reports the number of stored entries, fresh or stale.
func (c *QueryCache) Len() int {
	if c == nil {
		return 0
	}
	return c.store.ItemCount()
}
