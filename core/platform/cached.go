package platform

import (
	"bytes"
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	asset "github.com/exlimit/tangram-es/core"
	"github.com/exlimit/tangram-es/core/cache"
)

const (
	// DefaultPrefetchWorkers bounds concurrent fetches during Prefetch.
	DefaultPrefetchWorkers = 4

	defaultCacheEntries = 256
	defaultCacheBytes   = 64 << 20
)

// Cached wraps a Platform with a content cache keyed by location digest.
// Concurrent fetches of one location share a single upstream request.
type Cached struct {
	next    asset.Platform
	cache   cache.Cache
	workers int
	logger  *slog.Logger
	group   singleflight.Group
}

var _ asset.Platform = (*Cached)(nil)

// CachedOption configures a Cached platform.
type CachedOption func(*Cached)

// WithCache sets the cache backing the platform. Defaults to an in-memory
// LRU of 256 entries and 64 MiB.
func WithCache(c cache.Cache) CachedOption {
	return func(p *Cached) {
		p.cache = c
	}
}

// WithPrefetchWorkers sets how many locations Prefetch fetches at once.
func WithPrefetchWorkers(n int) CachedOption {
	return func(p *Cached) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the logger for cache hits, misses and failed writes.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) CachedOption {
	return func(p *Cached) {
		p.logger = logger
	}
}

// NewCached wraps next with a cache.
func NewCached(next asset.Platform, opts ...CachedOption) *Cached {
	p := &Cached{
		next:    next,
		workers: DefaultPrefetchWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cache == nil {
		// Arguments are valid constants; NewMemory cannot fail here.
		p.cache, _ = cache.NewMemory(defaultCacheEntries, defaultCacheBytes) //nolint:errcheck // see above
	}
	return p
}

// Cache returns the cache backing the platform.
func (p *Cached) Cache() cache.Cache {
	return p.cache
}

func (p *Cached) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.New(slog.DiscardHandler)
}

// BytesFromFile implements asset.Platform. Callers receive their own copy
// of cached bytes.
func (p *Cached) BytesFromFile(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := cache.Key(location)
	if data, ok := p.cache.Get(key); ok {
		p.log().Debug("cache hit", "location", location)
		return bytes.Clone(data), nil
	}

	// The shared fetch outlives any single caller; each caller stops waiting
	// when its own context ends.
	ch := p.group.DoChan(key.String(), func() (any, error) {
		p.log().Debug("cache miss", "location", location)
		data, err := p.next.BytesFromFile(context.WithoutCancel(ctx), location)
		if err != nil {
			return nil, err
		}
		if err := p.cache.Put(key, data); err != nil {
			p.log().Warn("cache write failed", "location", location, "error", err)
		}
		return data, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return bytes.Clone(res.Val.([]byte)), nil //nolint:errcheck // type assertion always succeeds when Err is nil
	}
}

// Prefetch fetches locations into the cache with bounded concurrency. It
// stops at the first error and returns it.
func (p *Cached) Prefetch(ctx context.Context, locations ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, location := range locations {
		g.Go(func() error {
			_, err := p.BytesFromFile(ctx, location)
			return err
		})
	}
	return g.Wait()
}

// Invalidate drops the cached content for location.
func (p *Cached) Invalidate(location string) error {
	return p.cache.Delete(cache.Key(location))
}
