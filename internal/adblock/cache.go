package adblock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// BuildFunc constructs the blocker for a mode.
type BuildFunc func(ctx context.Context, mode Mode) (Blocker, error)

// Cache holds at most one blocker per mode. Concurrent first requests for
// the same mode share a single construction; failed constructions are not
// cached and the next request retries.
type Cache struct {
	build BuildFunc

	mu       sync.Mutex
	blockers map[Mode]Blocker
	inflight singleflight.Group
}

func NewCache(build BuildFunc) *Cache {
	return &Cache{
		build:    build,
		blockers: make(map[Mode]Blocker),
	}
}

// Get returns the blocker for mode, building it on first use. A cancelled
// ctx abandons the wait but not a construction other callers may share.
func (c *Cache) Get(ctx context.Context, mode Mode) (Blocker, error) {
	if b, ok := c.cached(mode); ok {
		return b, nil
	}

	ch := c.inflight.DoChan(string(mode), func() (interface{}, error) {
		if b, ok := c.cached(mode); ok {
			return b, nil
		}

		b, err := c.build(context.WithoutCancel(ctx), mode)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.blockers[mode] = b
		c.mu.Unlock()
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to build %s blocker: %w", mode, res.Err)
		}
		return res.Val.(Blocker), nil
	}
}

// Reset drops every cached blocker.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.blockers = make(map[Mode]Blocker)
	c.mu.Unlock()
}

func (c *Cache) cached(mode Mode) (Blocker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blockers[mode]
	return b, ok
}

var (
	defaultMu    sync.Mutex
	defaultCache *Cache
)

// DefaultCache returns the process-wide cache, creating it on first use
// with an HTTP source over DefaultLists.
func DefaultCache() *Cache {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCache == nil {
		defaultCache = NewCache(SourceBuilder(NewHTTPSource(nil), DefaultLists))
	}
	return defaultCache
}

// SetDefaultCache replaces the process-wide cache. Passing nil makes the
// next DefaultCache call start fresh.
func SetDefaultCache(c *Cache) {
	defaultMu.Lock()
	defaultCache = c
	defaultMu.Unlock()
}
