// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCacheOptions configures NewMemoryCache.
type MemoryCacheOptions struct {
	DefaultTTL time.Duration // one hour when zero
	MaxSize    int           // entry limit; 0 is unbounded

	// CleanupInterval enables a background sweep of expired entries.
	CleanupInterval time.Duration
}

// MemoryCache keeps entries in process memory. When MaxSize is reached,
// expired entries are dropped first and then the entries closest to
// expiry.
type MemoryCache struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  bool
	done    chan struct{}

	hits, misses, sets atomic.Int64
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache(opts MemoryCacheOptions) *MemoryCache {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	c := &MemoryCache{
		ttl:     opts.DefaultTTL,
		maxSize: opts.MaxSize,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
		done:    make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		go c.sweepEvery(opts.CleanupInterval)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	closed := c.closed
	c.mu.RUnlock()

	switch {
	case closed:
		return nil, ErrCacheClosed
	case !ok || !c.now().Before(e.expires):
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}
	c.hits.Add(1)
	return slices.Clone(e.value), nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()
	e := memoryEntry{value: slices.Clone(value), expires: now.Add(ttl)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.makeRoomLocked(now)
	}
	c.entries[key] = e
	c.sets.Add(1)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *MemoryCache) Has(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, ErrCacheClosed
	}
	e, ok := c.entries[key]
	return ok && c.now().Before(e.expires), nil
}

// Close drops every entry and stops the sweeper. Further calls fail with
// ErrCacheClosed.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.entries = nil
		close(c.done)
	}
	return nil
}

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Sets: c.sets.Load(), Items: n}
}

// makeRoomLocked frees at least one slot. c.mu must be held for writing.
func (c *MemoryCache) makeRoomLocked(now time.Time) {
	if c.dropExpiredLocked(now) > 0 {
		return
	}
	victim, first := "", true
	var soonest time.Time
	for key, e := range c.entries {
		if first || e.expires.Before(soonest) {
			victim, soonest, first = key, e.expires, false
		}
	}
	delete(c.entries, victim)
}

func (c *MemoryCache) dropExpiredLocked(now time.Time) int {
	dropped := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

func (c *MemoryCache) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if !c.closed {
				c.dropExpiredLocked(c.now())
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}

var (
	_ Cache         = (*MemoryCache)(nil)
	_ StatsProvider = (*MemoryCache)(nil)
)
