// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache provides the shared key/value cache used for the token
// denylist and read-through caching of public listings.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss is returned for absent and expired keys.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheClosed is returned by every operation after Close.
	ErrCacheClosed = errors.New("cache closed")
)

// Cache is a byte-oriented key/value store with per-key expiry. It is
// safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A non-positive ttl means the default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Has(ctx context.Context, key string) (bool, error)
	Close() error
}

// StatsProvider is implemented by caches that count their traffic.
type StatsProvider interface {
	Stats() Stats
}

// Stats is a snapshot of cache counters. Items is -1 when the backend
// cannot count its keys cheaply.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Items  int   `json:"items"`
}

// HitRate returns hits as a percentage of lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) * 100 / float64(total)
}
