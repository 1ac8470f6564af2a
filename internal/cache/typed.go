// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"
)

// TypedCache stores JSON-encoded values of type T in a Cache. Concurrent
// misses for the same key share a single load.
type TypedCache[T any] struct {
	backend Cache
	ttl     time.Duration
	loads   singleflight.Group
}

// NewTypedCache wraps backend; entries live for ttl.
func NewTypedCache[T any](backend Cache, ttl time.Duration) *TypedCache[T] {
	return &TypedCache[T]{backend: backend, ttl: ttl}
}

// Get reports a miss for absent keys and for values that no longer decode.
func (c *TypedCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	raw, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	v := new(T)
	if json.Unmarshal(raw, v) != nil {
		return nil, false
	}
	return v, true
}

func (c *TypedCache[T]) Set(ctx context.Context, key string, v *T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, key, raw, c.ttl)
}

// GetOrSet returns the cached value or the result of load, storing the
// latter on success. A failed store does not fail the call.
func (c *TypedCache[T]) GetOrSet(ctx context.Context, key string, load func() (*T, error)) (*T, error) {
	if v, ok := c.Get(ctx, key); ok {
		return v, nil
	}
	res, err, _ := c.loads.Do(key, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		_ = c.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*T), nil
}

// Invalidate removes every key under prefix.
func (c *TypedCache[T]) Invalidate(ctx context.Context, prefix string) error {
	return c.backend.DeleteByPrefix(ctx, prefix)
}
