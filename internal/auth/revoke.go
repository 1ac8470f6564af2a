// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/olegiv/radnice/internal/cache"
)

const revokedKeyPrefix = "revoked:"

// Revoker keeps a denylist of token ids in the shared cache.
type Revoker struct {
	cache cache.Cache
}

// NewRevoker creates a Revoker backed by c.
func NewRevoker(c cache.Cache) *Revoker {
	return &Revoker{cache: c}
}

// Revoke denies jti for ttl. Tokens that have already expired are ignored.
func (r *Revoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	return r.cache.Set(ctx, revokedKeyPrefix+jti, []byte{1}, ttl)
}

// IsRevoked reports whether jti is on the denylist.
func (r *Revoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := r.cache.Get(ctx, revokedKeyPrefix+jti)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cache.ErrCacheMiss):
		return false, nil
	default:
		return false, err
	}
}
