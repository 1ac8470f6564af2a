// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused per-client limiter is kept.
const limiterIdleTTL = 10 * time.Minute

// APIError is the error envelope shared by every JSON endpoint.
type APIError struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// WriteAPIError writes an error envelope with the given status.
func WriteAPIError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	var body APIError
	body.Error.Code = code
	body.Error.Message = message
	body.Error.Details = details

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// clientLimiters hands out one token bucket per client key and forgets
// buckets that have been idle longer than limiterIdleTTL.
type clientLimiters struct {
	rate  rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		rate:    rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*clientBucket),
	}
}

// allow consumes one token for key.
func (c *clientLimiters) allow(key string) bool {
	now := c.now()

	c.mu.Lock()
	if now.Sub(c.lastSweep) >= limiterIdleTTL {
		c.sweepLocked(now)
	}
	b, ok := c.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(c.rate, c.burst)}
		c.buckets[key] = b
	}
	b.lastSeen = now
	c.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// sweepLocked drops idle buckets. c.mu must be held.
func (c *clientLimiters) sweepLocked(now time.Time) {
	for key, b := range c.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(c.buckets, key)
		}
	}
	c.lastSweep = now
}

func (c *clientLimiters) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// RateLimiter throttles requests per client IP.
type RateLimiter struct {
	clients *clientLimiters
}

// NewRateLimiter allows rps requests per second per IP with bursts of up
// to burst requests.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{clients: newClientLimiters(rps, burst)}
}

// Middleware rejects throttled clients with a JSON 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r)
			if !rl.clients.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				WriteAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit exceeded. Please slow down.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
