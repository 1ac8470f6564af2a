// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/olegiv/radnice/internal/util"
)

// maxLockout caps the doubling lockout.
const maxLockout = 24 * time.Hour

// LoginProtectionConfig configures LoginProtection. Zero fields take the
// values from DefaultLoginProtectionConfig.
type LoginProtectionConfig struct {
	IPRateLimit       float64 // login requests per second per IP
	IPBurst           int
	MaxFailedAttempts int           // failures within AttemptWindow that lock the account
	LockoutDuration   time.Duration // first lockout; doubles on each repeat
	AttemptWindow     time.Duration
}

// DefaultLoginProtectionConfig allows one login every two seconds per IP
// with bursts of five, and locks an account for 15 minutes after five
// failures in 15 minutes.
func DefaultLoginProtectionConfig() LoginProtectionConfig {
	return LoginProtectionConfig{
		IPRateLimit:       0.5,
		IPBurst:           5,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		AttemptWindow:     15 * time.Minute,
	}
}

func (c LoginProtectionConfig) withDefaults() LoginProtectionConfig {
	d := DefaultLoginProtectionConfig()
	if c.IPRateLimit <= 0 {
		c.IPRateLimit = d.IPRateLimit
	}
	if c.IPBurst <= 0 {
		c.IPBurst = d.IPBurst
	}
	if c.MaxFailedAttempts <= 0 {
		c.MaxFailedAttempts = d.MaxFailedAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = d.LockoutDuration
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = d.AttemptWindow
	}
	return c
}

// LoginProtection throttles login requests per IP and locks accounts
// after repeated failures.
type LoginProtection struct {
	cfg LoginProtectionConfig
	ips *clientLimiters
	now func() time.Time

	mu       sync.Mutex
	accounts map[string]*accountFailures

	stop     chan struct{}
	stopOnce sync.Once
}

type accountFailures struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
	lockouts    int
}

// NewLoginProtection starts a LoginProtection. Call Close to stop its
// janitor.
func NewLoginProtection(cfg LoginProtectionConfig) *LoginProtection {
	cfg = cfg.withDefaults()
	lp := &LoginProtection{
		cfg:      cfg,
		ips:      newClientLimiters(cfg.IPRateLimit, cfg.IPBurst),
		now:      time.Now,
		accounts: make(map[string]*accountFailures),
		stop:     make(chan struct{}),
	}
	go lp.janitor(cfg.AttemptWindow)
	return lp
}

// CheckIPRateLimit consumes a login token for ip.
func (lp *LoginProtection) CheckIPRateLimit(ip string) bool {
	return lp.ips.allow(ip)
}

// IsAccountLocked reports whether username is locked and for how long.
func (lp *LoginProtection) IsAccountLocked(username string) (bool, time.Duration) {
	now := lp.now()

	lp.mu.Lock()
	defer lp.mu.Unlock()

	a, ok := lp.accounts[username]
	if !ok || !now.Before(a.lockedUntil) {
		return false, 0
	}
	return true, a.lockedUntil.Sub(now)
}

// RecordFailedAttempt counts a failure for username and reports whether it
// triggered a lockout.
func (lp *LoginProtection) RecordFailedAttempt(username string) (bool, time.Duration) {
	now := lp.now()

	lp.mu.Lock()
	defer lp.mu.Unlock()

	a, ok := lp.accounts[username]
	if !ok {
		a = &accountFailures{}
		lp.accounts[username] = a
	}
	if a.count == 0 || now.Sub(a.windowStart) > lp.cfg.AttemptWindow {
		a.count, a.windowStart = 0, now
	}
	a.count++

	if a.count < lp.cfg.MaxFailedAttempts {
		slog.Debug("failed login recorded", "username", username, "count", a.count)
		return false, 0
	}

	lock := lp.cfg.LockoutDuration
	for i := 0; i < a.lockouts && lock < maxLockout; i++ {
		lock *= 2
	}
	lock = min(lock, maxLockout)
	a.lockedUntil = now.Add(lock)
	a.lockouts++
	a.count = 0

	slog.Warn("account locked", "username", username, "lockouts", a.lockouts, "duration", lock)
	return true, lock
}

// RecordSuccessfulLogin forgets the failures of username.
func (lp *LoginProtection) RecordSuccessfulLogin(username string) {
	lp.mu.Lock()
	delete(lp.accounts, username)
	lp.mu.Unlock()
}

// GetRemainingAttempts returns how many failures username may still make
// before being locked.
func (lp *LoginProtection) GetRemainingAttempts(username string) int {
	now := lp.now()

	lp.mu.Lock()
	defer lp.mu.Unlock()

	a, ok := lp.accounts[username]
	if !ok || a.count == 0 || now.Sub(a.windowStart) > lp.cfg.AttemptWindow {
		return lp.cfg.MaxFailedAttempts
	}
	return max(lp.cfg.MaxFailedAttempts-a.count, 0)
}

// Close stops the janitor.
func (lp *LoginProtection) Close() {
	lp.stopOnce.Do(func() { close(lp.stop) })
}

func (lp *LoginProtection) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lp.forgetStale()
		case <-lp.stop:
			return
		}
	}
}

// forgetStale drops accounts that are neither locked nor inside a window.
func (lp *LoginProtection) forgetStale() {
	now := lp.now()

	lp.mu.Lock()
	defer lp.mu.Unlock()
	for name, a := range lp.accounts {
		if !now.Before(a.lockedUntil) && now.Sub(a.windowStart) > lp.cfg.AttemptWindow {
			delete(lp.accounts, name)
		}
	}
}

// Middleware throttles POST requests per client IP.
func (lp *LoginProtection) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				if ip := GetClientIP(r); !lp.CheckIPRateLimit(ip) {
					slog.Warn("login rate limit exceeded", "ip", ip)
					WriteAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many login attempts. Please wait a moment and try again.", nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteLockedError answers a login for a locked account with a 429 and a
// Retry-After of at least one second.
func WriteLockedError(w http.ResponseWriter, remaining time.Duration) {
	seconds := max(int(remaining.Round(time.Second)/time.Second), 1)
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteAPIError(w, http.StatusTooManyRequests, "account_locked", "Account temporarily locked due to too many failed login attempts.", nil)
}

// GetClientIP returns the client address, preferring the first valid entry
// of X-Forwarded-For, then X-Real-IP, then the peer address. Proxy headers
// are trusted, so the server must sit behind a proxy that rewrites them.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr := util.HostIP(strings.TrimSpace(first)); addr.IsValid() {
			return addr.String()
		}
	}
	if addr := util.HostIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); addr.IsValid() {
		return addr.String()
	}
	if addr := util.HostIP(r.RemoteAddr); addr.IsValid() {
		return addr.String()
	}
	return r.RemoteAddr
}
