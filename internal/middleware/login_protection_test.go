// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedLoginProtection(t *testing.T, cfg LoginProtectionConfig) (*LoginProtection, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	lp := NewLoginProtection(cfg)
	lp.now = clock.now
	lp.ips.now = clock.now
	t.Cleanup(lp.Close)
	return lp, clock
}

func TestNewLoginProtection_Defaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  LoginProtectionConfig
		want LoginProtectionConfig
	}{
		{"zero config", LoginProtectionConfig{}, DefaultLoginProtectionConfig()},
		{
			"partial config",
			LoginProtectionConfig{MaxFailedAttempts: 3, AttemptWindow: time.Minute},
			LoginProtectionConfig{IPRateLimit: 0.5, IPBurst: 5, MaxFailedAttempts: 3, LockoutDuration: 15 * time.Minute, AttemptWindow: time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lp := NewLoginProtection(tt.cfg)
			defer lp.Close()
			if lp.cfg != tt.want {
				t.Errorf("cfg = %+v; want %+v", lp.cfg, tt.want)
			}
		})
	}
}

func TestLoginProtection_LockoutLifecycle(t *testing.T) {
	lp, clock := newClockedLoginProtection(t, LoginProtectionConfig{
		MaxFailedAttempts: 3,
		LockoutDuration:   time.Minute,
		AttemptWindow:     10 * time.Minute,
	})
	const user = "redaktor"

	for i := 1; i <= 2; i++ {
		if locked, _ := lp.RecordFailedAttempt(user); locked {
			t.Fatalf("attempt %d locked the account", i)
		}
		if got, want := lp.GetRemainingAttempts(user), 3-i; got != want {
			t.Errorf("remaining after %d = %d; want %d", i, got, want)
		}
	}

	locked, d := lp.RecordFailedAttempt(user)
	if !locked || d != time.Minute {
		t.Fatalf("third attempt = (%v, %v); want (true, 1m)", locked, d)
	}

	clock.advance(20 * time.Second)
	locked, remaining := lp.IsAccountLocked(user)
	if !locked || remaining != 40*time.Second {
		t.Errorf("IsAccountLocked = (%v, %v); want (true, 40s)", locked, remaining)
	}

	clock.advance(40 * time.Second)
	if locked, _ := lp.IsAccountLocked(user); locked {
		t.Error("account still locked after the lockout elapsed")
	}
}

func TestLoginProtection_LockoutDoubles(t *testing.T) {
	lp, clock := newClockedLoginProtection(t, LoginProtectionConfig{
		MaxFailedAttempts: 1,
		LockoutDuration:   10 * time.Hour,
		AttemptWindow:     time.Minute,
	})

	want := []time.Duration{10 * time.Hour, 20 * time.Hour, maxLockout, maxLockout}
	for i, w := range want {
		locked, d := lp.RecordFailedAttempt("spravce")
		if !locked || d != w {
			t.Errorf("lockout %d = (%v, %v); want (true, %v)", i+1, locked, d, w)
		}
		clock.advance(d + time.Second)
	}
}

func TestLoginProtection_WindowAndSuccessReset(t *testing.T) {
	lp, clock := newClockedLoginProtection(t, LoginProtectionConfig{
		MaxFailedAttempts: 3,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Minute,
	})

	lp.RecordFailedAttempt("a")
	lp.RecordFailedAttempt("a")
	clock.advance(2 * time.Minute)
	if got := lp.GetRemainingAttempts("a"); got != 3 {
		t.Errorf("remaining after window = %d; want 3", got)
	}
	if locked, _ := lp.RecordFailedAttempt("a"); locked {
		t.Error("failures from an expired window still counted")
	}

	lp.RecordFailedAttempt("b")
	lp.RecordSuccessfulLogin("b")
	if got := lp.GetRemainingAttempts("b"); got != 3 {
		t.Errorf("remaining after success = %d; want 3", got)
	}
}

func TestLoginProtection_ForgetStale(t *testing.T) {
	lp, clock := newClockedLoginProtection(t, LoginProtectionConfig{
		MaxFailedAttempts: 2,
		LockoutDuration:   time.Hour,
		AttemptWindow:     time.Minute,
	})

	lp.RecordFailedAttempt("stale")
	lp.RecordFailedAttempt("locked")
	lp.RecordFailedAttempt("locked")

	clock.advance(5 * time.Minute)
	lp.forgetStale()

	if _, ok := lp.accounts["stale"]; ok {
		t.Error("stale account was kept")
	}
	if _, ok := lp.accounts["locked"]; !ok {
		t.Error("locked account was dropped")
	}
}

func TestLoginProtection_Middleware(t *testing.T) {
	lp, _ := newClockedLoginProtection(t, LoginProtectionConfig{IPRateLimit: 0.001, IPBurst: 2})
	h := lp.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(method, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send(http.MethodPost, "203.0.113.7:4000"); rec.Code != http.StatusOK {
			t.Fatalf("POST %d status = %d; want 200", i+1, rec.Code)
		}
	}
	rec := send(http.MethodPost, "203.0.113.7:4001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over burst status = %d; want 429", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q; want application/json", ct)
	}
	if rec := send(http.MethodGet, "203.0.113.7:4002"); rec.Code != http.StatusOK {
		t.Errorf("GET status = %d; want 200 (not throttled)", rec.Code)
	}
	if rec := send(http.MethodPost, "203.0.113.8:4000"); rec.Code != http.StatusOK {
		t.Errorf("other IP status = %d; want 200", rec.Code)
	}
}

func TestWriteLockedError(t *testing.T) {
	tests := []struct {
		remaining time.Duration
		want      string
	}{
		{90 * time.Second, "90"},
		{1400 * time.Millisecond, "1"},
		{0, "1"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteLockedError(rec, tt.remaining)
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("status = %d; want 429", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != tt.want {
			t.Errorf("Retry-After(%v) = %q; want %q", tt.remaining, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xForwarded string
		xRealIP    string
		want       string
	}{
		{"peer address", "192.168.1.1:12345", "", "", "192.168.1.1"},
		{"forwarded chain", "127.0.0.1:8080", "10.0.0.1, 10.0.0.2, 10.0.0.3", "", "10.0.0.1"},
		{"forwarded with spaces", "127.0.0.1:8080", "  10.0.0.1  ", "", "10.0.0.1"},
		{"real ip", "127.0.0.1:8080", "", "10.0.0.5", "10.0.0.5"},
		{"forwarded wins over real ip", "127.0.0.1:8080", "10.0.0.1", "10.0.0.5", "10.0.0.1"},
		{"garbage forwarded falls back", "127.0.0.1:8080", "unknown", "10.0.0.5", "10.0.0.5"},
		{"ipv6 peer", "[2001:db8::7]:443", "", "", "2001:db8::7"},
		{"unparseable peer kept", "pipe", "", "", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xForwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.xForwarded)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q; want %q", got, tt.want)
			}
		})
	}
}
