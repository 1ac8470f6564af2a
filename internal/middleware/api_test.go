// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteAPIError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteAPIError(rr, http.StatusBadRequest, "validation_error", "Validation failed", map[string]string{
		"title": "is required",
	})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var raw map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if success, ok := raw["success"].(bool); !ok || success {
		t.Errorf("success = %v, want false", raw["success"])
	}

	var resp APIError
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp.Error.Code != "validation_error" || resp.Error.Message != "Validation failed" {
		t.Errorf("error = %+v", resp.Error)
	}
	if resp.Error.Details["title"] != "is required" {
		t.Errorf("details = %v", resp.Error.Details)
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/articles", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("198.51.100.1:1000"); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, code)
		}
	}
	if code := send("198.51.100.1:1001"); code != http.StatusTooManyRequests {
		t.Errorf("over burst status = %d, want 429", code)
	}
	if code := send("198.51.100.2:1000"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}
}

func TestClientLimiters_IdleSweep(t *testing.T) {
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := newClientLimiters(1, 1)
	c.now = func() time.Time { return clock }

	c.allow("198.51.100.1")
	c.allow("198.51.100.2")
	if got := c.size(); got != 2 {
		t.Fatalf("size = %d; want 2", got)
	}

	clock = clock.Add(limiterIdleTTL / 2)
	c.allow("198.51.100.2")

	clock = clock.Add(limiterIdleTTL/2 + time.Second)
	c.allow("198.51.100.3")

	if got := c.size(); got != 2 {
		t.Errorf("size after sweep = %d; want 2 (idle client dropped)", got)
	}
	if _, ok := c.buckets["198.51.100.1"]; ok {
		t.Error("idle client was not swept")
	}
}

func TestClientLimiters_Refill(t *testing.T) {
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := newClientLimiters(1, 1)
	c.now = func() time.Time { return clock }

	if !c.allow("a") {
		t.Fatal("first request denied")
	}
	if c.allow("a") {
		t.Error("second request within the same instant allowed")
	}
	clock = clock.Add(time.Second)
	if !c.allow("a") {
		t.Error("request after refill denied")
	}
}
