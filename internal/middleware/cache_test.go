// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStaticCache(t *testing.T) {
	tests := []struct {
		maxAge time.Duration
		want   string
	}{
		{time.Hour, "public, max-age=3600, immutable"},
		{7 * 24 * time.Hour, "public, max-age=604800, immutable"},
		{1500 * time.Millisecond, "public, max-age=1, immutable"},
		{0, "public, max-age=0, immutable"},
	}

	for _, tt := range tests {
		t.Run(tt.maxAge.String(), func(t *testing.T) {
			h := StaticCache(tt.maxAge)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				_, _ = w.Write([]byte("png-bytes"))
			}))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/uploads/2026/03/mapa.png", nil))

			if got := rr.Header().Get("Cache-Control"); got != tt.want {
				t.Errorf("Cache-Control = %q; want %q", got, tt.want)
			}
			if rr.Header().Get("Content-Type") != "image/png" || rr.Body.String() != "png-bytes" {
				t.Error("wrapped response was altered")
			}
		})
	}
}

func TestNoStore(t *testing.T) {
	wrapped := NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil))

	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q; want no-store", cc)
	}
}
