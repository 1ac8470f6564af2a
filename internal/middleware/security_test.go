// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveWithSecurityHeaders(cfg SecurityHeadersConfig, path string) *httptest.ResponseRecorder {
	h := SecurityHeaders(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSecurityHeaders_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		isDev    bool
		wantHSTS string
	}{
		{"production", false, "max-age=31536000; includeSubDomains"},
		{"development", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveWithSecurityHeaders(DefaultSecurityHeadersConfig(tt.isDev), "/api/v1/articles")

			if got := rec.Header().Get("Strict-Transport-Security"); got != tt.wantHSTS {
				t.Errorf("HSTS = %q; want %q", got, tt.wantHSTS)
			}

			want := map[string]string{
				"X-Frame-Options":              "DENY",
				"X-Content-Type-Options":       "nosniff",
				"Referrer-Policy":              "strict-origin-when-cross-origin",
				"Cross-Origin-Resource-Policy": "cross-origin",
			}
			for k, v := range want {
				if got := rec.Header().Get(k); got != v {
					t.Errorf("%s = %q; want %q", k, got, v)
				}
			}

			csp := rec.Header().Get("Content-Security-Policy")
			if !strings.HasPrefix(csp, "default-src 'none'; img-src 'self'") {
				t.Errorf("CSP = %q", csp)
			}
			if !strings.Contains(csp, "frame-ancestors 'none'") {
				t.Errorf("CSP = %q; want frame-ancestors 'none'", csp)
			}
			if pp := rec.Header().Get("Permissions-Policy"); !strings.Contains(pp, "camera=()") {
				t.Errorf("Permissions-Policy = %q", pp)
			}
		})
	}
}

func TestSecurityHeaders_ExcludePaths(t *testing.T) {
	cfg := DefaultSecurityHeadersConfig(false)
	cfg.ExcludePaths = []string{"/metrics"}

	tests := []struct {
		path        string
		wantHeaders bool
	}{
		{"/health", true},
		{"/uploads/2026/05/mapa.png", true},
		{"/metrics", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := serveWithSecurityHeaders(cfg, tt.path).Header().Get("X-Content-Type-Options") != ""
			if got != tt.wantHeaders {
				t.Errorf("headers present = %v; want %v", got, tt.wantHeaders)
			}
		})
	}
}

func TestSecurityHeaders_HSTSOptions(t *testing.T) {
	cfg := SecurityHeadersConfig{
		HSTSMaxAge:            2 * hstsOneYear,
		HSTSIncludeSubDomains: true,
		HSTSPreload:           true,
	}

	rec := serveWithSecurityHeaders(cfg, "/")
	if got, want := rec.Header().Get("Strict-Transport-Security"), "max-age=63072000; includeSubDomains; preload"; got != want {
		t.Errorf("HSTS = %q; want %q", got, want)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got != "" {
		t.Errorf("empty policy should omit the header, got %q", got)
	}
}

func TestBuildCSP(t *testing.T) {
	got := BuildCSP(
		Directive{"default-src", "'self'"},
		Directive{"img-src", "'self' data:"},
		Directive{"upgrade-insecure-requests", ""},
	)
	want := "default-src 'self'; img-src 'self' data:; upgrade-insecure-requests"
	if got != want {
		t.Errorf("BuildCSP() = %q; want %q", got, want)
	}
}

func TestBuildPermissionsPolicy(t *testing.T) {
	if got := BuildPermissionsPolicy("camera", "usb"); got != "camera=(), usb=()" {
		t.Errorf("BuildPermissionsPolicy() = %q", got)
	}
}
