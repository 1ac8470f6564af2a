// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// hstsOneYear is the default Strict-Transport-Security max-age.
const hstsOneYear = 365 * 24 * 60 * 60

// Directive is one Content-Security-Policy or Permissions-Policy entry.
type Directive struct {
	Name  string
	Value string
}

// SecurityHeadersConfig configures SecurityHeaders.
type SecurityHeadersConfig struct {
	// IsDevelopment disables HSTS, which would pin localhost to HTTPS.
	IsDevelopment bool

	// ContentSecurityPolicy is written verbatim; empty omits the header.
	ContentSecurityPolicy string

	// HSTSMaxAge in seconds; 0 disables HSTS.
	HSTSMaxAge            int
	HSTSIncludeSubDomains bool
	HSTSPreload           bool

	FrameOptions      string
	ReferrerPolicy    string
	PermissionsPolicy string

	// CrossOriginResourcePolicy limits which sites may embed responses,
	// e.g. uploaded images. Empty omits the header.
	CrossOriginResourcePolicy string

	// ExcludePaths are path prefixes served without these headers.
	ExcludePaths []string
}

// DefaultSecurityHeadersConfig returns headers for a JSON API that also
// serves uploaded images. Nothing is scriptable, so the CSP denies
// everything but same-origin images.
func DefaultSecurityHeadersConfig(isDev bool) SecurityHeadersConfig {
	return SecurityHeadersConfig{
		IsDevelopment:         isDev,
		HSTSMaxAge:            hstsOneYear,
		HSTSIncludeSubDomains: !isDev,
		FrameOptions:          "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: BuildCSP(
			Directive{"default-src", "'none'"},
			Directive{"img-src", "'self'"},
			Directive{"base-uri", "'none'"},
			Directive{"form-action", "'none'"},
			Directive{"frame-ancestors", "'none'"},
		),
		PermissionsPolicy: BuildPermissionsPolicy(
			"accelerometer", "browsing-topics", "camera", "geolocation",
			"gyroscope", "interest-cohort", "magnetometer", "microphone",
			"payment", "usb",
		),
		// The public site renders uploads from another origin.
		CrossOriginResourcePolicy: "cross-origin",
	}
}

// BuildCSP joins directives in the given order.
func BuildCSP(directives ...Directive) string {
	parts := make([]string, 0, len(directives))
	for _, d := range directives {
		if d.Value == "" {
			parts = append(parts, d.Name)
			continue
		}
		parts = append(parts, d.Name+" "+d.Value)
	}
	return strings.Join(parts, "; ")
}

// BuildPermissionsPolicy denies every listed feature.
func BuildPermissionsPolicy(features ...string) string {
	parts := make([]string, 0, len(features))
	for _, f := range features {
		parts = append(parts, f+"=()")
	}
	return strings.Join(parts, ", ")
}

// headers returns the static header set described by cfg.
func (cfg SecurityHeadersConfig) headers() http.Header {
	h := http.Header{}
	h.Set("X-Content-Type-Options", "nosniff")

	set := func(key, value string) {
		if value != "" {
			h.Set(key, value)
		}
	}
	set("Content-Security-Policy", cfg.ContentSecurityPolicy)
	set("X-Frame-Options", cfg.FrameOptions)
	set("Referrer-Policy", cfg.ReferrerPolicy)
	set("Permissions-Policy", cfg.PermissionsPolicy)
	set("Cross-Origin-Resource-Policy", cfg.CrossOriginResourcePolicy)

	if !cfg.IsDevelopment && cfg.HSTSMaxAge > 0 {
		hsts := "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubDomains {
			hsts += "; includeSubDomains"
		}
		if cfg.HSTSPreload {
			hsts += "; preload"
		}
		h.Set("Strict-Transport-Security", hsts)
	}
	return h
}

// SecurityHeaders adds the configured security headers to every response
// outside cfg.ExcludePaths.
func SecurityHeaders(cfg SecurityHeadersConfig) func(http.Handler) http.Handler {
	static := cfg.headers()
	excluded := append([]string(nil), cfg.ExcludePaths...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excluded {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			dst := w.Header()
			for k, v := range static {
				dst[k] = v
			}
			next.ServeHTTP(w, r)
		})
	}
}
