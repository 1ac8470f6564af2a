// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"

	"filippo.io/csrf/gorilla"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// devOrigins are the local admin front ends trusted in development.
var devOrigins = []string{"localhost:8080", "127.0.0.1:8080", "localhost:5173"}

// CSRFConfig configures CSRF. The check relies on Fetch metadata and
// Origin headers rather than tokens.
type CSRFConfig struct {
	AuthKey []byte

	// TrustedOrigins are host[:port] values allowed to write cross-origin.
	TrustedOrigins []string

	// ErrorHandler answers rejected requests; a JSON 403 when nil.
	ErrorHandler http.Handler
}

// DefaultCSRFConfig trusts the given hosts, plus the local dev servers
// when isDev is set.
func DefaultCSRFConfig(authKey []byte, trustedOrigins []string, isDev bool) CSRFConfig {
	origins := append([]string(nil), trustedOrigins...)
	if isDev {
		origins = append(origins, devOrigins...)
	}
	return CSRFConfig{AuthKey: authKey, TrustedOrigins: origins}
}

// CSRF rejects cross-site writes that would ride on the session cookie.
// Bearer-authenticated requests skip the check: a browser never attaches
// that header on its own.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	onFail := cfg.ErrorHandler
	if onFail == nil {
		onFail = http.HandlerFunc(rejectCrossSite)
	}
	opts := []csrf.Option{csrf.ErrorHandler(onFail)}
	if len(cfg.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(cfg.TrustedOrigins))
	}
	protect := csrf.Protect(cfg.AuthKey, opts...)

	return func(next http.Handler) http.Handler {
		checked := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if BearerToken(r) != "" {
				next.ServeHTTP(w, r)
				return
			}
			checked.ServeHTTP(w, r)
		})
	}
}

func rejectCrossSite(w http.ResponseWriter, r *http.Request) {
	reason := "unknown"
	if err := csrf.FailureReason(r); err != nil {
		reason = err.Error()
	}
	slog.Warn("cross-site write rejected",
		"request_id", chimw.GetReqID(r.Context()),
		"reason", reason,
		"method", r.Method,
		"path", r.URL.Path,
		"origin", r.Header.Get("Origin"),
		"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"),
	)
	WriteAPIError(w, http.StatusForbidden, "csrf_failed", "Cross-site request rejected", nil)
}
