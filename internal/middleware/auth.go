// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for authentication,
// authorization, and request context handling.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/radnice/internal/auth"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys for request data.
const (
	ContextKeyPrincipal ContextKey = "principal"
	ContextKeyClaims    ContextKey = "claims"
)

// DefaultCookieName is the cookie carrying the access token.
const DefaultCookieName = "radnice_token"

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, token string) (*auth.Claims, error)
}

// UserLookup resolves the current state of a token subject. It returns an
// error wrapping auth.ErrInvalidToken when the user no longer exists or was
// deactivated; any other error is a lookup failure.
type UserLookup interface {
	ActivePrincipal(ctx context.Context, id int64) (auth.Principal, error)
}

// ExtractToken returns the raw access token of r. The cookie wins over the
// Authorization header when both are present.
func ExtractToken(r *http.Request, cookieName string) string {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return BearerToken(r)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticator is the auth gate in front of protected routes.
type Authenticator struct {
	tokens     TokenVerifier
	users      UserLookup
	cookieName string
	logger     *slog.Logger
}

// NewAuthenticator creates an Authenticator. users may be nil, in which case
// a valid signature alone is enough.
func NewAuthenticator(tokens TokenVerifier, users UserLookup, cookieName string, logger *slog.Logger) *Authenticator {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		tokens:     tokens,
		users:      users,
		cookieName: cookieName,
		logger:     logger,
	}
}

// CookieName returns the name of the access token cookie.
func (a *Authenticator) CookieName() string {
	return a.cookieName
}

// Authenticate resolves the principal of r. A cookie token that fails
// verification falls back to the Bearer header. Errors other than
// auth.ErrInvalidToken are lookup failures.
func (a *Authenticator) Authenticate(r *http.Request) (auth.Principal, *auth.Claims, error) {
	claims, err := a.verify(r)
	if err != nil {
		return auth.Principal{}, nil, err
	}
	p, err := claims.Principal()
	if err != nil {
		return auth.Principal{}, nil, auth.ErrInvalidToken
	}

	if a.users != nil {
		current, err := a.users.ActivePrincipal(r.Context(), p.UserID)
		if errors.Is(err, auth.ErrInvalidToken) {
			a.logger.Debug("token subject rejected", "user_id", p.UserID, "error", err)
			return auth.Principal{}, nil, auth.ErrInvalidToken
		}
		if err != nil {
			return auth.Principal{}, nil, fmt.Errorf("resolving user %d: %w", p.UserID, err)
		}
		// Tokens issued before a password reset are void.
		if current.TokenVersion != p.TokenVersion {
			return auth.Principal{}, nil, auth.ErrInvalidToken
		}
		// Role changes take effect without waiting for token expiry.
		p = current
	}
	return p, claims, nil
}

func (a *Authenticator) verify(r *http.Request) (*auth.Claims, error) {
	token := ExtractToken(r, a.cookieName)
	claims, err := a.tokens.VerifyAccess(r.Context(), token)
	if err != nil {
		if bearer := BearerToken(r); bearer != "" && bearer != token {
			return a.tokens.VerifyAccess(r.Context(), bearer)
		}
	}
	return claims, err
}

// Middleware rejects requests without a valid access token with 401 and
// attaches the principal otherwise. A failed user lookup is a 500.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, claims, err := a.Authenticate(r)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				a.logger.Error("authentication failed",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", chimw.GetReqID(r.Context()),
				)
				WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
				return
			}
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}

		ctx := WithPrincipal(r.Context(), p)
		ctx = context.WithValue(ctx, ContextKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// GetPrincipal retrieves the authenticated principal from ctx.
func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(auth.Principal)
	return p, ok
}

// GetClaims retrieves the verified token claims from ctx, or nil.
func GetClaims(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(ContextKeyClaims).(*auth.Claims)
	return c
}

// RequireRole creates middleware that requires a minimum user role.
// Roles are hierarchical: admin > editor > viewer.
// For example, RequireRole("editor") allows both admin and editor users.
func RequireRole(minRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r.Context())
			if !ok {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}

			if !auth.HasRole(p.Role, minRole) {
				slog.Warn("access denied",
					"status", http.StatusForbidden,
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", p.UserID,
					"user_role", p.Role,
					"required_role", minRole,
					"remote_addr", r.RemoteAddr,
				)
				WriteAPIError(w, http.StatusForbidden, "forbidden", "Insufficient permissions", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin creates middleware that requires admin role.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(auth.RoleAdmin)
}

// RequireEditor creates middleware that requires at least editor role.
func RequireEditor() func(http.Handler) http.Handler {
	return RequireRole(auth.RoleEditor)
}

// RequireViewer creates middleware that requires any authenticated role.
func RequireViewer() func(http.Handler) http.Handler {
	return RequireRole(auth.RoleViewer)
}
