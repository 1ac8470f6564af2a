// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/olegiv/radnice/internal/auth"
	"github.com/olegiv/radnice/internal/middleware"
	"github.com/olegiv/radnice/internal/service"
)

// Login results counted by the metrics.
const (
	loginSuccess = "success"
	loginFailure = "failure"
	loginLocked  = "locked"
)

// refreshCookiePath scopes the refresh cookie to the auth endpoints.
const refreshCookiePath = "/api/v1/auth"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the optional body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SessionResponse is returned on login and refresh.
type SessionResponse struct {
	User             service.User `json:"user"`
	Token            string       `json:"token"`
	ExpiresAt        time.Time    `json:"expiresAt"`
	RefreshToken     string       `json:"refreshToken"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
}

// VerifyResponse describes the caller of GET /auth/verify.
type VerifyResponse struct {
	User      service.User `json:"user"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
}

func (h *Handler) cookieName() string {
	if h.authn != nil {
		return h.authn.CookieName()
	}
	return middleware.DefaultCookieName
}

func (h *Handler) refreshCookieName() string {
	return h.cookieName() + "_refresh"
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName(),
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.refreshCookieName(),
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{h.cookieName(), "/"},
		{h.refreshCookieName(), refreshCookiePath},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   h.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// Login handles POST /api/v1/auth/login. Per-IP throttling is done by the
// login protection middleware on the route; the lockout is per username.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	username := strings.TrimSpace(req.Username)
	details := map[string]string{}
	if username == "" {
		details["username"] = "Username is required"
	}
	if req.Password == "" {
		details["password"] = "Password is required"
	}
	if len(details) > 0 {
		WriteValidationError(w, details)
		return
	}

	ip := middleware.GetClientIP(r)

	if h.loginProt != nil {
		if locked, remaining := h.loginProt.IsAccountLocked(username); locked {
			h.metrics.ObserveLogin(loginLocked)
			h.logger.Warn("login attempt on locked account", "username", username, "ip", ip)
			middleware.WriteLockedError(w, remaining)
			return
		}
	}

	user, err := h.users.Authenticate(r.Context(), username, req.Password)
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			h.writeServiceError(w, r, "user", err)
			return
		}
		h.metrics.ObserveLogin(loginFailure)
		h.logger.Warn("failed login attempt", "username", username, "ip", ip)
		if h.loginProt != nil {
			if locked, lockDuration := h.loginProt.RecordFailedAttempt(username); locked {
				h.logger.Warn("account locked", "username", username, "duration", lockDuration)
			}
		}
		WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid username or password", nil)
		return
	}

	if h.loginProt != nil {
		h.loginProt.RecordSuccessfulLogin(username)
	}

	pair, err := h.tokens.Issue(user.Principal())
	if err != nil {
		h.writeServiceError(w, r, "token", err)
		return
	}

	h.metrics.ObserveLogin(loginSuccess)
	h.logger.Info("user logged in", "user_id", user.ID, "username", user.Username, "ip", ip)

	h.setSessionCookies(w, pair)
	WriteSuccess(w, sessionResponse(user, pair), nil)
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is read from
// the body or, when absent, from the refresh cookie. The used token is
// revoked and a new pair issued.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		if c, err := r.Cookie(h.refreshCookieName()); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		WriteUnauthorized(w, "Refresh token required")
		return
	}

	claims, err := h.tokens.VerifyRefresh(r.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			h.logger.Error("refresh token verification failed", "error", err)
		}
		WriteUnauthorized(w, "Invalid or expired refresh token")
		return
	}

	p, err := claims.Principal()
	if err != nil {
		WriteUnauthorized(w, "Invalid or expired refresh token")
		return
	}
	user, err := h.users.Get(r.Context(), p.UserID)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		h.writeServiceError(w, r, "user", err)
		return
	}
	if err != nil || !user.IsActive || user.Principal().TokenVersion != p.TokenVersion {
		WriteUnauthorized(w, "Invalid or expired refresh token")
		return
	}

	if err := h.tokens.Revoke(r.Context(), claims); err != nil {
		h.writeServiceError(w, r, "token", err)
		return
	}
	pair, err := h.tokens.Issue(user.Principal())
	if err != nil {
		h.writeServiceError(w, r, "token", err)
		return
	}

	h.setSessionCookies(w, pair)
	WriteSuccess(w, sessionResponse(user, pair), nil)
}

// Verify handles GET /api/v1/auth/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		WriteUnauthorized(w, "Authentication required")
		return
	}
	user, err := h.users.Get(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			WriteUnauthorized(w, "Authentication required")
			return
		}
		h.writeServiceError(w, r, "user", err)
		return
	}

	resp := VerifyResponse{User: user}
	if claims := middleware.GetClaims(r.Context()); claims != nil && claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	WriteSuccess(w, resp, nil)
}

// Logout handles POST /api/v1/auth/logout. The access token and, when
// presented, the refresh token are revoked.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Revoke(r.Context(), middleware.GetClaims(r.Context())); err != nil {
		h.writeServiceError(w, r, "token", err)
		return
	}
	if c, err := r.Cookie(h.refreshCookieName()); err == nil && c.Value != "" {
		if claims, err := h.tokens.VerifyRefresh(r.Context(), c.Value); err == nil {
			if err := h.tokens.Revoke(r.Context(), claims); err != nil {
				h.logger.Warn("failed to revoke refresh token", "error", err)
			}
		}
	}

	if p, ok := middleware.GetPrincipal(r.Context()); ok {
		h.logger.Info("user logged out", "user_id", p.UserID, "username", p.Username)
	}
	h.clearSessionCookies(w)
	WriteSuccess(w, map[string]string{"message": "Logged out"}, nil)
}

func sessionResponse(user service.User, pair *auth.TokenPair) SessionResponse {
	return SessionResponse{
		User:             user,
		Token:            pair.AccessToken,
		ExpiresAt:        pair.AccessExpiresAt,
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}
