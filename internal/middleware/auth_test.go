// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/olegiv/radnice/internal/auth"
	"github.com/olegiv/radnice/internal/testutil"
)

const testTokenSecret = "Middleware-Test-Secret-32-Bytes!"

func newTestTokens(t *testing.T) *auth.TokenManager {
	t.Helper()
	m, err := auth.NewTokenManager(auth.TokenConfig{Secret: testTokenSecret, Issuer: "radnice"})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return m
}

func issueAccess(t *testing.T, m *auth.TokenManager, p auth.Principal) string {
	t.Helper()
	pair, err := m.Issue(p)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return pair.AccessToken
}

type stubUsers map[int64]auth.Principal

func (s stubUsers) ActivePrincipal(_ context.Context, id int64) (auth.Principal, error) {
	p, ok := s[id]
	if !ok {
		return auth.Principal{}, fmt.Errorf("user %d: %w", id, auth.ErrInvalidToken)
	}
	return p, nil
}

type failingUsers struct{}

func (failingUsers) ActivePrincipal(context.Context, int64) (auth.Principal, error) {
	return auth.Principal{}, errors.New("sql: database is closed")
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"none", "", "", ""},
		{"bearer only", "", "Bearer header-token", "header-token"},
		{"lowercase scheme", "", "bearer header-token", "header-token"},
		{"cookie only", "cookie-token", "", "cookie-token"},
		{"cookie wins over bearer", "cookie-token", "Bearer header-token", "cookie-token"},
		{"basic scheme ignored", "", "Basic dXNlcjpwYXNz", ""},
		{"scheme without token", "", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/verify", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := ExtractToken(req, ""); got != tt.want {
				t.Errorf("ExtractToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticatorMiddleware(t *testing.T) {
	tokens := newTestTokens(t)
	editor := auth.Principal{UserID: 7, Username: "redaktor", Role: auth.RoleEditor}
	valid := issueAccess(t, tokens, editor)

	other, err := auth.NewTokenManager(auth.TokenConfig{Secret: "Some-Other-Secret-Also-32-Bytes!", Issuer: "radnice"})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	forged := issueAccess(t, other, editor)

	pair, err := tokens.Issue(editor)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"valid bearer", valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbled", "not.a.token", http.StatusUnauthorized},
		{"forged signature", forged, http.StatusUnauthorized},
		{"refresh token rejected", pair.RefreshToken, http.StatusUnauthorized},
	}

	a := NewAuthenticator(tokens, nil, "", testutil.TestLoggerSilent())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got auth.Principal
			h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = GetPrincipal(r.Context())
				if GetClaims(r.Context()) == nil {
					t.Error("claims missing from context")
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && got != editor {
				t.Errorf("principal = %+v, want %+v", got, editor)
			}
		})
	}
}

func TestAuthenticatorUserLookup(t *testing.T) {
	tokens := newTestTokens(t)
	token := issueAccess(t, tokens, auth.Principal{UserID: 3, Username: "jana", Role: auth.RoleAdmin, TokenVersion: 2})

	tests := []struct {
		name       string
		users      UserLookup
		wantStatus int
		wantRole   string
	}{
		{"current role wins", stubUsers{3: {UserID: 3, Username: "jana", Role: auth.RoleViewer, TokenVersion: 2}}, http.StatusOK, auth.RoleViewer},
		{"deactivated user", stubUsers{}, http.StatusUnauthorized, ""},
		{"password reset since issue", stubUsers{3: {UserID: 3, Username: "jana", Role: auth.RoleAdmin, TokenVersion: 3}}, http.StatusUnauthorized, ""},
		{"lookup failure", failingUsers{}, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthenticator(tokens, tt.users, "", testutil.TestLoggerSilent())
			var role string
			h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p, _ := GetPrincipal(r.Context())
				role = p.Role
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/verify", nil)
			req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if role != tt.wantRole {
				t.Errorf("role = %q, want %q", role, tt.wantRole)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(rr.Body.String(), "closed") {
				t.Errorf("body leaks the lookup error: %s", rr.Body.String())
			}
		})
	}
}

func TestAuthenticatorCookieFallback(t *testing.T) {
	tokens := newTestTokens(t)
	editor := auth.Principal{UserID: 7, Username: "redaktor", Role: auth.RoleEditor}
	valid := issueAccess(t, tokens, editor)

	tests := []struct {
		name       string
		cookie     string
		bearer     string
		wantStatus int
	}{
		{"stale cookie, valid bearer", "expired.cookie.token", valid, http.StatusOK},
		{"valid cookie, garbled bearer", valid, "garbled", http.StatusOK},
		{"both invalid", "expired.cookie.token", "garbled", http.StatusUnauthorized},
		{"stale cookie only", "expired.cookie.token", "", http.StatusUnauthorized},
	}

	a := NewAuthenticator(tokens, nil, "", testutil.TestLoggerSilent())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil)
			req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.cookie})
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name       string
		principal  *auth.Principal
		minRole    string
		wantStatus int
	}{
		{"no principal", nil, auth.RoleViewer, http.StatusUnauthorized},
		{"viewer reads", &auth.Principal{UserID: 1, Role: auth.RoleViewer}, auth.RoleViewer, http.StatusOK},
		{"viewer cannot edit", &auth.Principal{UserID: 1, Role: auth.RoleViewer}, auth.RoleEditor, http.StatusForbidden},
		{"editor edits", &auth.Principal{UserID: 2, Role: auth.RoleEditor}, auth.RoleEditor, http.StatusOK},
		{"editor is not admin", &auth.Principal{UserID: 2, Role: auth.RoleEditor}, auth.RoleAdmin, http.StatusForbidden},
		{"admin has everything", &auth.Principal{UserID: 3, Role: auth.RoleAdmin}, auth.RoleAdmin, http.StatusOK},
		{"unknown role", &auth.Principal{UserID: 4, Role: "owner"}, auth.RoleViewer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			h := RequireRole(tt.minRole)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodDelete, "/api/v1/categories/1", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), *tt.principal))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			wantCalls := 0
			if tt.wantStatus == http.StatusOK {
				wantCalls = 1
			}
			if calls != wantCalls {
				t.Errorf("handler called %d times, want %d", calls, wantCalls)
			}
		})
	}
}

func TestRoleShorthands(t *testing.T) {
	editor := auth.Principal{UserID: 2, Role: auth.RoleEditor}
	tests := []struct {
		name string
		mw   func(http.Handler) http.Handler
		want int
	}{
		{"RequireViewer", RequireViewer(), http.StatusOK},
		{"RequireEditor", RequireEditor(), http.StatusOK},
		{"RequireAdmin", RequireAdmin(), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithPrincipal(req.Context(), editor))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
