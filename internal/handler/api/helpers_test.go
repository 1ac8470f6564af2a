// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/radnice/internal/auth"
	"github.com/olegiv/radnice/internal/cache"
	"github.com/olegiv/radnice/internal/middleware"
	"github.com/olegiv/radnice/internal/service"
	"github.com/olegiv/radnice/internal/store"
	"github.com/olegiv/radnice/internal/testutil"
)

const (
	testSecret   = "Api-Handler-Test-Secret-32bytes!"
	testPassword = "Radnice-Heslo-2026"
)

// testEnv is a fully wired /api/v1 router backed by a temporary database.
type testEnv struct {
	db        *sql.DB
	router    http.Handler
	handler   *Handler
	tokens    *auth.TokenManager
	users     *service.UserService
	uploadDir string

	admin  store.User
	editor store.User
	viewer store.User
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithProtection(t, middleware.LoginProtectionConfig{
		IPRateLimit:       100,
		IPBurst:           100,
		MaxFailedAttempts: 3,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Minute,
	})
}

func newTestEnvWithProtection(t *testing.T, lpCfg middleware.LoginProtectionConfig) *testEnv {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)
	logger := testutil.TestLoggerSilent()

	mem := cache.NewMemoryCache(cache.MemoryCacheOptions{DefaultTTL: time.Minute})
	t.Cleanup(func() { _ = mem.Close() })

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:  testSecret,
		Issuer:  "radnice",
		Revoker: auth.NewRevoker(mem),
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	users := service.NewUserService(db, logger)
	subs := service.NewSQLSubscriberStore(db)
	lp := middleware.NewLoginProtection(lpCfg)
	t.Cleanup(lp.Close)

	uploadDir := t.TempDir()
	h := NewHandler(Config{
		Articles:        service.NewArticleService(db, logger),
		Categories:      service.NewCategoryService(db, mem, logger),
		Newsletter:      service.NewNewsletterService(subs, logger),
		Campaigns:       service.NewCampaignService(db, subs),
		Media:           service.NewMediaService(uploadDir, "/uploads", 0, logger),
		Analytics:       service.NewAnalyticsService(db, subs, nil, 0, logger),
		Users:           users,
		Tokens:          tokens,
		Authenticator:   middleware.NewAuthenticator(tokens, users, "", logger),
		LoginProtection: lp,
		Logger:          logger,
	})

	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	return &testEnv{
		db:        db,
		router:    r,
		handler:   h,
		tokens:    tokens,
		users:     users,
		uploadDir: uploadDir,
		admin:     testutil.CreateUser(t, db, "spravce", auth.RoleAdmin, hash),
		editor:    testutil.CreateUser(t, db, "redaktor", auth.RoleEditor, hash),
		viewer:    testutil.CreateUser(t, db, "ctenar", auth.RoleViewer, hash),
	}
}

// token issues an access token for u.
func (e *testEnv) token(t *testing.T, u store.User) string {
	t.Helper()
	pair, err := e.tokens.Issue(auth.Principal{UserID: u.ID, Username: u.Username, Role: u.Role})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return pair.AccessToken
}

// do sends a request through the router. A non-empty token is sent as a
// bearer credential.
func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(req)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createCategory creates a category through the store helper.
func (e *testEnv) createCategory(t *testing.T, name, slug string) store.Category {
	t.Helper()
	return testutil.CreateCategory(t, e.db, name, slug)
}

// envelope is the decoded form of a success response.
type envelope[T any] struct {
	Success bool  `json:"success"`
	Data    T     `json:"data"`
	Meta    *Meta `json:"meta"`
}

func decodeEnvelope[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	if !env.Success {
		t.Fatalf("success = false; body %s", w.Body.String())
	}
	return env
}

func assertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Fatalf("status code = %d; want %d (body %s)", w.Code, expected, w.Body.String())
	}
}

func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) middleware.APIError {
	t.Helper()
	var resp middleware.APIError
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response %q: %v", w.Body.String(), err)
	}
	if resp.Success {
		t.Error("success = true on an error response")
	}
	if resp.Error.Code != expectedCode {
		t.Errorf("error code = %q; want %q", resp.Error.Code, expectedCode)
	}
	return resp
}
