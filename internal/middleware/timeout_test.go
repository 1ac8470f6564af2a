// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serveWithTimeout(d time.Duration, h http.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Timeout(d)(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/articles", nil))
	return rec
}

func TestTimeout_FastHandler(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantBody   string
		wantHeader string
	}{
		{
			name: "implicit 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("zpravy"))
			},
			wantStatus: http.StatusOK,
			wantBody:   "zpravy",
		},
		{
			name: "explicit status and header",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Location", "/api/v1/articles/7")
				w.WriteHeader(http.StatusCreated)
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("{}"))
			},
			wantStatus: http.StatusCreated,
			wantBody:   "{}",
			wantHeader: "/api/v1/articles/7",
		},
		{
			name:       "no body",
			handler:    func(w http.ResponseWriter, r *http.Request) {},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveWithTimeout(time.Second, tt.handler)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d; want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q; want %q", rec.Body.String(), tt.wantBody)
			}
			if got := rec.Header().Get("Location"); got != tt.wantHeader {
				t.Errorf("Location = %q; want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestTimeout_SlowHandler(t *testing.T) {
	rec := serveWithTimeout(30*time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		w.Header().Set("X-Leaked", "yes")
		_, _ = w.Write([]byte("partial"))
	})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var body APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Success || body.Error.Code != "timeout" {
		t.Errorf("body = %+v; want timeout error", body)
	}
	if rec.Header().Get("X-Leaked") != "" {
		t.Error("headers from the abandoned handler reached the client")
	}
}

func TestTimeout_PanicPropagates(t *testing.T) {
	defer func() {
		if p := recover(); p != "boom" {
			t.Errorf("recovered %v; want boom", p)
		}
	}()
	serveWithTimeout(time.Second, func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	t.Error("expected panic")
}

func TestBufferedResponse_Expired(t *testing.T) {
	b := newBufferedResponse()
	b.expire()

	b.WriteHeader(http.StatusCreated)
	if _, err := b.Write([]byte("late")); !errors.Is(err, http.ErrHandlerTimeout) {
		t.Errorf("Write() error = %v; want ErrHandlerTimeout", err)
	}
	if b.status != 0 || b.body.Len() != 0 {
		t.Errorf("expired response recorded status=%d body=%q", b.status, b.body.String())
	}
}
