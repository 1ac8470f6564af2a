// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides the HTTP handlers that live outside the
// versioned API.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olegiv/radnice/internal/auth"
	"github.com/olegiv/radnice/internal/cache"
	"github.com/olegiv/radnice/internal/middleware"
	"github.com/olegiv/radnice/internal/version"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

const (
	checkTimeout  = 2 * time.Second
	cacheCheckKey = "health:check"
	minFreeDisk   = 100 << 20
)

// HealthHandler serves /health, /health/live and /health/ready.
type HealthHandler struct {
	db         *sql.DB
	cache      cache.Cache
	authn      *middleware.Authenticator
	uploadsDir string
	startTime  time.Time
}

// NewHealthHandler returns a HealthHandler. c and authn may be nil; without
// authn every caller gets the public response.
func NewHealthHandler(db *sql.DB, c cache.Cache, authn *middleware.Authenticator, uploadsDir string) *HealthHandler {
	return &HealthHandler{db: db, cache: c, authn: authn, uploadsDir: uploadsDir, startTime: time.Now()}
}

// StartTime is when the handler was created.
func (h *HealthHandler) StartTime() time.Time { return h.startTime }

// HealthStatusPublic is all an anonymous caller learns.
type HealthStatusPublic struct {
	Status string `json:"status"`
}

// HealthStatus is the admin view of /health.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	System    *SystemInfo      `json:"system,omitempty"`
}

// Check is the outcome of one check.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo describes the running process.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutines"`
	NumCPU       int    `json:"num_cpus"`
	MemAlloc     string `json:"mem_alloc"`
	MemSys       string `json:"mem_sys"`
}

// Health handles GET /health. Admins see each check, and process details
// with ?verbose=true.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := h.runChecks(r.Context(), map[string]func(context.Context) Check{
		"database": h.checkDatabase,
		"cache":    h.checkCache,
		"disk":     func(context.Context) Check { return h.checkDiskSpace() },
	})

	overall, code := statusHealthy, http.StatusOK
	for _, c := range checks {
		if c.Status != statusHealthy {
			overall, code = statusDegraded, http.StatusServiceUnavailable
			break
		}
	}

	if !h.isAdmin(r) {
		writeJSON(w, code, HealthStatusPublic{Status: overall})
		return
	}

	resp := HealthStatus{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   version.Current().Version,
		Checks:    checks,
	}
	if r.URL.Query().Get("verbose") == "true" {
		resp.System = systemInfo()
	}
	writeJSON(w, code, resp)
}

// Liveness handles GET /health/live.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness handles GET /health/ready: ready once the database and the
// cache answer. Admins are told which one failed.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := h.runChecks(r.Context(), map[string]func(context.Context) Check{
		"database": h.checkDatabase,
		"cache":    h.checkCache,
	})

	resp := map[string]string{"status": "ready"}
	code := http.StatusOK
	admin := false
	for name, c := range checks {
		if c.Status == statusHealthy {
			continue
		}
		resp["status"], code = "not_ready", http.StatusServiceUnavailable
		if !admin {
			admin = h.isAdmin(r)
		}
		if admin {
			resp[name] = c.Message
		}
	}
	writeJSON(w, code, resp)
}

// runChecks runs the checks concurrently, each bounded by checkTimeout.
func (h *HealthHandler) runChecks(ctx context.Context, checks map[string]func(context.Context) Check) map[string]Check {
	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(checks))
		g       errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			c := check(pctx)
			mu.Lock()
			results[name] = c
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (h *HealthHandler) isAdmin(r *http.Request) bool {
	if h.authn == nil {
		return false
	}
	p, _, err := h.authn.Authenticate(r)
	return err == nil && auth.HasRole(p.Role, auth.RoleAdmin)
}

// timed runs fn and reports its outcome with okMessage on success.
func timed(okMessage string, fn func() error) Check {
	start := time.Now()
	err := fn()
	latency := time.Since(start).String()
	if err != nil {
		return Check{Status: statusUnhealthy, Message: err.Error(), Latency: latency}
	}
	return Check{Status: statusHealthy, Message: okMessage, Latency: latency}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	return timed("Connected", func() error { return h.db.PingContext(ctx) })
}

func (h *HealthHandler) checkCache(ctx context.Context) Check {
	if h.cache == nil {
		return Check{Status: statusHealthy, Message: "Disabled"}
	}
	return timed("Reachable", func() error {
		_, err := h.cache.Has(ctx, cacheCheckKey)
		return err
	})
}

// checkDiskSpace reports free space on the uploads volume. A missing
// directory is fine; it is created on the first upload.
func (h *HealthHandler) checkDiskSpace() Check {
	if _, err := os.Stat(h.uploadsDir); errors.Is(err, fs.ErrNotExist) {
		return Check{Status: statusHealthy, Message: "Uploads directory does not exist yet"}
	}

	var st syscall.Statfs_t
	if err := syscall.Statfs(h.uploadsDir, &st); err != nil {
		return Check{Status: statusUnhealthy, Message: "Failed to check disk space: " + err.Error()}
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < minFreeDisk {
		return Check{Status: statusDegraded, Message: "Low disk space: " + formatBytes(free) + " available"}
	}
	return Check{Status: statusHealthy, Message: formatBytes(free) + " available"}
}

func systemInfo() *SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &SystemInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     formatBytes(m.Alloc),
		MemSys:       formatBytes(m.Sys),
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// formatBytes renders n with a binary unit, e.g. "1.50 MB".
func formatBytes(n uint64) string {
	units := []string{"KB", "MB", "GB", "TB"}
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n) / 1024
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, units[i])
}
