// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/olegiv/radnice/internal/store"
)

// TestLoggerSilent returns a logger that drops everything.
func TestLoggerSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB opens a migrated database in the test's temp directory. The
// returned func closes it; the file goes away with the directory.
func TestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	db, err := store.NewDB(filepath.Join(t.TempDir(), "radnice.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	if _, err := store.Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		t.Fatalf("Migrate: %v", err)
	}
	return db, func() { _ = db.Close() }
}

// CreateUser inserts an active user; the email is derived from username.
func CreateUser(t *testing.T, db *sql.DB, username, role, passwordHash string) store.User {
	t.Helper()

	now := time.Now().UTC()
	u, err := store.New(db).CreateUser(context.Background(), store.CreateUserParams{
		Username:     username,
		Email:        username + "@radnice.test",
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

// CreateCategory inserts an active top-level category.
func CreateCategory(t *testing.T, db *sql.DB, name, slug string) store.Category {
	t.Helper()

	now := time.Now().UTC()
	c, err := store.New(db).CreateCategory(context.Background(), store.CreateCategoryParams{
		Name:       name,
		Slug:       slug,
		IsActive:   true,
		SearchText: strings.ToLower(name + " " + slug),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateCategory(%s): %v", name, err)
	}
	return c
}
