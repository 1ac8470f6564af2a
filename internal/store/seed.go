// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Default category created alongside the first administrator.
const (
	DefaultCategoryName = "Aktuality"
	DefaultCategorySlug = "aktuality"
)

// SeedParams describes the initial administrator.
type SeedParams struct {
	Username     string
	Email        string
	PasswordHash string
}

// Seed creates the first administrator and a default category when the
// users table is empty. It is a no-op otherwise.
func Seed(ctx context.Context, db *sql.DB, p SeedParams) error {
	if p.Username == "" || p.PasswordHash == "" {
		return errors.New("seed requires an admin username and password")
	}

	queries := New(db)

	count, err := queries.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if count > 0 {
		slog.Info("users already exist, skipping seed")
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := queries.WithTx(tx)
	now := time.Now().UTC()

	user, err := qtx.CreateUser(ctx, CreateUserParams{
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Role:         "admin",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	if n, err := qtx.CategorySlugExists(ctx, DefaultCategorySlug, 0); err != nil {
		return fmt.Errorf("checking default category: %w", err)
	} else if n == 0 {
		if _, err := qtx.CreateCategory(ctx, CreateCategoryParams{
			Name:       DefaultCategoryName,
			Slug:       DefaultCategorySlug,
			SearchText: strings.ToLower(DefaultCategoryName + " " + DefaultCategorySlug),
			IsActive:   true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return fmt.Errorf("creating default category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed: %w", err)
	}

	slog.Info("created initial admin user", "id", user.ID, "username", user.Username)
	return nil
}
