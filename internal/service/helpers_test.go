// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"database/sql"
	"testing"
	"time"

	"github.com/olegiv/radnice/internal/store"
	"github.com/olegiv/radnice/internal/testutil"
)

type fixture struct {
	db       *sql.DB
	author   store.User
	category store.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)

	return &fixture{
		db:       db,
		author:   testutil.CreateUser(t, db, "editor", "editor", "hash"),
		category: testutil.CreateCategory(t, db, "Aktuality", "aktuality"),
	}
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	current := start.UTC()
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func ptr[T any](v T) *T { return &v }

func some[T any](v T) Nullable[T] { return Nullable[T]{Set: true, Value: &v} }
