// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"database/sql"
	"time"
)

// NullInt64FromPtr converts a pointer to int64 into sql.NullInt64.
// Non-positive values are treated as absent.
func NullInt64FromPtr(ptr *int64) sql.NullInt64 {
	if ptr != nil && *ptr > 0 {
		return sql.NullInt64{Int64: *ptr, Valid: true}
	}
	return sql.NullInt64{}
}

// Int64Ptr returns a pointer to the value of n, or nil if n is NULL.
func Int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// NullTimeFromPtr converts a pointer to time.Time into sql.NullTime in UTC.
func NullTimeFromPtr(ptr *time.Time) sql.NullTime {
	if ptr == nil || ptr.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: ptr.UTC(), Valid: true}
}

// TimePtr returns a pointer to the value of t, or nil if t is NULL.
func TimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
