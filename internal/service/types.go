// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Pagination defaults.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination is a 1-based page request.
type Pagination struct {
	Page  int
	Limit int
}

// Normalize clamps page and limit into their valid ranges.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset returns the number of rows skipped before this page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is one slice of a listing.
type Page[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	HasMore bool  `json:"hasMore"`
}

func newPage[T any](items []T, total int64, p Pagination) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:   items,
		Total:   total,
		Page:    p.Page,
		Limit:   p.Limit,
		HasMore: int64(p.Offset()+len(items)) < total,
	}
}

// Nullable distinguishes an absent JSON key from an explicit null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// BulkItemResult is the outcome for one id of a bulk operation.
type BulkItemResult struct {
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkResult aggregates per-item outcomes. Bulk loops never abort early.
type BulkResult struct {
	Success int              `json:"success"`
	Failed  int              `json:"failed"`
	Results []BulkItemResult `json:"results"`
}

func (r *BulkResult) record(id int64, err error) {
	item := BulkItemResult{ID: id, Success: err == nil}
	if err != nil {
		item.Error = publicMessage(err)
		r.Failed++
	} else {
		r.Success++
	}
	r.Results = append(r.Results, item)
}

// publicMessage returns an error text safe to show to API clients.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict):
		return err.Error()
	default:
		return "internal error"
	}
}
