// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/olegiv/radnice/internal/service"
)

// ReorderRequest is the body of POST /categories/reorder.
type ReorderRequest struct {
	Items []service.ReorderItem `json:"items"`
}

// ListCategories handles GET /api/v1/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	active, err := parseOptionalBool(r.URL.Query().Get("active"))
	if err != nil {
		WriteBadRequest(w, "Invalid active flag", nil)
		return
	}
	filter := service.CategoryFilter{
		Query:      r.URL.Query().Get("query"),
		ActiveOnly: active != nil && *active,
	}

	page, err := h.categories.List(r.Context(), filter, parsePagination(r))
	if err != nil {
		h.writeServiceError(w, r, "category", err)
		return
	}
	WriteSuccess(w, page.Items, pageMeta(page))
}

// ListPublicCategories handles GET /api/v1/public/categories.
func (h *Handler) ListPublicCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.categories.ListPublic(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "category", err)
		return
	}
	WriteSuccess(w, items, nil)
}

// GetCategory handles GET /api/v1/categories/{id}.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, ok := requireEntityByID(h, w, r, "category", func(id int64) (service.Category, error) {
		return h.categories.Get(r.Context(), id)
	})
	if !ok {
		return
	}
	WriteSuccess(w, category, nil)
}

// CreateCategory handles POST /api/v1/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if !decodeJSON(w, r, &in) {
		return
	}
	category, err := h.categories.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "category", err)
		return
	}
	h.logger.Info("category created", "category_id", category.ID, "slug", category.Slug)
	WriteCreated(w, category)
}

// UpdateCategory handles PUT /api/v1/categories/{id}.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "category")
	if !ok {
		return
	}
	var patch service.CategoryPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	category, err := h.categories.Update(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, r, "category", err)
		return
	}
	WriteSuccess(w, category, nil)
}

// DeleteCategory handles DELETE /api/v1/categories/{id}. A category still
// referenced by articles is answered with 409 and left intact.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "category")
	if !ok {
		return
	}
	if err := h.categories.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "category", err)
		return
	}
	h.logger.Info("category deleted", "category_id", id)
	WriteSuccess(w, map[string]int64{"id": id}, nil)
}

// ReorderCategories handles POST /api/v1/categories/reorder.
func (h *Handler) ReorderCategories(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.categories.Reorder(r.Context(), req.Items); err != nil {
		h.writeServiceError(w, r, "category", err)
		return
	}
	WriteSuccess(w, map[string]int{"updated": len(req.Items)}, nil)
}
