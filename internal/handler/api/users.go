// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/olegiv/radnice/internal/middleware"
	"github.com/olegiv/radnice/internal/service"
)

// ListUsers handles GET /api/v1/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "user", err)
		return
	}
	WriteSuccess(w, users, nil)
}

// GetUser handles GET /api/v1/users/{id}.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := requireEntityByID(h, w, r, "user", func(id int64) (service.User, error) {
		return h.users.Get(r.Context(), id)
	})
	if !ok {
		return
	}
	WriteSuccess(w, user, nil)
}

// CreateUser handles POST /api/v1/users.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.UserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.users.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "user", err)
		return
	}
	WriteCreated(w, user)
}

// UpdateUser handles PUT /api/v1/users/{id}. Admins cannot deactivate or
// demote their own account.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "user")
	if !ok {
		return
	}
	var patch service.UserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	if p, ok := middleware.GetPrincipal(r.Context()); ok && p.UserID == id {
		if (patch.IsActive != nil && !*patch.IsActive) || (patch.Role != nil && *patch.Role != p.Role) {
			WriteError(w, http.StatusConflict, "conflict", "You cannot demote or deactivate your own account", nil)
			return
		}
	}

	user, err := h.users.Update(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, r, "user", err)
		return
	}
	h.logger.Info("user updated", "user_id", id, "role", user.Role, "active", user.IsActive, "reset_credentials", patch.Password != nil)
	WriteSuccess(w, user, nil)
}
