// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"

	"github.com/olegiv/radnice/internal/service"
)

// AnalyticsOverview handles GET /api/v1/analytics/overview?days=.
func (h *Handler) AnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	days := service.DefaultOverviewDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxOverviewDays {
			WriteValidationError(w, map[string]string{
				"days": "must be between 1 and " + strconv.Itoa(service.MaxOverviewDays),
			})
			return
		}
		days = n
	}

	overview, err := h.analytics.Overview(r.Context(), days)
	if err != nil {
		h.writeServiceError(w, r, "analytics", err)
		return
	}
	WriteSuccess(w, overview, nil)
}
