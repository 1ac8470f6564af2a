// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/radnice/internal/middleware"
)

// Routes registers the /api/v1 endpoints on r. Everything outside auth and
// the public group requires a verified token; roles are checked per route.
func (h *Handler) Routes(r chi.Router) {
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", nil)
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(h.loginProtection).Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(h.authn.Middleware)
			r.Get("/verify", h.Verify)
			r.Post("/logout", h.Logout)
		})
	})

	r.Route("/public", func(r chi.Router) {
		r.Get("/articles", h.ListPublicArticles)
		r.Get("/articles/{slug}", h.GetPublicArticle)
		r.Get("/categories", h.ListPublicCategories)
		r.Post("/newsletter/subscribe", h.Subscribe)
		r.Get("/newsletter/unsubscribe", h.Unsubscribe)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authn.Middleware)

		r.Route("/articles", func(r chi.Router) {
			r.With(middleware.RequireViewer()).Get("/", h.ListArticles)
			r.With(middleware.RequireEditor()).Post("/", h.CreateArticle)
			r.With(middleware.RequireEditor()).Post("/bulk", h.BulkArticles)
			r.Route("/{id}", func(r chi.Router) {
				r.With(middleware.RequireViewer()).Get("/", h.GetArticle)
				r.With(middleware.RequireEditor()).Put("/", h.UpdateArticle)
				r.With(middleware.RequireEditor()).Delete("/", h.DeleteArticle)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.With(middleware.RequireViewer()).Get("/", h.ListCategories)
			r.With(middleware.RequireAdmin()).Post("/", h.CreateCategory)
			r.With(middleware.RequireAdmin()).Post("/reorder", h.ReorderCategories)
			r.Route("/{id}", func(r chi.Router) {
				r.With(middleware.RequireViewer()).Get("/", h.GetCategory)
				r.With(middleware.RequireAdmin()).Put("/", h.UpdateCategory)
				r.With(middleware.RequireAdmin()).Delete("/", h.DeleteCategory)
			})
		})

		r.Route("/newsletter", func(r chi.Router) {
			r.Use(middleware.RequireEditor())
			r.Get("/subscribers", h.ListSubscribers)
			r.Post("/subscribers", h.CreateSubscriber)
			r.Get("/subscribers/export", h.ExportSubscribers)
			r.Post("/bulk-actions", h.BulkSubscribers)
			r.Get("/campaigns", h.ListCampaigns)
			r.Post("/campaigns", h.CreateCampaign)
			r.Get("/campaigns/{id}", h.GetCampaign)
			r.Delete("/campaigns/{id}", h.DeleteCampaign)
			r.Get("/campaigns/{id}/recipients", h.CampaignRecipients)
		})

		r.Route("/media", func(r chi.Router) {
			r.Use(middleware.RequireEditor())
			r.Post("/upload", h.UploadMedia)
			r.Delete("/delete", h.DeleteMedia)
		})

		r.With(middleware.RequireViewer()).Get("/analytics/overview", h.AnalyticsOverview)

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
		})
	})
}

// loginProtection applies the per-IP login throttle when configured.
func (h *Handler) loginProtection(next http.Handler) http.Handler {
	if h.loginProt == nil {
		return next
	}
	return h.loginProt.Middleware()(next)
}
