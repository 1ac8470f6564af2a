// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/radnice/internal/middleware"
	"github.com/olegiv/radnice/internal/service"
)

// Bulk article actions.
const (
	bulkActionDelete = "delete"
	bulkActionUpdate = "update"
)

// BulkArticlesRequest is the body of POST /articles/bulk.
type BulkArticlesRequest struct {
	Action     string                `json:"action"`
	ArticleIDs []int64               `json:"articleIds"`
	Updates    *service.ArticlePatch `json:"updates"`
}

// articleFilterFromQuery reads list filters shared by the admin and public
// listings.
func articleFilterFromQuery(w http.ResponseWriter, r *http.Request) (service.ArticleFilter, bool) {
	q := r.URL.Query()
	filter := service.ArticleFilter{
		Query:        q.Get("query"),
		CategorySlug: q.Get("category"),
		Status:       q.Get("status"),
		Source:       q.Get("source"),
	}

	categoryID, err := parseOptionalID(q.Get("categoryId"))
	if err != nil {
		WriteBadRequest(w, "Invalid categoryId", nil)
		return filter, false
	}
	filter.CategoryID = categoryID

	authorID, err := parseOptionalID(q.Get("authorId"))
	if err != nil {
		WriteBadRequest(w, "Invalid authorId", nil)
		return filter, false
	}
	filter.AuthorID = authorID

	if raw := q.Get("featured"); raw != "" {
		featured, err := strconv.ParseBool(raw)
		if err != nil {
			WriteBadRequest(w, "Invalid featured flag", nil)
			return filter, false
		}
		filter.FeaturedOnly = featured
	}

	if filter.Status != "" && !service.IsValidArticleStatus(filter.Status) {
		WriteValidationError(w, map[string]string{"status": "Unknown status"})
		return filter, false
	}
	return filter, true
}

// ListArticles handles GET /api/v1/articles.
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	filter, ok := articleFilterFromQuery(w, r)
	if !ok {
		return
	}
	page, err := h.articles.List(r.Context(), filter, parsePagination(r))
	if err != nil {
		h.writeServiceError(w, r, "article", err)
		return
	}
	WriteSuccess(w, page.Items, pageMeta(page))
}

// GetArticle handles GET /api/v1/articles/{id}.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	article, ok := requireEntityByID(h, w, r, "article", func(id int64) (service.Article, error) {
		return h.articles.Get(r.Context(), id)
	})
	if !ok {
		return
	}
	WriteSuccess(w, article, nil)
}

// CreateArticle handles POST /api/v1/articles.
func (h *Handler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		WriteUnauthorized(w, "Authentication required")
		return
	}

	var in service.ArticleInput
	if !decodeJSON(w, r, &in) {
		return
	}

	article, err := h.articles.Create(r.Context(), p.UserID, in)
	if err != nil {
		h.writeServiceError(w, r, "article", err)
		return
	}
	h.logger.Info("article created", "article_id", article.ID, "slug", article.Slug, "user_id", p.UserID)
	WriteCreated(w, article)
}

// UpdateArticle handles PUT /api/v1/articles/{id}.
func (h *Handler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "article")
	if !ok {
		return
	}

	var patch service.ArticlePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	article, err := h.articles.Update(r.Context(), id, patch)
	if err != nil {
		h.writeServiceError(w, r, "article", err)
		return
	}
	WriteSuccess(w, article, nil)
}

// DeleteArticle handles DELETE /api/v1/articles/{id}.
func (h *Handler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "article")
	if !ok {
		return
	}
	if err := h.articles.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "article", err)
		return
	}
	h.logger.Info("article deleted", "article_id", id)
	WriteSuccess(w, map[string]int64{"id": id}, nil)
}

// BulkArticles handles POST /api/v1/articles/bulk.
func (h *Handler) BulkArticles(w http.ResponseWriter, r *http.Request) {
	var req BulkArticlesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		result service.BulkResult
		err    error
	)
	switch req.Action {
	case bulkActionDelete:
		result, err = h.articles.BulkDelete(r.Context(), req.ArticleIDs)
	case bulkActionUpdate:
		if req.Updates == nil {
			WriteValidationError(w, map[string]string{"updates": "Updates are required for the update action"})
			return
		}
		result, err = h.articles.BulkUpdate(r.Context(), req.ArticleIDs, *req.Updates)
	default:
		WriteValidationError(w, map[string]string{"action": "Action must be delete or update"})
		return
	}
	if err != nil {
		h.writeServiceError(w, r, "article", err)
		return
	}
	WriteSuccess(w, result, nil)
}

// ListPublicArticles handles GET /api/v1/public/articles. Only visible
// articles are returned; a status filter is ignored.
func (h *Handler) ListPublicArticles(w http.ResponseWriter, r *http.Request) {
	filter, ok := articleFilterFromQuery(w, r)
	if !ok {
		return
	}
	filter.Status = ""
	filter.AuthorID = 0
	filter.VisibleOnly = true

	page, err := h.articles.List(r.Context(), filter, parsePagination(r))
	if err != nil {
		h.writeServiceError(w, r, "article", err)
		return
	}
	WriteSuccess(w, page.Items, pageMeta(page))
}

// GetPublicArticle handles GET /api/v1/public/articles/{slug} and records a
// page view.
func (h *Handler) GetPublicArticle(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	article, err := h.articles.GetVisibleBySlug(r.Context(), slug)
	if err != nil {
		h.writeServiceError(w, r, "article", err)
		return
	}

	h.trackView(r, article)
	WriteSuccess(w, article, nil)
}

// trackView records a page view without delaying the response. Bots are
// not counted.
func (h *Handler) trackView(r *http.Request, article service.Article) {
	if h.analytics == nil {
		return
	}
	if service.ParseUserAgent(r.UserAgent()).Device == service.DeviceBot {
		return
	}
	id := article.ID
	view := service.PageView{
		ArticleID:  &id,
		Path:       "/" + article.Slug,
		Referrer:   r.Referer(),
		UserAgent:  r.UserAgent(),
		RemoteAddr: middleware.GetClientIP(r),
	}
	ctx := context.WithoutCancel(r.Context())

	go func() {
		if err := h.analytics.Track(ctx, view); err != nil {
			h.logger.Warn("failed to record page view", "article_id", id, "error", err)
			return
		}
		h.metrics.ObservePageView()
	}()
}
