// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the JSON handlers of the back-office API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/radnice/internal/auth"
	"github.com/olegiv/radnice/internal/middleware"
	"github.com/olegiv/radnice/internal/service"
)

// maxJSONBody caps decoded request bodies.
const maxJSONBody = 1 << 20

// Config collects the dependencies of the API handlers.
type Config struct {
	Articles   *service.ArticleService
	Categories *service.CategoryService
	Newsletter *service.NewsletterService
	Campaigns  *service.CampaignService
	Media      *service.MediaService
	Analytics  *service.AnalyticsService
	Users      *service.UserService

	Tokens          *auth.TokenManager
	Authenticator   *middleware.Authenticator
	LoginProtection *middleware.LoginProtection
	Metrics         *middleware.Metrics

	// SecureCookies marks auth cookies Secure; off only in development.
	SecureCookies bool
	Logger        *slog.Logger
}

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	articles   *service.ArticleService
	categories *service.CategoryService
	newsletter *service.NewsletterService
	campaigns  *service.CampaignService
	media      *service.MediaService
	analytics  *service.AnalyticsService
	users      *service.UserService

	tokens        *auth.TokenManager
	authn         *middleware.Authenticator
	loginProt     *middleware.LoginProtection
	metrics       *middleware.Metrics
	secureCookies bool
	logger        *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		articles:      cfg.Articles,
		categories:    cfg.Categories,
		newsletter:    cfg.Newsletter,
		campaigns:     cfg.Campaigns,
		media:         cfg.Media,
		analytics:     cfg.Analytics,
		users:         cfg.Users,
		tokens:        cfg.Tokens,
		authn:         cfg.Authenticator,
		loginProt:     cfg.LoginProtection,
		metrics:       cfg.Metrics,
		secureCookies: cfg.SecureCookies,
		logger:        logger,
	}
}

// Response is the standard API response wrapper.
type Response struct {
	Success bool  `json:"success"`
	Data    any   `json:"data,omitempty"`
	Meta    *Meta `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Pages   int   `json:"pages"`
	HasMore bool  `json:"hasMore"`
}

// pageMeta builds list metadata from a service page.
func pageMeta[T any](p service.Page[T]) *Meta {
	pages := 0
	if p.Limit > 0 {
		pages = int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return &Meta{
		Total:   p.Total,
		Page:    p.Page,
		Limit:   p.Limit,
		Pages:   pages,
		HasMore: p.HasMore,
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// WriteCreated writes a 201 Created JSON response.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Success: true, Data: data})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	middleware.WriteAPIError(w, statusCode, code, message, details)
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, details)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteUnauthorized writes a 401 Unauthorized response.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
}

// WriteValidationError writes a 400 response with field errors.
func WriteValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	WriteError(w, http.StatusBadRequest, "validation_error", "Validation failed", fieldErrors)
}

// writeServiceError maps service and auth errors onto HTTP responses.
// Unknown errors are logged and answered with a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, entity string, err error) {
	var verr *service.ValidationError
	var cerr *service.ConflictError

	switch {
	case errors.As(err, &verr):
		WriteValidationError(w, verr.Fields)
	case errors.Is(err, service.ErrValidation):
		WriteBadRequest(w, "Invalid request", nil)
	case errors.Is(err, service.ErrNotFound):
		WriteNotFound(w, capitalizeFirst(entity)+" not found")
	case errors.As(err, &cerr):
		var details map[string]string
		if cerr.Relation != "" {
			details = map[string]string{
				"relation": cerr.Relation,
				"count":    strconv.FormatInt(cerr.Count, 10),
			}
		}
		WriteError(w, http.StatusConflict, "conflict", cerr.Error(), details)
	case errors.Is(err, service.ErrConflict):
		WriteError(w, http.StatusConflict, "conflict", capitalizeFirst(entity)+" conflicts with existing data", nil)
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		WriteUnauthorized(w, "Authentication required")
	default:
		h.logger.Error("api request failed",
			"error", err,
			"entity", entity,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID(r),
		)
		WriteInternalError(w)
	}
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "Invalid JSON body"
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			msg = "Request body too large"
		case errors.Is(err, io.EOF):
			msg = "Request body is required"
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			msg = capitalizeFirst(strings.TrimPrefix(err.Error(), "json: "))
		}
		WriteBadRequest(w, msg, nil)
		return false
	}
	return true
}

// parseIDParam parses a positive int64 chi URL parameter.
func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// requireID parses the "id" URL parameter, writing a 400 on failure.
func requireID(w http.ResponseWriter, r *http.Request, entityName string) (int64, bool) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		WriteBadRequest(w, "Invalid "+entityName+" ID", nil)
		return 0, false
	}
	return id, true
}

// EntityFetcher is a function that fetches an entity by ID.
type EntityFetcher[T any] func(id int64) (T, error)

// requireEntityByID parses an ID from the URL and fetches the entity.
// Returns the entity and true if successful, or zero value and false if the
// response was already written.
func requireEntityByID[T any](h *Handler, w http.ResponseWriter, r *http.Request, entityName string, fetch EntityFetcher[T]) (T, bool) {
	var zero T
	id, ok := requireID(w, r, entityName)
	if !ok {
		return zero, false
	}
	entity, err := fetch(id)
	if err != nil {
		h.writeServiceError(w, r, entityName, err)
		return zero, false
	}
	return entity, true
}

// parsePagination reads page and limit query parameters. Invalid values
// fall back to the defaults.
func parsePagination(r *http.Request) service.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return service.Pagination{Page: page, Limit: limit}.Normalize()
}

// parseOptionalBool parses a tri-state query flag; empty means unset.
func parseOptionalBool(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseOptionalID parses an optional positive id query parameter.
func parseOptionalID(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func requestID(r *http.Request) string {
	return chimw.GetReqID(r.Context())
}

// capitalizeFirst returns s with the first letter capitalized.
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
