// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/olegiv/radnice/internal/middleware"
	"github.com/olegiv/radnice/internal/service"
)

// adminSubscriberSource marks subscribers added from the back office.
const adminSubscriberSource = "admin"

// UnsubscribeResponse confirms an unsubscription.
type UnsubscribeResponse struct {
	Email          string     `json:"email"`
	IsActive       bool       `json:"isActive"`
	UnsubscribedAt *time.Time `json:"unsubscribedAt"`
}

func subscriberFilterFromQuery(w http.ResponseWriter, r *http.Request) (service.SubscriberFilter, bool) {
	q := r.URL.Query()
	active, err := parseOptionalBool(q.Get("active"))
	if err != nil {
		WriteBadRequest(w, "Invalid active flag", nil)
		return service.SubscriberFilter{}, false
	}
	return service.SubscriberFilter{
		Query:  q.Get("query"),
		Active: active,
		Source: q.Get("source"),
	}, true
}

// Subscribe handles POST /api/v1/public/newsletter/subscribe. A new
// subscription answers 201, a reactivated one 200.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req service.SubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.subscribe(w, r, req)
}

// CreateSubscriber handles POST /api/v1/newsletter/subscribers.
func (h *Handler) CreateSubscriber(w http.ResponseWriter, r *http.Request) {
	var req service.SubscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Source == "" {
		req.Source = adminSubscriberSource
	}
	h.subscribe(w, r, req)
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request, req service.SubscribeRequest) {
	sub, created, err := h.newsletter.Subscribe(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "subscriber", err)
		return
	}
	h.logger.Info("newsletter subscription", "subscriber_id", sub.ID, "source", sub.Source, "created", created)
	if created {
		WriteCreated(w, sub)
		return
	}
	WriteSuccess(w, sub, nil)
}

// Unsubscribe handles GET /api/v1/public/newsletter/unsubscribe?token=.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	sub, err := h.newsletter.Unsubscribe(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.writeServiceError(w, r, "subscription", err)
		return
	}
	WriteSuccess(w, UnsubscribeResponse{
		Email:          sub.Email,
		IsActive:       sub.IsActive,
		UnsubscribedAt: sub.UnsubscribedAt,
	}, nil)
}

// ListSubscribers handles GET /api/v1/newsletter/subscribers.
func (h *Handler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	filter, ok := subscriberFilterFromQuery(w, r)
	if !ok {
		return
	}
	page, err := h.newsletter.List(r.Context(), filter, parsePagination(r))
	if err != nil {
		h.writeServiceError(w, r, "subscriber", err)
		return
	}
	WriteSuccess(w, page.Items, pageMeta(page))
}

// ExportSubscribers handles GET /api/v1/newsletter/subscribers/export. The
// CSV is built in memory so a failure can still be answered as JSON.
func (h *Handler) ExportSubscribers(w http.ResponseWriter, r *http.Request) {
	filter, ok := subscriberFilterFromQuery(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.newsletter.Export(r.Context(), &buf, filter); err != nil {
		h.writeServiceError(w, r, "subscriber", err)
		return
	}

	filename := "subscribers-" + time.Now().UTC().Format("20060102") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// BulkSubscribers handles POST /api/v1/newsletter/bulk-actions.
func (h *Handler) BulkSubscribers(w http.ResponseWriter, r *http.Request) {
	var req service.BulkActionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.newsletter.BulkAction(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "subscriber", err)
		return
	}
	h.logger.Info("newsletter bulk action", "action", req.Action, "success", result.Success, "failed", result.Failed)
	WriteSuccess(w, result, nil)
}

// ListCampaigns handles GET /api/v1/newsletter/campaigns.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, err := h.campaigns.List(r.Context(), parsePagination(r))
	if err != nil {
		h.writeServiceError(w, r, "campaign", err)
		return
	}
	WriteSuccess(w, page.Items, pageMeta(page))
}

// CreateCampaign handles POST /api/v1/newsletter/campaigns.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		WriteUnauthorized(w, "Authentication required")
		return
	}
	var in service.CampaignInput
	if !decodeJSON(w, r, &in) {
		return
	}
	campaign, err := h.campaigns.Create(r.Context(), p.UserID, in)
	if err != nil {
		h.writeServiceError(w, r, "campaign", err)
		return
	}
	WriteCreated(w, campaign)
}

// GetCampaign handles GET /api/v1/newsletter/campaigns/{id}.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, ok := requireEntityByID(h, w, r, "campaign", func(id int64) (service.Campaign, error) {
		return h.campaigns.Get(r.Context(), id)
	})
	if !ok {
		return
	}
	WriteSuccess(w, campaign, nil)
}

// DeleteCampaign handles DELETE /api/v1/newsletter/campaigns/{id}.
func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r, "campaign")
	if !ok {
		return
	}
	if err := h.campaigns.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "campaign", err)
		return
	}
	WriteSuccess(w, map[string]int64{"id": id}, nil)
}

// CampaignRecipients handles GET /api/v1/newsletter/campaigns/{id}/recipients.
func (h *Handler) CampaignRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, ok := requireEntityByID(h, w, r, "campaign", func(id int64) ([]service.Subscriber, error) {
		return h.campaigns.Recipients(r.Context(), id)
	})
	if !ok {
		return
	}
	if recipients == nil {
		recipients = []service.Subscriber{}
	}
	WriteSuccess(w, recipients, &Meta{Total: int64(len(recipients)), Page: 1, Limit: len(recipients), Pages: 1})
}
