// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/radnice/internal/util"
)

// Subscription frequencies.
const (
	FrequencyImmediate = "immediate"
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
	FrequencyMonthly   = "monthly"
)

// DefaultSubscriberSource is stored when a subscription names no source.
const DefaultSubscriberSource = "website"

// Bulk subscriber actions.
const (
	BulkActivate          = "activate"
	BulkDeactivate        = "deactivate"
	BulkDelete            = "delete"
	BulkUpdatePreferences = "update-preferences"
)

// MaxBulkEmails caps the emails accepted by one bulk action.
const MaxBulkEmails = 1000

// MaxEmailLength follows RFC 5321.
const MaxEmailLength = 254

// ExportHeader is the first CSV row of a subscriber export.
var ExportHeader = []string{"id", "email", "subscribed_at", "is_active", "source", "unsubscribed_at"}

// IsValidFrequency reports whether f is a known frequency.
func IsValidFrequency(f string) bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Subscriber is a newsletter subscription.
type Subscriber struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	IsActive         bool       `json:"isActive"`
	Source           string     `json:"source"`
	SubscribedAt     time.Time  `json:"subscribedAt"`
	UnsubscribedAt   *time.Time `json:"unsubscribedAt"`
	Frequency        string     `json:"frequency"`
	Categories       []string   `json:"categories"`
	UnsubscribeToken string     `json:"-"`
}

// SubscriberFilter selects subscribers. A nil Active matches both states.
type SubscriberFilter struct {
	Query  string
	Active *bool
	Source string
}

// Preferences are the delivery settings of a subscriber.
type Preferences struct {
	Frequency  string   `json:"frequency"`
	Categories []string `json:"categories"`
}

// SubscribeRequest is the body of a subscription.
type SubscribeRequest struct {
	Email      string   `json:"email"`
	Source     string   `json:"source"`
	Frequency  string   `json:"frequency"`
	Categories []string `json:"categories"`
}

// BulkActionRequest applies one action to many subscribers by email.
type BulkActionRequest struct {
	Action      string       `json:"action"`
	Emails      []string     `json:"emails"`
	Preferences *Preferences `json:"preferences"`
}

// NewsletterBulkItem is the outcome for one email.
type NewsletterBulkItem struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewsletterBulkResult aggregates a bulk action. Emails that match no
// subscriber are dropped before processing and appear nowhere.
type NewsletterBulkResult struct {
	Success int                  `json:"success"`
	Failed  int                  `json:"failed"`
	Results []NewsletterBulkItem `json:"results"`
}

// SubscriberStore persists subscribers. Lookups of missing records
// return ErrNotFound; duplicate emails or tokens return ErrConflict.
type SubscriberStore interface {
	GetByEmail(ctx context.Context, email string) (Subscriber, error)
	GetByToken(ctx context.Context, token string) (Subscriber, error)
	Create(ctx context.Context, s Subscriber) (Subscriber, error)
	Update(ctx context.Context, s Subscriber) (Subscriber, error)
	SetActive(ctx context.Context, id int64, active bool, at time.Time) error
	Delete(ctx context.Context, id int64) error
	// List returns matches newest first plus the total; limit < 0 returns all.
	List(ctx context.Context, filter SubscriberFilter, limit, offset int) ([]Subscriber, int64, error)
	// Count returns active and inactive totals.
	Count(ctx context.Context) (active, inactive int64, err error)
}

// NewsletterService implements subscriber management.
type NewsletterService struct {
	store  SubscriberStore
	logger *slog.Logger
	now    func() time.Time
}

// NewNewsletterService creates a new NewsletterService over store.
func NewNewsletterService(store SubscriberStore, logger *slog.Logger) *NewsletterService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NewsletterService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeEmail validates a bare address and returns it lower-cased.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email", "is required")
	}
	if len(email) > MaxEmailLength {
		return "", invalid("email", fmt.Sprintf("must be at most %d characters", MaxEmailLength))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", invalid("email", "is not a valid email address")
	}
	return email, nil
}

func normalizePreferences(p Preferences) (Preferences, error) {
	if p.Frequency == "" {
		p.Frequency = FrequencyImmediate
	}
	if !IsValidFrequency(p.Frequency) {
		return p, invalid("frequency", "must be immediate, daily, weekly or monthly")
	}

	cats := make([]string, 0, len(p.Categories))
	seen := make(map[string]bool, len(p.Categories))
	for _, c := range p.Categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if !util.IsValidSlug(c) {
			return p, invalid("categories", "must be category slugs")
		}
		seen[c] = true
		cats = append(cats, c)
	}
	p.Categories = cats
	return p, nil
}

// Subscribe adds an email or reactivates an unsubscribed one. created
// reports whether a new record was stored.
func (s *NewsletterService) Subscribe(ctx context.Context, req SubscribeRequest) (sub Subscriber, created bool, err error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return Subscriber{}, false, err
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = DefaultSubscriberSource
	}
	if !util.IsValidSlug(source) {
		return Subscriber{}, false, invalid("source", "must be a lowercase identifier")
	}
	prefs, err := normalizePreferences(Preferences{Frequency: req.Frequency, Categories: req.Categories})
	if err != nil {
		return Subscriber{}, false, err
	}

	now := s.now()
	existing, err := s.store.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.IsActive:
		return Subscriber{}, false, &ConflictError{Resource: "subscriber", Message: "email is already subscribed"}
	case err == nil:
		existing.IsActive = true
		existing.UnsubscribedAt = nil
		existing.Source = source
		existing.SubscribedAt = now
		existing.Frequency = prefs.Frequency
		existing.Categories = prefs.Categories
		sub, err = s.store.Update(ctx, existing)
		if err != nil {
			return Subscriber{}, false, fmt.Errorf("reactivating subscriber: %w", err)
		}
		return sub, false, nil
	case !errors.Is(err, ErrNotFound):
		return Subscriber{}, false, fmt.Errorf("looking up subscriber: %w", err)
	}

	sub, err = s.store.Create(ctx, Subscriber{
		Email:            email,
		IsActive:         true,
		Source:           source,
		SubscribedAt:     now,
		Frequency:        prefs.Frequency,
		Categories:       prefs.Categories,
		UnsubscribeToken: uuid.NewString(),
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return Subscriber{}, false, &ConflictError{Resource: "subscriber", Message: "email is already subscribed"}
		}
		return Subscriber{}, false, fmt.Errorf("creating subscriber: %w", err)
	}
	return sub, true, nil
}

// Unsubscribe deactivates the subscriber owning token. Repeating it is a no-op.
func (s *NewsletterService) Unsubscribe(ctx context.Context, token string) (Subscriber, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Subscriber{}, invalid("token", "is required")
	}
	sub, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return Subscriber{}, err
	}
	if !sub.IsActive {
		return sub, nil
	}

	now := s.now()
	if err := s.store.SetActive(ctx, sub.ID, false, now); err != nil {
		return Subscriber{}, fmt.Errorf("unsubscribing: %w", err)
	}
	sub.IsActive = false
	sub.UnsubscribedAt = &now
	return sub, nil
}

// List returns one page of subscribers, newest subscription first.
func (s *NewsletterService) List(ctx context.Context, filter SubscriberFilter, page Pagination) (Page[Subscriber], error) {
	page = page.Normalize()
	filter.Query = strings.ToLower(strings.TrimSpace(filter.Query))

	items, total, err := s.store.List(ctx, filter, page.Limit, page.Offset())
	if err != nil {
		return Page[Subscriber]{}, fmt.Errorf("listing subscribers: %w", err)
	}
	return newPage(items, total, page), nil
}

// Export writes every subscriber matching filter as CSV.
func (s *NewsletterService) Export(ctx context.Context, w io.Writer, filter SubscriberFilter) error {
	filter.Query = strings.ToLower(strings.TrimSpace(filter.Query))

	items, _, err := s.store.List(ctx, filter, -1, 0)
	if err != nil {
		return fmt.Errorf("listing subscribers: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return err
	}
	for _, sub := range items {
		unsubscribed := ""
		if sub.UnsubscribedAt != nil {
			unsubscribed = sub.UnsubscribedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			strconv.FormatInt(sub.ID, 10),
			csvSafe(sub.Email),
			sub.SubscribedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(sub.IsActive),
			csvSafe(sub.Source),
			unsubscribed,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvSafe prefixes cells that spreadsheet applications would evaluate as
// a formula. Addresses like "=1+2@example.cz" are valid email.
func csvSafe(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// BulkAction applies req.Action to every known email independently.
func (s *NewsletterService) BulkAction(ctx context.Context, req BulkActionRequest) (NewsletterBulkResult, error) {
	var prefs Preferences
	switch req.Action {
	case BulkActivate, BulkDeactivate, BulkDelete:
	case BulkUpdatePreferences:
		if req.Preferences == nil {
			return NewsletterBulkResult{}, invalid("preferences", "is required for update-preferences")
		}
		var err error
		if prefs, err = normalizePreferences(*req.Preferences); err != nil {
			return NewsletterBulkResult{}, err
		}
	default:
		return NewsletterBulkResult{}, invalid("action", "must be activate, deactivate, delete or update-preferences")
	}

	if len(req.Emails) == 0 {
		return NewsletterBulkResult{}, invalid("emails", "at least one email is required")
	}
	if len(req.Emails) > MaxBulkEmails {
		return NewsletterBulkResult{}, invalid("emails", fmt.Sprintf("at most %d emails per request", MaxBulkEmails))
	}

	// Unknown emails are dropped before processing.
	var targets []Subscriber
	seen := make(map[string]bool, len(req.Emails))
	for _, raw := range req.Emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true

		sub, err := s.store.GetByEmail(ctx, email)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return NewsletterBulkResult{}, fmt.Errorf("looking up %s: %w", email, err)
		}
		targets = append(targets, sub)
	}

	result := NewsletterBulkResult{Results: make([]NewsletterBulkItem, 0, len(targets))}
	for _, sub := range targets {
		err := s.applyBulk(ctx, req.Action, sub, prefs)
		item := NewsletterBulkItem{Email: sub.Email, Success: err == nil}
		if err != nil {
			item.Error = publicMessage(err)
			result.Failed++
			s.logger.Error("bulk subscriber action failed", "action", req.Action, "subscriber_id", sub.ID, "error", err)
		} else {
			result.Success++
		}
		result.Results = append(result.Results, item)
	}
	return result, nil
}

func (s *NewsletterService) applyBulk(ctx context.Context, action string, sub Subscriber, prefs Preferences) error {
	switch action {
	case BulkActivate:
		return s.store.SetActive(ctx, sub.ID, true, s.now())
	case BulkDeactivate:
		if !sub.IsActive {
			return nil
		}
		return s.store.SetActive(ctx, sub.ID, false, s.now())
	case BulkDelete:
		return s.store.Delete(ctx, sub.ID)
	case BulkUpdatePreferences:
		sub.Frequency = prefs.Frequency
		sub.Categories = prefs.Categories
		_, err := s.store.Update(ctx, sub)
		return err
	}
	return invalid("action", "unknown action")
}
