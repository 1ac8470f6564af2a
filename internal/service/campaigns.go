// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olegiv/radnice/internal/store"
)

// Campaign statuses.
const (
	CampaignStatusDraft    = "draft"
	CampaignStatusReady    = "ready"
	CampaignStatusArchived = "archived"
)

// MaxSubjectLength limits campaign subjects.
const MaxSubjectLength = 200

// Campaign is a drafted newsletter issue. Delivery happens elsewhere.
type Campaign struct {
	ID             int64     `json:"id"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	CategoryFilter []string  `json:"categoryFilter"`
	CreatedBy      int64     `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CampaignInput is the body of a campaign create.
type CampaignInput struct {
	Subject        string   `json:"subject"`
	Content        string   `json:"content"`
	Format         string   `json:"format"`
	Status         string   `json:"status"`
	CategoryFilter []string `json:"categoryFilter"`
}

func campaignFromRow(c store.Campaign) Campaign {
	return Campaign{
		ID:             c.ID,
		Subject:        c.Subject,
		Content:        c.Content,
		Status:         c.Status,
		CategoryFilter: decodeStrings(c.CategoryFilter),
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// CampaignService drafts campaigns and resolves their recipients.
type CampaignService struct {
	queries     *store.Queries
	subscribers SubscriberStore
	now         func() time.Time
}

// NewCampaignService creates a new CampaignService.
func NewCampaignService(db *sql.DB, subscribers SubscriberStore) *CampaignService {
	return &CampaignService{
		queries:     store.New(db),
		subscribers: subscribers,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a campaign drafted by createdBy.
func (s *CampaignService) Create(ctx context.Context, createdBy int64, in CampaignInput) (Campaign, error) {
	verr := NewValidationError()

	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		verr.Add("subject", "is required")
	} else if utf8.RuneCountInString(subject) > MaxSubjectLength {
		verr.Add("subject", fmt.Sprintf("must be at most %d characters", MaxSubjectLength))
	}

	status := in.Status
	if status == "" {
		status = CampaignStatusDraft
	}
	switch status {
	case CampaignStatusDraft, CampaignStatusReady, CampaignStatusArchived:
	default:
		verr.Add("status", "must be draft, ready or archived")
	}

	content, err := renderContent(in.Content, in.Format)
	if err != nil {
		if !mergeValidation(err, verr) {
			return Campaign{}, err
		}
	} else if plainText(content) == "" {
		verr.Add("content", "is required")
	}

	prefs, err := normalizePreferences(Preferences{Frequency: FrequencyImmediate, Categories: in.CategoryFilter})
	if err != nil {
		verr.Add("categoryFilter", "must be category slugs")
	}

	if err := verr.OrNil(); err != nil {
		return Campaign{}, err
	}

	now := s.now()
	row, err := s.queries.CreateCampaign(ctx, store.CreateCampaignParams{
		Subject:        subject,
		Content:        content,
		Status:         status,
		CategoryFilter: encodeStrings(prefs.Categories),
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Campaign{}, fmt.Errorf("creating campaign: %w", err)
	}
	return campaignFromRow(row), nil
}

// List returns one page of campaigns, newest first.
func (s *CampaignService) List(ctx context.Context, page Pagination) (Page[Campaign], error) {
	page = page.Normalize()

	total, err := s.queries.CountCampaigns(ctx)
	if err != nil {
		return Page[Campaign]{}, fmt.Errorf("counting campaigns: %w", err)
	}
	rows, err := s.queries.ListCampaigns(ctx, int64(page.Limit), int64(page.Offset()))
	if err != nil {
		return Page[Campaign]{}, fmt.Errorf("listing campaigns: %w", err)
	}

	items := make([]Campaign, 0, len(rows))
	for _, r := range rows {
		items = append(items, campaignFromRow(r))
	}
	return newPage(items, total, page), nil
}

// Get returns the campaign with id.
func (s *CampaignService) Get(ctx context.Context, id int64) (Campaign, error) {
	row, err := s.queries.GetCampaign(ctx, id)
	if err != nil {
		return Campaign{}, notFound(err, "campaign")
	}
	return campaignFromRow(row), nil
}

// Delete removes the campaign with id.
func (s *CampaignService) Delete(ctx context.Context, id int64) error {
	n, err := s.queries.DeleteCampaign(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting campaign: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("campaign: %w", ErrNotFound)
	}
	return nil
}

// Recipients returns the active subscribers a campaign would reach. A
// subscriber without category preferences receives every campaign; an
// empty campaign filter reaches every active subscriber.
func (s *CampaignService) Recipients(ctx context.Context, id int64) ([]Subscriber, error) {
	campaign, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	active := true
	subs, _, err := s.subscribers.List(ctx, SubscriberFilter{Active: &active}, -1, 0)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}

	if len(campaign.CategoryFilter) == 0 {
		return subs, nil
	}

	wanted := make(map[string]bool, len(campaign.CategoryFilter))
	for _, c := range campaign.CategoryFilter {
		wanted[c] = true
	}

	out := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		if len(sub.Categories) == 0 {
			out = append(out, sub)
			continue
		}
		for _, c := range sub.Categories {
			if wanted[c] {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}
