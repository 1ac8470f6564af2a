// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestCampaignService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subs := NewSQLSubscriberStore(f.db)
	news := NewNewsletterService(subs, nil)
	s := NewCampaignService(f.db, subs)

	for _, req := range []SubscribeRequest{
		{Email: "sport@radnice.cz", Categories: []string{"sport"}},
		{Email: "kultura@radnice.cz", Categories: []string{"kultura"}},
		{Email: "vse@radnice.cz"},
		{Email: "odhlaseny@radnice.cz"},
	} {
		if _, _, err := news.Subscribe(ctx, req); err != nil {
			t.Fatalf("Subscribe %s: %v", req.Email, err)
		}
	}
	gone, err := subs.GetByEmail(ctx, "odhlaseny@radnice.cz")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if _, err := news.Unsubscribe(ctx, gone.UnsubscribeToken); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	c, err := s.Create(ctx, f.author.ID, CampaignInput{
		Subject:        "Sportovní novinky",
		Content:        "**Turnaj** v sobotu",
		Format:         FormatMarkdown,
		CategoryFilter: []string{"sport"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Status != CampaignStatusDraft || c.CreatedBy != f.author.ID {
		t.Errorf("campaign = %+v", c)
	}

	recipients, err := s.Recipients(ctx, c.ID)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	var emails []string
	for _, r := range recipients {
		emails = append(emails, r.Email)
	}
	sort.Strings(emails)
	if len(emails) != 2 || emails[0] != "sport@radnice.cz" || emails[1] != "vse@radnice.cz" {
		t.Errorf("recipients = %v, want sport and vse", emails)
	}

	page, err := s.List(ctx, Pagination{})
	if err != nil || page.Total != 1 {
		t.Fatalf("List = %+v, %v", page, err)
	}

	if err := s.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.Recipients(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Recipients after delete error = %v, want ErrNotFound", err)
	}
}

func TestCampaignService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	s := NewCampaignService(f.db, NewSQLSubscriberStore(f.db))

	tests := []struct {
		name  string
		in    CampaignInput
		field string
	}{
		{"missing subject", CampaignInput{Content: "text"}, "subject"},
		{"missing content", CampaignInput{Subject: "S", Content: "<p></p>"}, "content"},
		{"bad status", CampaignInput{Subject: "S", Content: "text", Status: "sent"}, "status"},
		{"bad filter", CampaignInput{Subject: "S", Content: "text", CategoryFilter: []string{"Bad Slug"}}, "categoryFilter"},
		{"bad format", CampaignInput{Subject: "S", Content: "text", Format: "docx"}, "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(context.Background(), f.author.ID, tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Create error = %v, want *ValidationError", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("Fields = %v, want key %q", verr.Fields, tt.field)
			}
		})
	}
}
