// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/radnice/internal/blob"
	"github.com/olegiv/radnice/internal/testutil"
)

// forEachSubscriberStore runs fn against the SQL and JSON document stores.
func forEachSubscriberStore(t *testing.T, fn func(t *testing.T, s *NewsletterService)) {
	t.Run("sql", func(t *testing.T) {
		db, cleanup := testutil.TestDB(t)
		t.Cleanup(cleanup)
		s := NewNewsletterService(NewSQLSubscriberStore(db), testutil.TestLoggerSilent())
		s.now = steppingClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
		fn(t, s)
	})
	t.Run("document", func(t *testing.T) {
		fs, err := blob.NewFileStore(t.TempDir())
		require.NoError(t, err)
		s := NewNewsletterService(NewDocumentSubscriberStore(fs), testutil.TestLoggerSilent())
		s.now = steppingClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
		fn(t, s)
	})
}

func TestNewsletterService_SubscribeLifecycle(t *testing.T) {
	forEachSubscriberStore(t, func(t *testing.T, s *NewsletterService) {
		ctx := context.Background()

		sub, created, err := s.Subscribe(ctx, SubscribeRequest{
			Email: "  Jana.Novakova@Radnice.CZ ", Frequency: FrequencyWeekly, Categories: []string{"sport", "sport", "kultura"},
		})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "jana.novakova@radnice.cz", sub.Email)
		assert.Equal(t, DefaultSubscriberSource, sub.Source)
		assert.Equal(t, []string{"sport", "kultura"}, sub.Categories)
		assert.True(t, sub.IsActive)
		assert.NotEmpty(t, sub.UnsubscribeToken)

		_, _, err = s.Subscribe(ctx, SubscribeRequest{Email: "jana.novakova@radnice.cz"})
		assert.ErrorIs(t, err, ErrConflict)

		unsub, err := s.Unsubscribe(ctx, sub.UnsubscribeToken)
		require.NoError(t, err)
		assert.False(t, unsub.IsActive)
		require.NotNil(t, unsub.UnsubscribedAt)

		_, err = s.Unsubscribe(ctx, sub.UnsubscribeToken)
		assert.NoError(t, err, "repeated unsubscribe is a no-op")

		_, err = s.Unsubscribe(ctx, "no-such-token")
		assert.ErrorIs(t, err, ErrNotFound)

		again, created, err := s.Subscribe(ctx, SubscribeRequest{Email: "jana.novakova@radnice.cz", Source: "import"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, sub.ID, again.ID)
		assert.True(t, again.IsActive)
		assert.Nil(t, again.UnsubscribedAt)
		assert.Equal(t, "import", again.Source)
		assert.Equal(t, FrequencyImmediate, again.Frequency)
	})
}

func TestNewsletterService_SubscribeValidation(t *testing.T) {
	s := NewNewsletterService(nil, testutil.TestLoggerSilent())

	tests := []struct {
		name  string
		req   SubscribeRequest
		field string
	}{
		{"empty email", SubscribeRequest{Email: " "}, "email"},
		{"no at sign", SubscribeRequest{Email: "jana.radnice.cz"}, "email"},
		{"display name", SubscribeRequest{Email: "Jana <jana@radnice.cz>"}, "email"},
		{"bad frequency", SubscribeRequest{Email: "jana@radnice.cz", Frequency: "hourly"}, "frequency"},
		{"bad category", SubscribeRequest{Email: "jana@radnice.cz", Categories: []string{"Sport Akce"}}, "categories"},
		{"bad source", SubscribeRequest{Email: "jana@radnice.cz", Source: "Web Form"}, "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Subscribe(context.Background(), tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestNewsletterService_BulkDeactivateSkipsUnknown(t *testing.T) {
	forEachSubscriberStore(t, func(t *testing.T, s *NewsletterService) {
		ctx := context.Background()

		emails := []string{"a@radnice.cz", "b@radnice.cz", "c@radnice.cz", "d@radnice.cz"}
		for _, e := range emails {
			_, _, err := s.Subscribe(ctx, SubscribeRequest{Email: e})
			require.NoError(t, err)
		}

		res, err := s.BulkAction(ctx, BulkActionRequest{
			Action: BulkDeactivate,
			Emails: append(emails, "unknown@radnice.cz"),
		})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Success)
		assert.Equal(t, 0, res.Failed)
		assert.Len(t, res.Results, 4)

		active := true
		page, err := s.List(ctx, SubscriberFilter{Active: &active}, Pagination{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), page.Total)
	})
}

func TestNewsletterService_BulkActions(t *testing.T) {
	forEachSubscriberStore(t, func(t *testing.T, s *NewsletterService) {
		ctx := context.Background()
		for _, e := range []string{"a@radnice.cz", "b@radnice.cz"} {
			_, _, err := s.Subscribe(ctx, SubscribeRequest{Email: e})
			require.NoError(t, err)
		}

		res, err := s.BulkAction(ctx, BulkActionRequest{
			Action:      BulkUpdatePreferences,
			Emails:      []string{"A@radnice.cz"},
			Preferences: &Preferences{Frequency: FrequencyMonthly, Categories: []string{"doprava"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Success)

		sub, err := s.store.GetByEmail(ctx, "a@radnice.cz")
		require.NoError(t, err)
		assert.Equal(t, FrequencyMonthly, sub.Frequency)
		assert.Equal(t, []string{"doprava"}, sub.Categories)

		res, err = s.BulkAction(ctx, BulkActionRequest{Action: BulkDelete, Emails: []string{"b@radnice.cz", "b@radnice.cz"}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Success)
		_, err = s.store.GetByEmail(ctx, "b@radnice.cz")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.BulkAction(ctx, BulkActionRequest{Action: "purge", Emails: []string{"a@radnice.cz"}})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = s.BulkAction(ctx, BulkActionRequest{Action: BulkUpdatePreferences, Emails: []string{"a@radnice.cz"}})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = s.BulkAction(ctx, BulkActionRequest{Action: BulkActivate})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestNewsletterService_ListFiltersAndPages(t *testing.T) {
	forEachSubscriberStore(t, func(t *testing.T, s *NewsletterService) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			source := "website"
			if i%2 == 0 {
				source = "import"
			}
			_, _, err := s.Subscribe(ctx, SubscribeRequest{Email: fmt.Sprintf("user%d@radnice.cz", i), Source: source})
			require.NoError(t, err)
		}
		_, _, err := s.Subscribe(ctx, SubscribeRequest{Email: "host@example.com"})
		require.NoError(t, err)

		page, err := s.List(ctx, SubscriberFilter{Query: "RADNICE"}, Pagination{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), page.Total)
		require.Len(t, page.Items, 2)
		assert.True(t, page.HasMore)
		assert.Equal(t, "user4@radnice.cz", page.Items[0].Email, "newest subscription first")

		page, err = s.List(ctx, SubscriberFilter{Source: "import"}, Pagination{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)

		page, err = s.List(ctx, SubscriberFilter{Query: "radnice"}, Pagination{Page: 3, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
		assert.False(t, page.HasMore)
	})
}

func TestNewsletterService_Export(t *testing.T) {
	forEachSubscriberStore(t, func(t *testing.T, s *NewsletterService) {
		ctx := context.Background()
		a, _, err := s.Subscribe(ctx, SubscribeRequest{Email: "a@radnice.cz"})
		require.NoError(t, err)
		b, _, err := s.Subscribe(ctx, SubscribeRequest{Email: "b@radnice.cz", Source: "import"})
		require.NoError(t, err)
		_, err = s.Unsubscribe(ctx, b.UnsubscribeToken)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, s.Export(ctx, &buf, SubscriberFilter{}))

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, ExportHeader, records[0])

		rowB, rowA := records[1], records[2]
		assert.Equal(t, "b@radnice.cz", rowB[1])
		assert.Equal(t, "false", rowB[3])
		assert.Equal(t, "import", rowB[4])
		_, err = time.Parse(time.RFC3339, rowB[5])
		assert.NoError(t, err, "unsubscribed_at must be RFC 3339")

		assert.Equal(t, fmt.Sprint(a.ID), rowA[0])
		assert.Equal(t, a.SubscribedAt.UTC().Format(time.RFC3339), rowA[2])
		assert.Equal(t, "true", rowA[3])
		assert.Equal(t, "", rowA[5])
	})
}

func TestNewsletterService_ExportEscapesFormulas(t *testing.T) {
	forEachSubscriberStore(t, func(t *testing.T, s *NewsletterService) {
		ctx := context.Background()
		for _, email := range []string{"=1+2@radnice.cz", "+420@radnice.cz", "-x@radnice.cz", "starosta@radnice.cz"} {
			_, _, err := s.Subscribe(ctx, SubscribeRequest{Email: email})
			require.NoError(t, err)
		}

		var buf bytes.Buffer
		require.NoError(t, s.Export(ctx, &buf, SubscriberFilter{}))
		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 5)

		var got []string
		for _, r := range records[1:] {
			got = append(got, r[1])
		}
		assert.ElementsMatch(t, []string{"'=1+2@radnice.cz", "'+420@radnice.cz", "'-x@radnice.cz", "starosta@radnice.cz"}, got)

		stored, err := s.store.GetByEmail(ctx, "=1+2@radnice.cz")
		require.NoError(t, err)
		assert.Equal(t, "=1+2@radnice.cz", stored.Email, "stored value must stay unescaped")
	})
}

func TestCSVSafe(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"web", "web"},
		{"=SUM(A1)", "'=SUM(A1)"},
		{"+1", "'+1"},
		{"-1", "'-1"},
		{"@cmd", "'@cmd"},
		{"\tx", "'\tx"},
		{"a=b", "a=b"},
	}
	for _, tt := range tests {
		if got := csvSafe(tt.in); got != tt.want {
			t.Errorf("csvSafe(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocumentSubscriberStore_Persists(t *testing.T) {
	dir := t.TempDir()
	fs, err := blob.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	first := NewNewsletterService(NewDocumentSubscriberStore(fs), nil)
	sub, _, err := first.Subscribe(ctx, SubscribeRequest{Email: "a@radnice.cz"})
	require.NoError(t, err)

	second := NewDocumentSubscriberStore(fs)
	got, err := second.GetByToken(ctx, sub.UnsubscribeToken)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	active, inactive, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
	assert.Equal(t, int64(0), inactive)
}

type failingBlob struct{}

func (failingBlob) Read(context.Context, string) ([]byte, error) {
	return nil, errors.New("bucket unavailable")
}

func (failingBlob) Write(context.Context, string, []byte) error {
	return errors.New("bucket unavailable")
}

func TestNewsletterService_StorageFailure(t *testing.T) {
	s := NewNewsletterService(NewDocumentSubscriberStore(failingBlob{}), testutil.TestLoggerSilent())

	_, _, err := s.Subscribe(context.Background(), SubscribeRequest{Email: "a@radnice.cz"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
}
