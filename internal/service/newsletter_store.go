// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olegiv/radnice/internal/blob"
	"github.com/olegiv/radnice/internal/store"
)

// SQLSubscriberStore keeps subscribers in the subscribers table.
type SQLSubscriberStore struct {
	queries *store.Queries
}

// NewSQLSubscriberStore creates a SubscriberStore backed by db.
func NewSQLSubscriberStore(db *sql.DB) *SQLSubscriberStore {
	return &SQLSubscriberStore{queries: store.New(db)}
}

func subscriberFromRow(r store.Subscriber) Subscriber {
	var unsubscribed *time.Time
	if r.UnsubscribedAt.Valid {
		t := r.UnsubscribedAt.Time
		unsubscribed = &t
	}
	return Subscriber{
		ID:               r.ID,
		Email:            r.Email,
		IsActive:         r.IsActive,
		Source:           r.Source,
		SubscribedAt:     r.SubscribedAt,
		UnsubscribedAt:   unsubscribed,
		Frequency:        r.Frequency,
		Categories:       decodeStrings(r.Categories),
		UnsubscribeToken: r.UnsubscribeToken,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (s *SQLSubscriberStore) GetByEmail(ctx context.Context, email string) (Subscriber, error) {
	row, err := s.queries.GetSubscriberByEmail(ctx, email)
	if err != nil {
		return Subscriber{}, notFound(err, "subscriber")
	}
	return subscriberFromRow(row), nil
}

func (s *SQLSubscriberStore) GetByToken(ctx context.Context, token string) (Subscriber, error) {
	row, err := s.queries.GetSubscriberByToken(ctx, token)
	if err != nil {
		return Subscriber{}, notFound(err, "subscriber")
	}
	return subscriberFromRow(row), nil
}

func (s *SQLSubscriberStore) Create(ctx context.Context, sub Subscriber) (Subscriber, error) {
	row, err := s.queries.CreateSubscriber(ctx, store.CreateSubscriberParams{
		Email:            sub.Email,
		Source:           sub.Source,
		SubscribedAt:     sub.SubscribedAt.UTC(),
		Frequency:        sub.Frequency,
		Categories:       encodeStrings(sub.Categories),
		UnsubscribeToken: sub.UnsubscribeToken,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Subscriber{}, fmt.Errorf("subscriber %s: %w", sub.Email, ErrConflict)
		}
		return Subscriber{}, err
	}
	return subscriberFromRow(row), nil
}

func (s *SQLSubscriberStore) Update(ctx context.Context, sub Subscriber) (Subscriber, error) {
	row, err := s.queries.UpdateSubscriber(ctx, store.UpdateSubscriberParams{
		IsActive:       sub.IsActive,
		Source:         sub.Source,
		SubscribedAt:   sub.SubscribedAt.UTC(),
		UnsubscribedAt: nullTime(sub.UnsubscribedAt),
		Frequency:      sub.Frequency,
		Categories:     encodeStrings(sub.Categories),
		ID:             sub.ID,
	})
	if err != nil {
		return Subscriber{}, notFound(err, "subscriber")
	}
	return subscriberFromRow(row), nil
}

func (s *SQLSubscriberStore) SetActive(ctx context.Context, id int64, active bool, at time.Time) error {
	var unsubscribed sql.NullTime
	if !active {
		unsubscribed = sql.NullTime{Time: at.UTC(), Valid: true}
	}
	n, err := s.queries.SetSubscriberActive(ctx, active, unsubscribed, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("subscriber: %w", ErrNotFound)
	}
	return nil
}

func (s *SQLSubscriberStore) Delete(ctx context.Context, id int64) error {
	n, err := s.queries.DeleteSubscriber(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("subscriber: %w", ErrNotFound)
	}
	return nil
}

func (s *SQLSubscriberStore) List(ctx context.Context, filter SubscriberFilter, limit, offset int) ([]Subscriber, int64, error) {
	params := store.SubscriberFilterParams{Search: filter.Query, Source: filter.Source}
	if filter.Active != nil {
		params.Active = sql.NullBool{Bool: *filter.Active, Valid: true}
	}

	total, err := s.queries.CountSubscribers(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.queries.ListSubscribers(ctx, params, int64(limit), int64(offset))
	if err != nil {
		return nil, 0, err
	}

	items := make([]Subscriber, 0, len(rows))
	for _, r := range rows {
		items = append(items, subscriberFromRow(r))
	}
	return items, total, nil
}

func (s *SQLSubscriberStore) Count(ctx context.Context) (int64, int64, error) {
	active, err := s.queries.CountSubscribers(ctx, store.SubscriberFilterParams{Active: sql.NullBool{Bool: true, Valid: true}})
	if err != nil {
		return 0, 0, err
	}
	inactive, err := s.queries.CountSubscribers(ctx, store.SubscriberFilterParams{Active: sql.NullBool{Bool: false, Valid: true}})
	if err != nil {
		return 0, 0, err
	}
	return active, inactive, nil
}

// SubscribersDocument is the key of the JSON document used by DocumentSubscriberStore.
const SubscribersDocument = "subscribers.json"

// DocumentSubscriberStore keeps every subscriber in one JSON document.
// Each operation reads, mutates and rewrites the document under a mutex,
// so it serves a single process only.
type DocumentSubscriberStore struct {
	mu   sync.Mutex
	blob blob.Store
}

// NewDocumentSubscriberStore creates a SubscriberStore over b.
func NewDocumentSubscriberStore(b blob.Store) *DocumentSubscriberStore {
	return &DocumentSubscriberStore{blob: b}
}

func (s *DocumentSubscriberStore) load(ctx context.Context) ([]Subscriber, error) {
	data, err := s.blob.Read(ctx, SubscribersDocument)
	if errors.Is(err, blob.ErrNotExist) {
		return []Subscriber{}, nil
	}
	if err != nil {
		return nil, err
	}

	var doc []documentSubscriber
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", SubscribersDocument, err)
	}
	out := make([]Subscriber, 0, len(doc))
	for _, d := range doc {
		out = append(out, d.subscriber())
	}
	return out, nil
}

func (s *DocumentSubscriberStore) save(ctx context.Context, subs []Subscriber) error {
	doc := make([]documentSubscriber, 0, len(subs))
	for _, sub := range subs {
		doc = append(doc, newDocumentSubscriber(sub))
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", SubscribersDocument, err)
	}
	return s.blob.Write(ctx, SubscribersDocument, data)
}

// mutate runs fn over the loaded document and saves it when fn succeeds.
func (s *DocumentSubscriberStore) mutate(ctx context.Context, fn func([]Subscriber) ([]Subscriber, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.load(ctx)
	if err != nil {
		return err
	}
	subs, err = fn(subs)
	if err != nil {
		return err
	}
	return s.save(ctx, subs)
}

func (s *DocumentSubscriberStore) find(ctx context.Context, match func(Subscriber) bool) (Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.load(ctx)
	if err != nil {
		return Subscriber{}, err
	}
	for _, sub := range subs {
		if match(sub) {
			return sub, nil
		}
	}
	return Subscriber{}, fmt.Errorf("subscriber: %w", ErrNotFound)
}

func (s *DocumentSubscriberStore) GetByEmail(ctx context.Context, email string) (Subscriber, error) {
	return s.find(ctx, func(sub Subscriber) bool { return sub.Email == email })
}

func (s *DocumentSubscriberStore) GetByToken(ctx context.Context, token string) (Subscriber, error) {
	return s.find(ctx, func(sub Subscriber) bool { return sub.UnsubscribeToken == token })
}

func (s *DocumentSubscriberStore) Create(ctx context.Context, sub Subscriber) (Subscriber, error) {
	err := s.mutate(ctx, func(subs []Subscriber) ([]Subscriber, error) {
		var maxID int64
		for _, existing := range subs {
			if existing.Email == sub.Email || existing.UnsubscribeToken == sub.UnsubscribeToken {
				return nil, fmt.Errorf("subscriber %s: %w", sub.Email, ErrConflict)
			}
			maxID = max(maxID, existing.ID)
		}
		sub.ID = maxID + 1
		sub.SubscribedAt = sub.SubscribedAt.UTC()
		if sub.Categories == nil {
			sub.Categories = []string{}
		}
		return append(subs, sub), nil
	})
	if err != nil {
		return Subscriber{}, err
	}
	return sub, nil
}

// update applies fn to the subscriber with id.
func (s *DocumentSubscriberStore) update(ctx context.Context, id int64, fn func(*Subscriber)) (Subscriber, error) {
	var updated Subscriber
	err := s.mutate(ctx, func(subs []Subscriber) ([]Subscriber, error) {
		for i := range subs {
			if subs[i].ID == id {
				fn(&subs[i])
				updated = subs[i]
				return subs, nil
			}
		}
		return nil, fmt.Errorf("subscriber: %w", ErrNotFound)
	})
	return updated, err
}

func (s *DocumentSubscriberStore) Update(ctx context.Context, sub Subscriber) (Subscriber, error) {
	return s.update(ctx, sub.ID, func(existing *Subscriber) {
		existing.IsActive = sub.IsActive
		existing.Source = sub.Source
		existing.SubscribedAt = sub.SubscribedAt.UTC()
		existing.UnsubscribedAt = sub.UnsubscribedAt
		existing.Frequency = sub.Frequency
		existing.Categories = sub.Categories
	})
}

func (s *DocumentSubscriberStore) SetActive(ctx context.Context, id int64, active bool, at time.Time) error {
	_, err := s.update(ctx, id, func(existing *Subscriber) {
		existing.IsActive = active
		existing.UnsubscribedAt = nil
		if !active {
			t := at.UTC()
			existing.UnsubscribedAt = &t
		}
	})
	return err
}

func (s *DocumentSubscriberStore) Delete(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(subs []Subscriber) ([]Subscriber, error) {
		for i := range subs {
			if subs[i].ID == id {
				return append(subs[:i], subs[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("subscriber: %w", ErrNotFound)
	})
}

func (s *DocumentSubscriberStore) List(ctx context.Context, filter SubscriberFilter, limit, offset int) ([]Subscriber, int64, error) {
	s.mu.Lock()
	subs, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}

	matched := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		if filter.Query != "" && !strings.Contains(sub.Email, filter.Query) {
			continue
		}
		if filter.Active != nil && sub.IsActive != *filter.Active {
			continue
		}
		if filter.Source != "" && sub.Source != filter.Source {
			continue
		}
		matched = append(matched, sub)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].SubscribedAt.Equal(matched[j].SubscribedAt) {
			return matched[i].SubscribedAt.After(matched[j].SubscribedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []Subscriber{}, total, nil
	}
	matched = matched[offset:]
	if limit >= 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *DocumentSubscriberStore) Count(ctx context.Context) (int64, int64, error) {
	s.mu.Lock()
	subs, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}

	var active, inactive int64
	for _, sub := range subs {
		if sub.IsActive {
			active++
		} else {
			inactive++
		}
	}
	return active, inactive, nil
}

// documentSubscriber is the on-disk form, which keeps the unsubscribe token.
type documentSubscriber struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	IsActive         bool       `json:"isActive"`
	Source           string     `json:"source"`
	SubscribedAt     time.Time  `json:"subscribedAt"`
	UnsubscribedAt   *time.Time `json:"unsubscribedAt"`
	Frequency        string     `json:"frequency"`
	Categories       []string   `json:"categories"`
	UnsubscribeToken string     `json:"unsubscribeToken"`
}

func newDocumentSubscriber(s Subscriber) documentSubscriber {
	return documentSubscriber(s)
}

func (d documentSubscriber) subscriber() Subscriber {
	if d.Categories == nil {
		d.Categories = []string{}
	}
	return Subscriber(d)
}
