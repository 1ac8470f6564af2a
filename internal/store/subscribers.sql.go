// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

const subscriberColumns = `id, email, is_active, source, subscribed_at, unsubscribed_at, frequency, categories, unsubscribe_token`

func scanSubscriber(row rowScanner) (Subscriber, error) {
	var i Subscriber
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.IsActive,
		&i.Source,
		&i.SubscribedAt,
		&i.UnsubscribedAt,
		&i.Frequency,
		&i.Categories,
		&i.UnsubscribeToken,
	)
	return i, err
}

func scanSubscribers(rows *sql.Rows) ([]Subscriber, error) {
	defer func() { _ = rows.Close() }()

	var items []Subscriber
	for rows.Next() {
		i, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createSubscriber = `-- name: CreateSubscriber :one
INSERT INTO subscribers (email, is_active, source, subscribed_at, frequency, categories, unsubscribe_token)
VALUES (?, 1, ?, ?, ?, ?, ?)
RETURNING ` + subscriberColumns

type CreateSubscriberParams struct {
	Email            string
	Source           string
	SubscribedAt     time.Time
	Frequency        string
	Categories       string
	UnsubscribeToken string
}

func (q *Queries) CreateSubscriber(ctx context.Context, arg CreateSubscriberParams) (Subscriber, error) {
	row := q.db.QueryRowContext(ctx, createSubscriber,
		arg.Email,
		arg.Source,
		arg.SubscribedAt,
		arg.Frequency,
		arg.Categories,
		arg.UnsubscribeToken,
	)
	return scanSubscriber(row)
}

const getSubscriberByEmail = `-- name: GetSubscriberByEmail :one
SELECT ` + subscriberColumns + ` FROM subscribers WHERE email = ?`

func (q *Queries) GetSubscriberByEmail(ctx context.Context, email string) (Subscriber, error) {
	return scanSubscriber(q.db.QueryRowContext(ctx, getSubscriberByEmail, email))
}

const getSubscriberByToken = `-- name: GetSubscriberByToken :one
SELECT ` + subscriberColumns + ` FROM subscribers WHERE unsubscribe_token = ?`

func (q *Queries) GetSubscriberByToken(ctx context.Context, token string) (Subscriber, error) {
	return scanSubscriber(q.db.QueryRowContext(ctx, getSubscriberByToken, token))
}

const subscriberFilter = `
WHERE (?1 = '' OR instr(email, ?1) > 0)
  AND (?2 IS NULL OR is_active = ?2)
  AND (?3 = '' OR source = ?3)`

type SubscriberFilterParams struct {
	Search string
	Active sql.NullBool
	Source string
}

const listSubscribers = `-- name: ListSubscribers :many
SELECT ` + subscriberColumns + ` FROM subscribers` + subscriberFilter + `
ORDER BY subscribed_at DESC, id DESC
LIMIT ?4 OFFSET ?5`

// ListSubscribers returns one page; a negative limit returns every match.
func (q *Queries) ListSubscribers(ctx context.Context, filter SubscriberFilterParams, limit, offset int64) ([]Subscriber, error) {
	rows, err := q.db.QueryContext(ctx, listSubscribers, filter.Search, filter.Active, filter.Source, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanSubscribers(rows)
}

const countSubscribers = `-- name: CountSubscribers :one
SELECT COUNT(*) FROM subscribers` + subscriberFilter

func (q *Queries) CountSubscribers(ctx context.Context, filter SubscriberFilterParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countSubscribers, filter.Search, filter.Active, filter.Source).Scan(&count)
	return count, err
}

const setSubscriberActive = `-- name: SetSubscriberActive :execrows
UPDATE subscribers SET is_active = ?, unsubscribed_at = ? WHERE id = ?`

func (q *Queries) SetSubscriberActive(ctx context.Context, active bool, unsubscribedAt sql.NullTime, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, setSubscriberActive, active, unsubscribedAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateSubscriber = `-- name: UpdateSubscriber :one
UPDATE subscribers SET
    is_active = ?, source = ?, subscribed_at = ?, unsubscribed_at = ?, frequency = ?, categories = ?
WHERE id = ?
RETURNING ` + subscriberColumns

type UpdateSubscriberParams struct {
	IsActive       bool
	Source         string
	SubscribedAt   time.Time
	UnsubscribedAt sql.NullTime
	Frequency      string
	Categories     string
	ID             int64
}

func (q *Queries) UpdateSubscriber(ctx context.Context, arg UpdateSubscriberParams) (Subscriber, error) {
	row := q.db.QueryRowContext(ctx, updateSubscriber,
		arg.IsActive,
		arg.Source,
		arg.SubscribedAt,
		arg.UnsubscribedAt,
		arg.Frequency,
		arg.Categories,
		arg.ID,
	)
	return scanSubscriber(row)
}

const deleteSubscriber = `-- name: DeleteSubscriber :execrows
DELETE FROM subscribers WHERE id = ?`

func (q *Queries) DeleteSubscriber(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSubscriber, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
