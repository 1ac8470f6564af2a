// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const campaignColumns = `id, subject, content, status, category_filter, created_by, created_at, updated_at`

func scanCampaign(row rowScanner) (Campaign, error) {
	var i Campaign
	err := row.Scan(
		&i.ID,
		&i.Subject,
		&i.Content,
		&i.Status,
		&i.CategoryFilter,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createCampaign = `-- name: CreateCampaign :one
INSERT INTO campaigns (subject, content, status, category_filter, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + campaignColumns

type CreateCampaignParams struct {
	Subject        string
	Content        string
	Status         string
	CategoryFilter string
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (q *Queries) CreateCampaign(ctx context.Context, arg CreateCampaignParams) (Campaign, error) {
	row := q.db.QueryRowContext(ctx, createCampaign,
		arg.Subject,
		arg.Content,
		arg.Status,
		arg.CategoryFilter,
		arg.CreatedBy,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanCampaign(row)
}

const getCampaign = `-- name: GetCampaign :one
SELECT ` + campaignColumns + ` FROM campaigns WHERE id = ?`

func (q *Queries) GetCampaign(ctx context.Context, id int64) (Campaign, error) {
	return scanCampaign(q.db.QueryRowContext(ctx, getCampaign, id))
}

const listCampaigns = `-- name: ListCampaigns :many
SELECT ` + campaignColumns + ` FROM campaigns ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`

func (q *Queries) ListCampaigns(ctx context.Context, limit, offset int64) ([]Campaign, error) {
	rows, err := q.db.QueryContext(ctx, listCampaigns, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Campaign
	for rows.Next() {
		i, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countCampaigns = `-- name: CountCampaigns :one
SELECT COUNT(*) FROM campaigns`

func (q *Queries) CountCampaigns(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countCampaigns).Scan(&count)
	return count, err
}

const deleteCampaign = `-- name: DeleteCampaign :execrows
DELETE FROM campaigns WHERE id = ?`

func (q *Queries) DeleteCampaign(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteCampaign, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
