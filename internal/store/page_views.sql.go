// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const createPageView = `-- name: CreatePageView :exec
INSERT INTO page_views (article_id, path, referrer, browser, os, device, country, viewed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

type CreatePageViewParams struct {
	ArticleID sql.NullInt64
	Path      string
	Referrer  string
	Browser   string
	Os        string
	Device    string
	Country   string
	ViewedAt  time.Time
}

func (q *Queries) CreatePageView(ctx context.Context, arg CreatePageViewParams) error {
	_, err := q.db.ExecContext(ctx, createPageView,
		arg.ArticleID,
		arg.Path,
		arg.Referrer,
		arg.Browser,
		arg.Os,
		arg.Device,
		arg.Country,
		arg.ViewedAt,
	)
	return err
}

// Raw rows win over rollups for any day still present in page_views.
const rollupPageViews = `-- name: RollupPageViews :execrows
INSERT INTO page_views_daily (day, article_id, views)
SELECT substr(viewed_at, 1, 10), COALESCE(article_id, 0), COUNT(*)
FROM page_views
WHERE 1
GROUP BY substr(viewed_at, 1, 10), COALESCE(article_id, 0)
ON CONFLICT(day, article_id) DO UPDATE SET views = excluded.views`

func (q *Queries) RollupPageViews(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, rollupPageViews)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const prunePageViews = `-- name: PrunePageViews :execrows
DELETE FROM page_views WHERE viewed_at < ?`

func (q *Queries) PrunePageViews(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, prunePageViews, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// combinedViews merges rolled-up days with days still held as raw rows.
const combinedViews = `
SELECT day, article_id, views FROM page_views_daily
WHERE day >= ?1 AND day NOT IN (SELECT DISTINCT substr(viewed_at, 1, 10) FROM page_views)
UNION ALL
SELECT substr(viewed_at, 1, 10), COALESCE(article_id, 0), 1 FROM page_views
WHERE substr(viewed_at, 1, 10) >= ?1`

const dailyViews = `-- name: DailyViews :many
SELECT v.day, SUM(v.views) FROM (` + combinedViews + `) v
GROUP BY v.day ORDER BY v.day ASC`

type DayCount struct {
	Day   string
	Views int64
}

// DailyViews returns views per day (YYYY-MM-DD) from fromDay onward.
func (q *Queries) DailyViews(ctx context.Context, fromDay string) ([]DayCount, error) {
	rows, err := q.db.QueryContext(ctx, dailyViews, fromDay)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []DayCount
	for rows.Next() {
		var i DayCount
		if err := rows.Scan(&i.Day, &i.Views); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const topArticles = `-- name: TopArticles :many
SELECT v.article_id, COALESCE(a.title, ''), COALESCE(a.slug, ''), SUM(v.views) AS total
FROM (` + combinedViews + `) v
LEFT JOIN articles a ON a.id = v.article_id
WHERE v.article_id != 0
GROUP BY v.article_id
ORDER BY total DESC, v.article_id ASC
LIMIT ?2`

type ArticleViews struct {
	ArticleID int64
	Title     string
	Slug      string
	Views     int64
}

func (q *Queries) TopArticles(ctx context.Context, fromDay string, limit int64) ([]ArticleViews, error) {
	rows, err := q.db.QueryContext(ctx, topArticles, fromDay, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []ArticleViews
	for rows.Next() {
		var i ArticleViews
		if err := rows.Scan(&i.ArticleID, &i.Title, &i.Slug, &i.Views); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// Breakdown dimensions over raw page views.
const (
	DimensionBrowser = "browser"
	DimensionDevice  = "device"
	DimensionCountry = "country"
)

var breakdownQueries = map[string]string{}

func init() {
	for _, dim := range []string{DimensionBrowser, DimensionDevice, DimensionCountry} {
		breakdownQueries[dim] = fmt.Sprintf(`-- name: PageViewsBy%[1]s :many
SELECT CASE WHEN %[1]s = '' THEN 'unknown' ELSE %[1]s END AS label, COUNT(*) AS total
FROM page_views WHERE viewed_at >= ?
GROUP BY label ORDER BY total DESC, label ASC LIMIT ?`, dim)
	}
}

type LabelCount struct {
	Label string
	Count int64
}

// PageViewsBy groups raw page views since since by a fixed dimension.
func (q *Queries) PageViewsBy(ctx context.Context, dimension string, since time.Time, limit int64) ([]LabelCount, error) {
	query, ok := breakdownQueries[dimension]
	if !ok {
		return nil, fmt.Errorf("unknown page view dimension %q", dimension)
	}

	rows, err := q.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []LabelCount
	for rows.Next() {
		var i LabelCount
		if err := rows.Scan(&i.Label, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
