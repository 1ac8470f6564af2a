// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

const articleColumns = `id, title, slug, content, excerpt, category_id, author_id, tags, status, source,
    published_at, image_url, seo_title, seo_description, is_featured, version, search_text, created_at, updated_at`

func scanArticle(row rowScanner) (Article, error) {
	var i Article
	err := row.Scan(
		&i.ID,
		&i.Title,
		&i.Slug,
		&i.Content,
		&i.Excerpt,
		&i.CategoryID,
		&i.AuthorID,
		&i.Tags,
		&i.Status,
		&i.Source,
		&i.PublishedAt,
		&i.ImageUrl,
		&i.SeoTitle,
		&i.SeoDescription,
		&i.IsFeatured,
		&i.Version,
		&i.SearchText,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createArticle = `-- name: CreateArticle :one
INSERT INTO articles (
    title, slug, content, excerpt, category_id, author_id, tags, status, source,
    published_at, image_url, seo_title, seo_description, is_featured, version, search_text,
    created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
RETURNING ` + articleColumns

type CreateArticleParams struct {
	Title          string
	Slug           string
	Content        string
	Excerpt        string
	CategoryID     int64
	AuthorID       int64
	Tags           string
	Status         string
	Source         string
	PublishedAt    sql.NullTime
	ImageUrl       string
	SeoTitle       string
	SeoDescription string
	IsFeatured     bool
	SearchText     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (q *Queries) CreateArticle(ctx context.Context, arg CreateArticleParams) (Article, error) {
	row := q.db.QueryRowContext(ctx, createArticle,
		arg.Title,
		arg.Slug,
		arg.Content,
		arg.Excerpt,
		arg.CategoryID,
		arg.AuthorID,
		arg.Tags,
		arg.Status,
		arg.Source,
		arg.PublishedAt,
		arg.ImageUrl,
		arg.SeoTitle,
		arg.SeoDescription,
		arg.IsFeatured,
		arg.SearchText,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanArticle(row)
}

const getArticleByID = `-- name: GetArticleByID :one
SELECT ` + articleColumns + ` FROM articles WHERE id = ?`

func (q *Queries) GetArticleByID(ctx context.Context, id int64) (Article, error) {
	return scanArticle(q.db.QueryRowContext(ctx, getArticleByID, id))
}

const getVisibleArticleBySlug = `-- name: GetVisibleArticleBySlug :one
SELECT ` + articleColumns + ` FROM articles
WHERE slug = ? AND status = 'published' AND (published_at IS NULL OR published_at <= ?)`

func (q *Queries) GetVisibleArticleBySlug(ctx context.Context, slug string, now time.Time) (Article, error) {
	return scanArticle(q.db.QueryRowContext(ctx, getVisibleArticleBySlug, slug, now))
}

const articleSlugExists = `-- name: ArticleSlugExists :one
SELECT COUNT(*) FROM articles WHERE slug = ? AND id != ?`

// ArticleSlugExists counts articles other than excludeID using slug.
func (q *Queries) ArticleSlugExists(ctx context.Context, slug string, excludeID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, articleSlugExists, slug, excludeID).Scan(&count)
	return count, err
}

// Unset filter fields match every row. Visibility is evaluated against Now.
const articleFilter = `
WHERE (?1 = '' OR instr(search_text, ?1) > 0)
  AND (?2 = 0 OR category_id = ?2)
  AND (?3 = '' OR status = ?3)
  AND (?4 = '' OR source = ?4)
  AND (?5 = 0 OR is_featured = 1)
  AND (?6 = 0 OR (status = 'published' AND (published_at IS NULL OR published_at <= ?7)))
  AND (?8 = 0 OR author_id = ?8)`

type ArticleFilterParams struct {
	Search       string
	CategoryID   int64
	Status       string
	Source       string
	FeaturedOnly bool
	VisibleOnly  bool
	Now          time.Time
	AuthorID     int64
}

func (p ArticleFilterParams) args() []any {
	return []any{p.Search, p.CategoryID, p.Status, p.Source, p.FeaturedOnly, p.VisibleOnly, p.Now, p.AuthorID}
}

const listArticles = `-- name: ListArticles :many
SELECT ` + articleColumns + ` FROM articles` + articleFilter + `
ORDER BY updated_at DESC, id DESC
LIMIT ?9 OFFSET ?10`

func (q *Queries) ListArticles(ctx context.Context, filter ArticleFilterParams, limit, offset int64) ([]Article, error) {
	args := append(filter.args(), limit, offset)
	rows, err := q.db.QueryContext(ctx, listArticles, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Article
	for rows.Next() {
		i, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countArticles = `-- name: CountArticles :one
SELECT COUNT(*) FROM articles` + articleFilter

func (q *Queries) CountArticles(ctx context.Context, filter ArticleFilterParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countArticles, filter.args()...).Scan(&count)
	return count, err
}

const updateArticle = `-- name: UpdateArticle :one
UPDATE articles SET
    title = ?1, slug = ?2, content = ?3, excerpt = ?4, category_id = ?5, tags = ?6,
    status = ?7, source = ?8, published_at = ?9, image_url = ?10, seo_title = ?11,
    seo_description = ?12, is_featured = ?13, search_text = ?14, updated_at = ?15,
    version = version + 1
WHERE id = ?16 AND (?17 = 0 OR version = ?17)
RETURNING ` + articleColumns

type UpdateArticleParams struct {
	Title          string
	Slug           string
	Content        string
	Excerpt        string
	CategoryID     int64
	Tags           string
	Status         string
	Source         string
	PublishedAt    sql.NullTime
	ImageUrl       string
	SeoTitle       string
	SeoDescription string
	IsFeatured     bool
	SearchText     string
	UpdatedAt      time.Time
	ID             int64
	// ExpectedVersion enables compare-and-swap when non-zero.
	ExpectedVersion int64
}

// UpdateArticle returns sql.ErrNoRows when the row is missing or the
// expected version no longer matches.
func (q *Queries) UpdateArticle(ctx context.Context, arg UpdateArticleParams) (Article, error) {
	row := q.db.QueryRowContext(ctx, updateArticle,
		arg.Title,
		arg.Slug,
		arg.Content,
		arg.Excerpt,
		arg.CategoryID,
		arg.Tags,
		arg.Status,
		arg.Source,
		arg.PublishedAt,
		arg.ImageUrl,
		arg.SeoTitle,
		arg.SeoDescription,
		arg.IsFeatured,
		arg.SearchText,
		arg.UpdatedAt,
		arg.ID,
		arg.ExpectedVersion,
	)
	return scanArticle(row)
}

const deleteArticle = `-- name: DeleteArticle :execrows
DELETE FROM articles WHERE id = ?`

func (q *Queries) DeleteArticle(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteArticle, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countArticlesByStatus = `-- name: CountArticlesByStatus :many
SELECT status, COUNT(*) FROM articles GROUP BY status ORDER BY status`

type StatusCount struct {
	Status string
	Count  int64
}

func (q *Queries) CountArticlesByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := q.db.QueryContext(ctx, countArticlesByStatus)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []StatusCount
	for rows.Next() {
		var i StatusCount
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
