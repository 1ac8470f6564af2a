// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

const categoryColumns = `id, name, slug, description, color, icon, display_order, is_active, parent_id, search_text, created_at, updated_at`

func scanCategory(row rowScanner) (Category, error) {
	var i Category
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Slug,
		&i.Description,
		&i.Color,
		&i.Icon,
		&i.DisplayOrder,
		&i.IsActive,
		&i.ParentID,
		&i.SearchText,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createCategory = `-- name: CreateCategory :one
INSERT INTO categories (name, slug, description, color, icon, display_order, is_active, parent_id, search_text, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + categoryColumns

type CreateCategoryParams struct {
	Name         string
	Slug         string
	Description  string
	Color        string
	Icon         string
	DisplayOrder int64
	IsActive     bool
	ParentID     sql.NullInt64
	SearchText   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, createCategory,
		arg.Name,
		arg.Slug,
		arg.Description,
		arg.Color,
		arg.Icon,
		arg.DisplayOrder,
		arg.IsActive,
		arg.ParentID,
		arg.SearchText,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanCategory(row)
}

const getCategoryByID = `-- name: GetCategoryByID :one
SELECT ` + categoryColumns + ` FROM categories WHERE id = ?`

func (q *Queries) GetCategoryByID(ctx context.Context, id int64) (Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, getCategoryByID, id))
}

const getCategoryBySlug = `-- name: GetCategoryBySlug :one
SELECT ` + categoryColumns + ` FROM categories WHERE slug = ?`

func (q *Queries) GetCategoryBySlug(ctx context.Context, slug string) (Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, getCategoryBySlug, slug))
}

const categorySlugExists = `-- name: CategorySlugExists :one
SELECT COUNT(*) FROM categories WHERE slug = ? AND id != ?`

// CategorySlugExists counts categories other than excludeID using slug.
func (q *Queries) CategorySlugExists(ctx context.Context, slug string, excludeID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, categorySlugExists, slug, excludeID).Scan(&count)
	return count, err
}

const categoryFilter = `
WHERE (?1 = '' OR instr(search_text, ?1) > 0)
  AND (?2 = 0 OR is_active = 1)`

const listCategories = `-- name: ListCategories :many
SELECT ` + categoryColumns + ` FROM categories` + categoryFilter + `
ORDER BY display_order ASC, name ASC, id ASC
LIMIT ?3 OFFSET ?4`

type ListCategoriesParams struct {
	Query      string
	ActiveOnly bool
	Limit      int64
	Offset     int64
}

func (q *Queries) ListCategories(ctx context.Context, arg ListCategoriesParams) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, arg.Query, arg.ActiveOnly, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Category
	for rows.Next() {
		i, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countCategories = `-- name: CountCategories :one
SELECT COUNT(*) FROM categories` + categoryFilter

func (q *Queries) CountCategories(ctx context.Context, query string, activeOnly bool) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countCategories, query, activeOnly).Scan(&count)
	return count, err
}

const updateCategory = `-- name: UpdateCategory :one
UPDATE categories SET
    name = ?, slug = ?, description = ?, color = ?, icon = ?,
    display_order = ?, is_active = ?, parent_id = ?, search_text = ?, updated_at = ?
WHERE id = ?
RETURNING ` + categoryColumns

type UpdateCategoryParams struct {
	Name         string
	Slug         string
	Description  string
	Color        string
	Icon         string
	DisplayOrder int64
	IsActive     bool
	ParentID     sql.NullInt64
	SearchText   string
	UpdatedAt    time.Time
	ID           int64
}

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, updateCategory,
		arg.Name,
		arg.Slug,
		arg.Description,
		arg.Color,
		arg.Icon,
		arg.DisplayOrder,
		arg.IsActive,
		arg.ParentID,
		arg.SearchText,
		arg.UpdatedAt,
		arg.ID,
	)
	return scanCategory(row)
}

const updateCategoryOrder = `-- name: UpdateCategoryOrder :execrows
UPDATE categories SET display_order = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateCategoryOrder(ctx context.Context, displayOrder int64, updatedAt time.Time, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateCategoryOrder, displayOrder, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteCategory = `-- name: DeleteCategory :execrows
DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countArticlesByCategory = `-- name: CountArticlesByCategory :one
SELECT COUNT(*) FROM articles WHERE category_id = ?`

func (q *Queries) CountArticlesByCategory(ctx context.Context, categoryID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countArticlesByCategory, categoryID).Scan(&count)
	return count, err
}
