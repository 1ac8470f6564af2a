// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olegiv/radnice/internal/cache"
	"github.com/olegiv/radnice/internal/store"
	"github.com/olegiv/radnice/internal/util"
)

// Field limits for category writes.
const (
	MaxCategoryNameLength = 100
	MaxDescriptionLength  = 1000
	MaxIconLength         = 64
)

// publicCategoriesKey caches the public category listing.
const publicCategoriesKey = "categories:public"

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Category is the API view of a category row.
type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description"`
	Color        string    `json:"color"`
	Icon         string    `json:"icon"`
	DisplayOrder int64     `json:"displayOrder"`
	IsActive     bool      `json:"isActive"`
	ParentID     *int64    `json:"parentId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func categoryFromRow(c store.Category) Category {
	return Category{
		ID:           c.ID,
		Name:         c.Name,
		Slug:         c.Slug,
		Description:  c.Description,
		Color:        c.Color,
		Icon:         c.Icon,
		DisplayOrder: c.DisplayOrder,
		IsActive:     c.IsActive,
		ParentID:     util.Int64Ptr(c.ParentID),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// CategoryFilter selects categories for List.
type CategoryFilter struct {
	Query      string
	ActiveOnly bool
}

// CategoryInput is the body of a category create.
type CategoryInput struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	Color        string `json:"color"`
	Icon         string `json:"icon"`
	DisplayOrder int64  `json:"displayOrder"`
	IsActive     *bool  `json:"isActive"`
	ParentID     *int64 `json:"parentId"`
}

// CategoryPatch carries only the keys a client supplied.
type CategoryPatch struct {
	Name         *string         `json:"name"`
	Slug         *string         `json:"slug"`
	Description  *string         `json:"description"`
	Color        *string         `json:"color"`
	Icon         *string         `json:"icon"`
	DisplayOrder *int64          `json:"displayOrder"`
	IsActive     *bool           `json:"isActive"`
	ParentID     Nullable[int64] `json:"parentId"`
}

// ReorderItem assigns a display order to one category.
type ReorderItem struct {
	ID    int64 `json:"id"`
	Order int64 `json:"order"`
}

// CategoryService implements category persistence rules.
type CategoryService struct {
	db      *sql.DB
	queries *store.Queries
	logger  *slog.Logger
	public  *cache.TypedCache[[]Category]
	now     func() time.Time
}

// NewCategoryService creates a new CategoryService. c may be nil to
// disable caching of the public listing.
func NewCategoryService(db *sql.DB, c cache.Cache, logger *slog.Logger) *CategoryService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CategoryService{
		db:      db,
		queries: store.New(db),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if c != nil {
		s.public = cache.NewTypedCache[[]Category](c, 5*time.Minute)
	}
	return s
}

// List returns one page of categories ordered by display order then name.
func (s *CategoryService) List(ctx context.Context, filter CategoryFilter, page Pagination) (Page[Category], error) {
	page = page.Normalize()
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	total, err := s.queries.CountCategories(ctx, query, filter.ActiveOnly)
	if err != nil {
		return Page[Category]{}, fmt.Errorf("counting categories: %w", err)
	}

	rows, err := s.queries.ListCategories(ctx, store.ListCategoriesParams{
		Query:      query,
		ActiveOnly: filter.ActiveOnly,
		Limit:      int64(page.Limit),
		Offset:     int64(page.Offset()),
	})
	if err != nil {
		return Page[Category]{}, fmt.Errorf("listing categories: %w", err)
	}

	items := make([]Category, 0, len(rows))
	for _, row := range rows {
		items = append(items, categoryFromRow(row))
	}
	return newPage(items, total, page), nil
}

// ListPublic returns every active category.
func (s *CategoryService) ListPublic(ctx context.Context) ([]Category, error) {
	load := func() (*[]Category, error) {
		rows, err := s.queries.ListCategories(ctx, store.ListCategoriesParams{ActiveOnly: true, Limit: -1})
		if err != nil {
			return nil, fmt.Errorf("listing public categories: %w", err)
		}
		items := make([]Category, 0, len(rows))
		for _, row := range rows {
			items = append(items, categoryFromRow(row))
		}
		return &items, nil
	}

	if s.public == nil {
		items, err := load()
		if err != nil {
			return nil, err
		}
		return *items, nil
	}

	items, err := s.public.GetOrSet(ctx, publicCategoriesKey, load)
	if err != nil {
		return nil, err
	}
	return *items, nil
}

// Get returns the category with id.
func (s *CategoryService) Get(ctx context.Context, id int64) (Category, error) {
	row, err := s.queries.GetCategoryByID(ctx, id)
	if err != nil {
		return Category{}, notFound(err, "category")
	}
	return categoryFromRow(row), nil
}

// Create validates and stores a new category.
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (Category, error) {
	draft := categoryDraft{
		Name:         strings.TrimSpace(in.Name),
		Description:  strings.TrimSpace(in.Description),
		Color:        strings.TrimSpace(in.Color),
		Icon:         strings.TrimSpace(in.Icon),
		DisplayOrder: in.DisplayOrder,
		IsActive:     true,
		ParentID:     util.NullInt64FromPtr(in.ParentID),
	}
	if in.IsActive != nil {
		draft.IsActive = *in.IsActive
	}

	if err := s.validate(ctx, &draft, 0); err != nil {
		return Category{}, err
	}

	slug, err := s.resolveSlug(ctx, in.Slug, draft.Name, 0)
	if err != nil {
		return Category{}, err
	}

	now := s.now()
	row, err := s.queries.CreateCategory(ctx, store.CreateCategoryParams{
		Name:         draft.Name,
		Slug:         slug,
		Description:  draft.Description,
		Color:        draft.Color,
		Icon:         draft.Icon,
		DisplayOrder: draft.DisplayOrder,
		IsActive:     draft.IsActive,
		ParentID:     draft.ParentID,
		SearchText:   categorySearchText(draft.Name, slug),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Category{}, s.writeError(err, "creating category")
	}

	s.invalidate(ctx)
	return categoryFromRow(row), nil
}

// Update merges patch into the stored category. A name change regenerates
// the slug unless the patch supplies one.
func (s *CategoryService) Update(ctx context.Context, id int64, patch CategoryPatch) (Category, error) {
	existing, err := s.queries.GetCategoryByID(ctx, id)
	if err != nil {
		return Category{}, notFound(err, "category")
	}

	draft := categoryDraft{
		Name:         existing.Name,
		Description:  existing.Description,
		Color:        existing.Color,
		Icon:         existing.Icon,
		DisplayOrder: existing.DisplayOrder,
		IsActive:     existing.IsActive,
		ParentID:     existing.ParentID,
	}
	if patch.Name != nil {
		draft.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		draft.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Color != nil {
		draft.Color = strings.TrimSpace(*patch.Color)
	}
	if patch.Icon != nil {
		draft.Icon = strings.TrimSpace(*patch.Icon)
	}
	if patch.DisplayOrder != nil {
		draft.DisplayOrder = *patch.DisplayOrder
	}
	if patch.IsActive != nil {
		draft.IsActive = *patch.IsActive
	}
	if patch.ParentID.Set {
		draft.ParentID = util.NullInt64FromPtr(patch.ParentID.Value)
	}

	if err := s.validate(ctx, &draft, id); err != nil {
		return Category{}, err
	}

	slug := existing.Slug
	switch {
	case patch.Slug != nil && util.Slugify(*patch.Slug) != existing.Slug:
		slug, err = s.resolveSlug(ctx, *patch.Slug, draft.Name, id)
	case patch.Slug == nil && draft.Name != existing.Name:
		slug, err = s.resolveSlug(ctx, "", draft.Name, id)
	}
	if err != nil {
		return Category{}, err
	}

	row, err := s.queries.UpdateCategory(ctx, store.UpdateCategoryParams{
		Name:         draft.Name,
		Slug:         slug,
		Description:  draft.Description,
		Color:        draft.Color,
		Icon:         draft.Icon,
		DisplayOrder: draft.DisplayOrder,
		IsActive:     draft.IsActive,
		ParentID:     draft.ParentID,
		SearchText:   categorySearchText(draft.Name, slug),
		UpdatedAt:    s.now(),
		ID:           id,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Category{}, fmt.Errorf("category: %w", ErrNotFound)
		}
		return Category{}, s.writeError(err, "updating category")
	}

	s.invalidate(ctx)
	return categoryFromRow(row), nil
}

// categorySearchText is matched by List. SQLite's lower() folds ASCII
// only, so the text is lowercased here.
func categorySearchText(name, slug string) string {
	return strings.ToLower(name + " " + slug)
}

// Delete removes a category that no article references. Child categories
// are detached by the schema.
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	if _, err := s.queries.GetCategoryByID(ctx, id); err != nil {
		return notFound(err, "category")
	}

	count, err := s.queries.CountArticlesByCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("counting category articles: %w", err)
	}
	if count > 0 {
		return &ConflictError{Resource: "category", Relation: "articles", Count: count}
	}

	n, err := s.queries.DeleteCategory(ctx, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &ConflictError{Resource: "category", Relation: "articles", Message: "category is referenced by articles"}
		}
		return fmt.Errorf("deleting category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category: %w", ErrNotFound)
	}

	s.invalidate(ctx)
	return nil
}

// Reorder writes every display order in one transaction. An unknown id
// rolls back the whole batch.
func (s *CategoryService) Reorder(ctx context.Context, items []ReorderItem) error {
	if len(items) == 0 {
		return invalid("items", "at least one item is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := s.queries.WithTx(tx)
	now := s.now()
	for _, item := range items {
		n, err := qtx.UpdateCategoryOrder(ctx, item.Order, now, item.ID)
		if err != nil {
			return fmt.Errorf("updating order of category %d: %w", item.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("category %d: %w", item.ID, ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing reorder: %w", err)
	}

	s.invalidate(ctx)
	return nil
}

func (s *CategoryService) invalidate(ctx context.Context) {
	if s.public == nil {
		return
	}
	if err := s.public.Invalidate(ctx, "categories:"); err != nil {
		s.logger.Warn("failed to invalidate category cache", "error", err)
	}
}

type categoryDraft struct {
	Name         string
	Description  string
	Color        string
	Icon         string
	DisplayOrder int64
	IsActive     bool
	ParentID     sql.NullInt64
}

func (s *CategoryService) validate(ctx context.Context, d *categoryDraft, selfID int64) error {
	verr := NewValidationError()

	if d.Name == "" {
		verr.Add("name", "is required")
	} else if utf8.RuneCountInString(d.Name) > MaxCategoryNameLength {
		verr.Add("name", fmt.Sprintf("must be at most %d characters", MaxCategoryNameLength))
	}
	if utf8.RuneCountInString(d.Description) > MaxDescriptionLength {
		verr.Add("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	if d.Color != "" && !colorPattern.MatchString(d.Color) {
		verr.Add("color", "must be a hex color such as #1a73e8")
	}
	if utf8.RuneCountInString(d.Icon) > MaxIconLength {
		verr.Add("icon", fmt.Sprintf("must be at most %d characters", MaxIconLength))
	}

	if d.ParentID.Valid {
		msg, err := s.checkParent(ctx, d.ParentID.Int64, selfID)
		if err != nil {
			return err
		}
		if msg != "" {
			verr.Add("parentId", msg)
		}
	}

	return verr.OrNil()
}

// checkParent returns a validation message when parentID is unusable for
// selfID: missing, selfID itself, or one of selfID's descendants.
func (s *CategoryService) checkParent(ctx context.Context, parentID, selfID int64) (string, error) {
	if parentID == selfID {
		return "category cannot be its own parent", nil
	}

	seen := map[int64]bool{}
	id := parentID
	for {
		cat, err := s.queries.GetCategoryByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			if id == parentID {
				return "parent category does not exist", nil
			}
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("loading parent category: %w", err)
		}
		if !cat.ParentID.Valid || seen[cat.ID] {
			return "", nil
		}
		seen[cat.ID] = true
		if selfID != 0 && cat.ParentID.Int64 == selfID {
			return "parent would create a cycle", nil
		}
		id = cat.ParentID.Int64
	}
}

func (s *CategoryService) resolveSlug(ctx context.Context, explicit, name string, excludeID int64) (string, error) {
	base := util.Slugify(explicit)
	if strings.TrimSpace(explicit) != "" && base == "" {
		return "", invalid("slug", "must contain letters or digits")
	}
	if base == "" {
		base = util.Slugify(name)
	}
	if base == "" {
		base = "kategorie"
	}

	return util.UniqueSlug(ctx, base, func(ctx context.Context, slug string) (bool, error) {
		n, err := s.queries.CategorySlugExists(ctx, slug, excludeID)
		return n > 0, err
	})
}

func (s *CategoryService) writeError(err error, op string) error {
	switch {
	case isUniqueViolation(err):
		return &ConflictError{Resource: "category", Message: "slug is already in use"}
	case isForeignKeyViolation(err):
		return invalid("parentId", "parent category does not exist")
	}
	return fmt.Errorf("%s: %w", op, err)
}
