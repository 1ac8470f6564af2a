// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olegiv/radnice/internal/store"
	"github.com/olegiv/radnice/internal/util"
)

// Article statuses.
const (
	ArticleStatusDraft     = "draft"
	ArticleStatusPublished = "published"
	ArticleStatusArchived  = "archived"
)

// DefaultArticleSource is stored when a write names no source.
const DefaultArticleSource = "manual"

// Field limits for article writes.
const (
	MaxTitleLength          = 255
	MaxSEODescriptionLength = 500
	MaxTags                 = 30
	MaxTagLength            = 64
	MaxBulkItems            = 100
)

// IsValidArticleStatus reports whether s is a known article status.
func IsValidArticleStatus(s string) bool {
	switch s {
	case ArticleStatusDraft, ArticleStatusPublished, ArticleStatusArchived:
		return true
	}
	return false
}

// Article is the API view of an article row.
type Article struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Slug           string     `json:"slug"`
	Content        string     `json:"content"`
	Excerpt        string     `json:"excerpt"`
	CategoryID     int64      `json:"categoryId"`
	AuthorID       int64      `json:"authorId"`
	Tags           []string   `json:"tags"`
	Status         string     `json:"status"`
	Source         string     `json:"source"`
	PublishedAt    *time.Time `json:"publishedAt"`
	ImageURL       string     `json:"imageUrl"`
	SEOTitle       string     `json:"seoTitle"`
	SEODescription string     `json:"seoDescription"`
	IsFeatured     bool       `json:"isFeatured"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func articleFromRow(a store.Article) Article {
	return Article{
		ID:             a.ID,
		Title:          a.Title,
		Slug:           a.Slug,
		Content:        a.Content,
		Excerpt:        a.Excerpt,
		CategoryID:     a.CategoryID,
		AuthorID:       a.AuthorID,
		Tags:           decodeStrings(a.Tags),
		Status:         a.Status,
		Source:         a.Source,
		PublishedAt:    util.TimePtr(a.PublishedAt),
		ImageURL:       a.ImageUrl,
		SEOTitle:       a.SeoTitle,
		SEODescription: a.SeoDescription,
		IsFeatured:     a.IsFeatured,
		Version:        a.Version,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// ArticleFilter selects articles for List. Zero fields match everything.
type ArticleFilter struct {
	Query        string
	CategoryID   int64
	CategorySlug string
	Status       string
	Source       string
	FeaturedOnly bool
	// VisibleOnly restricts results to what the public may read.
	VisibleOnly bool
	AuthorID    int64
}

// ArticleInput is the body of an article create.
type ArticleInput struct {
	Title          string     `json:"title"`
	Slug           string     `json:"slug"`
	Content        string     `json:"content"`
	Format         string     `json:"format"`
	Excerpt        string     `json:"excerpt"`
	CategoryID     int64      `json:"categoryId"`
	Tags           []string   `json:"tags"`
	Status         string     `json:"status"`
	Source         string     `json:"source"`
	PublishedAt    *time.Time `json:"publishedAt"`
	ImageURL       string     `json:"imageUrl"`
	SEOTitle       string     `json:"seoTitle"`
	SEODescription string     `json:"seoDescription"`
	IsFeatured     bool       `json:"isFeatured"`
}

// ArticlePatch carries only the keys a client supplied.
type ArticlePatch struct {
	Title          *string             `json:"title"`
	Slug           *string             `json:"slug"`
	Content        *string             `json:"content"`
	Format         *string             `json:"format"`
	Excerpt        *string             `json:"excerpt"`
	CategoryID     *int64              `json:"categoryId"`
	Tags           *[]string           `json:"tags"`
	Status         *string             `json:"status"`
	Source         *string             `json:"source"`
	PublishedAt    Nullable[time.Time] `json:"publishedAt"`
	ImageURL       *string             `json:"imageUrl"`
	SEOTitle       *string             `json:"seoTitle"`
	SEODescription *string             `json:"seoDescription"`
	IsFeatured     *bool               `json:"isFeatured"`
	// Version enables compare-and-swap against the stored version.
	Version *int64 `json:"version"`
}

// ArticleService implements article persistence rules.
type ArticleService struct {
	db      *sql.DB
	queries *store.Queries
	logger  *slog.Logger
	now     func() time.Time
}

// NewArticleService creates a new ArticleService.
func NewArticleService(db *sql.DB, logger *slog.Logger) *ArticleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleService{
		db:      db,
		queries: store.New(db),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns one page of articles matching filter, newest update first.
func (s *ArticleService) List(ctx context.Context, filter ArticleFilter, page Pagination) (Page[Article], error) {
	page = page.Normalize()

	if filter.Status != "" && !IsValidArticleStatus(filter.Status) {
		return Page[Article]{}, invalid("status", "must be draft, published or archived")
	}

	params := store.ArticleFilterParams{
		Search:       strings.ToLower(strings.TrimSpace(filter.Query)),
		CategoryID:   filter.CategoryID,
		Status:       filter.Status,
		Source:       filter.Source,
		FeaturedOnly: filter.FeaturedOnly,
		VisibleOnly:  filter.VisibleOnly,
		Now:          s.now(),
		AuthorID:     filter.AuthorID,
	}

	if params.CategoryID == 0 && filter.CategorySlug != "" {
		cat, err := s.queries.GetCategoryBySlug(ctx, filter.CategorySlug)
		if errors.Is(err, sql.ErrNoRows) {
			return newPage[Article](nil, 0, page), nil
		}
		if err != nil {
			return Page[Article]{}, fmt.Errorf("resolving category slug: %w", err)
		}
		params.CategoryID = cat.ID
	}

	total, err := s.queries.CountArticles(ctx, params)
	if err != nil {
		return Page[Article]{}, fmt.Errorf("counting articles: %w", err)
	}

	rows, err := s.queries.ListArticles(ctx, params, int64(page.Limit), int64(page.Offset()))
	if err != nil {
		return Page[Article]{}, fmt.Errorf("listing articles: %w", err)
	}

	items := make([]Article, 0, len(rows))
	for _, row := range rows {
		items = append(items, articleFromRow(row))
	}
	return newPage(items, total, page), nil
}

// Get returns the article with id regardless of status.
func (s *ArticleService) Get(ctx context.Context, id int64) (Article, error) {
	row, err := s.queries.GetArticleByID(ctx, id)
	if err != nil {
		return Article{}, notFound(err, "article")
	}
	return articleFromRow(row), nil
}

// GetVisibleBySlug returns a publicly visible article.
func (s *ArticleService) GetVisibleBySlug(ctx context.Context, slug string) (Article, error) {
	row, err := s.queries.GetVisibleArticleBySlug(ctx, slug, s.now())
	if err != nil {
		return Article{}, notFound(err, "article")
	}
	return articleFromRow(row), nil
}

// Create validates and stores a new article written by authorID.
func (s *ArticleService) Create(ctx context.Context, authorID int64, in ArticleInput) (Article, error) {
	now := s.now()

	draft := articleDraft{
		Title:          strings.TrimSpace(in.Title),
		Content:        in.Content,
		Excerpt:        in.Excerpt,
		CategoryID:     in.CategoryID,
		Tags:           in.Tags,
		Status:         in.Status,
		Source:         in.Source,
		PublishedAt:    util.NullTimeFromPtr(in.PublishedAt),
		ImageURL:       strings.TrimSpace(in.ImageURL),
		SEOTitle:       strings.TrimSpace(in.SEOTitle),
		SEODescription: strings.TrimSpace(in.SEODescription),
		IsFeatured:     in.IsFeatured,
	}
	if draft.Status == "" {
		draft.Status = ArticleStatusDraft
	}
	if draft.Source == "" {
		draft.Source = DefaultArticleSource
	}

	if err := s.prepare(ctx, &draft, in.Format, true, now); err != nil {
		return Article{}, err
	}

	slug, err := s.resolveSlug(ctx, in.Slug, draft.Title, 0)
	if err != nil {
		return Article{}, err
	}

	row, err := s.queries.CreateArticle(ctx, store.CreateArticleParams{
		Title:          draft.Title,
		Slug:           slug,
		Content:        draft.Content,
		Excerpt:        draft.Excerpt,
		CategoryID:     draft.CategoryID,
		AuthorID:       authorID,
		Tags:           encodeStrings(draft.Tags),
		Status:         draft.Status,
		Source:         draft.Source,
		PublishedAt:    draft.PublishedAt,
		ImageUrl:       draft.ImageURL,
		SeoTitle:       draft.SEOTitle,
		SeoDescription: draft.SEODescription,
		IsFeatured:     draft.IsFeatured,
		SearchText:     draft.searchText(),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Article{}, s.writeError(err, "creating article")
	}
	return articleFromRow(row), nil
}

// Update merges patch into the stored article. A supplied Version must
// match the stored one or ErrConflict is returned.
func (s *ArticleService) Update(ctx context.Context, id int64, patch ArticlePatch) (Article, error) {
	existing, err := s.queries.GetArticleByID(ctx, id)
	if err != nil {
		return Article{}, notFound(err, "article")
	}

	var expected int64
	if patch.Version != nil {
		expected = *patch.Version
		if expected != existing.Version {
			return Article{}, versionConflict()
		}
	}

	draft := articleDraft{
		Title:          existing.Title,
		Content:        existing.Content,
		Excerpt:        existing.Excerpt,
		CategoryID:     existing.CategoryID,
		Tags:           decodeStrings(existing.Tags),
		Status:         existing.Status,
		Source:         existing.Source,
		PublishedAt:    existing.PublishedAt,
		ImageURL:       existing.ImageUrl,
		SEOTitle:       existing.SeoTitle,
		SEODescription: existing.SeoDescription,
		IsFeatured:     existing.IsFeatured,
	}

	contentChanged := patch.Content != nil
	if patch.Title != nil {
		draft.Title = strings.TrimSpace(*patch.Title)
	}
	if contentChanged {
		draft.Content = *patch.Content
	}
	if patch.Excerpt != nil {
		draft.Excerpt = *patch.Excerpt
	}
	if patch.CategoryID != nil {
		draft.CategoryID = *patch.CategoryID
	}
	if patch.Tags != nil {
		draft.Tags = *patch.Tags
	}
	if patch.Status != nil {
		draft.Status = *patch.Status
	}
	if patch.Source != nil {
		draft.Source = *patch.Source
		if draft.Source == "" {
			draft.Source = DefaultArticleSource
		}
	}
	if patch.PublishedAt.Set {
		draft.PublishedAt = util.NullTimeFromPtr(patch.PublishedAt.Value)
	}
	if patch.ImageURL != nil {
		draft.ImageURL = strings.TrimSpace(*patch.ImageURL)
	}
	if patch.SEOTitle != nil {
		draft.SEOTitle = strings.TrimSpace(*patch.SEOTitle)
	}
	if patch.SEODescription != nil {
		draft.SEODescription = strings.TrimSpace(*patch.SEODescription)
	}
	if patch.IsFeatured != nil {
		draft.IsFeatured = *patch.IsFeatured
	}

	format := ""
	if patch.Format != nil {
		format = *patch.Format
	}
	if err := s.prepare(ctx, &draft, format, contentChanged, s.now()); err != nil {
		return Article{}, err
	}

	slug := existing.Slug
	if patch.Slug != nil && util.Slugify(*patch.Slug) != existing.Slug {
		slug, err = s.resolveSlug(ctx, *patch.Slug, draft.Title, id)
		if err != nil {
			return Article{}, err
		}
	}

	row, err := s.queries.UpdateArticle(ctx, store.UpdateArticleParams{
		Title:           draft.Title,
		Slug:            slug,
		Content:         draft.Content,
		Excerpt:         draft.Excerpt,
		CategoryID:      draft.CategoryID,
		Tags:            encodeStrings(draft.Tags),
		Status:          draft.Status,
		Source:          draft.Source,
		PublishedAt:     draft.PublishedAt,
		ImageUrl:        draft.ImageURL,
		SeoTitle:        draft.SEOTitle,
		SeoDescription:  draft.SEODescription,
		IsFeatured:      draft.IsFeatured,
		SearchText:      draft.searchText(),
		UpdatedAt:       s.now(),
		ID:              id,
		ExpectedVersion: expected,
	})
	if errors.Is(err, sql.ErrNoRows) {
		if expected != 0 {
			return Article{}, versionConflict()
		}
		return Article{}, fmt.Errorf("article: %w", ErrNotFound)
	}
	if err != nil {
		return Article{}, s.writeError(err, "updating article")
	}
	return articleFromRow(row), nil
}

// Delete removes the article with id.
func (s *ArticleService) Delete(ctx context.Context, id int64) error {
	n, err := s.queries.DeleteArticle(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting article: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("article: %w", ErrNotFound)
	}
	return nil
}

// BulkUpdate applies patch to every id in order. Versions are ignored.
func (s *ArticleService) BulkUpdate(ctx context.Context, ids []int64, patch ArticlePatch) (BulkResult, error) {
	ids, err := bulkIDs(ids)
	if err != nil {
		return BulkResult{}, err
	}
	patch.Version = nil

	result := BulkResult{Results: make([]BulkItemResult, 0, len(ids))}
	for _, id := range ids {
		_, err := s.Update(ctx, id, patch)
		s.logBulkError("update", id, err)
		result.record(id, err)
	}
	return result, nil
}

// BulkDelete deletes every id in order.
func (s *ArticleService) BulkDelete(ctx context.Context, ids []int64) (BulkResult, error) {
	ids, err := bulkIDs(ids)
	if err != nil {
		return BulkResult{}, err
	}

	result := BulkResult{Results: make([]BulkItemResult, 0, len(ids))}
	for _, id := range ids {
		err := s.Delete(ctx, id)
		s.logBulkError("delete", id, err)
		result.record(id, err)
	}
	return result, nil
}

func (s *ArticleService) logBulkError(action string, id int64, err error) {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) {
		return
	}
	s.logger.Error("bulk article operation failed", "action", action, "article_id", id, "error", err)
}

// articleDraft is the merged state of an article before it is written.
type articleDraft struct {
	Title          string
	Content        string
	Excerpt        string
	CategoryID     int64
	Tags           []string
	Status         string
	Source         string
	PublishedAt    sql.NullTime
	ImageURL       string
	SEOTitle       string
	SEODescription string
	IsFeatured     bool
}

func (d *articleDraft) searchText() string {
	parts := []string{d.Title, d.Excerpt, plainText(d.Content), strings.Join(d.Tags, " ")}
	return strings.ToLower(strings.Join(parts, " "))
}

// prepare validates d, sanitises content and applies publish state rules.
func (s *ArticleService) prepare(ctx context.Context, d *articleDraft, format string, renderBody bool, now time.Time) error {
	verr := NewValidationError()

	if d.Title == "" {
		verr.Add("title", "is required")
	} else if utf8.RuneCountInString(d.Title) > MaxTitleLength {
		verr.Add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}

	if renderBody {
		content, err := renderContent(d.Content, format)
		if err != nil && !mergeValidation(err, verr) {
			return err
		}
		d.Content = content
	}
	if strings.TrimSpace(plainText(d.Content)) == "" && !strings.Contains(d.Content, "<img") {
		verr.Add("content", "is required")
	}

	d.Excerpt = plainText(d.Excerpt)
	if d.Excerpt == "" {
		d.Excerpt = excerptFrom(d.Content)
	}

	if !IsValidArticleStatus(d.Status) {
		verr.Add("status", "must be draft, published or archived")
	}
	if !util.IsValidSlug(d.Source) {
		verr.Add("source", "must be a lowercase identifier")
	}

	d.Tags = normalizeTags(d.Tags)
	if len(d.Tags) > MaxTags {
		verr.Add("tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	for _, t := range d.Tags {
		if utf8.RuneCountInString(t) > MaxTagLength {
			verr.Add("tags", fmt.Sprintf("each tag must be at most %d characters", MaxTagLength))
			break
		}
	}

	if d.ImageURL != "" && !isAcceptableImageURL(d.ImageURL) {
		verr.Add("imageUrl", "must be an http(s) URL or a site-relative path")
	}
	if utf8.RuneCountInString(d.SEOTitle) > MaxTitleLength {
		verr.Add("seoTitle", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
	}
	if utf8.RuneCountInString(d.SEODescription) > MaxSEODescriptionLength {
		verr.Add("seoDescription", fmt.Sprintf("must be at most %d characters", MaxSEODescriptionLength))
	}

	if d.CategoryID <= 0 {
		verr.Add("categoryId", "is required")
	} else if _, err := s.queries.GetCategoryByID(ctx, d.CategoryID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("loading category: %w", err)
		}
		verr.Add("categoryId", "category does not exist")
	}

	if err := verr.OrNil(); err != nil {
		return err
	}

	switch d.Status {
	case ArticleStatusDraft:
		d.PublishedAt = sql.NullTime{}
	case ArticleStatusPublished:
		if !d.PublishedAt.Valid {
			d.PublishedAt = sql.NullTime{Time: now, Valid: true}
		}
	}
	if d.PublishedAt.Valid {
		d.PublishedAt.Time = d.PublishedAt.Time.UTC()
	}
	return nil
}

// resolveSlug normalises an explicit slug or derives one from title, then
// appends a numeric suffix until no other article uses it.
func (s *ArticleService) resolveSlug(ctx context.Context, explicit, title string, excludeID int64) (string, error) {
	base := util.Slugify(explicit)
	if strings.TrimSpace(explicit) != "" && base == "" {
		return "", invalid("slug", "must contain letters or digits")
	}
	if base == "" {
		base = util.Slugify(title)
	}
	if base == "" {
		base = "clanek"
	}

	return util.UniqueSlug(ctx, base, func(ctx context.Context, slug string) (bool, error) {
		n, err := s.queries.ArticleSlugExists(ctx, slug, excludeID)
		return n > 0, err
	})
}

func (s *ArticleService) writeError(err error, op string) error {
	switch {
	case isUniqueViolation(err):
		return &ConflictError{Resource: "article", Message: "slug is already in use"}
	case isForeignKeyViolation(err):
		return invalid("categoryId", "category does not exist")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func versionConflict() error {
	return &ConflictError{Resource: "article", Message: "article was modified by another request"}
}

func isAcceptableImageURL(raw string) bool {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// bulkIDs de-duplicates ids keeping first occurrences.
func bulkIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, invalid("articleIds", "at least one id is required")
	}
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) > MaxBulkItems {
		return nil, invalid("articleIds", fmt.Sprintf("at most %d ids per request", MaxBulkItems))
	}
	return out, nil
}
