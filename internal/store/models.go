// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"time"
)

type User struct {
	ID           int64        `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Role         string       `json:"role"`
	IsActive     bool         `json:"is_active"`
	LastLoginAt  sql.NullTime `json:"last_login_at"`
	TokenVersion int64        `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type Category struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Slug         string        `json:"slug"`
	Description  string        `json:"description"`
	Color        string        `json:"color"`
	Icon         string        `json:"icon"`
	DisplayOrder int64         `json:"display_order"`
	IsActive     bool          `json:"is_active"`
	ParentID     sql.NullInt64 `json:"parent_id"`
	SearchText   string        `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type Article struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Slug           string       `json:"slug"`
	Content        string       `json:"content"`
	Excerpt        string       `json:"excerpt"`
	CategoryID     int64        `json:"category_id"`
	AuthorID       int64        `json:"author_id"`
	Tags           string       `json:"tags"`
	Status         string       `json:"status"`
	Source         string       `json:"source"`
	PublishedAt    sql.NullTime `json:"published_at"`
	ImageUrl       string       `json:"image_url"`
	SeoTitle       string       `json:"seo_title"`
	SeoDescription string       `json:"seo_description"`
	IsFeatured     bool         `json:"is_featured"`
	Version        int64        `json:"version"`
	SearchText     string       `json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type Subscriber struct {
	ID               int64        `json:"id"`
	Email            string       `json:"email"`
	IsActive         bool         `json:"is_active"`
	Source           string       `json:"source"`
	SubscribedAt     time.Time    `json:"subscribed_at"`
	UnsubscribedAt   sql.NullTime `json:"unsubscribed_at"`
	Frequency        string       `json:"frequency"`
	Categories       string       `json:"categories"`
	UnsubscribeToken string       `json:"unsubscribe_token"`
}

type Campaign struct {
	ID             int64     `json:"id"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	CategoryFilter string    `json:"category_filter"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type PageView struct {
	ID        int64         `json:"id"`
	ArticleID sql.NullInt64 `json:"article_id"`
	Path      string        `json:"path"`
	Referrer  string        `json:"referrer"`
	Browser   string        `json:"browser"`
	Os        string        `json:"os"`
	Device    string        `json:"device"`
	Country   string        `json:"country"`
	ViewedAt  time.Time     `json:"viewed_at"`
}
