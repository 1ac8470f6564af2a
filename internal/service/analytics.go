// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mileusna/useragent"

	"github.com/olegiv/radnice/internal/geoip"
	"github.com/olegiv/radnice/internal/store"
	"github.com/olegiv/radnice/internal/util"
)

// Analytics defaults.
const (
	DefaultRetentionDays = 30
	DefaultOverviewDays  = 30
	MaxOverviewDays      = 365
	TrackTimeout         = 2 * time.Second
	overviewTopN         = 10
	dayLayout            = "2006-01-02"
)

// Device types.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

// PageView is one tracked read.
type PageView struct {
	ArticleID  *int64
	Path       string
	Referrer   string
	UserAgent  string
	RemoteAddr string
}

// ParsedUA is the part of a User-Agent the analytics keep.
type ParsedUA struct {
	Browser string
	OS      string
	Device  string
}

// DayViews is one point of the daily series.
type DayViews struct {
	Day   string `json:"day"`
	Views int64  `json:"views"`
}

// TopArticle is an article ranked by views.
type TopArticle struct {
	ArticleID int64  `json:"articleId"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Views     int64  `json:"views"`
}

// LabelCount is one bucket of a breakdown.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// ContentCounts summarizes stored content.
type ContentCounts struct {
	Articles            int64            `json:"articles"`
	ArticlesByStatus    map[string]int64 `json:"articlesByStatus"`
	Categories          int64            `json:"categories"`
	ActiveSubscribers   int64            `json:"activeSubscribers"`
	InactiveSubscribers int64            `json:"inactiveSubscribers"`
}

// Overview is the dashboard payload.
type Overview struct {
	From        string        `json:"from"`
	To          string        `json:"to"`
	TotalViews  int64         `json:"totalViews"`
	Daily       []DayViews    `json:"daily"`
	TopArticles []TopArticle  `json:"topArticles"`
	Browsers    []LabelCount  `json:"browsers"`
	Devices     []LabelCount  `json:"devices"`
	Countries   []LabelCount  `json:"countries"`
	Content     ContentCounts `json:"content"`
}

// AnalyticsService records page views and aggregates them.
type AnalyticsService struct {
	queries     *store.Queries
	subscribers SubscriberStore
	geo         *geoip.Lookup
	logger      *slog.Logger
	retention   int
	now         func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService. geo may be nil.
func NewAnalyticsService(db *sql.DB, subscribers SubscriberStore, geo *geoip.Lookup, retentionDays int, logger *slog.Logger) *AnalyticsService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &AnalyticsService{
		queries:     store.New(db),
		subscribers: subscribers,
		geo:         geo,
		logger:      logger,
		retention:   retentionDays,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ParseUserAgent extracts browser, OS, and device type from a user agent string.
func ParseUserAgent(uaString string) ParsedUA {
	ua := useragent.Parse(uaString)

	result := ParsedUA{
		Browser: ua.Name,
		OS:      ua.OS,
	}

	switch {
	case ua.Bot:
		result.Device = DeviceBot
	case ua.Tablet:
		result.Device = DeviceTablet
	case ua.Mobile:
		result.Device = DeviceMobile
	default:
		result.Device = DeviceDesktop
	}

	return result
}

// Track records a page view. Bots are ignored. The write is bounded by
// TrackTimeout and detached from ctx cancellation so it may run after
// the response is sent.
func (s *AnalyticsService) Track(ctx context.Context, v PageView) error {
	ua := ParseUserAgent(v.UserAgent)
	if ua.Device == DeviceBot {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), TrackTimeout)
	defer cancel()

	err := s.queries.CreatePageView(ctx, store.CreatePageViewParams{
		ArticleID: util.NullInt64FromPtr(v.ArticleID),
		Path:      v.Path,
		Referrer:  util.ReferrerDomain(v.Referrer),
		Browser:   ua.Browser,
		Os:        ua.OS,
		Device:    ua.Device,
		Country:   s.geo.Country(util.HostIP(v.RemoteAddr)),
		ViewedAt:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("recording page view: %w", err)
	}
	return nil
}

// Rollup folds raw views into daily totals and prunes raw rows older than
// the retention window. The cutoff is aligned to a UTC day so a day is
// never split between both tables.
func (s *AnalyticsService) Rollup(ctx context.Context) (rolled, pruned int64, err error) {
	rolled, err = s.queries.RollupPageViews(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("rolling up page views: %w", err)
	}

	cutoff := startOfDay(s.now()).AddDate(0, 0, -s.retention)
	pruned, err = s.queries.PrunePageViews(ctx, cutoff)
	if err != nil {
		return rolled, 0, fmt.Errorf("pruning page views: %w", err)
	}

	s.logger.Debug("page views rolled up", "rolled", rolled, "pruned", pruned, "cutoff", cutoff.Format(dayLayout))
	return rolled, pruned, nil
}

// Overview aggregates the last days days, today included.
func (s *AnalyticsService) Overview(ctx context.Context, days int) (Overview, error) {
	if days <= 0 {
		days = DefaultOverviewDays
	}
	if days > MaxOverviewDays {
		days = MaxOverviewDays
	}

	today := startOfDay(s.now())
	from := today.AddDate(0, 0, -(days - 1))
	fromDay := from.Format(dayLayout)

	out := Overview{
		From:        fromDay,
		To:          today.Format(dayLayout),
		Daily:       make([]DayViews, 0, days),
		TopArticles: []TopArticle{},
	}

	daily, err := s.queries.DailyViews(ctx, fromDay)
	if err != nil {
		return Overview{}, fmt.Errorf("loading daily views: %w", err)
	}
	byDay := make(map[string]int64, len(daily))
	for _, d := range daily {
		byDay[d.Day] = d.Views
	}
	for day := from; !day.After(today); day = day.AddDate(0, 0, 1) {
		key := day.Format(dayLayout)
		out.Daily = append(out.Daily, DayViews{Day: key, Views: byDay[key]})
		out.TotalViews += byDay[key]
	}

	top, err := s.queries.TopArticles(ctx, fromDay, overviewTopN)
	if err != nil {
		return Overview{}, fmt.Errorf("loading top articles: %w", err)
	}
	for _, a := range top {
		out.TopArticles = append(out.TopArticles, TopArticle{
			ArticleID: a.ArticleID,
			Title:     a.Title,
			Slug:      a.Slug,
			Views:     a.Views,
		})
	}

	breakdowns := []struct {
		dim string
		dst *[]LabelCount
	}{
		{store.DimensionBrowser, &out.Browsers},
		{store.DimensionDevice, &out.Devices},
		{store.DimensionCountry, &out.Countries},
	}
	for _, b := range breakdowns {
		rows, err := s.queries.PageViewsBy(ctx, b.dim, from, overviewTopN)
		if err != nil {
			return Overview{}, fmt.Errorf("loading %s breakdown: %w", b.dim, err)
		}
		items := make([]LabelCount, 0, len(rows))
		for _, r := range rows {
			items = append(items, LabelCount{Label: r.Label, Count: r.Count})
		}
		*b.dst = items
	}

	out.Content, err = s.contentCounts(ctx)
	if err != nil {
		return Overview{}, err
	}
	return out, nil
}

func (s *AnalyticsService) contentCounts(ctx context.Context) (ContentCounts, error) {
	counts := ContentCounts{
		ArticlesByStatus: map[string]int64{
			ArticleStatusDraft:     0,
			ArticleStatusPublished: 0,
			ArticleStatusArchived:  0,
		},
	}

	byStatus, err := s.queries.CountArticlesByStatus(ctx)
	if err != nil {
		return ContentCounts{}, fmt.Errorf("counting articles: %w", err)
	}
	for _, c := range byStatus {
		counts.ArticlesByStatus[strings.ToLower(c.Status)] += c.Count
		counts.Articles += c.Count
	}

	counts.Categories, err = s.queries.CountCategories(ctx, "", false)
	if err != nil {
		return ContentCounts{}, fmt.Errorf("counting categories: %w", err)
	}

	if s.subscribers != nil {
		counts.ActiveSubscribers, counts.InactiveSubscribers, err = s.subscribers.Count(ctx)
		if err != nil {
			return ContentCounts{}, fmt.Errorf("counting subscribers: %w", err)
		}
	}
	return counts, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
