// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service provides business logic services.
package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// Content formats accepted on article writes.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// ExcerptLength is the number of runes kept in a derived excerpt.
const ExcerptLength = 200

// htmlSanitizer allows safe HTML for editor content while stripping
// <script>, event handlers and other active markup.
var htmlSanitizer = bluemonday.UGCPolicy()

// textSanitizer strips every tag.
var textSanitizer = bluemonday.StrictPolicy()

// renderContent converts content in format to sanitised HTML.
func renderContent(content, format string) (string, error) {
	switch format {
	case "", FormatHTML:
	case FormatMarkdown:
		var buf bytes.Buffer
		if err := goldmark.Convert([]byte(content), &buf); err != nil {
			return "", fmt.Errorf("rendering markdown: %w", err)
		}
		content = buf.String()
	default:
		return "", invalid("format", "must be html or markdown")
	}
	return strings.TrimSpace(htmlSanitizer.Sanitize(content)), nil
}

// plainText reduces HTML to whitespace-collapsed text.
func plainText(s string) string {
	text := html.UnescapeString(textSanitizer.Sanitize(s))
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

// excerptFrom returns the first ExcerptLength runes of the plain text of s.
func excerptFrom(s string) string {
	text := plainText(s)
	runes := []rune(text)
	if len(runes) <= ExcerptLength {
		return text
	}
	return strings.TrimSpace(string(runes[:ExcerptLength]))
}

// normalizeTags trims, drops empties and de-duplicates case-insensitively.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return []string{}
	}
	return out
}
