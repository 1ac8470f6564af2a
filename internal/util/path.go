// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a path resolves outside its base directory.
var ErrPathTraversal = errors.New("path escapes base directory")

// ResolveWithinBase joins rel onto base and verifies with filepath.Rel that
// the result stays inside base. The returned path is absolute.
func ResolveWithinBase(base, rel string) (string, error) {
	absBase, err := filepath.Abs(filepath.Clean(base))
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	rel = strings.TrimPrefix(filepath.FromSlash(rel), string(filepath.Separator))
	if rel == "" || strings.ContainsRune(rel, 0) {
		return "", ErrPathTraversal
	}

	target := filepath.Join(absBase, rel)
	r, err := filepath.Rel(absBase, target)
	if err != nil {
		return "", ErrPathTraversal
	}
	if r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", ErrPathTraversal
	}
	return target, nil
}
