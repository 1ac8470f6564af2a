// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import "testing"

func TestHasRole(t *testing.T) {
	tests := []struct {
		role, min string
		want      bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleEditor, true},
		{RoleAdmin, RoleViewer, true},
		{RoleEditor, RoleAdmin, false},
		{RoleEditor, RoleEditor, true},
		{RoleEditor, RoleViewer, true},
		{RoleViewer, RoleEditor, false},
		{RoleViewer, RoleViewer, true},
		{"", RoleViewer, false},
		{"superuser", RoleViewer, false},
	}
	for _, tt := range tests {
		if got := HasRole(tt.role, tt.min); got != tt.want {
			t.Errorf("HasRole(%q, %q) = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleEditor, RoleViewer} {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("root") {
		t.Error(`IsValidRole("root") = true`)
	}
}
