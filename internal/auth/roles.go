// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

// User roles.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// RoleLevel returns a numeric level for role hierarchy.
// Higher level = more permissions. Unknown roles have level 0.
func RoleLevel(role string) int {
	switch role {
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	return RoleLevel(role) > 0
}

// HasRole reports whether role grants at least minRole.
func HasRole(role, minRole string) bool {
	level := RoleLevel(role)
	return level > 0 && level >= RoleLevel(minRole)
}
