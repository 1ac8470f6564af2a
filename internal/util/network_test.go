// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"net/netip"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"10.1.2.3", true},
		{"172.20.0.4", true},
		{"192.168.0.10", true},
		{"127.0.0.1", true},
		{"169.254.10.1", true},
		{"100.64.3.2", true},
		{"198.51.100.7", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"2001:db8::5", true},
		{"::ffff:10.0.0.1", true},
		{"8.8.8.8", false},
		{"::ffff:8.8.8.8", false},
		{"2a00:1450:4001::1", false},
	}
	for _, tt := range tests {
		if got := IsPrivateIP(netip.MustParseAddr(tt.ip)); got != tt.private {
			t.Errorf("IsPrivateIP(%s) = %v; want %v", tt.ip, got, tt.private)
		}
	}
	if !IsPrivateIP(netip.Addr{}) {
		t.Error("invalid address should be treated as private")
	}
}

func TestHostIP(t *testing.T) {
	tests := map[string]string{
		"203.0.113.5:443":       "203.0.113.5",
		"203.0.113.5":           "203.0.113.5",
		"[2001:db8::1]:80":      "2001:db8::1",
		"2001:db8::1":           "2001:db8::1",
		"[::ffff:1.2.3.4]:8080": "1.2.3.4",
	}
	for in, want := range tests {
		if got := HostIP(in); got.String() != want {
			t.Errorf("HostIP(%q) = %v; want %s", in, got, want)
		}
	}
	for _, garbage := range []string{"", "not-an-ip", "radnice.cz:80"} {
		if HostIP(garbage).IsValid() {
			t.Errorf("HostIP(%q) should be invalid", garbage)
		}
	}
}

func TestReferrerDomain(t *testing.T) {
	tests := map[string]string{
		"":                                "",
		"https://www.Google.com/search?q": "google.com",
		"http://radnice.cz/aktuality":     "radnice.cz",
		"not a url":                       "",
	}
	for in, want := range tests {
		if got := ReferrerDomain(in); got != want {
			t.Errorf("ReferrerDomain(%q) = %q; want %q", in, got, want)
		}
	}
}
