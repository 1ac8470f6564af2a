// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package geoip

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_Disabled(t *testing.T) {
	g, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if g.Enabled() {
		t.Error("Enabled() = true without a database")
	}
	if got := g.Country(netip.MustParseAddr("8.8.8.8")); got != "" {
		t.Errorf("Country = %q; want empty", got)
	}
	if err := g.Reload(); err != nil {
		t.Errorf("Reload: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpen_Failures(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "bad.mmdb")
	if err := os.WriteFile(corrupt, []byte("not a maxmind database"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"missing", filepath.Join(dir, "missing.mmdb"), "not found"},
		{"corrupt", corrupt, "open geoip database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Open(tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Open error = %v; want %q", err, tt.wantErr)
			}
			if g == nil || g.Enabled() {
				t.Error("failed open should yield a disabled lookup")
			}
			if got := g.Country(netip.MustParseAddr("8.8.8.8")); got != "" {
				t.Errorf("Country = %q; want empty", got)
			}
		})
	}
}

func TestCountry_NonPublicAndNil(t *testing.T) {
	var nilLookup *Lookup
	tests := []netip.Addr{
		{},
		netip.MustParseAddr("10.1.2.3"),
		netip.MustParseAddr("192.168.0.1"),
		netip.MustParseAddr("127.0.0.1"),
		netip.MustParseAddr("::1"),
		netip.MustParseAddr("8.8.8.8"),
	}
	for _, addr := range tests {
		if got := nilLookup.Country(addr); got != "" {
			t.Errorf("Country(%v) = %q; want empty", addr, got)
		}
	}
	if nilLookup.Enabled() {
		t.Error("nil lookup reports enabled")
	}
	if err := nilLookup.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
