// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip resolves visitor addresses to ISO country codes from a
// MaxMind GeoLite2-Country database.
package geoip

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"

	"github.com/olegiv/radnice/internal/util"
)

// Lookup answers country queries. A nil Lookup, or one opened without a
// path, is disabled and answers "" for every address.
type Lookup struct {
	path string

	mu      sync.RWMutex
	reader  *maxminddb.Reader
	modTime time.Time
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// Open loads the database at path. On error the returned Lookup is still
// usable but disabled, so callers may log and carry on.
func Open(path string) (*Lookup, error) {
	g := &Lookup{path: path}
	if path == "" {
		return g, nil
	}
	return g, g.Reload()
}

// Reload swaps in the database file when its modification time changed.
// A failed reload leaves the current reader in place.
func (g *Lookup) Reload() error {
	if g.path == "" {
		return nil
	}

	info, err := os.Stat(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("geoip database not found: %s", g.path)
	}
	if err != nil {
		return fmt.Errorf("stat geoip database: %w", err)
	}

	g.mu.RLock()
	fresh := g.reader != nil && info.ModTime().Equal(g.modTime)
	g.mu.RUnlock()
	if fresh {
		return nil
	}

	reader, err := maxminddb.Open(g.path)
	if err != nil {
		return fmt.Errorf("open geoip database: %w", err)
	}

	g.mu.Lock()
	old := g.reader
	g.reader, g.modTime = reader, info.ModTime()
	g.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Country returns the ISO 3166 alpha-2 code for addr. Non-public
// addresses and misses yield "".
func (g *Lookup) Country(addr netip.Addr) string {
	if g == nil || util.IsPrivateIP(addr) {
		return ""
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.reader == nil {
		return ""
	}

	var rec countryRecord
	if err := g.reader.Lookup(net.IP(addr.AsSlice()), &rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

// Enabled reports whether a database is loaded.
func (g *Lookup) Enabled() bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.reader != nil
}

// Close releases the database. The Lookup is disabled afterwards.
func (g *Lookup) Close() error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	reader := g.reader
	g.reader = nil
	g.mu.Unlock()

	if reader == nil {
		return nil
	}
	return reader.Close()
}
