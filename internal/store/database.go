// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store provides the SQLite persistence layer: connection setup,
// embedded goose migrations and typed queries.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
	_ "modernc.org/sqlite"          // registers "sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // pure Go, the default
	DriverCgo     = "sqlite3" // mattn/go-sqlite3, needs cgo
)

// busyTimeoutMS is how long a connection waits on the write lock.
const busyTimeoutMS = 5000

// DBConfig configures NewDBWithConfig.
type DBConfig struct {
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultDBConfig returns pool settings for a WAL-mode SQLite file.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		Driver:          DriverModernc,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewDB opens path with DefaultDBConfig.
func NewDB(path string) (*sql.DB, error) {
	return NewDBWithConfig(path, DefaultDBConfig())
}

// NewDBWithConfig opens path with cfg. Every pooled connection gets WAL
// journaling, foreign keys and a busy timeout through the DSN.
func NewDBWithConfig(path string, cfg DBConfig) (*sql.DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	dsn, err := dataSourceName(cfg.Driver, path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// dataSourceName spells the connection settings in each driver's syntax.
func dataSourceName(driver, path string) (string, error) {
	q := url.Values{}
	switch driver {
	case DriverModernc:
		for _, p := range []string{
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(1)",
			fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS),
			"temp_store(MEMORY)",
		} {
			q.Add("_pragma", p)
		}
		q.Set("_time_format", "sqlite")
	case DriverCgo:
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
		q.Set("_foreign_keys", "on")
		q.Set("_busy_timeout", fmt.Sprint(busyTimeoutMS))
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode(), nil
}

// Migrate applies pending migrations and returns how many ran.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	dir, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, dir)
	if err != nil {
		return 0, fmt.Errorf("loading migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return len(results), fmt.Errorf("running migrations: %w", err)
	}
	return len(results), nil
}
