// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads and validates process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
	"radnice-development-secret-change-me",
}

// Newsletter storage backends.
const (
	NewsletterBackendSQL  = "sql"
	NewsletterBackendFile = "file"
	NewsletterBackendS3   = "s3"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBDriver   string `env:"RADNICE_DB_DRIVER" envDefault:"sqlite"`
	DBPath     string `env:"RADNICE_DB_PATH" envDefault:"./data/radnice.db"`
	ServerHost string `env:"RADNICE_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"RADNICE_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"RADNICE_ENV" envDefault:"development"`
	LogLevel   string `env:"RADNICE_LOG_LEVEL" envDefault:"info"`

	// Token signing
	TokenSecret     string        `env:"RADNICE_TOKEN_SECRET,required"`
	TokenTTL        time.Duration `env:"RADNICE_TOKEN_TTL" envDefault:"8h"`
	RefreshTokenTTL time.Duration `env:"RADNICE_REFRESH_TOKEN_TTL" envDefault:"336h"`
	TokenIssuer     string        `env:"RADNICE_TOKEN_ISSUER" envDefault:"radnice"`
	CookieName      string        `env:"RADNICE_COOKIE_NAME" envDefault:"radnice_token"`

	// Media
	UploadsDir  string `env:"RADNICE_UPLOADS_DIR" envDefault:"./uploads"`
	UploadsURL  string `env:"RADNICE_UPLOADS_URL" envDefault:"/uploads"`
	MaxUploadMB int64  `env:"RADNICE_MAX_UPLOAD_MB" envDefault:"10"`

	// HTTP protection
	TrustedOrigins []string `env:"RADNICE_TRUSTED_ORIGINS" envSeparator:","`
	APIRateLimit   float64  `env:"RADNICE_API_RATE_LIMIT" envDefault:"20"` // Requests per second per IP
	APIRateBurst   int      `env:"RADNICE_API_RATE_BURST" envDefault:"40"`

	// Cache configuration
	RedisURL     string `env:"RADNICE_REDIS_URL"`                          // Optional Redis URL for the shared cache
	CachePrefix  string `env:"RADNICE_CACHE_PREFIX" envDefault:"radnice:"` // Redis key prefix
	CacheTTL     int    `env:"RADNICE_CACHE_TTL" envDefault:"300"`         // Default cache TTL in seconds
	CacheMaxSize int    `env:"RADNICE_CACHE_MAX_SIZE" envDefault:"10000"`  // Max memory cache entries

	// Newsletter storage
	NewsletterBackend string `env:"RADNICE_NEWSLETTER_BACKEND" envDefault:"sql"`
	DataDir           string `env:"RADNICE_DATA_DIR" envDefault:"./data"`
	S3Bucket          string `env:"RADNICE_S3_BUCKET"`
	S3Region          string `env:"RADNICE_S3_REGION" envDefault:"eu-central-1"`
	S3Endpoint        string `env:"RADNICE_S3_ENDPOINT"`
	S3AccessKey       string `env:"RADNICE_S3_ACCESS_KEY"`
	S3SecretKey       string `env:"RADNICE_S3_SECRET_KEY"`
	S3UsePathStyle    bool   `env:"RADNICE_S3_USE_PATH_STYLE" envDefault:"false"`
	S3Prefix          string `env:"RADNICE_S3_PREFIX" envDefault:"radnice/"`

	// Analytics
	GeoIPDBPath        string `env:"RADNICE_GEOIP_DB_PATH"` // Path to GeoLite2-Country.mmdb file
	AnalyticsRetention int    `env:"RADNICE_ANALYTICS_RETENTION_DAYS" envDefault:"30"`

	// Seeding configuration
	DoSeed        bool   `env:"RADNICE_DO_SEED" envDefault:"false"`
	AdminUsername string `env:"RADNICE_ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"RADNICE_ADMIN_PASSWORD"`
	AdminEmail    string `env:"RADNICE_ADMIN_EMAIL" envDefault:"admin@localhost"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if a GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// MaxUploadBytes returns the upload size cap in bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

// MinTokenSecretLength is the minimum required length for the token secret.
// HS256 keys shorter than the hash output weaken the signature.
const MinTokenSecretLength = 32

// MinAdminPasswordLength matches the password policy of user accounts.
const MinAdminPasswordLength = 8

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env.Parse cannot express.
func (c *Config) Validate() error {
	if len(c.TokenSecret) < MinTokenSecretLength {
		return fmt.Errorf("RADNICE_TOKEN_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinTokenSecretLength, len(c.TokenSecret))
	}

	for _, weak := range knownWeakSecrets {
		if c.TokenSecret == weak {
			return fmt.Errorf("RADNICE_TOKEN_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	if !hasMinimumEntropy(c.TokenSecret) {
		slog.Warn("RADNICE_TOKEN_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("RADNICE_TOKEN_TTL must be positive")
	}
	if c.RefreshTokenTTL < c.TokenTTL {
		return fmt.Errorf("RADNICE_REFRESH_TOKEN_TTL must not be shorter than RADNICE_TOKEN_TTL")
	}

	switch c.DBDriver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("RADNICE_DB_DRIVER must be sqlite or sqlite3, got %q", c.DBDriver)
	}

	switch c.NewsletterBackend {
	case NewsletterBackendSQL, NewsletterBackendFile:
	case NewsletterBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("RADNICE_S3_BUCKET is required when RADNICE_NEWSLETTER_BACKEND=s3")
		}
	default:
		return fmt.Errorf("RADNICE_NEWSLETTER_BACKEND must be one of sql, file, s3, got %q", c.NewsletterBackend)
	}

	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("RADNICE_MAX_UPLOAD_MB must be positive")
	}

	if c.DoSeed && len(c.AdminPassword) < MinAdminPasswordLength {
		return fmt.Errorf("RADNICE_ADMIN_PASSWORD must be at least %d characters when RADNICE_DO_SEED is set",
			MinAdminPasswordLength)
	}

	return nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
