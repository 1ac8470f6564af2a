// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for every verification failure: expired,
// malformed, forged, revoked or of the wrong type.
var ErrInvalidToken = errors.New("invalid or expired token")

// Token types carried in the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 8 * time.Hour
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// Principal is the authenticated identity carried by a token. TokenVersion
// changes on a password reset, voiding tokens issued before it.
type Principal struct {
	UserID       int64  `json:"id"`
	Username     string `json:"username"`
	Role         string `json:"role"`
	TokenVersion int64  `json:"-"`
}

// Claims is the signed token payload.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     string `json:"typ"`
	Version  int64  `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts the claims back into the identity they were issued for.
func (c *Claims) Principal() (Principal, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: id, Username: c.Username, Role: c.Role, TokenVersion: c.Version}, nil
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"token"`
	AccessExpiresAt  time.Time `json:"expiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// TokenConfig configures a TokenManager.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Revoker is optional; when set, revoked token ids fail verification.
	Revoker *Revoker
}

// TokenManager issues and verifies HS256-signed tokens.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoker    *Revoker
	now        func() time.Time
}

// NewTokenManager creates a token manager. The secret must not be empty.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &TokenManager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		revoker:    cfg.Revoker,
		now:        time.Now,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// Issue signs a fresh access and refresh token for p.
func (m *TokenManager) Issue(p Principal) (*TokenPair, error) {
	access, accessExp, err := m.sign(p, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := m.sign(p, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (m *TokenManager) sign(p Principal, typ string, ttl time.Duration) (string, time.Time, error) {
	now := m.now().Truncate(time.Second)
	exp := now.Add(ttl)

	claims := Claims{
		Username: p.Username,
		Role:     p.Role,
		Type:     typ,
		Version:  p.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, exp, nil
}

// VerifyAccess validates an access token and returns its claims.
func (m *TokenManager) VerifyAccess(ctx context.Context, token string) (*Claims, error) {
	return m.verify(ctx, token, TokenTypeAccess)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (m *TokenManager) VerifyRefresh(ctx context.Context, token string) (*Claims, error) {
	return m.verify(ctx, token, TokenTypeRefresh)
}

func (m *TokenManager) verify(ctx context.Context, token, typ string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if _, err := claims.Principal(); err != nil {
		return nil, ErrInvalidToken
	}

	if m.revoker != nil {
		revoked, err := m.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			slog.Warn("token revocation check failed", "error", err)
			return nil, ErrInvalidToken
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}

	return claims, nil
}

// Revoke adds the token id to the denylist until the token would have expired.
func (m *TokenManager) Revoke(ctx context.Context, claims *Claims) error {
	if m.revoker == nil || claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return m.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Sub(m.now()))
}
