// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/olegiv/radnice/internal/cache"
)

const testSecret = "Test-Secret-Key-32-Bytes-Long!!!"

func newTestManager(t *testing.T, revoker *Revoker) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(TokenConfig{
		Secret:  testSecret,
		Issuer:  "radnice",
		Revoker: revoker,
	})
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	return m
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	if _, err := NewTokenManager(TokenConfig{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestIssueAndVerify_RoundTrip(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	want := Principal{UserID: 42, Username: "starosta", Role: "admin"}

	pair, err := m.Issue(want)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Error("access and refresh tokens must differ")
	}
	if d := pair.AccessExpiresAt.Sub(time.Now()); d < 7*time.Hour || d > 8*time.Hour {
		t.Errorf("access expiry in %v, want ~8h", d)
	}

	claims, err := m.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	got, err := claims.Principal()
	if err != nil {
		t.Fatalf("Principal: %v", err)
	}
	if got != want {
		t.Errorf("Principal = %+v, want %+v", got, want)
	}

	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); err != nil {
		t.Errorf("VerifyRefresh: %v", err)
	}
}

func TestVerify_WrongType(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	pair, _ := m.Issue(Principal{UserID: 1, Username: "u", Role: "viewer"})

	if _, err := m.VerifyAccess(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token accepted as access: %v", err)
	}
	if _, err := m.VerifyRefresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token accepted as refresh: %v", err)
	}
}

func TestVerify_FailuresAreIndistinguishable(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	p := Principal{UserID: 7, Username: "editor", Role: "editor"}

	expired := newTestManager(t, nil)
	expired.now = func() time.Time { return time.Now().Add(-9 * time.Hour) }
	expiredPair, _ := expired.Issue(p)

	otherKey, _ := NewTokenManager(TokenConfig{Secret: "Another-Secret-Key-32-Bytes-Long!", Issuer: "radnice"})
	forgedPair, _ := otherKey.Issue(p)

	otherIssuer, _ := NewTokenManager(TokenConfig{Secret: testSecret, Issuer: "elsewhere"})
	issuerPair, _ := otherIssuer.Issue(p)

	valid, _ := m.Issue(p)
	parts := strings.Split(valid.AccessToken, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Username: "x", Role: "admin", Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			Issuer:    "radnice",
			ID:        "abc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"empty":         "",
		"garbage":       "not-a-token",
		"expired":       expiredPair.AccessToken,
		"wrong key":     forgedPair.AccessToken,
		"wrong issuer":  issuerPair.AccessToken,
		"tampered":      tampered,
		"alg none":      noneToken,
		"three dots":    "a.b.c",
		"refresh token": valid.RefreshToken,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			claims, err := m.VerifyAccess(ctx, token)
			if err != ErrInvalidToken {
				t.Errorf("err = %v, want exactly ErrInvalidToken", err)
			}
			if claims != nil {
				t.Error("claims must be nil on failure")
			}
		})
	}
}

func TestVerify_BadSubject(t *testing.T) {
	m := newTestManager(t, nil)
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "admin", Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "radnice",
			ID:        "abc",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))

	if _, err := m.VerifyAccess(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("non-numeric subject accepted: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	mem := cache.NewMemoryCache(cache.MemoryCacheOptions{})
	defer func() { _ = mem.Close() }()

	m := newTestManager(t, NewRevoker(mem))
	ctx := context.Background()

	pair, _ := m.Issue(Principal{UserID: 3, Username: "viewer", Role: "viewer"})
	claims, err := m.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}

	if err := m.Revoke(ctx, claims); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := m.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("revoked token still valid: %v", err)
	}
	if _, err := m.VerifyRefresh(ctx, pair.RefreshToken); err != nil {
		t.Errorf("refresh token should be unaffected: %v", err)
	}
}

func TestRevoke_ClosedCacheFailsClosed(t *testing.T) {
	mem := cache.NewMemoryCache(cache.MemoryCacheOptions{})
	m := newTestManager(t, NewRevoker(mem))

	pair, _ := m.Issue(Principal{UserID: 3, Username: "viewer", Role: "viewer"})
	_ = mem.Close()

	if _, err := m.VerifyAccess(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken when denylist is unavailable", err)
	}
}

func TestRevoker_IgnoresExpired(t *testing.T) {
	mem := cache.NewMemoryCache(cache.MemoryCacheOptions{})
	defer func() { _ = mem.Close() }()
	r := NewRevoker(mem)
	ctx := context.Background()

	if err := r.Revoke(ctx, "old", -time.Second); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	revoked, err := r.IsRevoked(ctx, "old")
	if err != nil || revoked {
		t.Errorf("IsRevoked = %v, %v; want false, nil", revoked, err)
	}
}
