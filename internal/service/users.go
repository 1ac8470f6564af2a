// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/olegiv/radnice/internal/auth"
	"github.com/olegiv/radnice/internal/store"
	"github.com/olegiv/radnice/internal/util"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown user,
// an inactive user or a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Password length bounds.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,50}$`)

// User is the API view of a back-office account.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	tokenVersion int64
}

// Principal returns the identity tokens are issued for.
func (u User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Username: u.Username, Role: u.Role, TokenVersion: u.tokenVersion}
}

// UserInput is the body of a user create.
type UserInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	IsActive *bool  `json:"isActive"`
}

// UserPatch carries only the keys a client supplied. Password resets the
// account password.
type UserPatch struct {
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
	Password *string `json:"password"`
}

func userFromRow(u store.User) User {
	return User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: util.TimePtr(u.LastLoginAt),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,

		tokenVersion: u.TokenVersion,
	}
}

// UserService manages accounts and checks credentials.
type UserService struct {
	queries *store.Queries
	logger  *slog.Logger
	now     func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		queries: store.New(db),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// equalizeTiming burns the same work as a real password check so unknown
// usernames cannot be told apart by response time.
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = auth.HashPassword("radnice-timing-equalizer")
	})
	_ = auth.CheckPassword(password, dummyHash)
}

// Authenticate checks a username and password. On success it records the
// login and upgrades an outdated password hash.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	row, err := s.queries.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		equalizeTiming(password)
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("loading user: %w", err)
	}

	if !auth.CheckPassword(password, row.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}
	if !row.IsActive {
		return User{}, ErrInvalidCredentials
	}

	now := s.now()
	if auth.NeedsRehash(row.PasswordHash) {
		if hash, err := auth.HashPassword(password); err == nil {
			if err := s.queries.UpdateUserPassword(ctx, hash, now, row.ID); err != nil {
				s.logger.Warn("failed to upgrade password hash", "user_id", row.ID, "error", err)
			}
		}
	}
	if err := s.queries.UpdateUserLastLogin(ctx, now, row.ID); err != nil {
		s.logger.Warn("failed to record last login", "user_id", row.ID, "error", err)
	} else {
		row.LastLoginAt = sql.NullTime{Time: now, Valid: true}
	}

	return userFromRow(row), nil
}

// ActivePrincipal returns the identity of an existing, active user. A
// missing or inactive user is reported as ErrNotFound wrapping
// auth.ErrInvalidToken; other errors are storage failures.
func (s *UserService) ActivePrincipal(ctx context.Context, id int64) (auth.Principal, error) {
	u, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return auth.Principal{}, fmt.Errorf("%w: %w", err, auth.ErrInvalidToken)
	}
	if err != nil {
		return auth.Principal{}, err
	}
	if !u.IsActive {
		return auth.Principal{}, fmt.Errorf("user %d is inactive: %w: %w", id, ErrNotFound, auth.ErrInvalidToken)
	}
	return u.Principal(), nil
}

// List returns every account ordered by username.
func (s *UserService) List(ctx context.Context) ([]User, error) {
	rows, err := s.queries.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		out = append(out, userFromRow(r))
	}
	return out, nil
}

// Get returns the user with id.
func (s *UserService) Get(ctx context.Context, id int64) (User, error) {
	row, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		return User{}, notFound(err, "user")
	}
	return userFromRow(row), nil
}

// Create validates and stores a new account.
func (s *UserService) Create(ctx context.Context, in UserInput) (User, error) {
	verr := NewValidationError()

	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		verr.Add("username", "must be 3-50 letters, digits, dots, dashes or underscores")
	}
	email := validateUserEmail(in.Email, verr)
	validatePassword(in.Password, verr)

	role := in.Role
	if role == "" {
		role = auth.RoleViewer
	}
	if !auth.IsValidRole(role) {
		verr.Add("role", "must be admin, editor or viewer")
	}

	if err := verr.OrNil(); err != nil {
		return User{}, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := s.now()
	row, err := s.queries.CreateUser(ctx, store.CreateUserParams{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, &ConflictError{Resource: "user", Message: fmt.Sprintf("username %q is already taken", username)}
		}
		return User{}, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created", "user_id", row.ID, "username", row.Username, "role", row.Role)
	return userFromRow(row), nil
}

// Update applies patch to the user with id. Accounts are deactivated
// rather than deleted. The last active admin cannot be demoted or
// deactivated.
func (s *UserService) Update(ctx context.Context, id int64, patch UserPatch) (User, error) {
	current, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		return User{}, notFound(err, "user")
	}

	verr := NewValidationError()
	email := current.Email
	if patch.Email != nil {
		email = validateUserEmail(*patch.Email, verr)
	}
	role := current.Role
	if patch.Role != nil {
		role = *patch.Role
		if !auth.IsValidRole(role) {
			verr.Add("role", "must be admin, editor or viewer")
		}
	}
	active := current.IsActive
	if patch.IsActive != nil {
		active = *patch.IsActive
	}
	if patch.Password != nil {
		validatePassword(*patch.Password, verr)
	}
	if err := verr.OrNil(); err != nil {
		return User{}, err
	}

	losingAdmin := current.Role == auth.RoleAdmin && current.IsActive && (role != auth.RoleAdmin || !active)
	if losingAdmin {
		admins, err := s.countActiveAdmins(ctx)
		if err != nil {
			return User{}, err
		}
		if admins <= 1 {
			return User{}, &ConflictError{Resource: "user", Message: "cannot demote or deactivate the last active admin"}
		}
	}

	now := s.now()
	row, err := s.queries.UpdateUser(ctx, store.UpdateUserParams{
		Email:     email,
		Role:      role,
		IsActive:  active,
		UpdatedAt: now,
		ID:        id,
	})
	if err != nil {
		return User{}, notFound(err, "user")
	}

	if patch.Password != nil {
		hash, err := auth.HashPassword(*patch.Password)
		if err != nil {
			return User{}, fmt.Errorf("hashing password: %w", err)
		}
		if err := s.queries.ResetUserPassword(ctx, hash, now, id); err != nil {
			return User{}, fmt.Errorf("resetting password: %w", err)
		}
		row.TokenVersion++
		s.logger.Info("user password reset", "user_id", id)
	}

	if current.IsActive && !active {
		s.logger.Info("user deactivated", "user_id", id, "username", row.Username)
	}
	return userFromRow(row), nil
}

func (s *UserService) countActiveAdmins(ctx context.Context) (int, error) {
	rows, err := s.queries.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}
	n := 0
	for _, u := range rows {
		if u.IsActive && u.Role == auth.RoleAdmin {
			n++
		}
	}
	return n, nil
}

// validateUserEmail allows an empty address.
func validateUserEmail(raw string, verr *ValidationError) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	email, err := NormalizeEmail(raw)
	if err != nil {
		verr.Add("email", "must be a valid email address")
	}
	return email
}

func validatePassword(password string, verr *ValidationError) {
	switch n := len(password); {
	case n < MinPasswordLength:
		verr.Add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	case n > MaxPasswordLength:
		verr.Add("password", fmt.Sprintf("must be at most %d characters", MaxPasswordLength))
	}
}
