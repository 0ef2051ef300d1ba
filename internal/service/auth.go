package service

// AuthService is the business logic layer for logging in:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//	                   ↘ PasswordService (bcrypt)

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/model"
	"github.com/sakif/issuedesk/internal/repository"
)

// errBadCredentials is deliberately vague: the response must not reveal
// whether the name exists.
const errBadCredentials = "invalid name or password"

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	accounts  *AccountBuilder
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	accounts *AccountBuilder,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		accounts:  accounts,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the account and the issued JWT so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	Account *model.Account
	Token   string
}

// Login verifies name and password and issues an access token.
//
// Unknown names, disabled accounts, accounts without a password and wrong
// passwords all produce the same Unauthorized error.
//
// REHASH ON LOGIN:
// When the configured bcrypt cost differs from the one in the stored hash,
// the password is rehashed while we still have the plaintext. A failed
// rehash is logged and does not fail the login.
func (s *AuthService) Login(ctx context.Context, name, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	u, err := s.users.GetUserByName(ctx, name)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(errBadCredentials)
		}
		return nil, fmt.Errorf("service: loading user %q: %w", name, err)
	}

	if !u.Enabled || u.PasswordHash == "" {
		s.logger.Info("login refused", slog.Int64("userID", u.ID), slog.Bool("enabled", u.Enabled))
		return nil, apperror.Unauthorized(errBadCredentials)
	}

	if err := s.passwords.Verify(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized(errBadCredentials)
		}
		return nil, fmt.Errorf("service: verifying password: %w", err)
	}

	if s.passwords.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, password)
	}

	token, err := s.tokens.Generate(u.ID)
	if err != nil {
		return nil, fmt.Errorf("service: issuing token: %w", err)
	}

	acct, err := s.accounts.Build(ctx, u)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated",
		slog.Int64("userID", u.ID),
		slog.String("name", u.Name),
	)

	return &AuthResult{Account: acct, Token: token}, nil
}

func (s *AuthService) rehash(ctx context.Context, u *model.User, password string) {
	hash, err := s.passwords.Hash(password)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, u.ID, hash)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", slog.Int64("userID", u.ID), slog.String("error", err.Error()))
		return
	}
	u.PasswordHash = hash
}
