// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → authorizes, validates, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain Go values and a model.Caller, never *http.Request,
// and return *apperror.AppError values that the handler maps to statuses.
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  DB → Repository → Service → Handler
//	At runtime:       Handler calls Service calls Repository calls DB
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/issuedesk/internal/access"
	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/model"
	"github.com/sakif/issuedesk/internal/repository"
	"github.com/sakif/issuedesk/internal/validation"
)

// UserService implements the user resource lifecycle.
//
// ORDERING RULE (every operation):
//  1. Shape of the identifier (id <= 0, self-delete) → BadRequest
//  2. Identity and privilege                       → Unauthorized / Forbidden
//  3. Existence                                    → NotFound
//
// Reads are the one place existence could leak: an unidentified caller
// asking for a missing id still gets Unauthorized, never NotFound.
type UserService struct {
	users       repository.UserRepository
	accounts    *AccountBuilder
	memberships *MembershipAssigner
	policy      *access.Policy
	tiers       *access.Registry
	validator   *validation.UserValidator
	passwords   *auth.PasswordService
	logger      *slog.Logger
}

// NewUserService creates a UserService. All dependencies are injected; the
// service constructs nothing itself.
func NewUserService(
	users repository.UserRepository,
	accounts *AccountBuilder,
	memberships *MembershipAssigner,
	policy *access.Policy,
	tiers *access.Registry,
	validator *validation.UserValidator,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:       users,
		accounts:    accounts,
		memberships: memberships,
		policy:      policy,
		tiers:       tiers,
		validator:   validator,
		passwords:   passwords,
		logger:      logger,
	}
}

// GetCurrentUser returns the caller's own account.
func (s *UserService) GetCurrentUser(ctx context.Context, caller model.Caller) (*model.Account, error) {
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}
	return s.accounts.Build(ctx, caller.User)
}

// CanCreate runs the identity and privilege steps of CreateUser alone, so
// a transport can refuse the caller before it reads the request body.
func (s *UserService) CanCreate(caller model.Caller) error {
	return s.policy.Authorize(caller, access.OpCreateUser, nil)
}

// CreateUser validates and stores a new account, then enrolls it in the
// default project.
//
// PIPELINE:
//
//	identity → privilege → validation → grant check → uniqueness → hash →
//	insert → membership
//
// If the membership step fails the fresh row is deleted again, so a user
// never exists without a project.
func (s *UserService) CreateUser(ctx context.Context, caller model.Caller, in model.NewUser) (*model.Account, error) {
	if err := s.CanCreate(caller); err != nil {
		return nil, err
	}

	candidate, err := s.validator.Validate(in)
	if err != nil {
		return nil, err
	}

	if err := s.policy.CanGrant(caller, candidate.Tier); err != nil {
		return nil, err
	}

	u, err := s.insert(ctx, candidate)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created",
		slog.Int64("userID", u.ID),
		slog.String("name", u.Name),
		slog.Int64("by", caller.ID()),
	)

	return s.accounts.Build(ctx, u)
}

// GetUser returns the account with the given id.
func (s *UserService) GetUser(ctx context.Context, caller model.Caller, id int64) (*model.Account, error) {
	if id <= 0 {
		return nil, invalidID(id)
	}
	if err := s.policy.Authenticate(caller); err != nil {
		return nil, err
	}

	target, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.policy.Authorize(caller, access.OpReadUser, target); err != nil {
		return nil, err
	}

	return s.accounts.Build(ctx, target)
}

// DeleteUser removes the account with the given id.
//
// IDEMPOTENT:
// Deleting an id that does not exist succeeds, provided the caller would be
// allowed to delete an ordinary account.
//
// SELF-DELETE:
// Rejected as a bad request before authentication is even looked at. This
// holds for the anonymous account too.
func (s *UserService) DeleteUser(ctx context.Context, caller model.Caller, id int64) error {
	if id <= 0 {
		return invalidID(id)
	}
	if caller.HasIdentity() && id == caller.ID() {
		return apperror.ValidationFailed("id", "you cannot delete your own account")
	}
	if err := s.policy.Authenticate(caller); err != nil {
		return err
	}

	target, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("service: loading user %d: %w", id, err)
		}
		target = nil
	}

	if err := s.policy.Authorize(caller, access.OpDeleteUser, target); err != nil {
		return err
	}

	if target == nil {
		s.logger.Debug("delete of missing user", slog.Int64("userID", id))
		return nil
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("service: deleting user %d: %w", id, err)
	}

	s.logger.Info("user deleted",
		slog.Int64("userID", id),
		slog.String("name", target.Name),
		slog.Int64("by", caller.ID()),
	)
	return nil
}

// EnsureAdministrator creates a protected account with the most privileged
// tier if, and only if, the store has no users yet. It reports whether an
// account was created.
func (s *UserService) EnsureAdministrator(ctx context.Context, name, password string) (bool, error) {
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("service: counting users: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	tiers := s.tiers.Tiers()
	top := tiers[len(tiers)-1]
	protected := true

	candidate, err := s.validator.Validate(model.NewUser{
		Name:        name,
		Password:    password,
		AccessLevel: &model.AccessLevelRef{ID: top.ID},
		Protected:   &protected,
	})
	if err != nil {
		return false, fmt.Errorf("service: bootstrap administrator: %w", err)
	}

	u, err := s.insert(ctx, candidate)
	if err != nil {
		// Another instance bootstrapped first.
		if errors.Is(err, apperror.ErrConflict) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("bootstrapped administrator",
		slog.Int64("userID", u.ID),
		slog.String("name", u.Name),
		slog.String("accessLevel", top.Name),
	)
	return true, nil
}

// insert runs the write half of creation: uniqueness, hashing, the insert
// and the default membership.
func (s *UserService) insert(ctx context.Context, c *validation.Candidate) (*model.User, error) {
	// Fast path only. The UNIQUE index in the store is the real guard
	// against two concurrent creates.
	exists, err := s.users.UserExistsByName(ctx, c.Name)
	if err != nil {
		return nil, fmt.Errorf("service: checking name: %w", err)
	}
	if exists {
		return nil, apperror.Conflict("user", "name", c.Name)
	}

	// An empty password leaves the hash empty, which Login always rejects.
	var hash string
	if c.Password != "" {
		hash, err = s.passwords.Hash(c.Password)
		if err != nil {
			return nil, fmt.Errorf("service: hashing password: %w", err)
		}
	}

	u := &model.User{
		Name:         c.Name,
		RealName:     c.RealName,
		Email:        c.Email,
		PasswordHash: hash,
		AccessLevel:  c.Tier.ID,
		Language:     c.Language,
		Timezone:     c.Timezone,
		Enabled:      c.Enabled,
		Protected:    c.Protected,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	if err := s.memberships.AssignDefault(ctx, u.ID, u.AccessLevel); err != nil {
		if delErr := s.users.DeleteUser(ctx, u.ID); delErr != nil {
			s.logger.Error("rolling back user without project",
				slog.Int64("userID", u.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}

	return u, nil
}

func invalidID(id int64) error {
	return apperror.ValidationFailed("id", fmt.Sprintf("invalid user id %d", id))
}
