package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/model"
)

// TokenCookie is the name of the HttpOnly cookie carrying the access token.
const TokenCookie = "token"

// UserLookup is the part of the user store the resolver needs.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByName(ctx context.Context, name string) (*model.User, error)
}

// Resolver turns request credentials into a model.Caller.
//
// RESOLUTION RULES:
//   - A valid token whose user exists and is enabled → that user
//   - A token that is present but invalid → nobody (no anonymous fallback,
//     a bad credential is never silently downgraded)
//   - No token at all and an anonymous account configured → the anonymous
//     account, marked Anonymous
//   - Anything else → nobody
//
// The resolver never fails a request itself. Whether "nobody" is acceptable
// is the access policy's call.
type Resolver struct {
	tokens           *TokenService
	users            UserLookup
	anonymousAccount string
	logger           *slog.Logger
}

// NewResolver creates a Resolver. anonymousAccount may be empty.
func NewResolver(tokens *TokenService, users UserLookup, anonymousAccount string, logger *slog.Logger) *Resolver {
	return &Resolver{
		tokens:           tokens,
		users:            users,
		anonymousAccount: anonymousAccount,
		logger:           logger,
	}
}

// Resolve identifies the caller of r.
func (res *Resolver) Resolve(r *http.Request) model.Caller {
	ctx := r.Context()

	raw := TokenFromRequest(r)
	if raw == "" {
		return res.anonymous(ctx)
	}

	userID, err := res.tokens.Validate(raw)
	if err != nil {
		res.logger.Debug("rejected token", slog.String("error", err.Error()))
		return model.Nobody
	}

	u, err := res.users.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			res.logger.Error("resolving caller", slog.Int64("userID", userID), slog.String("error", err.Error()))
		}
		return model.Nobody
	}
	if !u.Enabled {
		return model.Nobody
	}

	return model.Caller{User: u}
}

func (res *Resolver) anonymous(ctx context.Context) model.Caller {
	if res.anonymousAccount == "" {
		return model.Nobody
	}

	u, err := res.users.GetUserByName(ctx, res.anonymousAccount)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			res.logger.Warn("anonymous account does not exist", slog.String("name", res.anonymousAccount))
		} else {
			res.logger.Error("loading anonymous account", slog.String("error", err.Error()))
		}
		return model.Nobody
	}
	if !u.Enabled {
		return model.Nobody
	}

	return model.Caller{User: u, Anonymous: true}
}

// TokenFromRequest extracts the raw token. The Authorization header wins
// over the cookie so API clients can act independently of a browser session.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	// http.ErrNoCookie just means no cookie, which is the anonymous case.
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}
