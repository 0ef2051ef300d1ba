package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/model"
	"github.com/sakif/issuedesk/internal/service"
)

// Authenticator is the subset of service.AuthService the handler needs.
type Authenticator interface {
	Login(ctx context.Context, name, password string) (*service.AuthResult, error)
}

// AuthHandler manages password login and logout.
//
// A successful login returns the token in the body for API clients and also
// sets it as an HttpOnly cookie for browsers. auth.Resolver accepts either.
type AuthHandler struct {
	auth          Authenticator
	ttl           time.Duration
	secureCookies bool
	logger        *slog.Logger
}

// NewAuthHandler creates an AuthHandler. ttl must match the token lifetime
// so the cookie expires together with the token it carries.
func NewAuthHandler(authn Authenticator, ttl time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:          authn,
		ttl:           ttl,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string         `json:"token"`
	User  *model.Account `json:"user"`
}

// HandleLogin verifies credentials and issues a token.
//
// HTTP: POST /api/rest/auth/login
// REQUEST BODY: {"name": "administrator", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			h.logger.Error("login failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	h.setTokenCookie(w, result.Token, int(h.ttl.Seconds()))
	writeJSON(w, http.StatusOK, loginResponse{Token: result.Token, User: result.Account})
}

// HandleLogout clears the token cookie.
//
// HTTP: POST /api/rest/auth/logout
//
// Tokens are stateless, so a bearer token stays valid until it expires;
// logout only removes the browser's copy.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	h.setTokenCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
