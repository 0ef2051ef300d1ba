package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/model"
)

// UserService is the subset of service.UserService the handler needs.
// Declaring it here lets tests substitute a fake.
type UserService interface {
	GetCurrentUser(ctx context.Context, caller model.Caller) (*model.Account, error)
	CanCreate(caller model.Caller) error
	CreateUser(ctx context.Context, caller model.Caller, in model.NewUser) (*model.Account, error)
	GetUser(ctx context.Context, caller model.Caller, id int64) (*model.Account, error)
	DeleteUser(ctx context.Context, caller model.Caller, id int64) error
}

// UserHandler serves the /users resource.
//
// The caller is resolved by auth.Identify before any of these run; handlers
// only translate between HTTP and the service.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
}

func NewUserHandler(users UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// createResponse wraps the created account: {"user": {...}}.
type createResponse struct {
	User *model.Account `json:"user"`
}

// HandleMe returns the caller's own account.
//
// HTTP: GET /api/rest/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	acct, err := h.users.GetCurrentUser(r.Context(), auth.CallerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// HandleCreate creates a user.
//
// HTTP: POST /api/rest/users
// REQUEST BODY:
//
//	{"name": "vboctor", "email": "vboctor@example.com", "password": "...",
//	 "access_level": {"name": "updater"}, "enabled": true}
//
// Only name is required. Responds 201 with {"user": account}. Callers that
// may not create users get 401 or 403 whatever the body holds.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())

	// Identity and privilege are settled before the body is looked at.
	if err := h.users.CanCreate(caller); err != nil {
		writeError(w, err)
		return
	}

	var in model.NewUser
	if err := decodeJSON(w, r, &in); err != nil {
		h.logger.Debug("invalid create-user body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	acct, err := h.users.CreateUser(r.Context(), caller, in)
	if err != nil {
		h.logError(r, "create user failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{User: acct})
}

// HandleGet returns one user by id.
//
// HTTP: GET /api/rest/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	id, err := parseUserID(chi.URLParam(r, "id"), caller)
	if err != nil {
		writeError(w, err)
		return
	}

	acct, err := h.users.GetUser(r.Context(), caller, id)
	if err != nil {
		h.logError(r, "get user failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// HandleDelete deletes a user by id. Deleting an id that no longer exists
// succeeds, so retries are safe.
//
// HTTP: DELETE /api/rest/users/{id}
// Responds 204 with no body.
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	id, err := parseUserID(chi.URLParam(r, "id"), caller)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.DeleteUser(r.Context(), caller, id); err != nil {
		h.logError(r, "delete user failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseUserID accepts a decimal id or "me". "me" needs an identified caller.
// Range checks (id <= 0) are left to the service.
func parseUserID(raw string, caller model.Caller) (int64, error) {
	if strings.EqualFold(raw, "me") {
		if !caller.HasIdentity() {
			return 0, apperror.Unauthorized("authentication required")
		}
		return caller.ID(), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("id", "user id must be a number")
	}
	return id, nil
}

// logError logs unexpected failures. Client errors are routine and only
// reach the request log.
func (h *UserHandler) logError(r *http.Request, msg string, err error) {
	if apperror.KindOf(err) != apperror.KindInternal {
		return
	}
	h.logger.Error(msg,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
