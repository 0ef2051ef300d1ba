package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/config"
	sqliteRepo "github.com/sakif/issuedesk/internal/repository/sqlite"
)

const adminPassword = "root-password"

type testOption func(*config.Config)

// newTestServer wires the real stack over an in-memory database with a
// bootstrapped administrator.
func newTestServer(t *testing.T, opts ...testOption) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = sqliteRepo.MemoryPath
	cfg.Auth.JWTSecret = "end-to-end-secret-0123456789"
	cfg.Auth.BcryptCost = 4
	cfg.Bootstrap.AdminPassword = adminPassword
	for _, o := range opts {
		o(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv
}

type request struct {
	method, path, token, body string
	cookie                    bool
}

func (s *Server) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.token != "" {
		if req.cookie {
			r.AddCookie(&http.Cookie{Name: auth.TokenCookie, Value: req.token})
		} else {
			r.Header.Set("Authorization", "Bearer "+req.token)
		}
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, r)
	return rec
}

func (s *Server) login(t *testing.T, name, password string) string {
	t.Helper()
	rec := s.do(t, request{
		method: http.MethodPost,
		path:   APIPrefix + "/auth/login",
		body:   `{"name":"` + name + `","password":"` + password + `"}`,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.NotEmpty(t, got.Token)
	return got.Token
}

// account is the decoded wire shape of a user.
type account struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Language    string `json:"language"`
	Timezone    string `json:"timezone"`
	Enabled     bool   `json:"enabled"`
	Protected   bool   `json:"protected"`
	AccessLevel struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"access_level"`
	Projects []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"projects"`
}

func decodeAccount(t *testing.T, rec *httptest.ResponseRecorder) account {
	t.Helper()
	var a account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&a))
	return a
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	return m
}

func createUser(t *testing.T, s *Server, token, body string) account {
	t.Helper()
	rec := s.do(t, request{method: http.MethodPost, path: APIPrefix + "/users", token: token, body: body})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got struct {
		User account `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	return got.User
}

// =========================================================================
// SCENARIOS
// =========================================================================

func TestAPI_AdministratorLifecycle(t *testing.T) {
	s := newTestServer(t)

	// No credentials.
	rec := s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	admin := s.login(t, "administrator", adminPassword)

	rec = s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/me", token: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeAccount(t, rec)
	assert.Equal(t, "administrator", me.Name)
	assert.Equal(t, "administrator", me.AccessLevel.Name)
	assert.True(t, me.Protected)
	require.Len(t, me.Projects, 1)
	assert.Equal(t, "Default Project", me.Projects[0].Name)

	// Create with defaults.
	u := createUser(t, s, admin, `{"name":"vboctor","email":"vboctor@example.com","password":"secret"}`)
	assert.Positive(t, u.ID)
	assert.Equal(t, "reporter", u.AccessLevel.Name)
	assert.Equal(t, 25, u.AccessLevel.ID)
	assert.Equal(t, "english", u.Language)
	assert.Equal(t, "America/Los_Angeles", u.Timezone)
	assert.True(t, u.Enabled)
	assert.False(t, u.Protected)
	require.Len(t, u.Projects, 1)

	// Duplicate name is a plain bad request.
	rec = s.do(t, request{method: http.MethodPost, path: APIPrefix + "/users", token: admin, body: `{"name":"vboctor"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "conflict", errorBody(t, rec)["error"])

	// Invalid email names the field.
	rec = s.do(t, request{method: http.MethodPost, path: APIPrefix + "/users", token: admin, body: `{"name":"other","email":"nope"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", errorBody(t, rec)["field"])

	// Read it back.
	rec = s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/" + itoa(u.ID), token: admin})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vboctor@example.com", decodeAccount(t, rec).Email)

	// Delete, then delete again.
	rec = s.do(t, request{method: http.MethodDelete, path: APIPrefix + "/users/" + itoa(u.ID), token: admin})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/" + itoa(u.ID), token: admin})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, request{method: http.MethodDelete, path: APIPrefix + "/users/" + itoa(u.ID), token: admin})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPI_IdentifierShapes(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "administrator", adminPassword)

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/users/0", http.StatusBadRequest},
		{http.MethodGet, "/users/-4", http.StatusBadRequest},
		{http.MethodGet, "/users/abc", http.StatusBadRequest},
		{http.MethodGet, "/users/9999", http.StatusNotFound},
		{http.MethodDelete, "/users/0", http.StatusBadRequest},
		{http.MethodDelete, "/users/me", http.StatusBadRequest},
		{http.MethodDelete, "/users/1", http.StatusBadRequest}, // administrator is id 1
	}
	for _, tt := range tests {
		rec := s.do(t, request{method: tt.method, path: APIPrefix + tt.path, token: admin})
		assert.Equal(t, tt.status, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestAPI_UnprivilegedCaller(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "administrator", adminPassword)

	u := createUser(t, s, admin, `{"name":"reporter1","password":"pw"}`)
	token := s.login(t, "reporter1", "pw")

	rec := s.do(t, request{method: http.MethodPost, path: APIPrefix + "/users", token: token, body: `{"name":"x"}`})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/1", token: token})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, request{method: http.MethodDelete, path: APIPrefix + "/users/1", token: token})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Own record is always readable.
	rec = s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/" + itoa(u.ID), token: token})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_CreateRefusesCallerBeforeReadingBody(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "administrator", adminPassword)
	createUser(t, s, admin, `{"name":"reporter2","password":"pw"}`)
	reporter := s.login(t, "reporter2", "pw")

	for _, body := range []string{`{"name":1234}`, `not json`, ``} {
		rec := s.do(t, request{method: http.MethodPost, path: APIPrefix + "/users", body: body})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "anonymous, body %q", body)

		rec = s.do(t, request{method: http.MethodPost, path: APIPrefix + "/users", token: reporter, body: body})
		assert.Equal(t, http.StatusForbidden, rec.Code, "reporter, body %q", body)
	}

	// A privileged caller sees the body problem itself.
	rec := s.do(t, request{method: http.MethodPost, path: APIPrefix + "/users", token: admin, body: `{"name":1234}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", errorBody(t, rec)["field"])
}

func TestAPI_CookieAndLogout(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "administrator", adminPassword)

	rec := s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/me", token: token, cookie: true})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, request{method: http.MethodPost, path: APIPrefix + "/auth/logout"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/me", token: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_LoginFailures(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, request{method: http.MethodPost, path: APIPrefix + "/auth/login", body: `{"name":"administrator","password":"wrong"}`})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, request{method: http.MethodPost, path: APIPrefix + "/auth/login", body: `{"name":"administrator"}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AnonymousAccount(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Auth.AllowAnonymous = true
		c.Auth.AnonymousAccount = "guest"
	})
	admin := s.login(t, "administrator", adminPassword)
	createUser(t, s, admin, `{"name":"guest","access_level":{"name":"viewer"}}`)

	rec := s.do(t, request{method: http.MethodGet, path: APIPrefix + "/users/me"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "guest", decodeAccount(t, rec).Name)

	rec = s.do(t, request{method: http.MethodPost, path: APIPrefix + "/users", body: `{"name":"sneaky"}`})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, request{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `issuedesk_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestNew_BootstrapRunsOnce(t *testing.T) {
	s := newTestServer(t)

	created, err := s.users.EnsureAdministrator(context.Background(), "second", "pw")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestNew_RejectsUnknownDefaultLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = sqliteRepo.MemoryPath
	cfg.Auth.JWTSecret = "end-to-end-secret-0123456789"
	cfg.Access.DefaultLevel = "overlord"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
