package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/issuedesk/internal/access"
	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/model"
	"github.com/sakif/issuedesk/internal/validation"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Hand-written in-memory fakes for the repository interfaces. Using a fake
// (not a mock framework) keeps the tests easy to read: you can see exactly
// what the fake does.

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64

	// set to a non-nil error to simulate a database failure
	createErr error
	deleteErr error
	deleted   []int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if u.Name == user.Name {
			return apperror.Conflict("user", "name", user.Name)
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByName(_ context.Context, name string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Name == name {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", name)
}

func (f *fakeUserRepo) UserExistsByName(ctx context.Context, name string) (bool, error) {
	_, err := f.GetUserByName(ctx, name)
	return err == nil, nil
}

func (f *fakeUserRepo) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUserRepo) DeleteUser(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	delete(f.users, id)
	return nil
}

func (f *fakeUserRepo) CountUsers(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

// put stores u directly, bypassing the service.
func (f *fakeUserRepo) put(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == 0 {
		f.nextID++
		u.ID = f.nextID
	} else if u.ID > f.nextID {
		f.nextID = u.ID
	}
	f.users[u.ID] = &u
	copied := u
	return &copied
}

type fakeProjectRepo struct {
	mu         sync.Mutex
	projects   map[string]model.ProjectRef
	members    map[int64]map[int64]bool // userID → projectIDs
	ensureHits int
	addErr     error
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{
		projects: make(map[string]model.ProjectRef),
		members:  make(map[int64]map[int64]bool),
	}
}

func (f *fakeProjectRepo) EnsureProject(_ context.Context, name string) (*model.ProjectRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureHits++
	p, ok := f.projects[name]
	if !ok {
		p = model.ProjectRef{ID: int64(len(f.projects) + 1), Name: name}
		f.projects[name] = p
	}
	return &p, nil
}

func (f *fakeProjectRepo) AddMember(_ context.Context, projectID, userID int64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	if f.members[userID] == nil {
		f.members[userID] = make(map[int64]bool)
	}
	f.members[userID][projectID] = true
	return nil
}

func (f *fakeProjectRepo) ListUserProjects(_ context.Context, userID int64) ([]model.ProjectRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.ProjectRef{}
	for _, p := range f.projects {
		if f.members[userID][p.ID] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	users    *fakeUserRepo
	projects *fakeProjectRepo
	svc      *UserService
	auth     *AuthService
	tokens   *auth.TokenService
	admin    model.Caller
}

type envOption func(*envConfig)

type envConfig struct {
	allowAnonymous bool
	privilege      access.Privilege
	rules          validation.Rules
}

func withAnonymousAllowed() envOption {
	return func(c *envConfig) { c.allowAnonymous = true }
}

func withPrivilege(p access.Privilege) envOption {
	return func(c *envConfig) { c.privilege = p }
}

func withRules(r validation.Rules) envOption {
	return func(c *envConfig) { c.rules = r }
}

// newTestEnv wires a UserService and AuthService over fakes and seeds one
// administrator, returned as env.admin.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := envConfig{
		privilege: access.ThresholdPrivilege(access.Thresholds{
			View:      access.Manager,
			Manage:    access.Administrator,
			Protected: access.Administrator,
		}),
		rules: validation.DefaultRules(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	tiers, err := access.NewRegistry(access.DefaultTiers(), "reporter")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	logger := testLogger()
	users := newFakeUserRepo()
	projects := newFakeProjectRepo()
	memberships := NewMembershipAssigner(projects, "", logger)
	accounts := NewAccountBuilder(tiers, memberships)
	passwords := auth.NewPasswordServiceForTest(4)
	policy := access.NewPolicy(cfg.allowAnonymous, cfg.privilege)

	env := &testEnv{
		users:    users,
		projects: projects,
		tokens:   tokens,
		svc: NewUserService(users, accounts, memberships, policy, tiers,
			validation.New(cfg.rules, tiers), passwords, logger),
		auth: NewAuthService(users, accounts, tokens, passwords, logger),
	}
	admin := users.put(model.User{Name: "administrator", AccessLevel: access.Administrator, Enabled: true, Protected: true})
	env.admin = model.Caller{User: admin}
	return env
}

// callerWith stores a user with the given tier and returns it as a caller.
func (e *testEnv) callerWith(name string, level int) model.Caller {
	u := e.users.put(model.User{Name: name, AccessLevel: level, Enabled: true})
	return model.Caller{User: u}
}

func (e *testEnv) anonymousCaller() model.Caller {
	u := e.users.put(model.User{Name: "anonymous", AccessLevel: access.Viewer, Enabled: true})
	return model.Caller{User: u, Anonymous: true}
}
