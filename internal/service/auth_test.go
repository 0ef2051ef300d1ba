package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/issuedesk/internal/access"
	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/model"
)

// seedLoginUser stores a user whose password is "hunter2", hashed with cost.
func seedLoginUser(t *testing.T, env *testEnv, name string, cost int, enabled bool) *model.User {
	t.Helper()
	hash, err := auth.NewPasswordServiceForTest(cost).Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return env.users.put(model.User{
		Name:         name,
		PasswordHash: hash,
		AccessLevel:  access.Reporter,
		Enabled:      enabled,
	})
}

// =========================================================================
// Login TESTS
// =========================================================================

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	u := seedLoginUser(t, env, "dora", 4, true)

	result, err := env.auth.Login(context.Background(), "  dora ", "hunter2")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if result.Account.ID != u.ID {
		t.Errorf("Account.ID = %d, want %d", result.Account.ID, u.ID)
	}

	// The token we issued must resolve back to the same user.
	id, err := env.tokens.Validate(result.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if id != u.ID {
		t.Errorf("token subject = %d, want %d", id, u.ID)
	}
}

func TestLogin_BadCredentialsAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	seedLoginUser(t, env, "dora", 4, true)
	seedLoginUser(t, env, "frozen", 4, false)
	env.users.put(model.User{Name: "nopass", AccessLevel: access.Reporter, Enabled: true})

	tests := []struct {
		name, user, password string
	}{
		{"unknown user", "ghost", "hunter2"},
		{"wrong password", "dora", "hunter3"},
		{"disabled account", "frozen", "hunter2"},
		{"no password set", "nopass", "hunter2"},
	}

	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Login(context.Background(), tt.user, tt.password)
			if apperror.KindOf(err) != apperror.KindUnauthorized {
				t.Fatalf("Login() error = %v, want Unauthorized", err)
			}
			messages = append(messages, err.Error())
		})
	}

	for _, m := range messages {
		if m != messages[0] {
			t.Errorf("login failures differ: %q vs %q", m, messages[0])
		}
	}
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	for _, in := range [][2]string{{"", "pw"}, {"   ", "pw"}, {"dora", ""}} {
		_, err := env.auth.Login(context.Background(), in[0], in[1])
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Login(%q, %q) error = %v, want ErrValidation", in[0], in[1], err)
		}
	}
}

func TestLogin_RehashesOnCostChange(t *testing.T) {
	env := newTestEnv(t)
	// Stored with cost 5, service configured with cost 4.
	u := seedLoginUser(t, env, "legacy", 5, true)

	if _, err := env.auth.Login(context.Background(), "legacy", "hunter2"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	stored, _ := env.users.GetUserByID(context.Background(), u.ID)
	if stored.PasswordHash == u.PasswordHash {
		t.Fatal("hash was not upgraded")
	}
	if err := auth.NewPasswordServiceForTest(4).Verify(stored.PasswordHash, "hunter2"); err != nil {
		t.Errorf("rehashed password does not verify: %v", err)
	}
}

// A user created through the service can log in with the password it was
// created with.
func TestLogin_AfterCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.CreateUser(ctx, env.admin, model.NewUser{Name: "fresh", Password: "letmein"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	result, err := env.auth.Login(ctx, "fresh", "letmein")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if len(result.Account.Projects) == 0 {
		t.Error("login account has no projects")
	}
}
