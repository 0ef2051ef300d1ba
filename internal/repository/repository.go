// Package repository declares the storage contracts the services depend on.
// Implementations live in sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/issuedesk/internal/model"
)

// UserRepository persists user accounts.
//
// CreateUser must be an atomic insert-if-absent on Name: two concurrent
// creates with the same name produce exactly one row, and the loser gets an
// apperror.ErrConflict. GetUserByID and GetUserByName return
// apperror.ErrNotFound for missing rows. DeleteUser succeeds whether or not
// the row existed.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByName(ctx context.Context, name string) (*model.User, error)
	UserExistsByName(ctx context.Context, name string) (bool, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int, error)
}

// ProjectRepository is the slice of project storage needed for account
// membership.
type ProjectRepository interface {
	// EnsureProject returns the project called name, creating it if needed.
	EnsureProject(ctx context.Context, name string) (*model.ProjectRef, error)
	AddMember(ctx context.Context, projectID, userID int64, accessLevel int) error
	ListUserProjects(ctx context.Context, userID int64) ([]model.ProjectRef, error)
}
