package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/model"
	"github.com/sakif/issuedesk/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, realname, email, password, access_level,
	language, timezone, enabled, protected, date_created, last_updated`

// CreateUser inserts user and fills in ID, CreatedAt and UpdatedAt.
//
// ATOMIC INSERT-IF-ABSENT:
// There is no "SELECT then INSERT" here. The UNIQUE index on username makes
// SQLite reject the second of two racing inserts, and that rejection is
// translated into apperror.ErrConflict. A pre-check in the service layer is
// only a fast path for a nicer error; this is the real guard.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, realname, email, password, access_level,
			language, timezone, enabled, protected, date_created, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Name,
		user.RealName,
		user.Email,
		user.PasswordHash,
		user.AccessLevel,
		user.Language,
		user.Timezone,
		user.Enabled,
		user.Protected,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "name", user.Name)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading id of user %q: %w", user.Name, err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUserByID retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that id.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByName retrieves a user by exact username.
func (db *DB) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, name)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", name)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", name, err)
	}
	return u, nil
}

func (db *DB) UserExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking user %q: %w", name, err)
	}
	return exists, nil
}

// UpdatePasswordHash replaces a stored hash, e.g. after a bcrypt cost change.
func (db *DB) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password = ?, last_updated = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating password of user %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// DeleteUser removes a user. Memberships go with it (ON DELETE CASCADE).
//
// IDEMPOTENT:
// Deleting a row that does not exist is not an error. Callers that need to
// know whether something was removed should look the user up first.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}
	return nil
}

func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting users: %w", err)
	}
	return n, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.RealName,
		&u.Email,
		&u.PasswordHash,
		&u.AccessLevel,
		&u.Language,
		&u.Timezone,
		&u.Enabled,
		&u.Protected,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
