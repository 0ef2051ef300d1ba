package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/issuedesk/internal/model"
	"github.com/sakif/issuedesk/internal/repository"
)

var _ repository.ProjectRepository = (*DB)(nil)

// EnsureProject returns the project called name, creating it on first use.
//
// INSERT ... ON CONFLICT DO NOTHING followed by a SELECT is race free: if two
// callers ensure the same project at once, one insert wins and both read back
// the same row.
func (db *DB) EnsureProject(ctx context.Context, name string) (*model.ProjectRef, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO projects (name, date_created) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating project %q: %w", name, err)
	}

	var p model.ProjectRef
	err = db.conn.QueryRowContext(ctx,
		`SELECT id, name FROM projects WHERE name = ?`, name,
	).Scan(&p.ID, &p.Name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading project %q: %w", name, err)
	}
	return &p, nil
}

// AddMember puts userID on projectID's member list. Adding an existing member
// is a no-op.
func (db *DB) AddMember(ctx context.Context, projectID, userID int64, accessLevel int) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO project_user_list (project_id, user_id, access_level)
		 VALUES (?, ?, ?)
		 ON CONFLICT(project_id, user_id) DO NOTHING`,
		projectID, userID, accessLevel,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding user %d to project %d: %w", userID, projectID, err)
	}
	return nil
}

// ListUserProjects returns the projects userID belongs to, by name.
func (db *DB) ListUserProjects(ctx context.Context, userID int64) ([]model.ProjectRef, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.id, p.name
		 FROM projects p
		 JOIN project_user_list m ON m.project_id = p.id
		 WHERE m.user_id = ?
		 ORDER BY p.name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects of user %d: %w", userID, err)
	}
	// ALWAYS close rows, or the connection never returns to the pool.
	defer rows.Close()

	projects := []model.ProjectRef{}
	for rows.Next() {
		var p model.ProjectRef
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning project row: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating project rows: %w", err)
	}
	return projects, nil
}
