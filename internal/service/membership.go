package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sakif/issuedesk/internal/model"
	"github.com/sakif/issuedesk/internal/repository"
)

// DefaultProjectName is the project every new account joins.
const DefaultProjectName = "Default Project"

// MembershipAssigner puts new accounts into the default project, which is
// created on first use.
//
// The project reference is cached after the first successful lookup. The
// mutex only guards the cache; EnsureProject itself is race free in the
// store.
type MembershipAssigner struct {
	projects       repository.ProjectRepository
	defaultProject string
	logger         *slog.Logger

	mu     sync.Mutex
	cached *model.ProjectRef
}

// NewMembershipAssigner creates a MembershipAssigner. An empty
// defaultProject falls back to DefaultProjectName.
func NewMembershipAssigner(projects repository.ProjectRepository, defaultProject string, logger *slog.Logger) *MembershipAssigner {
	if defaultProject == "" {
		defaultProject = DefaultProjectName
	}
	return &MembershipAssigner{
		projects:       projects,
		defaultProject: defaultProject,
		logger:         logger,
	}
}

// AssignDefault adds userID to the default project with the user's tier.
func (m *MembershipAssigner) AssignDefault(ctx context.Context, userID int64, accessLevel int) error {
	p, err := m.defaultProjectRef(ctx)
	if err != nil {
		return err
	}
	if err := m.projects.AddMember(ctx, p.ID, userID, accessLevel); err != nil {
		return fmt.Errorf("service: assigning default project: %w", err)
	}

	m.logger.Debug("user joined project",
		slog.Int64("userID", userID),
		slog.Int64("projectID", p.ID),
	)
	return nil
}

// ProjectsFor lists the projects userID belongs to.
func (m *MembershipAssigner) ProjectsFor(ctx context.Context, userID int64) ([]model.ProjectRef, error) {
	projects, err := m.projects.ListUserProjects(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: listing projects: %w", err)
	}
	return projects, nil
}

func (m *MembershipAssigner) defaultProjectRef(ctx context.Context) (*model.ProjectRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return m.cached, nil
	}
	p, err := m.projects.EnsureProject(ctx, m.defaultProject)
	if err != nil {
		return nil, fmt.Errorf("service: ensuring default project: %w", err)
	}
	m.cached = p
	return p, nil
}
