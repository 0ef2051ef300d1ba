package service

import (
	"context"

	"github.com/sakif/issuedesk/internal/access"
	"github.com/sakif/issuedesk/internal/model"
)

// AccountBuilder renders stored users into the API representation.
//
// The stored record only knows its tier id and nothing about projects. The
// builder joins in the tier's name and label from the registry and the
// memberships from the project store.
type AccountBuilder struct {
	tiers       *access.Registry
	memberships *MembershipAssigner
}

func NewAccountBuilder(tiers *access.Registry, memberships *MembershipAssigner) *AccountBuilder {
	return &AccountBuilder{tiers: tiers, memberships: memberships}
}

// Build returns the account view of u. PasswordHash never leaves this
// function.
func (b *AccountBuilder) Build(ctx context.Context, u *model.User) (*model.Account, error) {
	projects, err := b.memberships.ProjectsFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	return &model.Account{
		ID:          u.ID,
		Name:        u.Name,
		RealName:    u.RealName,
		Email:       u.Email,
		Language:    u.Language,
		Timezone:    u.Timezone,
		AccessLevel: b.tiers.Describe(u.AccessLevel),
		Enabled:     u.Enabled,
		Protected:   u.Protected,
		Projects:    projects,
		CreatedAt:   u.CreatedAt,
	}, nil
}
