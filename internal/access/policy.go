package access

import (
	"fmt"

	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/model"
)

// Operation is a user-resource action subject to authorization.
type Operation int

const (
	OpReadUser Operation = iota + 1
	OpCreateUser
	OpDeleteUser
)

func (o Operation) String() string {
	switch o {
	case OpReadUser:
		return "read user"
	case OpCreateUser:
		return "create user"
	case OpDeleteUser:
		return "delete user"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Privilege decides whether an identified caller may perform op on target.
// target is nil when the operation has no concrete record yet (create, or a
// delete evaluated before the record is loaded).
type Privilege func(caller model.Caller, op Operation, target *model.User) bool

// Thresholds are the minimum tier ids for each privileged action.
type Thresholds struct {
	View      int // read another user's record
	Manage    int // create and delete users
	Protected int // delete a protected account
}

// ThresholdPrivilege is the stock Privilege: compare the caller's tier with
// the configured thresholds.
func ThresholdPrivilege(th Thresholds) Privilege {
	return func(caller model.Caller, op Operation, target *model.User) bool {
		level := caller.AccessLevel()
		switch op {
		case OpReadUser:
			return level >= th.View
		case OpCreateUser:
			return level >= th.Manage
		case OpDeleteUser:
			if level < th.Manage {
				return false
			}
			if target != nil && target.Protected {
				return level >= th.Protected
			}
			return true
		default:
			return false
		}
	}
}

// Policy answers "may this caller do that to this user?".
//
// It only ever returns nil, an Unauthorized error (no usable identity) or a
// Forbidden error (identity present, privilege missing). Input shape checks
// happen before the policy is consulted; see service.UserService.
type Policy struct {
	allowAnonymous bool
	privileged     Privilege
}

// NewPolicy creates a Policy. allowAnonymous lets the configured anonymous
// account act as a (low privilege) principal instead of being rejected.
func NewPolicy(allowAnonymous bool, privileged Privilege) *Policy {
	return &Policy{
		allowAnonymous: allowAnonymous,
		privileged:     privileged,
	}
}

// Authenticate rejects callers without a usable identity.
func (p *Policy) Authenticate(caller model.Caller) error {
	if !caller.HasIdentity() {
		return apperror.Unauthorized("authentication required")
	}
	if caller.Anonymous && !p.allowAnonymous {
		return apperror.Unauthorized("anonymous access is disabled")
	}
	return nil
}

// Authorize evaluates op against target for caller.
func (p *Policy) Authorize(caller model.Caller, op Operation, target *model.User) error {
	if err := p.Authenticate(caller); err != nil {
		return err
	}

	self := target != nil && target.ID == caller.ID()
	switch {
	case op == OpDeleteUser && self:
		return apperror.Forbidden("users cannot delete their own account")
	case op == OpReadUser && self:
		return nil
	}

	if !p.privileged(caller, op, target) {
		return apperror.Forbidden(fmt.Sprintf("access denied: %s", op))
	}
	return nil
}

// CanGrant rejects handing out a tier above the caller's own.
func (p *Policy) CanGrant(caller model.Caller, tier Tier) error {
	if tier.ID > caller.AccessLevel() {
		return apperror.Forbidden(fmt.Sprintf("cannot grant access level %q above your own", tier.Name))
	}
	return nil
}
