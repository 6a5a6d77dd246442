package users

import (
	"context"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/transition"
)

// ListOptions pages a user listing
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the persistence boundary for users
type Store interface {
	Get(ctx context.Context, id int64) (*accounts.User, error)
	List(ctx context.Context, scope policy.Filter, opts ListOptions) ([]*accounts.User, error)

	// WithTx runs fn in one transaction, committing only when fn returns nil
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of reads and narrow writes available inside a transaction.
// Each mutable field has its own method; there is no generic save.
type Tx interface {
	LoadUser(ctx context.Context, id int64) (*accounts.User, error)
	FindUserByEmail(ctx context.Context, email string) (*accounts.User, error)
	CreateUser(ctx context.Context, u *accounts.User) error

	LoadTeam(ctx context.Context, id int64) (*accounts.Team, error)
	CountTeamAdmins(ctx context.Context, teamID int64) (int, error)
	CountTeamMembers(ctx context.Context, teamID int64) (int, error)
	LoadEnterpriseGroup(ctx context.Context, id int64) (*accounts.EnterpriseGroup, error)
	CountEnterpriseAdmins(ctx context.Context, groupID int64) (int, error)

	ApplyProfileUpdate(ctx context.Context, id int64, username, fullName string) error
	ApplyStatusChange(ctx context.Context, id int64, status accounts.Status) error
	ApplySystemRoleChange(ctx context.Context, id int64, role accounts.SystemRole) error
	ApplyTeamRoleChange(ctx context.Context, id int64, role accounts.MembershipRole) error
	TransferTeamAdmin(ctx context.Context, t transition.AdminTransfer) error
	ApplyTeamAssociation(ctx context.Context, id int64, teamID *int64, role *accounts.MembershipRole) error
	ApplyEnterpriseAssociation(ctx context.Context, id int64, groupID *int64, role *accounts.MembershipRole) error
	ApplyEnterpriseRoleChange(ctx context.Context, id int64, role accounts.MembershipRole) error
	ApplyEmailChange(ctx context.Context, id int64, email string) error
	ResetSessions(ctx context.Context, id int64) error
}
