package transition

import (
	"fmt"

	"github.com/platinummonkey/warden/pkg/accounts"
)

// TenantContext carries the tenant state the validator needs beyond the
// target itself. Counts are taken inside the same transaction as the change.
type TenantContext struct {
	// Team the target currently belongs to
	Team           *accounts.Team
	TeamAdminCount int

	// Team the change would move the target into
	DestinationTeam        *accounts.Team
	DestinationTeamMembers int
	DestinationTeamAdmins  int

	// Enterprise group the target currently belongs to
	EnterpriseGroup      *accounts.EnterpriseGroup
	EnterpriseAdminCount int
}

// systemRoleEdges lists every legal system role transition
var systemRoleEdges = map[accounts.SystemRole]map[accounts.SystemRole]bool{
	accounts.SystemRoleUser: {
		accounts.SystemRoleSiteAdmin:  true,
		accounts.SystemRoleSuperAdmin: true,
	},
	accounts.SystemRoleSiteAdmin: {
		accounts.SystemRoleSuperAdmin: true,
		accounts.SystemRoleUser:       true,
	},
	accounts.SystemRoleSuperAdmin: {
		accounts.SystemRoleSiteAdmin: true,
		accounts.SystemRoleUser:      true,
	},
}

// SystemRoleEdgeAllowed reports whether a user may move from one system role
// to another. Staying on the same role is a no-op, not an edge.
func SystemRoleEdgeAllowed(from, to accounts.SystemRole) bool {
	return systemRoleEdges[from][to]
}

// CheckImmutable rejects changes to fields no transition may touch, whoever
// requests them
func CheckImmutable(current *accounts.User, change Change) error {
	if change.Email != nil {
		return invalid("email", MsgEmailChange)
	}
	if change.UserType != nil && *change.UserType != current.UserType {
		return &ImmutableFieldError{Field: "user_type"}
	}
	return nil
}

// Validate checks a change against the target's current state and returns the
// resulting diff. It never mutates current. An empty diff means no change.
func Validate(current *accounts.User, change Change, ctx TenantContext) (Diff, error) {
	if current == nil {
		return Diff{}, fmt.Errorf("validate transition: nil target")
	}
	if err := CheckImmutable(current, change); err != nil {
		return Diff{}, err
	}

	after := current.Clone()
	var transfer *AdminTransfer

	if change.Username != nil {
		after.Username = *change.Username
	}
	if change.FullName != nil {
		after.FullName = *change.FullName
	}

	if change.SystemRole != nil {
		to := *change.SystemRole
		if !to.Valid() {
			return Diff{}, invalid(FieldSystemRole, "Unknown system role: %s", to)
		}
		if to != current.SystemRole && !SystemRoleEdgeAllowed(current.SystemRole, to) {
			return Diff{}, invalid(FieldSystemRole, "Cannot change system role from %s to %s", current.SystemRole, to)
		}
		after.SystemRole = to
	}

	if change.Status != nil {
		if !change.Status.Valid() {
			return Diff{}, invalid(FieldStatus, "Unknown status: %s", *change.Status)
		}
		after.Status = *change.Status
	}

	if change.Team != nil && change.TeamRole != nil {
		return Diff{}, invalid(FieldTeamRole, "Change team association and team role separately")
	}
	if change.EnterpriseGroup != nil && change.EnterpriseGroupRole != nil {
		return Diff{}, invalid(FieldEnterpriseGroupRole, "Change enterprise group association and role separately")
	}

	if change.Team != nil {
		t, err := validateTeamAssociation(current, after, *change.Team, ctx)
		if err != nil {
			return Diff{}, err
		}
		transfer = t
	}
	if change.TeamRole != nil {
		t, err := validateTeamRole(current, after, *change.TeamRole, ctx)
		if err != nil {
			return Diff{}, err
		}
		transfer = t
	}
	if change.EnterpriseGroup != nil {
		if err := validateGroupAssociation(current, after, *change.EnterpriseGroup, ctx); err != nil {
			return Diff{}, err
		}
	}
	if change.EnterpriseGroupRole != nil {
		if err := validateGroupRole(current, after, *change.EnterpriseGroupRole, ctx); err != nil {
			return Diff{}, err
		}
	}

	return Diff{
		Before:        current,
		After:         after,
		Fields:        changedFields(current, after),
		AdminTransfer: transfer,
	}, nil
}

func validateTeamAssociation(current, after *accounts.User, a Association, ctx TenantContext) (*AdminTransfer, error) {
	if a.ID == nil {
		if current.TeamID == nil {
			return nil, nil
		}
		if current.UserType == accounts.UserTypeInvited {
			return nil, invalid(FieldTeamID, "Invited users must belong to a team")
		}
		after.TeamID, after.TeamRole = nil, nil
		return nil, nil
	}

	if !current.UserType.AllowsTeam() {
		return nil, invalid(FieldTeamID, "%s users cannot belong to a team", humanize(string(current.UserType)))
	}
	if current.TeamID != nil && *current.TeamID == *a.ID {
		return nil, nil
	}
	if a.Role == accounts.MembershipRoleAdmin {
		return nil, invalid(FieldTeamRole, "Users join a team as members; promote them afterwards")
	}
	if a.Role != "" && !a.Role.Valid() {
		return nil, invalid(FieldTeamRole, "Unknown team role: %s", a.Role)
	}
	if holdsTeamAdmin(current, ctx.Team) {
		return nil, invalid(FieldTeamID, MsgTeamNeedsAdmin)
	}
	dest := ctx.DestinationTeam
	if dest != nil && dest.Full(ctx.DestinationTeamMembers) {
		return nil, invalid(FieldTeamID, "Team has reached its member limit")
	}

	id := *a.ID
	role := accounts.MembershipRoleMember
	var transfer *AdminTransfer
	// the first user into a team without an admin takes the seat
	if dest != nil && dest.Unadministered(ctx.DestinationTeamAdmins) {
		role = accounts.MembershipRoleAdmin
		transfer = &AdminTransfer{TeamID: id, NewAdminID: current.ID}
	}
	after.TeamID = &id
	after.TeamRole = &role
	return transfer, nil
}

func validateTeamRole(current, after *accounts.User, role accounts.MembershipRole, ctx TenantContext) (*AdminTransfer, error) {
	if !role.Valid() {
		return nil, invalid(FieldTeamRole, "Unknown team role: %s", role)
	}
	if current.TeamID == nil {
		return nil, invalid(FieldTeamRole, "User does not belong to a team")
	}
	if current.TeamRole != nil && *current.TeamRole == role {
		return nil, nil
	}

	if role == accounts.MembershipRoleMember {
		designatedAdmin := ctx.Team != nil && designated(ctx.Team.AdminID, current.ID)
		if holdsTeamAdmin(current, ctx.Team) && (designatedAdmin || ctx.TeamAdminCount <= 1) {
			return nil, invalid(FieldTeamRole, MsgTeamNeedsAdmin)
		}
		after.TeamRole = &role
		return nil, nil
	}

	// promotion hands the admin seat over so the team keeps exactly one
	transfer := &AdminTransfer{TeamID: *current.TeamID, NewAdminID: current.ID}
	if ctx.Team != nil && ctx.Team.AdminID != nil && *ctx.Team.AdminID != current.ID {
		prev := *ctx.Team.AdminID
		transfer.PreviousAdminID = &prev
	}
	after.TeamRole = &role
	return transfer, nil
}

func validateGroupAssociation(current, after *accounts.User, a Association, ctx TenantContext) error {
	if a.ID == nil {
		if current.EnterpriseGroupID == nil {
			return nil
		}
		if current.UserType == accounts.UserTypeEnterprise {
			return invalid(FieldEnterpriseGroupID, "Enterprise users must belong to an enterprise group")
		}
		after.EnterpriseGroupID, after.EnterpriseGroupRole = nil, nil
		return nil
	}

	if !current.UserType.AllowsEnterpriseGroup() {
		return invalid(FieldEnterpriseGroupID, "%s users cannot belong to an enterprise group", humanize(string(current.UserType)))
	}
	if current.EnterpriseGroupID != nil && *current.EnterpriseGroupID == *a.ID {
		return nil
	}
	role := a.Role
	if role == "" {
		role = accounts.MembershipRoleMember
	}
	if !role.Valid() {
		return invalid(FieldEnterpriseGroupRole, "Unknown enterprise group role: %s", role)
	}
	designatedAdmin := ctx.EnterpriseGroup != nil && designated(ctx.EnterpriseGroup.AdminID, current.ID)
	if designatedAdmin || (isGroupAdmin(current) && ctx.EnterpriseAdminCount <= 1) {
		return invalid(FieldEnterpriseGroupID, MsgGroupNeedsAdmin)
	}

	id := *a.ID
	after.EnterpriseGroupID = &id
	after.EnterpriseGroupRole = &role
	return nil
}

func validateGroupRole(current, after *accounts.User, role accounts.MembershipRole, ctx TenantContext) error {
	if !role.Valid() {
		return invalid(FieldEnterpriseGroupRole, "Unknown enterprise group role: %s", role)
	}
	if current.EnterpriseGroupID == nil {
		return invalid(FieldEnterpriseGroupRole, "User does not belong to an enterprise group")
	}
	if current.EnterpriseGroupRole != nil && *current.EnterpriseGroupRole == role {
		return nil
	}
	if role == accounts.MembershipRoleMember && isGroupAdmin(current) {
		designatedAdmin := ctx.EnterpriseGroup != nil && designated(ctx.EnterpriseGroup.AdminID, current.ID)
		if designatedAdmin || ctx.EnterpriseAdminCount <= 1 {
			return invalid(FieldEnterpriseGroupRole, MsgGroupNeedsAdmin)
		}
	}
	after.EnterpriseGroupRole = &role
	return nil
}

// holdsTeamAdmin reports whether u is an admin of its team, either by role or
// by being the team's designated admin
func holdsTeamAdmin(u *accounts.User, team *accounts.Team) bool {
	if accounts.IsTeamAdmin(u, nil) {
		return true
	}
	return team != nil && designated(team.AdminID, u.ID)
}

func isGroupAdmin(u *accounts.User) bool {
	return accounts.IsEnterpriseAdmin(u, nil)
}

func designated(adminID *int64, userID int64) bool {
	return adminID != nil && *adminID == userID
}
