package transition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/accounts"
)

func int64Ptr(v int64) *int64 { return &v }

func rolePtr(r accounts.MembershipRole) *accounts.MembershipRole { return &r }

func sysRolePtr(r accounts.SystemRole) *accounts.SystemRole { return &r }

func statusPtr(s accounts.Status) *accounts.Status { return &s }

func strPtr(s string) *string { return &s }

func directUser() *accounts.User {
	return &accounts.User{
		ID:         1,
		Email:      "ada@example.com",
		Username:   "ada",
		SystemRole: accounts.SystemRoleUser,
		UserType:   accounts.UserTypeDirect,
		Status:     accounts.StatusActive,
	}
}

func teamMemberOf(id, team int64, role accounts.MembershipRole) *accounts.User {
	u := directUser()
	u.ID = id
	u.UserType = accounts.UserTypeInvited
	u.TeamID = int64Ptr(team)
	u.TeamRole = rolePtr(role)
	return u
}

func groupMemberOf(id, group int64, role accounts.MembershipRole) *accounts.User {
	u := directUser()
	u.ID = id
	u.UserType = accounts.UserTypeEnterprise
	u.EnterpriseGroupID = int64Ptr(group)
	u.EnterpriseGroupRole = rolePtr(role)
	return u
}

func TestSystemRoleTable(t *testing.T) {
	roles := []accounts.SystemRole{accounts.SystemRoleUser, accounts.SystemRoleSiteAdmin, accounts.SystemRoleSuperAdmin}

	for _, from := range roles {
		for _, to := range roles {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				current := directUser()
				current.SystemRole = from

				diff, err := Validate(current, Change{SystemRole: sysRolePtr(to)}, TenantContext{})
				require.NoError(t, err)

				if from == to {
					assert.True(t, diff.Empty(), "same role is a no-op")
					assert.False(t, SystemRoleEdgeAllowed(from, to))
					return
				}
				assert.True(t, SystemRoleEdgeAllowed(from, to))
				assert.Equal(t, []string{FieldSystemRole}, diff.Fields)
				assert.Equal(t, to, diff.After.SystemRole)
				assert.Equal(t, from, current.SystemRole, "current is never mutated")
				assert.Equal(t, ActionRoleChange, diff.Action())
			})
		}
	}
}

func TestValidateRejections(t *testing.T) {
	t.Run("email always rejected", func(t *testing.T) {
		current := directUser()
		_, err := Validate(current, Change{Email: strPtr("new@example.com")}, TenantContext{})
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.EqualError(t, err, MsgEmailChange)

		_, err = Validate(current, Change{Email: strPtr(current.Email)}, TenantContext{})
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("user type is immutable", func(t *testing.T) {
		invited := accounts.UserTypeInvited
		_, err := Validate(directUser(), Change{UserType: &invited}, TenantContext{})

		var immutable *ImmutableFieldError
		require.True(t, errors.As(err, &immutable))
		assert.Equal(t, "user_type", immutable.Field)
		assert.EqualError(t, err, "User type cannot be changed")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("same user type is not a change", func(t *testing.T) {
		direct := accounts.UserTypeDirect
		diff, err := Validate(directUser(), Change{UserType: &direct}, TenantContext{})
		require.NoError(t, err)
		assert.True(t, diff.Empty())
	})

	t.Run("unknown enum values", func(t *testing.T) {
		cases := []Change{
			{SystemRole: sysRolePtr("owner")},
			{Status: statusPtr("deleted")},
		}
		for _, c := range cases {
			_, err := Validate(directUser(), c, TenantContext{})
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}

		member := teamMemberOf(2, 10, accounts.MembershipRoleMember)
		_, err := Validate(member, Change{TeamRole: rolePtr("owner")}, TenantContext{})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("immutable check ignores the rest of the change", func(t *testing.T) {
		current := directUser()
		assert.EqualError(t, CheckImmutable(current, Change{Email: strPtr("x@example.com"), Status: statusPtr(accounts.StatusLocked)}), MsgEmailChange)

		direct := accounts.UserTypeDirect
		assert.NoError(t, CheckImmutable(current, Change{UserType: &direct, Username: strPtr("grace")}))
	})

	t.Run("nil target", func(t *testing.T) {
		_, err := Validate(nil, Change{}, TenantContext{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestStatusTransitions(t *testing.T) {
	statuses := []accounts.Status{accounts.StatusActive, accounts.StatusInactive, accounts.StatusLocked}

	for _, from := range statuses {
		for _, to := range statuses {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				current := directUser()
				current.Status = from

				diff, err := Validate(current, Change{Status: statusPtr(to)}, TenantContext{})
				require.NoError(t, err)
				assert.Equal(t, from == to, diff.Empty())
				assert.Equal(t, from == accounts.StatusActive && to != accounts.StatusActive, diff.Deactivated())
				if !diff.Empty() {
					assert.Equal(t, ActionStatusChange, diff.Action())
					assert.Equal(t, map[string]any{"old_status": string(from), "new_status": string(to)}, diff.Details())
				}
			})
		}
	}
}

func TestTeamAssociation(t *testing.T) {
	t.Run("direct user cannot join a team", func(t *testing.T) {
		_, err := Validate(directUser(), Change{Team: &Association{ID: int64Ptr(10)}}, TenantContext{})
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.EqualError(t, err, "Direct users cannot belong to a team")
	})

	t.Run("enterprise user cannot join a team", func(t *testing.T) {
		_, err := Validate(groupMemberOf(2, 20, accounts.MembershipRoleMember), Change{Team: &Association{ID: int64Ptr(10)}}, TenantContext{})
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("invited user cannot leave its team", func(t *testing.T) {
		_, err := Validate(teamMemberOf(2, 10, accounts.MembershipRoleMember), Change{Team: &Association{}}, TenantContext{})
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.EqualError(t, err, "Invited users must belong to a team")
	})

	t.Run("member moves to another team", func(t *testing.T) {
		member := teamMemberOf(2, 10, accounts.MembershipRoleMember)
		diff, err := Validate(member, Change{Team: &Association{ID: int64Ptr(11)}}, TenantContext{
			DestinationTeam:        &accounts.Team{ID: 11, AdminID: int64Ptr(7), MaxMembers: 5},
			DestinationTeamMembers: 2,
			DestinationTeamAdmins:  1,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{FieldTeamID}, diff.Fields)
		assert.Equal(t, int64(11), *diff.After.TeamID)
		assert.Nil(t, diff.AdminTransfer)
		assert.Equal(t, ActionAssociationChange, diff.Action())
	})

	t.Run("first member of an adminless team takes the admin seat", func(t *testing.T) {
		member := teamMemberOf(7, 10, accounts.MembershipRoleMember)
		diff, err := Validate(member, Change{Team: &Association{ID: int64Ptr(11)}}, TenantContext{
			Team:            &accounts.Team{ID: 10, AdminID: int64Ptr(2)},
			TeamAdminCount:  1,
			DestinationTeam: &accounts.Team{ID: 11, MaxMembers: 5},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{FieldTeamID, FieldTeamRole}, diff.Fields)
		assert.Equal(t, accounts.MembershipRoleAdmin, *diff.After.TeamRole)
		require.NotNil(t, diff.AdminTransfer)
		assert.Equal(t, int64(11), diff.AdminTransfer.TeamID)
		assert.Equal(t, int64(7), diff.AdminTransfer.NewAdminID)
		assert.Nil(t, diff.AdminTransfer.PreviousAdminID)
		assert.Equal(t, ActionAssociationChange, diff.Action())
	})

	t.Run("adminless team with an admin member stays as is", func(t *testing.T) {
		member := teamMemberOf(7, 10, accounts.MembershipRoleMember)
		diff, err := Validate(member, Change{Team: &Association{ID: int64Ptr(11)}}, TenantContext{
			DestinationTeam:        &accounts.Team{ID: 11, MaxMembers: 5},
			DestinationTeamMembers: 1,
			DestinationTeamAdmins:  1,
		})
		require.NoError(t, err)
		assert.Equal(t, accounts.MembershipRoleMember, *diff.After.TeamRole)
		assert.Nil(t, diff.AdminTransfer)
	})

	t.Run("zero member limit means unlimited", func(t *testing.T) {
		member := teamMemberOf(2, 10, accounts.MembershipRoleMember)
		_, err := Validate(member, Change{Team: &Association{ID: int64Ptr(11)}}, TenantContext{
			DestinationTeam:        &accounts.Team{ID: 11, AdminID: int64Ptr(7)},
			DestinationTeamMembers: 40,
			DestinationTeamAdmins:  1,
		})
		assert.NoError(t, err)
	})

	t.Run("full destination rejected", func(t *testing.T) {
		member := teamMemberOf(2, 10, accounts.MembershipRoleMember)
		_, err := Validate(member, Change{Team: &Association{ID: int64Ptr(11)}}, TenantContext{
			DestinationTeam:        &accounts.Team{ID: 11, MaxMembers: 5},
			DestinationTeamMembers: 5,
		})
		assert.EqualError(t, err, "Team has reached its member limit")
	})

	t.Run("team admin cannot move out", func(t *testing.T) {
		admin := teamMemberOf(2, 10, accounts.MembershipRoleAdmin)
		_, err := Validate(admin, Change{Team: &Association{ID: int64Ptr(11)}}, TenantContext{
			Team:           &accounts.Team{ID: 10, AdminID: int64Ptr(2)},
			TeamAdminCount: 1,
		})
		assert.EqualError(t, err, MsgTeamNeedsAdmin)
	})

	t.Run("cannot join as admin", func(t *testing.T) {
		member := teamMemberOf(2, 10, accounts.MembershipRoleMember)
		_, err := Validate(member, Change{Team: &Association{ID: int64Ptr(11), Role: accounts.MembershipRoleAdmin}}, TenantContext{})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("same team is a no-op", func(t *testing.T) {
		member := teamMemberOf(2, 10, accounts.MembershipRoleMember)
		diff, err := Validate(member, Change{Team: &Association{ID: int64Ptr(10)}}, TenantContext{})
		require.NoError(t, err)
		assert.True(t, diff.Empty())
	})
}

func TestTeamRole(t *testing.T) {
	team := &accounts.Team{ID: 10, AdminID: int64Ptr(2)}

	t.Run("sole admin cannot be demoted", func(t *testing.T) {
		admin := teamMemberOf(2, 10, accounts.MembershipRoleAdmin)
		_, err := Validate(admin, Change{TeamRole: rolePtr(accounts.MembershipRoleMember)}, TenantContext{Team: team, TeamAdminCount: 1})
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.Contains(t, err.Error(), "must have at least one admin")
		assert.Equal(t, int64(2), *team.AdminID)
	})

	t.Run("designated admin cannot be demoted even with another admin", func(t *testing.T) {
		admin := teamMemberOf(2, 10, accounts.MembershipRoleAdmin)
		_, err := Validate(admin, Change{TeamRole: rolePtr(accounts.MembershipRoleMember)}, TenantContext{Team: team, TeamAdminCount: 2})
		assert.EqualError(t, err, MsgTeamNeedsAdmin)
	})

	t.Run("promotion transfers admin", func(t *testing.T) {
		member := teamMemberOf(3, 10, accounts.MembershipRoleMember)
		diff, err := Validate(member, Change{TeamRole: rolePtr(accounts.MembershipRoleAdmin)}, TenantContext{Team: team, TeamAdminCount: 1})
		require.NoError(t, err)
		require.NotNil(t, diff.AdminTransfer)
		assert.Equal(t, int64(10), diff.AdminTransfer.TeamID)
		assert.Equal(t, int64(3), diff.AdminTransfer.NewAdminID)
		assert.Equal(t, int64(2), *diff.AdminTransfer.PreviousAdminID)
		assert.Equal(t, ActionTeamRoleChange, diff.Action())
		assert.Equal(t, int64(2), diff.Details()["previous_admin_id"])
	})

	t.Run("promotion into adminless team", func(t *testing.T) {
		member := teamMemberOf(3, 10, accounts.MembershipRoleMember)
		diff, err := Validate(member, Change{TeamRole: rolePtr(accounts.MembershipRoleAdmin)}, TenantContext{Team: &accounts.Team{ID: 10}})
		require.NoError(t, err)
		require.NotNil(t, diff.AdminTransfer)
		assert.Nil(t, diff.AdminTransfer.PreviousAdminID)
	})

	t.Run("role without team rejected", func(t *testing.T) {
		_, err := Validate(directUser(), Change{TeamRole: rolePtr(accounts.MembershipRoleAdmin)}, TenantContext{})
		assert.EqualError(t, err, "User does not belong to a team")
	})

	t.Run("association and role together rejected", func(t *testing.T) {
		member := teamMemberOf(3, 10, accounts.MembershipRoleMember)
		_, err := Validate(member, Change{Team: &Association{ID: int64Ptr(11)}, TeamRole: rolePtr(accounts.MembershipRoleAdmin)}, TenantContext{})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestEnterpriseGroup(t *testing.T) {
	group := &accounts.EnterpriseGroup{ID: 20, AdminID: int64Ptr(2)}

	t.Run("last admin cannot be demoted", func(t *testing.T) {
		admin := groupMemberOf(5, 20, accounts.MembershipRoleAdmin)
		_, err := Validate(admin, Change{EnterpriseGroupRole: rolePtr(accounts.MembershipRoleMember)}, TenantContext{EnterpriseGroup: group, EnterpriseAdminCount: 1})
		assert.EqualError(t, err, MsgGroupNeedsAdmin)
	})

	t.Run("one of several admins can be demoted", func(t *testing.T) {
		admin := groupMemberOf(5, 20, accounts.MembershipRoleAdmin)
		diff, err := Validate(admin, Change{EnterpriseGroupRole: rolePtr(accounts.MembershipRoleMember)}, TenantContext{EnterpriseGroup: group, EnterpriseAdminCount: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{FieldEnterpriseGroupRole}, diff.Fields)
		assert.Nil(t, diff.AdminTransfer)
	})

	t.Run("promotion keeps other admins", func(t *testing.T) {
		member := groupMemberOf(6, 20, accounts.MembershipRoleMember)
		diff, err := Validate(member, Change{EnterpriseGroupRole: rolePtr(accounts.MembershipRoleAdmin)}, TenantContext{EnterpriseGroup: group, EnterpriseAdminCount: 1})
		require.NoError(t, err)
		assert.Equal(t, accounts.MembershipRoleAdmin, *diff.After.EnterpriseGroupRole)
	})

	t.Run("enterprise user cannot leave its group", func(t *testing.T) {
		_, err := Validate(groupMemberOf(6, 20, accounts.MembershipRoleMember), Change{EnterpriseGroup: &Association{}}, TenantContext{})
		assert.EqualError(t, err, "Enterprise users must belong to an enterprise group")
	})

	t.Run("invited user cannot join a group", func(t *testing.T) {
		_, err := Validate(teamMemberOf(6, 10, accounts.MembershipRoleMember), Change{EnterpriseGroup: &Association{ID: int64Ptr(20)}}, TenantContext{})
		assert.EqualError(t, err, "Invited users cannot belong to an enterprise group")
	})

	t.Run("designated admin cannot move to another group", func(t *testing.T) {
		admin := groupMemberOf(5, 20, accounts.MembershipRoleAdmin)
		designatedGroup := &accounts.EnterpriseGroup{ID: 20, AdminID: int64Ptr(5)}
		_, err := Validate(admin, Change{EnterpriseGroupRole: rolePtr(accounts.MembershipRoleMember)}, TenantContext{EnterpriseGroup: designatedGroup, EnterpriseAdminCount: 2})
		assert.EqualError(t, err, MsgGroupNeedsAdmin)

		_, err = Validate(admin, Change{EnterpriseGroup: &Association{ID: int64Ptr(21)}}, TenantContext{EnterpriseGroup: designatedGroup, EnterpriseAdminCount: 2})
		require.ErrorIs(t, err, ErrInvalidTransition)
		assert.EqualError(t, err, MsgGroupNeedsAdmin)
	})

	t.Run("other admin may move while the designated admin stays", func(t *testing.T) {
		admin := groupMemberOf(6, 20, accounts.MembershipRoleAdmin)
		diff, err := Validate(admin, Change{EnterpriseGroup: &Association{ID: int64Ptr(21)}}, TenantContext{EnterpriseGroup: group, EnterpriseAdminCount: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(21), *diff.After.EnterpriseGroupID)
	})

	t.Run("last admin cannot move to another group", func(t *testing.T) {
		admin := groupMemberOf(5, 20, accounts.MembershipRoleAdmin)
		_, err := Validate(admin, Change{EnterpriseGroup: &Association{ID: int64Ptr(21)}}, TenantContext{EnterpriseAdminCount: 1})
		assert.EqualError(t, err, MsgGroupNeedsAdmin)
	})
}

func TestDiffAction(t *testing.T) {
	current := teamMemberOf(2, 10, accounts.MembershipRoleMember)

	t.Run("profile", func(t *testing.T) {
		diff, err := Validate(current, Change{Username: strPtr("grace"), FullName: strPtr("Grace Hopper")}, TenantContext{})
		require.NoError(t, err)
		assert.Equal(t, ActionProfileUpdate, diff.Action())
		assert.Equal(t, "ada", diff.Details()["old_username"])
		assert.Equal(t, "grace", diff.Details()["new_username"])
	})

	t.Run("mixed", func(t *testing.T) {
		diff, err := Validate(current, Change{Username: strPtr("grace"), Status: statusPtr(accounts.StatusLocked)}, TenantContext{})
		require.NoError(t, err)
		assert.Equal(t, ActionUserUpdate, diff.Action())
		assert.True(t, diff.Deactivated())
	})

	t.Run("idempotent", func(t *testing.T) {
		diff, err := Validate(current, Change{Username: strPtr("ada"), Status: statusPtr(accounts.StatusActive)}, TenantContext{})
		require.NoError(t, err)
		assert.True(t, diff.Empty())
		assert.Empty(t, diff.Details())
	})
}
