package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemRolePredicates(t *testing.T) {
	super := &User{SystemRole: SystemRoleSuperAdmin}
	site := &User{SystemRole: SystemRoleSiteAdmin}
	plain := &User{SystemRole: SystemRoleUser}

	assert.True(t, IsSuperAdmin(super))
	assert.False(t, IsSuperAdmin(site))
	assert.True(t, IsSiteAdmin(site))
	assert.True(t, IsAnyAdmin(super))
	assert.True(t, IsAnyAdmin(site))
	assert.False(t, IsAnyAdmin(plain))
	assert.True(t, IsPlainUser(plain))
	assert.False(t, IsAnyAdmin(nil))
}

func TestTenantPredicates(t *testing.T) {
	teamAdmin := &User{ID: 1, UserType: UserTypeInvited, TeamID: int64Ptr(10), TeamRole: rolePtr(MembershipRoleAdmin)}
	teamMember := &User{ID: 2, UserType: UserTypeInvited, TeamID: int64Ptr(10), TeamRole: rolePtr(MembershipRoleMember)}
	otherTeam := &User{ID: 3, UserType: UserTypeInvited, TeamID: int64Ptr(11), TeamRole: rolePtr(MembershipRoleMember)}
	entAdmin := &User{ID: 4, UserType: UserTypeEnterprise, EnterpriseGroupID: int64Ptr(20), EnterpriseGroupRole: rolePtr(MembershipRoleAdmin)}
	entMember := &User{ID: 5, UserType: UserTypeEnterprise, EnterpriseGroupID: int64Ptr(20), EnterpriseGroupRole: rolePtr(MembershipRoleMember)}
	direct := &User{ID: 6, UserType: UserTypeDirect}

	assert.True(t, IsTeamAdmin(teamAdmin, nil))
	assert.True(t, IsTeamAdmin(teamAdmin, &Team{ID: 10}))
	assert.False(t, IsTeamAdmin(teamAdmin, &Team{ID: 11}))
	assert.False(t, IsTeamAdmin(teamMember, nil))

	assert.True(t, IsEnterpriseAdmin(entAdmin, &EnterpriseGroup{ID: 20}))
	assert.False(t, IsEnterpriseAdmin(entMember, nil))
	assert.False(t, IsEnterpriseAdmin(direct, nil))

	assert.True(t, SameTeam(teamAdmin, teamMember))
	assert.False(t, SameTeam(teamAdmin, otherTeam))
	assert.False(t, SameTeam(direct, direct))
	assert.True(t, SameEnterpriseGroup(entAdmin, entMember))
	assert.False(t, SameEnterpriseGroup(entAdmin, teamAdmin))

	assert.True(t, IsTeamMember(teamMember, 10))
	assert.True(t, IsEnterpriseMember(entMember, 20))
	assert.False(t, IsEnterpriseMember(nil, 20))
}

func TestTeamCapacity(t *testing.T) {
	limited := &Team{ID: 10, MaxMembers: 2}
	assert.False(t, limited.Full(1))
	assert.True(t, limited.Full(2))
	assert.True(t, limited.Full(3))

	unlimited := &Team{ID: 11}
	assert.False(t, unlimited.Full(0))
	assert.False(t, unlimited.Full(500))

	assert.True(t, unlimited.Unadministered(0))
	assert.False(t, unlimited.Unadministered(1))
	assert.False(t, (&Team{ID: 12, AdminID: int64Ptr(1)}).Unadministered(0))
}
