package policy

import "github.com/platinummonkey/warden/pkg/accounts"

const (
	teamA  int64 = 10
	teamB  int64 = 11
	groupA int64 = 20
)

func role(r accounts.MembershipRole) *accounts.MembershipRole { return &r }
func id(v int64) *int64                                      { return &v }

func newUser(userID int64, sys accounts.SystemRole) *accounts.User {
	return &accounts.User{
		ID:         userID,
		Email:      "user@example.com",
		Username:   "user",
		SystemRole: sys,
		UserType:   accounts.UserTypeDirect,
		Status:     accounts.StatusActive,
	}
}

func teamUser(userID, team int64, r accounts.MembershipRole) *accounts.User {
	u := newUser(userID, accounts.SystemRoleUser)
	u.UserType = accounts.UserTypeInvited
	u.TeamID = id(team)
	u.TeamRole = role(r)
	return u
}

func groupUser(userID, group int64, r accounts.MembershipRole) *accounts.User {
	u := newUser(userID, accounts.SystemRoleUser)
	u.UserType = accounts.UserTypeEnterprise
	u.EnterpriseGroupID = id(group)
	u.EnterpriseGroupRole = role(r)
	return u
}

type cast struct {
	superAdmin, otherSuper  *accounts.User
	siteAdmin, otherSite    *accounts.User
	teamAdmin, teamMember   *accounts.User
	otherTeamMember         *accounts.User
	groupAdmin, groupMember *accounts.User
	direct                  *accounts.User
}

func newCast() cast {
	return cast{
		superAdmin:      newUser(1, accounts.SystemRoleSuperAdmin),
		otherSuper:      newUser(2, accounts.SystemRoleSuperAdmin),
		siteAdmin:       newUser(3, accounts.SystemRoleSiteAdmin),
		otherSite:       newUser(4, accounts.SystemRoleSiteAdmin),
		teamAdmin:       teamUser(5, teamA, accounts.MembershipRoleAdmin),
		teamMember:      teamUser(6, teamA, accounts.MembershipRoleMember),
		otherTeamMember: teamUser(7, teamB, accounts.MembershipRoleMember),
		groupAdmin:      groupUser(8, groupA, accounts.MembershipRoleAdmin),
		groupMember:     groupUser(9, groupA, accounts.MembershipRoleMember),
		direct:          newUser(12, accounts.SystemRoleUser),
	}
}
