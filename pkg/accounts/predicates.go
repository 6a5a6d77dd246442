package accounts

// IsActive reports whether the user account is active
func IsActive(u *User) bool {
	return u != nil && u.Status == StatusActive
}

// IsSuperAdmin reports whether the user holds the super_admin system role
func IsSuperAdmin(u *User) bool {
	return u != nil && u.SystemRole == SystemRoleSuperAdmin
}

// IsSiteAdmin reports whether the user holds the site_admin system role
func IsSiteAdmin(u *User) bool {
	return u != nil && u.SystemRole == SystemRoleSiteAdmin
}

// IsAnyAdmin reports whether the user is a site or super admin
func IsAnyAdmin(u *User) bool {
	return IsSuperAdmin(u) || IsSiteAdmin(u)
}

// IsPlainUser reports whether the user holds no system-level privilege
func IsPlainUser(u *User) bool {
	return u != nil && u.SystemRole == SystemRoleUser
}

// IsTeamAdmin reports whether u administers team. A nil team checks for
// admin rights in whatever team u belongs to.
func IsTeamAdmin(u *User, team *Team) bool {
	if u == nil || u.TeamID == nil || u.TeamRole == nil || *u.TeamRole != MembershipRoleAdmin {
		return false
	}
	if team == nil {
		return true
	}
	return *u.TeamID == team.ID
}

// IsEnterpriseAdmin reports whether u administers group. A nil group checks
// for admin rights in whatever group u belongs to.
func IsEnterpriseAdmin(u *User, group *EnterpriseGroup) bool {
	if u == nil || u.EnterpriseGroupID == nil || u.EnterpriseGroupRole == nil || *u.EnterpriseGroupRole != MembershipRoleAdmin {
		return false
	}
	if group == nil {
		return true
	}
	return *u.EnterpriseGroupID == group.ID
}

// IsTeamMember reports whether u belongs to the team with the given ID
func IsTeamMember(u *User, teamID int64) bool {
	return u != nil && u.TeamID != nil && *u.TeamID == teamID
}

// IsEnterpriseMember reports whether u belongs to the group with the given ID
func IsEnterpriseMember(u *User, groupID int64) bool {
	return u != nil && u.EnterpriseGroupID != nil && *u.EnterpriseGroupID == groupID
}

// SameTeam reports whether both users belong to the same team
func SameTeam(a, b *User) bool {
	if a == nil || b == nil || a.TeamID == nil || b.TeamID == nil {
		return false
	}
	return *a.TeamID == *b.TeamID
}

// SameEnterpriseGroup reports whether both users belong to the same enterprise group
func SameEnterpriseGroup(a, b *User) bool {
	if a == nil || b == nil || a.EnterpriseGroupID == nil || b.EnterpriseGroupID == nil {
		return false
	}
	return *a.EnterpriseGroupID == *b.EnterpriseGroupID
}
