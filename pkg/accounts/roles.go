package accounts

import "fmt"

// SystemRole is the platform-wide privilege level of a user
type SystemRole string

const (
	SystemRoleUser       SystemRole = "user"
	SystemRoleSiteAdmin  SystemRole = "site_admin"
	SystemRoleSuperAdmin SystemRole = "super_admin"
)

// Valid reports whether r is a known system role
func (r SystemRole) Valid() bool {
	switch r {
	case SystemRoleUser, SystemRoleSiteAdmin, SystemRoleSuperAdmin:
		return true
	}
	return false
}

// UserType is the immutable account category. It decides which tenant
// association a user may hold.
type UserType string

const (
	UserTypeDirect     UserType = "direct"
	UserTypeInvited    UserType = "invited"
	UserTypeEnterprise UserType = "enterprise"
)

// Valid reports whether t is a known user type
func (t UserType) Valid() bool {
	switch t {
	case UserTypeDirect, UserTypeInvited, UserTypeEnterprise:
		return true
	}
	return false
}

// AllowsTeam reports whether users of this type may belong to a team
func (t UserType) AllowsTeam() bool {
	return t == UserTypeInvited
}

// AllowsEnterpriseGroup reports whether users of this type may belong to an enterprise group
func (t UserType) AllowsEnterpriseGroup() bool {
	return t == UserTypeEnterprise
}

// Status is the lifecycle status of a user account
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusLocked   Status = "locked"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusLocked:
		return true
	}
	return false
}

// MembershipRole is a per-tenant role, used for both teams and enterprise groups
type MembershipRole string

const (
	MembershipRoleMember MembershipRole = "member"
	MembershipRoleAdmin  MembershipRole = "admin"
)

// Valid reports whether r is a known membership role
func (r MembershipRole) Valid() bool {
	return r == MembershipRoleMember || r == MembershipRoleAdmin
}

// ParseSystemRole converts a raw value into a SystemRole
func ParseSystemRole(raw string) (SystemRole, error) {
	r := SystemRole(raw)
	if !r.Valid() {
		return "", fmt.Errorf("unknown system role %q", raw)
	}
	return r, nil
}

// ParseUserType converts a raw value into a UserType
func ParseUserType(raw string) (UserType, error) {
	t := UserType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("unknown user type %q", raw)
	}
	return t, nil
}

// ParseStatus converts a raw value into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// ParseMembershipRole converts a raw value into a MembershipRole
func ParseMembershipRole(raw string) (MembershipRole, error) {
	r := MembershipRole(raw)
	if !r.Valid() {
		return "", fmt.Errorf("unknown membership role %q", raw)
	}
	return r, nil
}
