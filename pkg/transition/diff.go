package transition

import "github.com/platinummonkey/warden/pkg/accounts"

// Watched fields, in the order they are reported
const (
	FieldUsername            = "username"
	FieldFullName            = "full_name"
	FieldSystemRole          = "system_role"
	FieldStatus              = "status"
	FieldTeamID              = "team_id"
	FieldTeamRole            = "team_role"
	FieldEnterpriseGroupID   = "enterprise_group_id"
	FieldEnterpriseGroupRole = "enterprise_group_role"
)

var watchedFields = []string{
	FieldUsername, FieldFullName, FieldSystemRole, FieldStatus,
	FieldTeamID, FieldTeamRole, FieldEnterpriseGroupID, FieldEnterpriseGroupRole,
}

// Audit actions derived from a diff
const (
	ActionStatusChange      = "status_change"
	ActionRoleChange        = "role_change"
	ActionTeamRoleChange    = "team_role_change"
	ActionAssociationChange = "association_change"
	ActionProfileUpdate     = "profile_update"
	ActionUserUpdate        = "user_update"
)

// AdminTransfer records a team admin handover caused by a promotion or by
// joining a team that has no admin
type AdminTransfer struct {
	TeamID          int64
	PreviousAdminID *int64
	NewAdminID      int64
}

// Diff is the outcome of a validated change: before and after snapshots of
// the target plus any side effects the change implies
type Diff struct {
	Before        *accounts.User
	After         *accounts.User
	Fields        []string
	AdminTransfer *AdminTransfer
}

// Empty reports whether nothing would change
func (d Diff) Empty() bool { return len(d.Fields) == 0 }

// Has reports whether field changes
func (d Diff) Has(field string) bool {
	for _, f := range d.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Deactivated reports whether the user leaves the active status
func (d Diff) Deactivated() bool {
	return d.Has(FieldStatus) && d.Before.Status == accounts.StatusActive && d.After.Status != accounts.StatusActive
}

// Details returns old_<field>/new_<field> pairs for every changed field
func (d Diff) Details() map[string]any {
	details := make(map[string]any, len(d.Fields)*2+1)
	for _, f := range d.Fields {
		details["old_"+f] = fieldValue(d.Before, f)
		details["new_"+f] = fieldValue(d.After, f)
	}
	if d.AdminTransfer != nil && d.AdminTransfer.PreviousAdminID != nil {
		details["previous_admin_id"] = *d.AdminTransfer.PreviousAdminID
	}
	return details
}

// Action names the audit action for this diff. Diffs spanning more than one
// kind of change are recorded as user_update.
func (d Diff) Action() string {
	kinds := map[string]bool{}
	for _, f := range d.Fields {
		switch f {
		case FieldUsername, FieldFullName:
			kinds[ActionProfileUpdate] = true
		case FieldSystemRole:
			kinds[ActionRoleChange] = true
		case FieldStatus:
			kinds[ActionStatusChange] = true
		case FieldTeamRole, FieldEnterpriseGroupRole:
			kinds[ActionTeamRoleChange] = true
		case FieldTeamID, FieldEnterpriseGroupID:
			kinds[ActionAssociationChange] = true
		}
	}
	// joining or leaving a tenant always moves the membership role with it
	if kinds[ActionAssociationChange] {
		delete(kinds, ActionTeamRoleChange)
	}
	if len(kinds) == 1 {
		for k := range kinds {
			return k
		}
	}
	return ActionUserUpdate
}

func fieldValue(u *accounts.User, field string) any {
	switch field {
	case FieldUsername:
		return u.Username
	case FieldFullName:
		return u.FullName
	case FieldSystemRole:
		return string(u.SystemRole)
	case FieldStatus:
		return string(u.Status)
	case FieldTeamID:
		return int64OrNil(u.TeamID)
	case FieldTeamRole:
		return roleOrNil(u.TeamRole)
	case FieldEnterpriseGroupID:
		return int64OrNil(u.EnterpriseGroupID)
	case FieldEnterpriseGroupRole:
		return roleOrNil(u.EnterpriseGroupRole)
	}
	return nil
}

func int64OrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func roleOrNil(r *accounts.MembershipRole) any {
	if r == nil {
		return nil
	}
	return string(*r)
}

func changedFields(before, after *accounts.User) []string {
	var fields []string
	for _, f := range watchedFields {
		if fieldValue(before, f) != fieldValue(after, f) {
			fields = append(fields, f)
		}
	}
	return fields
}
