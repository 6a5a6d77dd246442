package policy

import "github.com/platinummonkey/warden/pkg/accounts"

// UserPolicy guards user accounts. Resources are *accounts.User targets.
type UserPolicy struct{}

// Allow implements Policy
func (UserPolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	target, _ := resource.(*accounts.User)
	self := target != nil && target.ID == actor.ID

	switch action {
	case ActionIndex:
		return accounts.IsSiteAdmin(actor) || accounts.IsTeamAdmin(actor, nil) || accounts.IsEnterpriseAdmin(actor, nil)
	case ActionShow:
		if target == nil {
			return false
		}
		return self || accounts.IsSiteAdmin(actor) ||
			accounts.SameTeam(actor, target) || accounts.SameEnterpriseGroup(actor, target)
	case ActionCreate:
		return accounts.IsSiteAdmin(actor)
	case ActionUpdate:
		return self || siteAdminOver(actor, target) || tenantAdminOver(actor, target)
	case ActionDestroy:
		return accounts.IsSiteAdmin(actor) && accounts.IsPlainUser(target)
	case ActionManageStatus:
		return siteAdminOver(actor, target) || tenantAdminOver(actor, target)
	case ActionChangeRole, ActionChangeAssociation:
		return siteAdminOver(actor, target)
	case ActionChangeTeamRole:
		if siteAdminOver(actor, target) {
			return true
		}
		return accounts.IsTeamAdmin(actor, nil) && accounts.SameTeam(actor, target) &&
			(self || accounts.IsPlainUser(target))
	case ActionImpersonate:
		return accounts.IsSiteAdmin(actor) && accounts.IsPlainUser(target)
	}
	return false
}

// Scope implements Policy. Members see themselves and their tenant mates.
func (UserPolicy) Scope(actor *accounts.User) Filter {
	if accounts.IsAnyAdmin(actor) {
		return All()
	}
	terms := []Filter{Eq("id", actor.ID)}
	if actor.TeamID != nil {
		terms = append(terms, Eq("team_id", *actor.TeamID))
	}
	if actor.EnterpriseGroupID != nil {
		terms = append(terms, Eq("enterprise_group_id", *actor.EnterpriseGroupID))
	}
	return Or(terms...)
}

// site admins act on anyone but super admins
func siteAdminOver(actor, target *accounts.User) bool {
	return target != nil && accounts.IsSiteAdmin(actor) && !accounts.IsSuperAdmin(target)
}

// tenant admins act on plain users of their own team or group
func tenantAdminOver(actor, target *accounts.User) bool {
	if target == nil || !accounts.IsPlainUser(target) {
		return false
	}
	if accounts.IsTeamAdmin(actor, nil) && accounts.SameTeam(actor, target) {
		return true
	}
	return accounts.IsEnterpriseAdmin(actor, nil) && accounts.SameEnterpriseGroup(actor, target)
}
