package policy

import "github.com/platinummonkey/warden/pkg/accounts"

// TeamPolicy guards teams. Resources are *accounts.Team.
type TeamPolicy struct{}

// Allow implements Policy
func (TeamPolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	team, _ := resource.(*accounts.Team)

	switch action {
	case ActionIndex, ActionCreate, ActionDestroy:
		return accounts.IsSiteAdmin(actor)
	case ActionShow:
		return team != nil && (accounts.IsSiteAdmin(actor) || accounts.IsTeamMember(actor, team.ID))
	case ActionUpdate:
		return team != nil && (accounts.IsSiteAdmin(actor) || accounts.IsTeamAdmin(actor, team))
	}
	return false
}

// Scope implements Policy
func (TeamPolicy) Scope(actor *accounts.User) Filter {
	if accounts.IsAnyAdmin(actor) {
		return All()
	}
	if actor.TeamID != nil {
		return Eq("id", *actor.TeamID)
	}
	return None()
}

// EnterpriseGroupPolicy guards enterprise groups. Resources are *accounts.EnterpriseGroup.
type EnterpriseGroupPolicy struct{}

// Allow implements Policy. Destroying a group is left to super admins.
func (EnterpriseGroupPolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	group, _ := resource.(*accounts.EnterpriseGroup)

	switch action {
	case ActionIndex, ActionCreate:
		return accounts.IsSiteAdmin(actor)
	case ActionShow:
		return group != nil && (accounts.IsSiteAdmin(actor) || accounts.IsEnterpriseMember(actor, group.ID))
	case ActionUpdate:
		return group != nil && (accounts.IsSiteAdmin(actor) || accounts.IsEnterpriseAdmin(actor, group))
	}
	return false
}

// Scope implements Policy
func (EnterpriseGroupPolicy) Scope(actor *accounts.User) Filter {
	if accounts.IsAnyAdmin(actor) {
		return All()
	}
	if actor.EnterpriseGroupID != nil {
		return Eq("id", *actor.EnterpriseGroupID)
	}
	return None()
}

// InvitationPolicy guards invitations. Resources are *accounts.Invitation;
// for create, a prospective invitation naming the owner.
type InvitationPolicy struct{}

// Allow implements Policy
func (InvitationPolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	inv, _ := resource.(*accounts.Invitation)

	switch action {
	case ActionIndex:
		return accounts.IsSiteAdmin(actor) || accounts.IsTeamAdmin(actor, nil) || accounts.IsEnterpriseAdmin(actor, nil)
	case ActionShow, ActionCreate, ActionDestroy:
		return inv != nil && (accounts.IsSiteAdmin(actor) || managesOwner(actor, inv.OwnerKind, inv.OwnerID))
	}
	return false
}

// Scope implements Policy
func (InvitationPolicy) Scope(actor *accounts.User) Filter {
	if accounts.IsAnyAdmin(actor) {
		return All()
	}
	var terms []Filter
	if accounts.IsTeamAdmin(actor, nil) {
		terms = append(terms, And(Eq("owner_type", string(accounts.OwnerTeam)), Eq("owner_id", *actor.TeamID)))
	}
	if accounts.IsEnterpriseAdmin(actor, nil) {
		terms = append(terms, And(Eq("owner_type", string(accounts.OwnerEnterpriseGroup)), Eq("owner_id", *actor.EnterpriseGroupID)))
	}
	return Or(terms...)
}

func managesOwner(actor *accounts.User, kind accounts.OwnerKind, ownerID int64) bool {
	switch kind {
	case accounts.OwnerTeam:
		return accounts.IsTeamAdmin(actor, &accounts.Team{ID: ownerID})
	case accounts.OwnerEnterpriseGroup:
		return accounts.IsEnterpriseAdmin(actor, &accounts.EnterpriseGroup{ID: ownerID})
	}
	return false
}
