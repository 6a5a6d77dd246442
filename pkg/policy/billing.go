package policy

import "github.com/platinummonkey/warden/pkg/accounts"

// PlanPolicy guards billing plans. Resources are *accounts.Plan. Only super
// admins manage plans.
type PlanPolicy struct{}

// Allow implements Policy
func (PlanPolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	p, _ := resource.(*accounts.Plan)

	switch action {
	case ActionIndex:
		return true
	case ActionShow:
		return p != nil && (p.Active || accounts.IsSiteAdmin(actor))
	}
	return false
}

// Scope implements Policy
func (PlanPolicy) Scope(actor *accounts.User) Filter {
	if accounts.IsAnyAdmin(actor) {
		return All()
	}
	return Eq("active", true)
}

// SubscriptionPolicy guards subscriptions. Resources are *accounts.Subscription.
type SubscriptionPolicy struct{}

// Allow implements Policy
func (SubscriptionPolicy) Allow(actor *accounts.User, action Action, resource any) bool {
	s, _ := resource.(*accounts.Subscription)

	switch action {
	case ActionIndex:
		return accounts.IsSiteAdmin(actor) || accounts.IsTeamAdmin(actor, nil) || accounts.IsEnterpriseAdmin(actor, nil)
	case ActionCreate:
		return accounts.IsSiteAdmin(actor)
	case ActionShow, ActionUpdate, ActionDestroy:
		return s != nil && (accounts.IsSiteAdmin(actor) || administersSubscriber(actor, s))
	}
	return false
}

// Scope implements Policy
func (SubscriptionPolicy) Scope(actor *accounts.User) Filter {
	if accounts.IsAnyAdmin(actor) {
		return All()
	}
	var terms []Filter
	if accounts.IsTeamAdmin(actor, nil) {
		terms = append(terms, Eq("team_id", *actor.TeamID))
	}
	if accounts.IsEnterpriseAdmin(actor, nil) {
		terms = append(terms, Eq("enterprise_group_id", *actor.EnterpriseGroupID))
	}
	return Or(terms...)
}

func administersSubscriber(actor *accounts.User, s *accounts.Subscription) bool {
	if s.TeamID != nil && managesOwner(actor, accounts.OwnerTeam, *s.TeamID) {
		return true
	}
	return s.EnterpriseGroupID != nil && managesOwner(actor, accounts.OwnerEnterpriseGroup, *s.EnterpriseGroupID)
}
