package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/accounts"
)

// Policy decides what an actor may do with one kind of resource
type Policy interface {
	// Allow reports whether actor may perform action on resource. resource is
	// nil for collection-level actions such as index and create.
	Allow(actor *accounts.User, action Action, resource any) bool

	// Scope returns the filter limiting which records actor may see
	Scope(actor *accounts.User) Filter
}

// DenialObserver receives a callback for every denied decision
type DenialObserver interface {
	ObservePolicyDenial(kind, action string)
}

// Engine dispatches authorization questions to per-kind policies
type Engine struct {
	policies map[Kind]Policy
	observer DenialObserver
	log      *logrus.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for denial debug output
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithDenialObserver registers an observer notified of denials
func WithDenialObserver(o DenialObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// WithPolicy registers or replaces the policy for a kind
func WithPolicy(kind Kind, p Policy) Option {
	return func(e *Engine) { e.policies[kind] = p }
}

// NewEngine creates an engine with the default policy table
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policies: map[Kind]Policy{
			KindUser:               UserPolicy{},
			KindTeam:               TeamPolicy{},
			KindEnterpriseGroup:    EnterpriseGroupPolicy{},
			KindInvitation:         InvitationPolicy{},
			KindAnnouncement:       AnnouncementPolicy{},
			KindNotification:       NotificationPolicy{},
			KindPlan:               PlanPolicy{},
			KindSubscription:       SubscriptionPolicy{},
			KindEmailChangeRequest: EmailChangePolicy{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logrus.New()
	}
	return e
}

// Can reports whether actor may perform action on a resource of the given kind
func (e *Engine) Can(actor *accounts.User, action Action, kind Kind, resource any) bool {
	allowed := e.decide(actor, action, kind, resource)
	if !allowed {
		e.denied(actor, action, kind)
	}
	return allowed
}

// Authorize is Can expressed as an error
func (e *Engine) Authorize(actor *accounts.User, action Action, kind Kind, resource any) error {
	if !e.Can(actor, action, kind, resource) {
		return ErrUnauthorized
	}
	return nil
}

// Scope returns the visibility filter for actor over kind
func (e *Engine) Scope(actor *accounts.User, kind Kind) Filter {
	if !accounts.IsActive(actor) {
		return None()
	}
	p, ok := e.policies[kind]
	if !ok {
		return None()
	}
	return p.Scope(actor)
}

// CanImpersonate reports whether actor may impersonate target
func (e *Engine) CanImpersonate(actor, target *accounts.User) bool {
	return e.Can(actor, ActionImpersonate, KindUser, target)
}

func (e *Engine) decide(actor *accounts.User, action Action, kind Kind, resource any) bool {
	if !accounts.IsActive(actor) {
		return false
	}
	if selfRestricted(actor, action, kind, resource) {
		return false
	}
	if accounts.IsSuperAdmin(actor) {
		if kind == KindUser && action == ActionImpersonate {
			target, _ := resource.(*accounts.User)
			return target != nil && !accounts.IsSuperAdmin(target)
		}
		return true
	}
	p, ok := e.policies[kind]
	if !ok {
		return false
	}
	return p.Allow(actor, action, resource)
}

func (e *Engine) denied(actor *accounts.User, action Action, kind Kind) {
	if e.observer != nil {
		e.observer.ObservePolicyDenial(string(kind), string(action))
	}
	fields := logrus.Fields{"kind": kind, "action": action}
	if actor != nil {
		fields["actor_id"] = actor.ID
		fields["system_role"] = actor.SystemRole
	}
	e.log.WithFields(fields).Debug("policy denied")
}

// selfRestricted holds for every role, super_admin included
func selfRestricted(actor *accounts.User, action Action, kind Kind, resource any) bool {
	switch kind {
	case KindUser:
		target, ok := resource.(*accounts.User)
		if !ok || target == nil || target.ID != actor.ID {
			return false
		}
		switch action {
		case ActionManageStatus, ActionChangeRole, ActionDestroy, ActionImpersonate:
			return true
		}
	case KindEmailChangeRequest:
		if action != ActionApprove && action != ActionReject {
			return false
		}
		res, ok := resource.(EmailChangeResource)
		return ok && res.Request != nil && res.Request.UserID == actor.ID
	}
	return false
}

// CanAssignSystemRole reports whether actor may move target to system role to.
// Only super admins grant or revoke super_admin. Nobody changes their own role.
func CanAssignSystemRole(actor, target *accounts.User, to accounts.SystemRole) bool {
	if !accounts.IsActive(actor) || target == nil || actor.ID == target.ID || !to.Valid() {
		return false
	}
	if accounts.IsSuperAdmin(actor) {
		return true
	}
	if accounts.IsSiteAdmin(actor) {
		return !accounts.IsSuperAdmin(target) && to != accounts.SystemRoleSuperAdmin
	}
	return false
}
