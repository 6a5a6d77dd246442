package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/notifications"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/transition"
)

// RequestContext describes the request that triggered a service call
type RequestContext = audit.RequestInfo

// Service is the only path that mutates a user's role, status, association
// or profile fields
type Service struct {
	store    Store
	engine   *policy.Engine
	recorder *audit.Recorder
	notifier notifications.Sink
	metrics  *observability.Metrics
	log      *logrus.Logger
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records transition counts and durations
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a user service. A nil recorder or notifier discards
// audit entries or notifications.
func NewService(store Store, engine *policy.Engine, recorder *audit.Recorder, notifier notifications.Sink, log *logrus.Logger, opts ...Option) *Service {
	if log == nil {
		log = logrus.New()
	}
	if engine == nil {
		engine = policy.NewEngine(policy.WithLogger(log))
	}
	if recorder == nil {
		recorder = audit.NewRecorder(log, nil)
	}
	if notifier == nil {
		notifier = notifications.NopSink{}
	}
	s := &Service{
		store:    store,
		engine:   engine,
		recorder: recorder,
		notifier: notifier,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PerformTransition applies a loosely typed change map, as decoded from a
// request body, to the target user
func (s *Service) PerformTransition(ctx context.Context, actor *accounts.User, targetID int64, requested map[string]any, req RequestContext) Result {
	change, err := transition.ParseChange(requested)
	if err != nil {
		kind, msg := classify(err)
		s.metrics.ObserveTransition("perform_transition", "none", string(kind), 0)
		return failed(kind, msg)
	}
	return s.apply(ctx, "perform_transition", actor, targetID, change, req)
}

// Apply applies a typed change to the target user
func (s *Service) Apply(ctx context.Context, actor *accounts.User, targetID int64, change transition.Change, req RequestContext) Result {
	return s.apply(ctx, "apply", actor, targetID, change, req)
}

// UpdateProfile changes username and full name. Nil values are left alone.
func (s *Service) UpdateProfile(ctx context.Context, actor *accounts.User, targetID int64, username, fullName *string, req RequestContext) Result {
	return s.apply(ctx, "update_profile", actor, targetID, transition.Change{Username: username, FullName: fullName}, req)
}

// ChangeStatus moves the target to status. Leaving active resets sessions.
func (s *Service) ChangeStatus(ctx context.Context, actor *accounts.User, targetID int64, status accounts.Status, req RequestContext) Result {
	return s.apply(ctx, "change_status", actor, targetID, transition.Change{Status: &status}, req)
}

// ChangeSystemRole moves the target to role
func (s *Service) ChangeSystemRole(ctx context.Context, actor *accounts.User, targetID int64, role accounts.SystemRole, req RequestContext) Result {
	return s.apply(ctx, "change_system_role", actor, targetID, transition.Change{SystemRole: &role}, req)
}

// ChangeTeamRole promotes or demotes the target within its team. Promotion
// hands the team's admin seat to the target.
func (s *Service) ChangeTeamRole(ctx context.Context, actor *accounts.User, targetID int64, role accounts.MembershipRole, req RequestContext) Result {
	return s.apply(ctx, "change_team_role", actor, targetID, transition.Change{TeamRole: &role}, req)
}

// ChangeTeamAssociation moves the target into teamID as a member, or out of
// its team when teamID is nil. The first user into a team without an admin
// becomes its admin.
func (s *Service) ChangeTeamAssociation(ctx context.Context, actor *accounts.User, targetID int64, teamID *int64, req RequestContext) Result {
	change := transition.Change{Team: &transition.Association{ID: teamID, Role: accounts.MembershipRoleMember}}
	return s.apply(ctx, "change_team_association", actor, targetID, change, req)
}

// ChangeEnterpriseAssociation moves the target into an enterprise group with role
func (s *Service) ChangeEnterpriseAssociation(ctx context.Context, actor *accounts.User, targetID int64, groupID *int64, role accounts.MembershipRole, req RequestContext) Result {
	change := transition.Change{EnterpriseGroup: &transition.Association{ID: groupID, Role: role}}
	return s.apply(ctx, "change_enterprise_association", actor, targetID, change, req)
}

// Get returns the user if actor may see it
func (s *Service) Get(ctx context.Context, actor *accounts.User, id int64) (*accounts.User, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(actor, policy.ActionShow, policy.KindUser, u); err != nil {
		return nil, err
	}
	return u, nil
}

// List returns the users visible to actor
func (s *Service) List(ctx context.Context, actor *accounts.User, opts ListOptions) ([]*accounts.User, error) {
	return s.store.List(ctx, s.engine.Scope(actor, policy.KindUser), opts)
}

// CanImpersonate reports whether actor may impersonate the target
func (s *Service) CanImpersonate(ctx context.Context, actor *accounts.User, targetID int64) (bool, error) {
	target, err := s.store.Get(ctx, targetID)
	if err != nil {
		return false, err
	}
	return s.engine.CanImpersonate(actor, target), nil
}

func (s *Service) apply(ctx context.Context, operation string, actor *accounts.User, targetID int64, change transition.Change, req RequestContext) Result {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "users."+operation, trace.WithAttributes(
		attribute.Int64("warden.target_id", targetID),
	))
	defer span.End()
	if actor != nil {
		span.SetAttributes(attribute.Int64("warden.actor_id", actor.ID))
	}

	var (
		diff    transition.Diff
		updated *accounts.User
	)
	err := s.store.WithTx(ctx, func(tx Tx) error {
		current, err := tx.LoadUser(ctx, targetID)
		if err != nil {
			return err
		}
		if err := transition.CheckImmutable(current, change); err != nil {
			return err
		}
		if err := s.authorize(actor, current, change); err != nil {
			return err
		}

		tenants, err := loadTenantContext(ctx, tx, current, change)
		if err != nil {
			return err
		}
		diff, err = transition.Validate(current, change, tenants)
		if err != nil {
			return err
		}
		if diff.Empty() {
			updated = current
			return nil
		}
		if err := diff.After.Validate(); err != nil {
			return err
		}

		if err := applyDiff(ctx, tx, diff); err != nil {
			return err
		}
		updated, err = tx.LoadUser(ctx, targetID)
		return err
	})

	log := observability.WithTrace(ctx, s.log).WithFields(logrus.Fields{
		"operation": operation,
		"target_id": targetID,
	})
	if actor != nil {
		log = log.WithField("actor_id", actor.ID)
	}

	if err != nil {
		kind, msg := classify(err)
		s.metrics.ObserveTransition(operation, "none", string(kind), time.Since(start))
		span.SetStatus(codes.Error, string(kind))
		if kind == KindConstraint {
			span.RecordError(err)
			log.WithError(err).Error("user transition failed")
		} else {
			log.WithError(err).WithField("kind", kind).Info("user transition rejected")
		}
		return failed(kind, msg)
	}

	if diff.Empty() {
		s.metrics.ObserveTransition(operation, "none", "noop", time.Since(start))
		return succeeded(updated, false)
	}

	action := diff.Action()
	span.SetAttributes(attribute.String("warden.action", action))
	s.metrics.ObserveTransition(operation, action, "success", time.Since(start))
	log.WithFields(logrus.Fields{"action": action, "fields": diff.Fields}).Info("user transition applied")

	s.recorder.Record(ctx, audit.NewEntry(actor.ID, targetID, action, diff.Details(), req))

	payload := diff.Details()
	payload["actor_id"] = actor.ID
	to := notifications.Recipient{UserID: updated.ID, Email: updated.Email}
	if err := s.notifier.Notify(ctx, to, action, payload); err != nil {
		log.WithError(err).Warn("failed to enqueue notification")
	}

	return succeeded(updated, true)
}

// authorize checks every action the change implies. Fields requested at
// their current value imply nothing; a change implying nothing needs update.
func (s *Service) authorize(actor, target *accounts.User, c transition.Change) error {
	actions := requiredActions(target, c)
	for _, action := range actions {
		if err := s.engine.Authorize(actor, action, policy.KindUser, target); err != nil {
			return err
		}
	}
	if c.SystemRole != nil && *c.SystemRole != target.SystemRole && c.SystemRole.Valid() {
		if !policy.CanAssignSystemRole(actor, target, *c.SystemRole) {
			return policy.ErrUnauthorized
		}
	}
	return nil
}

func requiredActions(current *accounts.User, c transition.Change) []policy.Action {
	var actions []policy.Action
	seen := map[policy.Action]bool{}
	add := func(a policy.Action) {
		if !seen[a] {
			seen[a] = true
			actions = append(actions, a)
		}
	}

	if (c.Username != nil && *c.Username != current.Username) ||
		(c.FullName != nil && *c.FullName != current.FullName) {
		add(policy.ActionUpdate)
	}
	if c.Status != nil && *c.Status != current.Status {
		add(policy.ActionManageStatus)
	}
	if c.SystemRole != nil && *c.SystemRole != current.SystemRole {
		add(policy.ActionChangeRole)
	}
	if c.TeamRole != nil && !sameRole(c.TeamRole, current.TeamRole) {
		add(policy.ActionChangeTeamRole)
	}
	if c.EnterpriseGroupRole != nil && !sameRole(c.EnterpriseGroupRole, current.EnterpriseGroupRole) {
		add(policy.ActionChangeTeamRole)
	}
	if c.Team != nil && !sameID(c.Team.ID, current.TeamID) {
		add(policy.ActionChangeAssociation)
	}
	if c.EnterpriseGroup != nil && !sameID(c.EnterpriseGroup.ID, current.EnterpriseGroupID) {
		add(policy.ActionChangeAssociation)
	}

	if len(actions) == 0 {
		add(policy.ActionUpdate)
	}
	return actions
}

func loadTenantContext(ctx context.Context, tx Tx, current *accounts.User, c transition.Change) (transition.TenantContext, error) {
	var tc transition.TenantContext
	var err error

	if current.TeamID != nil {
		if tc.Team, err = tx.LoadTeam(ctx, *current.TeamID); err != nil {
			return tc, err
		}
		if tc.TeamAdminCount, err = tx.CountTeamAdmins(ctx, *current.TeamID); err != nil {
			return tc, err
		}
	}
	if c.Team != nil && c.Team.ID != nil && current.UserType.AllowsTeam() && !sameID(c.Team.ID, current.TeamID) {
		tc.DestinationTeam, err = tx.LoadTeam(ctx, *c.Team.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return tc, &transition.Error{Field: transition.FieldTeamID, Message: "Team not found"}
		}
		if err != nil {
			return tc, err
		}
		if tc.DestinationTeamMembers, err = tx.CountTeamMembers(ctx, *c.Team.ID); err != nil {
			return tc, err
		}
		if tc.DestinationTeamAdmins, err = tx.CountTeamAdmins(ctx, *c.Team.ID); err != nil {
			return tc, err
		}
	}

	if current.EnterpriseGroupID != nil {
		if tc.EnterpriseGroup, err = tx.LoadEnterpriseGroup(ctx, *current.EnterpriseGroupID); err != nil {
			return tc, err
		}
		if tc.EnterpriseAdminCount, err = tx.CountEnterpriseAdmins(ctx, *current.EnterpriseGroupID); err != nil {
			return tc, err
		}
	}
	if c.EnterpriseGroup != nil && c.EnterpriseGroup.ID != nil && current.UserType.AllowsEnterpriseGroup() && !sameID(c.EnterpriseGroup.ID, current.EnterpriseGroupID) {
		_, err := tx.LoadEnterpriseGroup(ctx, *c.EnterpriseGroup.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return tc, &transition.Error{Field: transition.FieldEnterpriseGroupID, Message: "Enterprise group not found"}
		}
		if err != nil {
			return tc, err
		}
	}
	return tc, nil
}

// applyDiff writes each changed field through its narrow Tx method
func applyDiff(ctx context.Context, tx Tx, d transition.Diff) error {
	id, after := d.After.ID, d.After

	if d.Has(transition.FieldUsername) || d.Has(transition.FieldFullName) {
		if err := tx.ApplyProfileUpdate(ctx, id, after.Username, after.FullName); err != nil {
			return err
		}
	}
	if d.Has(transition.FieldSystemRole) {
		if err := tx.ApplySystemRoleChange(ctx, id, after.SystemRole); err != nil {
			return err
		}
	}
	if d.Has(transition.FieldStatus) {
		if err := tx.ApplyStatusChange(ctx, id, after.Status); err != nil {
			return err
		}
		if after.Status != accounts.StatusActive {
			if err := tx.ResetSessions(ctx, id); err != nil {
				return err
			}
		}
	}

	switch {
	case d.Has(transition.FieldTeamID):
		if err := tx.ApplyTeamAssociation(ctx, id, after.TeamID, after.TeamRole); err != nil {
			return err
		}
	case d.Has(transition.FieldTeamRole):
		if err := tx.ApplyTeamRoleChange(ctx, id, *after.TeamRole); err != nil {
			return err
		}
	}
	if d.AdminTransfer != nil {
		if err := tx.TransferTeamAdmin(ctx, *d.AdminTransfer); err != nil {
			return fmt.Errorf("transfer team admin: %w", err)
		}
	}

	switch {
	case d.Has(transition.FieldEnterpriseGroupID):
		if err := tx.ApplyEnterpriseAssociation(ctx, id, after.EnterpriseGroupID, after.EnterpriseGroupRole); err != nil {
			return err
		}
	case d.Has(transition.FieldEnterpriseGroupRole):
		if err := tx.ApplyEnterpriseRoleChange(ctx, id, *after.EnterpriseGroupRole); err != nil {
			return err
		}
	}
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameRole(a, b *accounts.MembershipRole) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
