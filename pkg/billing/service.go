package billing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/notifications"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/users"
)

// PlanRequest describes a new plan
type PlanRequest struct {
	Name       string
	PriceCents int64
	Interval   accounts.BillingInterval
	MaxMembers int
}

// Subscriber names the tenant a subscription belongs to
type Subscriber struct {
	Kind accounts.OwnerKind
	ID   int64
}

// Service manages plans and subscriptions
type Service struct {
	store    *SQLStore
	engine   *policy.Engine
	recorder *audit.Recorder
	notifier notifications.Sink
	log      *logrus.Logger
	now      func() time.Time
}

// NewService creates the billing service
func NewService(store *SQLStore, engine *policy.Engine, recorder *audit.Recorder, notifier notifications.Sink, log *logrus.Logger) *Service {
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
	return &Service{
		store:    store,
		engine:   engine,
		recorder: recorder,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// ListPlans returns the plans visible to actor
func (s *Service) ListPlans(ctx context.Context, actor *accounts.User, opts ListOptions) ([]*accounts.Plan, error) {
	return s.store.ListPlans(ctx, s.engine.Scope(actor, policy.KindPlan), opts)
}

// CreatePlan adds an active plan
func (s *Service) CreatePlan(ctx context.Context, actor *accounts.User, req PlanRequest, info audit.RequestInfo) (*accounts.Plan, error) {
	if err := s.engine.Authorize(actor, policy.ActionCreate, policy.KindPlan, nil); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name can't be blank", ErrInvalidPlan)
	case req.PriceCents < 0:
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidPlan)
	case req.Interval != accounts.IntervalMonth && req.Interval != accounts.IntervalYear:
		return nil, fmt.Errorf("%w: unknown interval %q", ErrInvalidPlan, req.Interval)
	case req.MaxMembers < 1:
		return nil, fmt.Errorf("%w: member limit must be positive", ErrInvalidPlan)
	}

	plan := &accounts.Plan{
		Name:       name,
		PriceCents: req.PriceCents,
		Interval:   req.Interval,
		MaxMembers: req.MaxMembers,
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}

	entry := audit.NewEntry(actor.ID, 0, audit.ActionPlanCreated, map[string]any{
		"plan_id":     plan.ID,
		"name":        plan.Name,
		"price_cents": plan.PriceCents,
		"max_members": plan.MaxMembers,
	}, info)
	entry.TargetID = nil
	s.recorder.Record(ctx, entry)
	return plan, nil
}

// Subscribe starts a subscription for a tenant without a live one
func (s *Service) Subscribe(ctx context.Context, actor *accounts.User, to Subscriber, planID int64, info audit.RequestInfo) (*accounts.Subscription, error) {
	if err := s.engine.Authorize(actor, policy.ActionCreate, policy.KindSubscription, nil); err != nil {
		return nil, err
	}
	if !to.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubscriber, to.Kind)
	}

	var sub *accounts.Subscription
	var plan *accounts.Plan
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		plan, err = getPlan(ctx, tx, planID)
		if err != nil {
			return err
		}
		if !plan.Active {
			return ErrPlanInactive
		}

		utx := users.BindTx(tx, s.store.dialect)
		column := "team_id"
		switch to.Kind {
		case accounts.OwnerTeam:
			if _, err := utx.LoadTeam(ctx, to.ID); err != nil {
				return err
			}
			if err := s.checkHeadCount(ctx, utx, to.ID, plan); err != nil {
				return err
			}
		case accounts.OwnerEnterpriseGroup:
			column = "enterprise_group_id"
			if _, err := utx.LoadEnterpriseGroup(ctx, to.ID); err != nil {
				return err
			}
		}
		live, err := s.store.countLive(ctx, tx, column, to.ID)
		if err != nil {
			return err
		}
		if live > 0 {
			return ErrAlreadySubscribed
		}

		now := s.now().UTC()
		sub = &accounts.Subscription{
			PlanID:           plan.ID,
			Status:           accounts.SubscriptionActive,
			CurrentPeriodEnd: periodEnd(now, plan.Interval),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		id := to.ID
		if to.Kind == accounts.OwnerTeam {
			sub.TeamID = &id
		} else {
			sub.EnterpriseGroupID = &id
		}
		if err := s.store.insertSubscription(ctx, tx, sub); err != nil {
			return err
		}
		if sub.TeamID != nil {
			return s.store.setTeamLimit(ctx, tx, *sub.TeamID, plan.MaxMembers, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := audit.NewEntry(actor.ID, 0, audit.ActionPlanChange, map[string]any{
		"subscription_id": sub.ID,
		"to_plan_id":      plan.ID,
		"subscriber_type": string(to.Kind),
		"subscriber_id":   to.ID,
	}, info)
	entry.TargetID = nil
	s.recorder.Record(ctx, entry)
	return sub, nil
}

// GetSubscription returns a subscription if actor may see it
func (s *Service) GetSubscription(ctx context.Context, actor *accounts.User, id int64) (*accounts.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(actor, policy.ActionShow, policy.KindSubscription, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubscriptions returns the subscriptions visible to actor
func (s *Service) ListSubscriptions(ctx context.Context, actor *accounts.User, opts ListOptions) ([]*accounts.Subscription, error) {
	return s.store.ListSubscriptions(ctx, s.engine.Scope(actor, policy.KindSubscription), opts)
}

// ChangePlan moves a live subscription to another plan. A team's member
// limit follows the plan.
func (s *Service) ChangePlan(ctx context.Context, actor *accounts.User, subscriptionID, planID int64, info audit.RequestInfo) (*accounts.Subscription, error) {
	var (
		sub     *accounts.Subscription
		from    int64
		plan    *accounts.Plan
		adminID *int64
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		sub, err = s.store.loadSubscription(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if err := s.engine.Authorize(actor, policy.ActionUpdate, policy.KindSubscription, sub); err != nil {
			return err
		}
		if sub.Status == accounts.SubscriptionCanceled {
			return ErrSubscriptionCanceled
		}
		plan, err = getPlan(ctx, tx, planID)
		if err != nil {
			return err
		}
		if !plan.Active {
			return ErrPlanInactive
		}
		from = sub.PlanID
		if from == plan.ID {
			return nil
		}

		utx := users.BindTx(tx, s.store.dialect)
		if adminID, err = subscriberAdmin(ctx, utx, sub); err != nil {
			return err
		}
		now := s.now().UTC()
		if sub.TeamID != nil {
			if err := s.checkHeadCount(ctx, utx, *sub.TeamID, plan); err != nil {
				return err
			}
			if err := s.store.setTeamLimit(ctx, tx, *sub.TeamID, plan.MaxMembers, now); err != nil {
				return err
			}
		}
		end := periodEnd(now, plan.Interval)
		if err := s.store.updatePlan(ctx, tx, sub.ID, plan.ID, end, now); err != nil {
			return err
		}
		sub.PlanID = plan.ID
		sub.CurrentPeriodEnd = end
		sub.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from == plan.ID {
		return sub, nil
	}

	details := map[string]any{
		"subscription_id": sub.ID,
		"from_plan_id":    from,
		"to_plan_id":      plan.ID,
		"max_members":     plan.MaxMembers,
	}
	entry := audit.NewEntry(actor.ID, 0, audit.ActionPlanChange, details, info)
	entry.TargetID = nil
	s.recorder.Record(ctx, entry)
	s.notifyAdmin(ctx, adminID, notifications.EventPlanChanged, details)

	s.log.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"from_plan_id":    from,
		"to_plan_id":      plan.ID,
		"actor_id":        actor.ID,
	}).Info("plan changed")
	return sub, nil
}

// CancelSubscription ends a subscription. A team falls back to the default
// member limit.
func (s *Service) CancelSubscription(ctx context.Context, actor *accounts.User, subscriptionID int64, info audit.RequestInfo) (*accounts.Subscription, error) {
	var (
		sub     *accounts.Subscription
		adminID *int64
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		sub, err = s.store.loadSubscription(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if err := s.engine.Authorize(actor, policy.ActionDestroy, policy.KindSubscription, sub); err != nil {
			return err
		}
		if sub.Status == accounts.SubscriptionCanceled {
			return ErrSubscriptionCanceled
		}

		utx := users.BindTx(tx, s.store.dialect)
		if adminID, err = subscriberAdmin(ctx, utx, sub); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.store.cancel(ctx, tx, sub.ID, now); err != nil {
			return err
		}
		if sub.TeamID != nil {
			if err := s.store.setTeamLimit(ctx, tx, *sub.TeamID, accounts.DefaultTeamMaxMembers, now); err != nil {
				return err
			}
		}
		sub.Status = accounts.SubscriptionCanceled
		sub.CanceledAt = &now
		sub.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := map[string]any{
		"subscription_id": sub.ID,
		"plan_id":         sub.PlanID,
	}
	entry := audit.NewEntry(actor.ID, 0, audit.ActionSubscriptionCancel, details, info)
	entry.TargetID = nil
	s.recorder.Record(ctx, entry)
	s.notifyAdmin(ctx, adminID, notifications.EventPlanChanged, map[string]any{
		"subscription_id": sub.ID,
		"status":          string(sub.Status),
	})
	return sub, nil
}

// checkHeadCount fails when the team already exceeds plan's member limit
func (s *Service) checkHeadCount(ctx context.Context, tx users.Tx, teamID int64, plan *accounts.Plan) error {
	members, err := tx.CountTeamMembers(ctx, teamID)
	if err != nil {
		return err
	}
	if members > plan.MaxMembers {
		return fmt.Errorf("%w: %d members, plan %q allows %d", ErrOverLimit, members, plan.Name, plan.MaxMembers)
	}
	return nil
}

func (s *Service) notifyAdmin(ctx context.Context, adminID *int64, event string, payload map[string]any) {
	if adminID == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notifications.Recipient{UserID: *adminID}, event, payload); err != nil {
		s.log.WithError(err).Warn("failed to enqueue notification")
	}
}

// subscriberAdmin returns the designated admin of the subscribing tenant
func subscriberAdmin(ctx context.Context, tx users.Tx, sub *accounts.Subscription) (*int64, error) {
	switch {
	case sub.TeamID != nil:
		team, err := tx.LoadTeam(ctx, *sub.TeamID)
		if err != nil {
			return nil, err
		}
		return team.AdminID, nil
	case sub.EnterpriseGroupID != nil:
		group, err := tx.LoadEnterpriseGroup(ctx, *sub.EnterpriseGroupID)
		if err != nil {
			return nil, err
		}
		return group.AdminID, nil
	}
	return nil, nil
}

func periodEnd(from time.Time, interval accounts.BillingInterval) time.Time {
	if interval == accounts.IntervalYear {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
