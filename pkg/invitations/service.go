package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/notifications"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/transition"
	"github.com/platinummonkey/warden/pkg/users"
)

// CreateRequest describes a new invitation
type CreateRequest struct {
	OwnerKind accounts.OwnerKind
	OwnerID   int64
	Email     string
	Role      accounts.MembershipRole
}

// Signup carries the profile the invitee chooses when accepting
type Signup struct {
	Username string
	FullName string
}

// Service issues and redeems invitations
type Service struct {
	store    *SQLStore
	dialect  storage.Dialect
	engine   *policy.Engine
	recorder *audit.Recorder
	notifier notifications.Sink
	metrics  *observability.Metrics
	log      *logrus.Logger
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithMetrics counts invitation operations by outcome
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTTL overrides how long new invitations stay valid
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an invitation service
func NewService(store *SQLStore, engine *policy.Engine, recorder *audit.Recorder, notifier notifications.Sink, log *logrus.Logger, opts ...Option) *Service {
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
		dialect:  store.dialect,
		engine:   engine,
		recorder: recorder,
		notifier: notifier,
		log:      log,
		ttl:      accounts.InvitationTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create invites an email address into a team or enterprise group. A pending
// invitation for the same address and owner is reissued with a fresh token.
func (s *Service) Create(ctx context.Context, actor *accounts.User, req CreateRequest, info audit.RequestInfo) (*accounts.Invitation, error) {
	inv, err := s.create(ctx, actor, req)
	if err != nil {
		s.metrics.ObserveInvitation("create", outcome(err))
		return nil, err
	}
	s.metrics.ObserveInvitation("create", "success")

	entry := audit.NewEntry(actor.ID, 0, audit.ActionInvitationCreated, map[string]any{
		"invitation_id": inv.ID,
		"owner_type":    string(inv.OwnerKind),
		"owner_id":      inv.OwnerID,
		"email":         inv.Email,
		"role":          string(inv.Role),
	}, info)
	entry.TargetID = nil
	s.recorder.Record(ctx, entry)

	s.log.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"owner_type":    inv.OwnerKind,
		"owner_id":      inv.OwnerID,
		"actor_id":      actor.ID,
	}).Info("invitation created")
	return inv, nil
}

func (s *Service) create(ctx context.Context, actor *accounts.User, req CreateRequest) (*accounts.Invitation, error) {
	email := accounts.NormalizeEmail(req.Email)
	if !req.OwnerKind.Valid() {
		return nil, fmt.Errorf("%w: unknown owner type %q", ErrInvalidInvitation, req.OwnerKind)
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, fmt.Errorf("%w: email is invalid", ErrInvalidInvitation)
	}
	role := req.Role
	if role == "" {
		role = accounts.MembershipRoleMember
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInvitation, role)
	}

	now := s.now().UTC()
	inv := &accounts.Invitation{
		OwnerKind: req.OwnerKind,
		OwnerID:   req.OwnerID,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if actor != nil {
		inv.InvitedBy = actor.ID
	}
	if err := s.engine.Authorize(actor, policy.ActionCreate, policy.KindInvitation, inv); err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	inv.Token = token

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		utx := users.BindTx(tx, s.dialect)
		if err := loadOwner(ctx, utx, inv.OwnerKind, inv.OwnerID); err != nil {
			return err
		}
		if err := ensureUnregistered(ctx, utx, email); err != nil {
			return err
		}

		existing, err := s.store.findPending(ctx, tx, inv.OwnerKind, inv.OwnerID, email)
		if err != nil {
			return err
		}
		if existing != nil {
			inv.ID = existing.ID
			return s.store.refresh(ctx, tx, inv)
		}
		return s.store.insert(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Accept redeems token, creating the invited user with the association the
// invitation grants. The invitation cannot be used again.
func (s *Service) Accept(ctx context.Context, token string, signup Signup, info audit.RequestInfo) (*accounts.User, error) {
	ctx, span := observability.Tracer().Start(ctx, "invitations.accept")
	defer span.End()

	var (
		inv     *accounts.Invitation
		created *accounts.User
	)
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		inv, err = s.store.loadByToken(ctx, tx, token)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		switch inv.State(now) {
		case accounts.InvitationAccepted:
			return ErrAlreadyAccepted
		case accounts.InvitationExpired:
			return ErrExpired
		}

		utx := users.BindTx(tx, s.dialect)
		if err := ensureUnregistered(ctx, utx, inv.Email); err != nil {
			return err
		}

		u := &accounts.User{
			Email:       inv.Email,
			Username:    strings.TrimSpace(signup.Username),
			FullName:    strings.TrimSpace(signup.FullName),
			SystemRole:  accounts.SystemRoleUser,
			UserType:    inv.OwnerKind.UserType(),
			Status:      accounts.StatusActive,
			ConfirmedAt: &now,
			CreatedAt:   now,
		}

		role := inv.Role
		var transfer bool
		switch inv.OwnerKind {
		case accounts.OwnerTeam:
			team, err := utx.LoadTeam(ctx, inv.OwnerID)
			if err != nil {
				return err
			}
			members, err := utx.CountTeamMembers(ctx, team.ID)
			if err != nil {
				return err
			}
			if team.Full(members) {
				return ErrTeamFull
			}
			admins, err := utx.CountTeamAdmins(ctx, team.ID)
			if err != nil {
				return err
			}
			// an admin invite into a team that already has one joins as a
			// member; anyone joining a team without an admin takes the seat
			if team.Unadministered(admins) {
				role = accounts.MembershipRoleAdmin
				transfer = true
			} else {
				role = accounts.MembershipRoleMember
			}
			u.TeamID = &team.ID
			u.TeamRole = &role
		case accounts.OwnerEnterpriseGroup:
			group, err := utx.LoadEnterpriseGroup(ctx, inv.OwnerID)
			if err != nil {
				return err
			}
			u.EnterpriseGroupID = &group.ID
			u.EnterpriseGroupRole = &role
		}

		if err := u.Validate(); err != nil {
			return err
		}
		if err := utx.CreateUser(ctx, u); err != nil {
			if storage.IsUniqueViolation(err) {
				return ErrUsernameTaken
			}
			return err
		}
		if transfer {
			if err := utx.TransferTeamAdmin(ctx, transition.AdminTransfer{TeamID: *u.TeamID, NewAdminID: u.ID}); err != nil {
				return err
			}
		}
		if err := s.store.markAccepted(ctx, tx, inv.ID, u.ID, now); err != nil {
			return err
		}
		created = u
		return nil
	})

	log := observability.WithTrace(ctx, s.log)
	if err != nil {
		s.metrics.ObserveInvitation("accept", outcome(err))
		span.SetStatus(codes.Error, outcome(err))
		if outcome(err) == "error" {
			span.RecordError(err)
			log.WithError(err).Error("invitation acceptance failed")
		} else {
			log.WithError(err).Info("invitation acceptance rejected")
		}
		return nil, err
	}
	s.metrics.ObserveInvitation("accept", "success")
	span.SetAttributes(
		attribute.Int64("warden.invitation_id", inv.ID),
		attribute.Int64("warden.user_id", created.ID),
	)

	details := map[string]any{
		"invitation_id": inv.ID,
		"owner_type":    string(inv.OwnerKind),
		"owner_id":      inv.OwnerID,
		"role":          string(inv.Role),
		"user_type":     string(created.UserType),
	}
	s.recorder.Record(ctx, audit.NewEntry(created.ID, created.ID, audit.ActionInvitationAccepted, details, info))

	payload := map[string]any{
		"invitation_id": inv.ID,
		"user_id":       created.ID,
		"email":         created.Email,
	}
	if err := s.notifier.Notify(ctx, notifications.Recipient{UserID: inv.InvitedBy}, notifications.EventInvitationAccepted, payload); err != nil {
		log.WithError(err).Warn("failed to enqueue notification")
	}

	log.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"user_id":       created.ID,
	}).Info("invitation accepted")
	return created, nil
}

// Revoke deletes a pending invitation
func (s *Service) Revoke(ctx context.Context, actor *accounts.User, id int64, info audit.RequestInfo) error {
	inv, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.Authorize(actor, policy.ActionDestroy, policy.KindInvitation, inv); err != nil {
		return err
	}
	if inv.AcceptedAt != nil {
		return ErrAlreadyAccepted
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.metrics.ObserveInvitation("revoke", outcome(err))
		return err
	}
	s.metrics.ObserveInvitation("revoke", "success")

	entry := audit.NewEntry(actor.ID, 0, audit.ActionInvitationRevoked, map[string]any{
		"invitation_id": inv.ID,
		"owner_type":    string(inv.OwnerKind),
		"owner_id":      inv.OwnerID,
		"email":         inv.Email,
	}, info)
	entry.TargetID = nil
	s.recorder.Record(ctx, entry)
	return nil
}

// Get returns an invitation if actor may see it
func (s *Service) Get(ctx context.Context, actor *accounts.User, id int64) (*accounts.Invitation, error) {
	inv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(actor, policy.ActionShow, policy.KindInvitation, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// List returns the invitations visible to actor
func (s *Service) List(ctx context.Context, actor *accounts.User, opts ListOptions) ([]*accounts.Invitation, error) {
	return s.store.List(ctx, s.engine.Scope(actor, policy.KindInvitation), opts, s.now())
}

// CleanupExpired deletes expired invitations that were never accepted
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		s.metrics.ObserveInvitation("cleanup", "error")
		return 0, err
	}
	s.metrics.ObserveInvitation("cleanup", "success")
	if n > 0 {
		s.log.WithField("removed", n).Info("expired invitations removed")
	}
	return n, nil
}

func loadOwner(ctx context.Context, tx users.Tx, kind accounts.OwnerKind, id int64) error {
	var err error
	switch kind {
	case accounts.OwnerTeam:
		_, err = tx.LoadTeam(ctx, id)
	case accounts.OwnerEnterpriseGroup:
		_, err = tx.LoadEnterpriseGroup(ctx, id)
	}
	return err
}

func ensureUnregistered(ctx context.Context, tx users.Tx, email string) error {
	_, err := tx.FindUserByEmail(ctx, email)
	if err == nil {
		return ErrEmailTaken
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// outcome labels an error for metrics and spans
func outcome(err error) string {
	var verr *accounts.ValidationError
	switch {
	case errors.Is(err, policy.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyAccepted):
		return "already_accepted"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUsernameTaken):
		return "conflict"
	case errors.Is(err, ErrTeamFull):
		return "team_full"
	case errors.Is(err, ErrInvalidInvitation), errors.As(err, &verr):
		return "invalid"
	}
	return "error"
}
