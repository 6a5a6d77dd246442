package emailchange

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
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
	"github.com/platinummonkey/warden/pkg/users"
)

var (
	// ErrInvalidEmail is returned for addresses that do not parse
	ErrInvalidEmail = errors.New("email is invalid")
	// ErrSameEmail is returned when the requested address is the current one
	ErrSameEmail = errors.New("email is unchanged")
	// ErrEmailTaken is returned when another user holds or has requested the address
	ErrEmailTaken = errors.New("email already taken")
	// ErrPendingRequest is returned when the user already has a request awaiting review
	ErrPendingRequest = errors.New("an email change request is already pending")
	// ErrNotPending is returned when reviewing or canceling a closed request
	ErrNotPending = errors.New("email change request is not pending")
)

// Invalidator evicts cached users after their email changes
type Invalidator interface {
	Invalidate(ids ...int64)
}

// Service runs the email change workflow
type Service struct {
	store    *SQLStore
	dialect  storage.Dialect
	engine   *policy.Engine
	recorder *audit.Recorder
	notifier notifications.Sink
	cache    Invalidator
	metrics  *observability.Metrics
	log      *logrus.Logger
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithUserCache evicts approved users from a user cache
func WithUserCache(c Invalidator) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics records reviews as transitions
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the email change service
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
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request asks for actor's email to become newEmail
func (s *Service) Request(ctx context.Context, actor *accounts.User, newEmail string) (*accounts.EmailChangeRequest, error) {
	email := accounts.NormalizeEmail(newEmail)
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	var req *accounts.EmailChangeRequest
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if actor == nil {
			return policy.ErrUnauthorized
		}
		owner, err := users.BindTx(tx, s.dialect).LoadUser(ctx, actor.ID)
		if err != nil {
			return err
		}
		if err := s.engine.Authorize(actor, policy.ActionCreate, policy.KindEmailChangeRequest, policy.EmailChangeResource{Owner: owner}); err != nil {
			return err
		}
		if accounts.NormalizeEmail(owner.Email) == email {
			return ErrSameEmail
		}
		pending, err := s.store.pendingFor(ctx, tx, owner.ID)
		if err != nil {
			return err
		}
		if pending != nil {
			return ErrPendingRequest
		}
		if err := s.ensureAvailable(ctx, tx, owner.ID, email); err != nil {
			return err
		}

		req = &accounts.EmailChangeRequest{
			UserID:      owner.ID,
			OldEmail:    owner.Email,
			NewEmail:    email,
			Status:      accounts.EmailChangePending,
			RequestedAt: s.now().UTC(),
		}
		if err := s.store.insert(ctx, tx, req); err != nil {
			if storage.IsUniqueViolation(err) {
				return ErrPendingRequest
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"request_id": req.ID, "user_id": req.UserID}).Info("email change requested")
	return req, nil
}

// Approve applies a pending request to its owner
func (s *Service) Approve(ctx context.Context, actor *accounts.User, id int64, info audit.RequestInfo) (*accounts.EmailChangeRequest, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "emailchange.approve")
	defer span.End()
	span.SetAttributes(attribute.Int64("warden.request_id", id))

	var req *accounts.EmailChangeRequest
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		utx := users.BindTx(tx, s.dialect)
		var (
			owner *accounts.User
			err   error
		)
		req, owner, err = s.loadForReview(ctx, tx, utx, actor, id, policy.ActionApprove)
		if err != nil {
			return err
		}
		if err := s.ensureAvailable(ctx, tx, owner.ID, req.NewEmail); err != nil {
			return err
		}

		updated := owner.Clone()
		updated.Email = req.NewEmail
		if err := updated.Validate(); err != nil {
			return err
		}
		if err := utx.ApplyEmailChange(ctx, owner.ID, req.NewEmail); err != nil {
			if storage.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return err
		}
		return s.closeRequest(ctx, tx, req, accounts.EmailChangeApproved, actor)
	})
	if err != nil {
		s.observe("approve", err, start)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.observe("approve", nil, start)

	if s.cache != nil {
		s.cache.Invalidate(req.UserID)
	}

	details := map[string]any{
		"request_id": req.ID,
		"old_email":  req.OldEmail,
		"new_email":  req.NewEmail,
	}
	s.recorder.Record(ctx, audit.NewEntry(actor.ID, req.UserID, audit.ActionEmailChange, details, info))

	payload := map[string]any{
		"request_id": req.ID,
		"old_email":  req.OldEmail,
		"new_email":  req.NewEmail,
		"actor_id":   actor.ID,
	}
	for _, to := range []notifications.Recipient{
		{UserID: req.UserID, Email: req.OldEmail},
		{Email: req.NewEmail},
	} {
		if err := s.notifier.Notify(ctx, to, notifications.EventEmailChanged, payload); err != nil {
			s.log.WithError(err).WithField("request_id", req.ID).Warn("failed to enqueue notification")
		}
	}

	s.log.WithFields(logrus.Fields{"request_id": req.ID, "user_id": req.UserID, "actor_id": actor.ID}).Info("email change approved")
	return req, nil
}

// Reject closes a pending request without changing the email
func (s *Service) Reject(ctx context.Context, actor *accounts.User, id int64, info audit.RequestInfo) (*accounts.EmailChangeRequest, error) {
	start := time.Now()
	var req *accounts.EmailChangeRequest
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		req, _, err = s.loadForReview(ctx, tx, users.BindTx(tx, s.dialect), actor, id, policy.ActionReject)
		if err != nil {
			return err
		}
		return s.closeRequest(ctx, tx, req, accounts.EmailChangeRejected, actor)
	})
	if err != nil {
		s.observe("reject", err, start)
		return nil, err
	}
	s.observe("reject", nil, start)

	details := map[string]any{
		"request_id": req.ID,
		"new_email":  req.NewEmail,
	}
	s.recorder.Record(ctx, audit.NewEntry(actor.ID, req.UserID, audit.ActionEmailChangeDenied, details, info))

	to := notifications.Recipient{UserID: req.UserID, Email: req.OldEmail}
	if err := s.notifier.Notify(ctx, to, notifications.EventEmailChangeDenied, details); err != nil {
		s.log.WithError(err).WithField("request_id", req.ID).Warn("failed to enqueue notification")
	}
	return req, nil
}

// Cancel withdraws actor's own pending request
func (s *Service) Cancel(ctx context.Context, actor *accounts.User, id int64) (*accounts.EmailChangeRequest, error) {
	var req *accounts.EmailChangeRequest
	err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		req, err = s.store.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.engine.Authorize(actor, policy.ActionDestroy, policy.KindEmailChangeRequest, policy.EmailChangeResource{Request: req}); err != nil {
			return err
		}
		if !req.Pending() {
			return ErrNotPending
		}
		return s.closeRequest(ctx, tx, req, accounts.EmailChangeCanceled, nil)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Get returns a request if actor may see it
func (s *Service) Get(ctx context.Context, actor *accounts.User, id int64) (*accounts.EmailChangeRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Authorize(actor, policy.ActionShow, policy.KindEmailChangeRequest, policy.EmailChangeResource{Request: req}); err != nil {
		return nil, err
	}
	return req, nil
}

// List returns the requests visible to actor
func (s *Service) List(ctx context.Context, actor *accounts.User, opts ListOptions) ([]*accounts.EmailChangeRequest, error) {
	return s.store.List(ctx, s.engine.Scope(actor, policy.KindEmailChangeRequest), opts)
}

func (s *Service) loadForReview(ctx context.Context, tx *sql.Tx, utx users.Tx, actor *accounts.User, id int64, action policy.Action) (*accounts.EmailChangeRequest, *accounts.User, error) {
	req, err := s.store.load(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	owner, err := utx.LoadUser(ctx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.engine.Authorize(actor, action, policy.KindEmailChangeRequest, policy.EmailChangeResource{Request: req, Owner: owner}); err != nil {
		return nil, nil, err
	}
	if !req.Pending() {
		return nil, nil, ErrNotPending
	}
	return req, owner, nil
}

func (s *Service) closeRequest(ctx context.Context, tx *sql.Tx, req *accounts.EmailChangeRequest, status accounts.EmailChangeStatus, reviewer *accounts.User) error {
	at := s.now().UTC()
	var reviewerID *int64
	if reviewer != nil {
		reviewerID = &reviewer.ID
	}
	if err := s.store.close(ctx, tx, req.ID, status, reviewerID, at); err != nil {
		return err
	}
	req.Status = status
	req.ReviewedBy = reviewerID
	req.ReviewedAt = &at
	return nil
}

// ensureAvailable fails when email belongs to another user or another user's pending request
func (s *Service) ensureAvailable(ctx context.Context, tx *sql.Tx, ownerID int64, email string) error {
	holder, err := users.BindTx(tx, s.dialect).FindUserByEmail(ctx, email)
	switch {
	case err == nil && holder.ID != ownerID:
		return ErrEmailTaken
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return err
	}

	taken, err := s.store.requestedByOther(ctx, tx, email, ownerID)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	return nil
}

func (s *Service) observe(operation string, err error, start time.Time) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, policy.ErrUnauthorized):
		outcome = "Unauthorized"
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrEmailTaken):
		outcome = "InvalidTransition"
	case errors.Is(err, storage.ErrNotFound):
		outcome = "NotFound"
	default:
		outcome = "ConstraintError"
		s.log.WithError(err).WithField("operation", operation).Error("email change review failed")
	}
	s.metrics.ObserveTransition(operation+"_email_change", audit.ActionEmailChange, outcome, time.Since(start))
}
