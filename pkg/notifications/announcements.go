package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/policy"
)

// ErrInvalidAnnouncement is returned for announcements missing a title or body
var ErrInvalidAnnouncement = errors.New("announcement needs a title and a body")

// Announcements manages site-wide announcements
type Announcements struct {
	store    *SQLStore
	engine   *policy.Engine
	recorder *audit.Recorder
	log      *logrus.Logger
	now      func() time.Time
}

// NewAnnouncements creates the announcement service
func NewAnnouncements(store *SQLStore, engine *policy.Engine, recorder *audit.Recorder, log *logrus.Logger) *Announcements {
	if log == nil {
		log = logrus.New()
	}
	if recorder == nil {
		recorder = audit.NewRecorder(log, nil)
	}
	return &Announcements{store: store, engine: engine, recorder: recorder, log: log, now: time.Now}
}

// Create stores an unpublished announcement
func (a *Announcements) Create(ctx context.Context, actor *accounts.User, title, body string) (*accounts.Announcement, error) {
	if err := a.engine.Authorize(actor, policy.ActionCreate, policy.KindAnnouncement, nil); err != nil {
		return nil, err
	}
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if title == "" || body == "" {
		return nil, ErrInvalidAnnouncement
	}

	ann := &accounts.Announcement{
		Title:     title,
		Body:      body,
		CreatedBy: actor.ID,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.CreateAnnouncement(ctx, ann); err != nil {
		return nil, err
	}
	return ann, nil
}

// Publish makes an announcement visible to everyone. Publishing twice is a no-op.
func (a *Announcements) Publish(ctx context.Context, actor *accounts.User, id int64, req audit.RequestInfo) (*accounts.Announcement, error) {
	ann, err := a.store.GetAnnouncement(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.engine.Authorize(actor, policy.ActionUpdate, policy.KindAnnouncement, ann); err != nil {
		return nil, err
	}
	if ann.Published {
		return ann, nil
	}

	if err := a.store.PublishAnnouncement(ctx, id, a.now()); err != nil {
		return nil, err
	}

	entry := audit.NewEntry(actor.ID, 0, audit.ActionAnnouncement, map[string]any{
		"announcement_id": id,
		"title":           ann.Title,
	}, req)
	entry.TargetID = nil
	a.recorder.Record(ctx, entry)
	a.log.WithFields(logrus.Fields{"announcement_id": id, "actor_id": actor.ID}).Info("announcement published")

	return a.store.GetAnnouncement(ctx, id)
}

// List returns the announcements visible to actor
func (a *Announcements) List(ctx context.Context, actor *accounts.User, opts ListOptions) ([]*accounts.Announcement, error) {
	return a.store.ListAnnouncements(ctx, a.engine.Scope(actor, policy.KindAnnouncement), opts)
}
