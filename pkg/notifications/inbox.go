package notifications

import (
	"context"
	"time"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/policy"
)

// Inbox lets users read their in-app notifications
type Inbox struct {
	store  *SQLStore
	engine *policy.Engine
	now    func() time.Time
}

// NewInbox creates an inbox service
func NewInbox(store *SQLStore, engine *policy.Engine) *Inbox {
	return &Inbox{store: store, engine: engine, now: time.Now}
}

// List returns actor's own notifications
func (i *Inbox) List(ctx context.Context, actor *accounts.User, opts ListOptions) ([]*accounts.Notification, error) {
	if err := i.engine.Authorize(actor, policy.ActionIndex, policy.KindNotification, nil); err != nil {
		return nil, err
	}
	return i.store.List(ctx, i.engine.Scope(actor, policy.KindNotification), opts)
}

// MarkRead marks a notification read. Only its recipient may do so.
func (i *Inbox) MarkRead(ctx context.Context, actor *accounts.User, id int64) (*accounts.Notification, error) {
	n, err := i.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := i.engine.Authorize(actor, policy.ActionMarkRead, policy.KindNotification, n); err != nil {
		return nil, err
	}
	if n.ReadAt != nil {
		return n, nil
	}
	if err := i.store.MarkRead(ctx, id, i.now()); err != nil {
		return nil, err
	}
	return i.store.Get(ctx, id)
}
