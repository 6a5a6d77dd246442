package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/storage/storagetest"
)

func actor(id int64, role accounts.SystemRole) *accounts.User {
	return &accounts.User{
		ID:         id,
		Email:      "someone@example.com",
		Username:   "someone",
		SystemRole: role,
		UserType:   accounts.UserTypeDirect,
		Status:     accounts.StatusActive,
	}
}

func TestInbox(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(storagetest.NewSQLite(t))
	inbox := NewInbox(store, policy.NewEngine(policy.WithLogger(storagetest.QuietLogger())))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mine := &accounts.Notification{RecipientID: 1, EventType: EventStatusChange, CreatedAt: base}
	newer := &accounts.Notification{RecipientID: 1, EventType: EventRoleChange, CreatedAt: base.Add(time.Hour)}
	theirs := &accounts.Notification{RecipientID: 2, EventType: EventStatusChange, CreatedAt: base}
	for _, n := range []*accounts.Notification{mine, newer, theirs} {
		require.NoError(t, store.Create(ctx, n))
	}

	user := actor(1, accounts.SystemRoleUser)

	t.Run("lists own notifications newest first", func(t *testing.T) {
		list, err := inbox.List(ctx, user, ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, mine.ID, list[1].ID)
	})

	t.Run("super admin still sees only own", func(t *testing.T) {
		list, err := inbox.List(ctx, actor(2, accounts.SystemRoleSuperAdmin), ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, theirs.ID, list[0].ID)
	})

	t.Run("mark read", func(t *testing.T) {
		n, err := inbox.MarkRead(ctx, user, mine.ID)
		require.NoError(t, err)
		require.NotNil(t, n.ReadAt)
		first := *n.ReadAt

		again, err := inbox.MarkRead(ctx, user, mine.ID)
		require.NoError(t, err)
		assert.True(t, first.Equal(*again.ReadAt))

		unread, err := inbox.List(ctx, user, ListOptions{UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, newer.ID, unread[0].ID)
	})

	t.Run("cannot mark someone else's", func(t *testing.T) {
		_, err := inbox.MarkRead(ctx, user, theirs.ID)
		assert.ErrorIs(t, err, policy.ErrUnauthorized)

		n, err := store.Get(ctx, theirs.ID)
		require.NoError(t, err)
		assert.Nil(t, n.ReadAt)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := inbox.MarkRead(ctx, user, 999)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestAnnouncements(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(storagetest.NewSQLite(t))
	log := storagetest.QuietLogger()
	sink := &audit.MemorySink{}
	svc := NewAnnouncements(store, policy.NewEngine(policy.WithLogger(log)), audit.NewRecorder(log, []audit.Sink{sink}), log)

	site := actor(3, accounts.SystemRoleSiteAdmin)
	user := actor(4, accounts.SystemRoleUser)

	draft, err := svc.Create(ctx, site, "Maintenance", "Saturday 02:00 UTC")
	require.NoError(t, err)
	assert.False(t, draft.Published)

	t.Run("users cannot create", func(t *testing.T) {
		_, err := svc.Create(ctx, user, "Hi", "there")
		assert.ErrorIs(t, err, policy.ErrUnauthorized)
	})

	t.Run("blank rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, site, "  ", "body")
		assert.ErrorIs(t, err, ErrInvalidAnnouncement)
	})

	t.Run("drafts hidden from users", func(t *testing.T) {
		list, err := svc.List(ctx, user, ListOptions{})
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = svc.List(ctx, site, ListOptions{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("users cannot publish", func(t *testing.T) {
		_, err := svc.Publish(ctx, user, draft.ID, audit.RequestInfo{})
		assert.ErrorIs(t, err, policy.ErrUnauthorized)
	})

	t.Run("publish", func(t *testing.T) {
		published, err := svc.Publish(ctx, site, draft.ID, audit.RequestInfo{})
		require.NoError(t, err)
		assert.True(t, published.Published)
		assert.NotNil(t, published.PublishedAt)

		list, err := svc.List(ctx, user, ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Maintenance", list[0].Title)

		_, err = svc.Publish(ctx, site, draft.ID, audit.RequestInfo{})
		require.NoError(t, err)
		assert.Equal(t, []string{audit.ActionAnnouncement}, sink.Actions())
	})
}
