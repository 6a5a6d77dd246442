package emailchange

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/notifications"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/storage/storagetest"
	"github.com/platinummonkey/warden/pkg/users"
)

type fixture struct {
	db    *sql.DB
	cache *users.CachingStore
	svc   *Service
	audit *audit.MemorySink
	inbox *notifications.MemorySink

	superAdmin, siteAdmin int64
	frank, gina, idle     int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.NewSQLite(t)
	f := &fixture{db: db}

	f.superAdmin = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "root", SystemRole: "super_admin"})
	f.siteAdmin = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "ops", SystemRole: "site_admin"})
	f.frank = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "frank"})
	f.gina = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "gina"})
	f.idle = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "idle", Status: "inactive"})

	log := storagetest.QuietLogger()
	f.cache = users.NewCachingStore(users.NewSQLStore(db, storage.SQLite), users.DefaultCacheConfig(), nil)
	f.audit = &audit.MemorySink{}
	f.inbox = &notifications.MemorySink{}
	f.svc = NewService(
		NewSQLStore(db, storage.SQLite),
		policy.NewEngine(policy.WithLogger(log)),
		audit.NewRecorder(log, []audit.Sink{f.audit}),
		f.inbox,
		log,
		WithUserCache(f.cache),
	)
	return f
}

func (f *fixture) user(t *testing.T, id int64) *accounts.User {
	t.Helper()
	u, err := f.cache.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) request(t *testing.T, id int64, email string) *accounts.EmailChangeRequest {
	t.Helper()
	req, err := f.svc.Request(context.Background(), f.user(t, id), email)
	require.NoError(t, err)
	return req
}

func TestRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending request", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t, f.frank, " Frank.New@Example.com")

		assert.NotZero(t, req.ID)
		assert.Equal(t, f.frank, req.UserID)
		assert.Equal(t, "frank@example.com", req.OldEmail)
		assert.Equal(t, "frank.new@example.com", req.NewEmail)
		assert.True(t, req.Pending())
		assert.Equal(t, "frank@example.com", f.user(t, f.frank).Email)
	})

	t.Run("one pending request per user", func(t *testing.T) {
		f := newFixture(t)
		f.request(t, f.frank, "first@example.com")
		_, err := f.svc.Request(ctx, f.user(t, f.frank), "second@example.com")
		assert.ErrorIs(t, err, ErrPendingRequest)
	})

	t.Run("address requested by someone else", func(t *testing.T) {
		f := newFixture(t)
		f.request(t, f.frank, "wanted@example.com")
		_, err := f.svc.Request(ctx, f.user(t, f.gina), "WANTED@example.com")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	rejections := []struct {
		name  string
		actor func(f *fixture) int64
		email string
		err   error
	}{
		{"invalid", func(f *fixture) int64 { return f.frank }, "nope", ErrInvalidEmail},
		{"blank", func(f *fixture) int64 { return f.frank }, "  ", ErrInvalidEmail},
		{"unchanged", func(f *fixture) int64 { return f.frank }, "FRANK@example.com", ErrSameEmail},
		{"held by another user", func(f *fixture) int64 { return f.frank }, "gina@example.com", ErrEmailTaken},
		{"inactive requester", func(f *fixture) int64 { return f.idle }, "idle2@example.com", policy.ErrUnauthorized},
	}
	for _, tc := range rejections {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Request(ctx, f.user(t, tc.actor(f)), tc.email)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the new address", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t, f.frank, "frank.new@example.com")
		require.Equal(t, "frank@example.com", f.user(t, f.frank).Email)

		approved, err := f.svc.Approve(ctx, f.user(t, f.siteAdmin), req.ID, audit.RequestInfo{RequestID: "req-1"})
		require.NoError(t, err)
		assert.Equal(t, accounts.EmailChangeApproved, approved.Status)
		require.NotNil(t, approved.ReviewedBy)
		assert.Equal(t, f.siteAdmin, *approved.ReviewedBy)

		assert.Equal(t, "frank.new@example.com", f.user(t, f.frank).Email)

		entries := f.audit.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ActionEmailChange, entries[0].Action)
		assert.Equal(t, f.frank, *entries[0].TargetID)
		assert.Equal(t, "frank@example.com", entries[0].Details["old_email"])
		assert.Equal(t, "req-1", entries[0].RequestID)

		msgs := f.inbox.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, notifications.Recipient{UserID: f.frank, Email: "frank@example.com"}, msgs[0].Recipient)
		assert.Equal(t, notifications.Recipient{Email: "frank.new@example.com"}, msgs[1].Recipient)
		for _, m := range msgs {
			assert.Equal(t, notifications.EventEmailChanged, m.EventType)
		}

		stored, err := f.svc.Get(ctx, f.user(t, f.frank), req.ID)
		require.NoError(t, err)
		assert.Equal(t, accounts.EmailChangeApproved, stored.Status)
		assert.NotNil(t, stored.ReviewedAt)

		_, err = f.svc.Approve(ctx, f.user(t, f.siteAdmin), req.ID, audit.RequestInfo{})
		assert.ErrorIs(t, err, ErrNotPending)
	})

	t.Run("super admin approves a site admin", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t, f.siteAdmin, "ops2@example.com")

		_, err := f.svc.Approve(ctx, f.user(t, f.superAdmin), req.ID, audit.RequestInfo{})
		require.NoError(t, err)
		assert.Equal(t, "ops2@example.com", f.user(t, f.siteAdmin).Email)
	})

	t.Run("reviewers cannot approve their own request", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t, f.siteAdmin, "ops2@example.com")

		_, err := f.svc.Approve(ctx, f.user(t, f.siteAdmin), req.ID, audit.RequestInfo{})
		assert.ErrorIs(t, err, policy.ErrUnauthorized)
	})

	t.Run("plain users cannot approve", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t, f.frank, "frank.new@example.com")

		_, err := f.svc.Approve(ctx, f.user(t, f.gina), req.ID, audit.RequestInfo{})
		assert.ErrorIs(t, err, policy.ErrUnauthorized)
		assert.Empty(t, f.audit.Actions())
	})

	t.Run("address registered while pending", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(t, f.frank, "late@example.com")
		storagetest.InsertUser(t, f.db, storagetest.UserRow{Username: "late", Email: "late@example.com"})

		_, err := f.svc.Approve(ctx, f.user(t, f.siteAdmin), req.ID, audit.RequestInfo{})
		assert.ErrorIs(t, err, ErrEmailTaken)

		stored, err := f.svc.Get(ctx, f.user(t, f.frank), req.ID)
		require.NoError(t, err)
		assert.True(t, stored.Pending())
		assert.Equal(t, "frank@example.com", f.user(t, f.frank).Email)
	})

	t.Run("missing request", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Approve(ctx, f.user(t, f.siteAdmin), 404, audit.RequestInfo{})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.request(t, f.frank, "frank.new@example.com")

	rejected, err := f.svc.Reject(ctx, f.user(t, f.siteAdmin), req.ID, audit.RequestInfo{})
	require.NoError(t, err)
	assert.Equal(t, accounts.EmailChangeRejected, rejected.Status)
	assert.Equal(t, "frank@example.com", f.user(t, f.frank).Email)
	assert.Equal(t, []string{audit.ActionEmailChangeDenied}, f.audit.Actions())

	msgs := f.inbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, notifications.EventEmailChangeDenied, msgs[0].EventType)
	assert.Equal(t, f.frank, msgs[0].Recipient.UserID)

	_, err = f.svc.Reject(ctx, f.user(t, f.siteAdmin), req.ID, audit.RequestInfo{})
	assert.ErrorIs(t, err, ErrNotPending)

	again := f.request(t, f.frank, "frank.new@example.com")
	assert.NotEqual(t, req.ID, again.ID)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := f.request(t, f.frank, "frank.new@example.com")

	_, err := f.svc.Cancel(ctx, f.user(t, f.gina), req.ID)
	assert.ErrorIs(t, err, policy.ErrUnauthorized)

	canceled, err := f.svc.Cancel(ctx, f.user(t, f.frank), req.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.EmailChangeCanceled, canceled.Status)
	assert.Nil(t, canceled.ReviewedBy)

	_, err = f.svc.Cancel(ctx, f.user(t, f.frank), req.ID)
	assert.ErrorIs(t, err, ErrNotPending)

	f.request(t, f.frank, "frank.other@example.com")
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.request(t, f.frank, "frank.new@example.com")
	theirs := f.request(t, f.gina, "gina.new@example.com")
	_, err := f.svc.Reject(ctx, f.user(t, f.siteAdmin), theirs.ID, audit.RequestInfo{})
	require.NoError(t, err)

	t.Run("users see their own", func(t *testing.T) {
		list, err := f.svc.List(ctx, f.user(t, f.frank), ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, mine.ID, list[0].ID)

		_, err = f.svc.Get(ctx, f.user(t, f.frank), theirs.ID)
		assert.ErrorIs(t, err, policy.ErrUnauthorized)
	})

	t.Run("admins see everything", func(t *testing.T) {
		list, err := f.svc.List(ctx, f.user(t, f.siteAdmin), ListOptions{})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		pending, err := f.svc.List(ctx, f.user(t, f.siteAdmin), ListOptions{Status: accounts.EmailChangePending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, mine.ID, pending[0].ID)
	})
}
