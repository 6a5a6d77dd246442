package users

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/transition"
)

const cacheName = "users"

// CacheConfig sizes the user read cache
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// DefaultCacheConfig returns the default cache settings
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Size: 1024, TTL: time.Minute}
}

// CachingStore caches Get results in an expirable LRU. Users written through
// WithTx are evicted once the transaction commits.
type CachingStore struct {
	Store
	cache   *lru.LRU[int64, *accounts.User]
	metrics *observability.Metrics
}

// NewCachingStore wraps next with a read cache
func NewCachingStore(next Store, cfg CacheConfig, metrics *observability.Metrics) *CachingStore {
	if cfg.Size <= 0 {
		cfg.Size = DefaultCacheConfig().Size
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	return &CachingStore{
		Store:   next,
		cache:   lru.NewLRU[int64, *accounts.User](cfg.Size, nil, cfg.TTL),
		metrics: metrics,
	}
}

// Get returns a copy of the cached user or loads it from the wrapped store
func (c *CachingStore) Get(ctx context.Context, id int64) (*accounts.User, error) {
	if u, ok := c.cache.Get(id); ok {
		c.metrics.ObserveCache(cacheName, true)
		return u.Clone(), nil
	}
	c.metrics.ObserveCache(cacheName, false)

	u, err := c.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, u.Clone())
	return u, nil
}

// List bypasses the cache
func (c *CachingStore) List(ctx context.Context, scope policy.Filter, opts ListOptions) ([]*accounts.User, error) {
	return c.Store.List(ctx, scope, opts)
}

// WithTx tracks which users the transaction writes and evicts them after commit
func (c *CachingStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tracked := &trackingTx{touched: map[int64]bool{}}
	err := c.Store.WithTx(ctx, func(tx Tx) error {
		tracked.Tx = tx
		return fn(tracked)
	})
	if err != nil {
		return err
	}
	if tracked.purge {
		c.cache.Purge()
		return nil
	}
	c.Invalidate(tracked.ids()...)
	return nil
}

// Invalidate evicts users changed outside WithTx
func (c *CachingStore) Invalidate(ids ...int64) {
	for _, id := range ids {
		c.cache.Remove(id)
	}
}

// Len returns the number of cached users
func (c *CachingStore) Len() int {
	return c.cache.Len()
}

type trackingTx struct {
	Tx
	touched map[int64]bool
	purge   bool
}

func (t *trackingTx) ids() []int64 {
	ids := make([]int64, 0, len(t.touched))
	for id := range t.touched {
		ids = append(ids, id)
	}
	return ids
}

func (t *trackingTx) ApplyProfileUpdate(ctx context.Context, id int64, username, fullName string) error {
	t.touched[id] = true
	return t.Tx.ApplyProfileUpdate(ctx, id, username, fullName)
}

func (t *trackingTx) ApplyStatusChange(ctx context.Context, id int64, status accounts.Status) error {
	t.touched[id] = true
	return t.Tx.ApplyStatusChange(ctx, id, status)
}

func (t *trackingTx) ApplySystemRoleChange(ctx context.Context, id int64, role accounts.SystemRole) error {
	t.touched[id] = true
	return t.Tx.ApplySystemRoleChange(ctx, id, role)
}

func (t *trackingTx) ApplyTeamRoleChange(ctx context.Context, id int64, role accounts.MembershipRole) error {
	t.touched[id] = true
	return t.Tx.ApplyTeamRoleChange(ctx, id, role)
}

// TransferTeamAdmin may demote users other than the ones named in the transfer
func (t *trackingTx) TransferTeamAdmin(ctx context.Context, at transition.AdminTransfer) error {
	t.purge = true
	return t.Tx.TransferTeamAdmin(ctx, at)
}

func (t *trackingTx) ApplyTeamAssociation(ctx context.Context, id int64, teamID *int64, role *accounts.MembershipRole) error {
	t.touched[id] = true
	return t.Tx.ApplyTeamAssociation(ctx, id, teamID, role)
}

func (t *trackingTx) ApplyEnterpriseAssociation(ctx context.Context, id int64, groupID *int64, role *accounts.MembershipRole) error {
	t.touched[id] = true
	return t.Tx.ApplyEnterpriseAssociation(ctx, id, groupID, role)
}

func (t *trackingTx) ApplyEnterpriseRoleChange(ctx context.Context, id int64, role accounts.MembershipRole) error {
	t.touched[id] = true
	return t.Tx.ApplyEnterpriseRoleChange(ctx, id, role)
}

func (t *trackingTx) ApplyEmailChange(ctx context.Context, id int64, email string) error {
	t.touched[id] = true
	return t.Tx.ApplyEmailChange(ctx, id, email)
}

func (t *trackingTx) ResetSessions(ctx context.Context, id int64) error {
	t.touched[id] = true
	return t.Tx.ResetSessions(ctx, id)
}
