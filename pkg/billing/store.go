package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
)

const (
	planColumns         = `id, name, price_cents, billing_interval, max_members, active, created_at`
	subscriptionColumns = `id, plan_id, team_id, enterprise_group_id, status, current_period_end, canceled_at, created_at, updated_at`
)

// ListOptions pages a listing
type ListOptions struct {
	Limit  int
	Offset int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 200 {
		return 50
	}
	return o.Limit
}

// SQLStore persists plans and subscriptions
type SQLStore struct {
	db      *sql.DB
	dialect storage.Dialect
}

// NewSQLStore creates a store on db
func NewSQLStore(db *sql.DB, dialect storage.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// CreatePlan inserts a plan
func (s *SQLStore) CreatePlan(ctx context.Context, p *accounts.Plan) error {
	query := `
		INSERT INTO plans (name, price_cents, billing_interval, max_members, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		p.Name, p.PriceCents, string(p.Interval), p.MaxMembers, p.Active, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return fmt.Errorf("plan %q: %w", p.Name, ErrDuplicatePlan)
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan by ID
func (s *SQLStore) GetPlan(ctx context.Context, id int64) (*accounts.Plan, error) {
	return getPlan(ctx, s.db, id)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPlan(ctx context.Context, q rowQuerier, id int64) (*accounts.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	p, err := scanPlan(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("plan %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

// ListPlans returns plans matching scope, cheapest first
func (s *SQLStore) ListPlans(ctx context.Context, scope policy.Filter, opts ListOptions) ([]*accounts.Plan, error) {
	if scope.IsNone() {
		return []*accounts.Plan{}, nil
	}
	where, args := scope.SQL(0)
	query := fmt.Sprintf(`
		SELECT %s
		FROM plans
		WHERE %s
		ORDER BY price_cents, id
		LIMIT $%d OFFSET $%d`, planColumns, where, len(args)+1, len(args)+2)
	args = append(args, opts.limit(), opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []*accounts.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plans: %w", err)
	}
	return plans, nil
}

// GetSubscription loads a subscription by ID
func (s *SQLStore) GetSubscription(ctx context.Context, id int64) (*accounts.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subscription %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions returns subscriptions matching scope, newest first
func (s *SQLStore) ListSubscriptions(ctx context.Context, scope policy.Filter, opts ListOptions) ([]*accounts.Subscription, error) {
	if scope.IsNone() {
		return []*accounts.Subscription{}, nil
	}
	where, args := scope.SQL(0)
	query := fmt.Sprintf(`
		SELECT %s
		FROM subscriptions
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, subscriptionColumns, where, len(args)+1, len(args)+2)
	args = append(args, opts.limit(), opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*accounts.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return subs, nil
}

// WithTx runs fn in a transaction
func (s *SQLStore) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return storage.WithTx(ctx, s.db, fn)
}

// loadSubscription reads a subscription and, on PostgreSQL, locks it
func (s *SQLStore) loadSubscription(ctx context.Context, tx *sql.Tx, id int64) (*accounts.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	if s.dialect == storage.Postgres {
		query += ` FOR UPDATE`
	}
	sub, err := scanSubscription(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subscription %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return sub, nil
}

// countLive counts subscriptions of the tenant that are not canceled
func (s *SQLStore) countLive(ctx context.Context, tx *sql.Tx, column string, tenantID int64) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM subscriptions WHERE %s = $1 AND status <> $2`, column)
	if err := tx.QueryRowContext(ctx, query, tenantID, string(accounts.SubscriptionCanceled)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

func (s *SQLStore) insertSubscription(ctx context.Context, tx *sql.Tx, sub *accounts.Subscription) error {
	query := `
		INSERT INTO subscriptions (plan_id, team_id, enterprise_group_id, status, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := tx.QueryRowContext(ctx, query,
		sub.PlanID, sub.TeamID, sub.EnterpriseGroupID, string(sub.Status),
		sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (s *SQLStore) updatePlan(ctx context.Context, tx *sql.Tx, id, planID int64, periodEnd, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET plan_id = $1, current_period_end = $2, updated_at = $3 WHERE id = $4`,
		planID, periodEnd, at, id)
	if err != nil {
		return fmt.Errorf("failed to change plan: %w", err)
	}
	return nil
}

func (s *SQLStore) cancel(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1, canceled_at = $2, updated_at = $3 WHERE id = $4`,
		string(accounts.SubscriptionCanceled), at, at, id)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return nil
}

func (s *SQLStore) setTeamLimit(ctx context.Context, tx *sql.Tx, teamID int64, maxMembers int, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE teams SET max_members = $1, updated_at = $2 WHERE id = $3`,
		maxMembers, at, teamID)
	if err != nil {
		return fmt.Errorf("failed to update team member limit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*accounts.Plan, error) {
	p := &accounts.Plan{}
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Interval, &p.MaxMembers, &p.Active, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func scanSubscription(row scanner) (*accounts.Subscription, error) {
	sub := &accounts.Subscription{}
	var (
		teamID     sql.NullInt64
		groupID    sql.NullInt64
		canceledAt sql.NullTime
	)
	err := row.Scan(&sub.ID, &sub.PlanID, &teamID, &groupID, &sub.Status,
		&sub.CurrentPeriodEnd, &canceledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if teamID.Valid {
		sub.TeamID = &teamID.Int64
	}
	if groupID.Valid {
		sub.EnterpriseGroupID = &groupID.Int64
	}
	if canceledAt.Valid {
		sub.CanceledAt = &canceledAt.Time
	}
	return sub, nil
}
