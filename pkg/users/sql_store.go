package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/transition"
)

const userColumns = `id, email, username, full_name, system_role, user_type, status,
	team_id, team_role, enterprise_group_id, enterprise_group_role,
	sign_in_count, last_sign_in_at, confirmed_at, created_at, updated_at`

// SQLStore implements Store on PostgreSQL or SQLite
type SQLStore struct {
	db      *sql.DB
	dialect storage.Dialect
	now     func() time.Time
}

// NewSQLStore creates a store on db
func NewSQLStore(db *sql.DB, dialect storage.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// Get loads a user by ID
func (s *SQLStore) Get(ctx context.Context, id int64) (*accounts.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List returns users matching scope ordered by ID
func (s *SQLStore) List(ctx context.Context, scope policy.Filter, opts ListOptions) ([]*accounts.User, error) {
	if scope.IsNone() {
		return []*accounts.User{}, nil
	}

	where, args := scope.SQL(0)
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
		userColumns, where, n+1, n+2)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*accounts.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// WithTx implements Store
func (s *SQLStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx, dialect: s.dialect, now: s.now})
	})
}

// BindTx exposes the user operations on a transaction owned by another store,
// so that writes spanning users and other tables commit together
func BindTx(tx *sql.Tx, dialect storage.Dialect) Tx {
	return &sqlTx{tx: tx, dialect: dialect, now: time.Now}
}

type sqlTx struct {
	tx      *sql.Tx
	dialect storage.Dialect
	now     func() time.Time
}

func (t *sqlTx) timestamp() time.Time { return t.now().UTC() }

// LoadUser reads the user and, on PostgreSQL, locks the row for the rest of the transaction
func (t *sqlTx) LoadUser(ctx context.Context, id int64) (*accounts.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if t.dialect == storage.Postgres {
		query += ` FOR UPDATE`
	}
	u, err := scanUser(t.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (t *sqlTx) FindUserByEmail(ctx context.Context, email string) (*accounts.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = $1`
	u, err := scanUser(t.tx.QueryRowContext(ctx, query, accounts.NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

func (t *sqlTx) CreateUser(ctx context.Context, u *accounts.User) error {
	now := t.timestamp()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	query := `
		INSERT INTO users (
			email, username, full_name, system_role, user_type, status,
			team_id, team_role, enterprise_group_id, enterprise_group_role,
			sign_in_count, confirmed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	err := t.tx.QueryRowContext(ctx, query,
		u.Email, u.Username, nullString(u.FullName), u.SystemRole, u.UserType, u.Status,
		u.TeamID, rolePtr(u.TeamRole), u.EnterpriseGroupID, rolePtr(u.EnterpriseGroupRole),
		u.SignInCount, u.ConfirmedAt, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (t *sqlTx) LoadTeam(ctx context.Context, id int64) (*accounts.Team, error) {
	query := `
		SELECT id, name, slug, admin_id, max_members, status, created_at, updated_at
		FROM teams WHERE id = $1
	`
	team := &accounts.Team{}
	var adminID sql.NullInt64
	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&team.ID, &team.Name, &team.Slug, &adminID, &team.MaxMembers,
		&team.Status, &team.CreatedAt, &team.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("team %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load team: %w", err)
	}
	if adminID.Valid {
		team.AdminID = &adminID.Int64
	}
	return team, nil
}

func (t *sqlTx) CountTeamAdmins(ctx context.Context, teamID int64) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM users WHERE team_id = $1 AND team_role = $2`,
		teamID, string(accounts.MembershipRoleAdmin))
}

func (t *sqlTx) CountTeamMembers(ctx context.Context, teamID int64) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM users WHERE team_id = $1`, teamID)
}

func (t *sqlTx) LoadEnterpriseGroup(ctx context.Context, id int64) (*accounts.EnterpriseGroup, error) {
	query := `
		SELECT id, name, domain, admin_id, status, created_at, updated_at
		FROM enterprise_groups WHERE id = $1
	`
	group := &accounts.EnterpriseGroup{}
	var domain sql.NullString
	var adminID sql.NullInt64
	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&group.ID, &group.Name, &domain, &adminID, &group.Status, &group.CreatedAt, &group.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("enterprise group %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load enterprise group: %w", err)
	}
	group.Domain = domain.String
	if adminID.Valid {
		group.AdminID = &adminID.Int64
	}
	return group, nil
}

func (t *sqlTx) CountEnterpriseAdmins(ctx context.Context, groupID int64) (int, error) {
	return t.count(ctx, `SELECT COUNT(*) FROM users WHERE enterprise_group_id = $1 AND enterprise_group_role = $2`,
		groupID, string(accounts.MembershipRoleAdmin))
}

func (t *sqlTx) ApplyProfileUpdate(ctx context.Context, id int64, username, fullName string) error {
	return t.update(ctx, "profile",
		`UPDATE users SET username = $1, full_name = $2, updated_at = $3 WHERE id = $4`,
		username, nullString(fullName), t.timestamp(), id)
}

func (t *sqlTx) ApplyStatusChange(ctx context.Context, id int64, status accounts.Status) error {
	return t.update(ctx, "status",
		`UPDATE users SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), t.timestamp(), id)
}

func (t *sqlTx) ApplySystemRoleChange(ctx context.Context, id int64, role accounts.SystemRole) error {
	return t.update(ctx, "system role",
		`UPDATE users SET system_role = $1, updated_at = $2 WHERE id = $3`,
		string(role), t.timestamp(), id)
}

func (t *sqlTx) ApplyTeamRoleChange(ctx context.Context, id int64, role accounts.MembershipRole) error {
	return t.update(ctx, "team role",
		`UPDATE users SET team_role = $1, updated_at = $2 WHERE id = $3 AND team_id IS NOT NULL`,
		string(role), t.timestamp(), id)
}

// TransferTeamAdmin demotes every other admin of the team and points the
// team's admin_id at the new admin
func (t *sqlTx) TransferTeamAdmin(ctx context.Context, at transition.AdminTransfer) error {
	now := t.timestamp()
	_, err := t.tx.ExecContext(ctx,
		`UPDATE users SET team_role = $1, updated_at = $2 WHERE team_id = $3 AND team_role = $4 AND id <> $5`,
		string(accounts.MembershipRoleMember), now, at.TeamID, string(accounts.MembershipRoleAdmin), at.NewAdminID)
	if err != nil {
		return fmt.Errorf("failed to demote previous team admins: %w", err)
	}
	return t.update(ctx, "team admin",
		`UPDATE teams SET admin_id = $1, updated_at = $2 WHERE id = $3`,
		at.NewAdminID, now, at.TeamID)
}

func (t *sqlTx) ApplyTeamAssociation(ctx context.Context, id int64, teamID *int64, role *accounts.MembershipRole) error {
	return t.update(ctx, "team association",
		`UPDATE users SET team_id = $1, team_role = $2, updated_at = $3 WHERE id = $4`,
		teamID, rolePtr(role), t.timestamp(), id)
}

func (t *sqlTx) ApplyEnterpriseAssociation(ctx context.Context, id int64, groupID *int64, role *accounts.MembershipRole) error {
	return t.update(ctx, "enterprise association",
		`UPDATE users SET enterprise_group_id = $1, enterprise_group_role = $2, updated_at = $3 WHERE id = $4`,
		groupID, rolePtr(role), t.timestamp(), id)
}

func (t *sqlTx) ApplyEnterpriseRoleChange(ctx context.Context, id int64, role accounts.MembershipRole) error {
	return t.update(ctx, "enterprise role",
		`UPDATE users SET enterprise_group_role = $1, updated_at = $2 WHERE id = $3 AND enterprise_group_id IS NOT NULL`,
		string(role), t.timestamp(), id)
}

func (t *sqlTx) ApplyEmailChange(ctx context.Context, id int64, email string) error {
	return t.update(ctx, "email",
		`UPDATE users SET email = $1, updated_at = $2 WHERE id = $3`,
		email, t.timestamp(), id)
}

// ResetSessions zeroes the sign-in counter. It does not revoke issued tokens.
func (t *sqlTx) ResetSessions(ctx context.Context, id int64) error {
	return t.update(ctx, "sessions",
		`UPDATE users SET sign_in_count = 0, updated_at = $1 WHERE id = $2`,
		t.timestamp(), id)
}

func (t *sqlTx) update(ctx context.Context, what, query string, args ...any) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update %s: %w", what, storage.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*accounts.User, error) {
	u := &accounts.User{}
	var (
		fullName            sql.NullString
		teamID, groupID     sql.NullInt64
		teamRole, groupRole sql.NullString
		lastSignIn          sql.NullTime
		confirmed           sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &fullName, &u.SystemRole, &u.UserType, &u.Status,
		&teamID, &teamRole, &groupID, &groupRole,
		&u.SignInCount, &lastSignIn, &confirmed, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.FullName = fullName.String
	if teamID.Valid {
		u.TeamID = &teamID.Int64
	}
	if teamRole.Valid {
		r := accounts.MembershipRole(teamRole.String)
		u.TeamRole = &r
	}
	if groupID.Valid {
		u.EnterpriseGroupID = &groupID.Int64
	}
	if groupRole.Valid {
		r := accounts.MembershipRole(groupRole.String)
		u.EnterpriseGroupRole = &r
	}
	if lastSignIn.Valid {
		u.LastSignInAt = &lastSignIn.Time
	}
	if confirmed.Valid {
		u.ConfirmedAt = &confirmed.Time
	}
	return u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func rolePtr(r *accounts.MembershipRole) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}
