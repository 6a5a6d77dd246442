package invitations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
)

const invitationColumns = `id, owner_type, owner_id, email, role, token, invited_by,
	created_at, expires_at, accepted_at, accepted_by`

// ListOptions pages an invitation listing
type ListOptions struct {
	Limit       int
	Offset      int
	PendingOnly bool
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 200 {
		return 50
	}
	return o.Limit
}

// SQLStore persists invitations on PostgreSQL or SQLite
type SQLStore struct {
	db      *sql.DB
	dialect storage.Dialect
}

// NewSQLStore creates a store on db
func NewSQLStore(db *sql.DB, dialect storage.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Get loads an invitation by ID
func (s *SQLStore) Get(ctx context.Context, id int64) (*accounts.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invitation %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// List returns invitations matching scope, newest first
func (s *SQLStore) List(ctx context.Context, scope policy.Filter, opts ListOptions, now time.Time) ([]*accounts.Invitation, error) {
	if scope.IsNone() {
		return []*accounts.Invitation{}, nil
	}
	where, args := scope.SQL(0)
	if opts.PendingOnly {
		args = append(args, now.UTC())
		where = fmt.Sprintf("(%s) AND accepted_at IS NULL AND expires_at > $%d", where, len(args))
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM invitations
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, invitationColumns, where, len(args)+1, len(args)+2)
	args = append(args, opts.limit(), opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	list := []*accounts.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		list = append(list, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invitations: %w", err)
	}
	return list, nil
}

// Delete removes an unaccepted invitation
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = $1 AND accepted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invitation %d: %w", id, ErrAlreadyAccepted)
	}
	return nil
}

// DeleteExpired removes unaccepted invitations that expired before now and
// returns how many were removed
func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM invitations WHERE expires_at <= $1 AND accepted_at IS NULL`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// WithTx runs fn in a transaction
func (s *SQLStore) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return storage.WithTx(ctx, s.db, fn)
}

func (s *SQLStore) insert(ctx context.Context, tx *sql.Tx, inv *accounts.Invitation) error {
	query := `
		INSERT INTO invitations (owner_type, owner_id, email, role, token, invited_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := tx.QueryRowContext(ctx, query,
		string(inv.OwnerKind), inv.OwnerID, inv.Email, string(inv.Role), inv.Token,
		inv.InvitedBy, inv.CreatedAt, inv.ExpiresAt,
	).Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// refresh reissues a pending invitation with a new token and expiry
func (s *SQLStore) refresh(ctx context.Context, tx *sql.Tx, inv *accounts.Invitation) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE invitations SET role = $1, token = $2, invited_by = $3, created_at = $4, expires_at = $5 WHERE id = $6`,
		string(inv.Role), inv.Token, inv.InvitedBy, inv.CreatedAt, inv.ExpiresAt, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to refresh invitation: %w", err)
	}
	return nil
}

// findPending returns the unaccepted invitation for email into the owner, if any
func (s *SQLStore) findPending(ctx context.Context, tx *sql.Tx, kind accounts.OwnerKind, ownerID int64, email string) (*accounts.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE owner_type = $1 AND owner_id = $2 AND email = $3 AND accepted_at IS NULL
		ORDER BY id DESC
		LIMIT 1
	`
	inv, err := scanInvitation(tx.QueryRowContext(ctx, query, string(kind), ownerID, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending invitation: %w", err)
	}
	return inv, nil
}

// loadByToken reads an invitation by token and, on PostgreSQL, locks it
func (s *SQLStore) loadByToken(ctx context.Context, tx *sql.Tx, token string) (*accounts.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = $1`
	if s.dialect == storage.Postgres {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvitation(tx.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invitation: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

func (s *SQLStore) markAccepted(ctx context.Context, tx *sql.Tx, id, userID int64, at time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE invitations SET accepted_at = $1, accepted_by = $2 WHERE id = $3 AND accepted_at IS NULL`,
		at, userID, id)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyAccepted
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row scanner) (*accounts.Invitation, error) {
	inv := &accounts.Invitation{}
	var (
		acceptedAt sql.NullTime
		acceptedBy sql.NullInt64
	)
	err := row.Scan(
		&inv.ID, &inv.OwnerKind, &inv.OwnerID, &inv.Email, &inv.Role, &inv.Token, &inv.InvitedBy,
		&inv.CreatedAt, &inv.ExpiresAt, &acceptedAt, &acceptedBy,
	)
	if err != nil {
		return nil, err
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.Int64
	}
	return inv, nil
}
