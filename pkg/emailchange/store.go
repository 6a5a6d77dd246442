package emailchange

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
)

const requestColumns = `id, user_id, old_email, new_email, status, requested_at, reviewed_by, reviewed_at`

// ListOptions pages a request listing
type ListOptions struct {
	Limit  int
	Offset int
	Status accounts.EmailChangeStatus
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 200 {
		return 50
	}
	return o.Limit
}

// SQLStore persists email change requests
type SQLStore struct {
	db      *sql.DB
	dialect storage.Dialect
}

// NewSQLStore creates a store on db
func NewSQLStore(db *sql.DB, dialect storage.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Get loads a request by ID
func (s *SQLStore) Get(ctx context.Context, id int64) (*accounts.EmailChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM email_change_requests WHERE id = $1`
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("email change request %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email change request: %w", err)
	}
	return r, nil
}

// List returns requests matching scope, newest first
func (s *SQLStore) List(ctx context.Context, scope policy.Filter, opts ListOptions) ([]*accounts.EmailChangeRequest, error) {
	if opts.Status != "" {
		scope = policy.And(scope, policy.Eq("status", string(opts.Status)))
	}
	if scope.IsNone() {
		return []*accounts.EmailChangeRequest{}, nil
	}
	where, args := scope.SQL(0)
	query := fmt.Sprintf(`
		SELECT %s
		FROM email_change_requests
		WHERE %s
		ORDER BY requested_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, requestColumns, where, len(args)+1, len(args)+2)
	args = append(args, opts.limit(), opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list email change requests: %w", err)
	}
	defer rows.Close()

	list := []*accounts.EmailChangeRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email change request: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate email change requests: %w", err)
	}
	return list, nil
}

// WithTx runs fn in a transaction
func (s *SQLStore) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return storage.WithTx(ctx, s.db, fn)
}

func (s *SQLStore) insert(ctx context.Context, tx *sql.Tx, r *accounts.EmailChangeRequest) error {
	query := `
		INSERT INTO email_change_requests (user_id, old_email, new_email, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := tx.QueryRowContext(ctx, query, r.UserID, r.OldEmail, r.NewEmail, string(r.Status), r.RequestedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to create email change request: %w", err)
	}
	return nil
}

// load reads a request and, on PostgreSQL, locks it
func (s *SQLStore) load(ctx context.Context, tx *sql.Tx, id int64) (*accounts.EmailChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM email_change_requests WHERE id = $1`
	if s.dialect == storage.Postgres {
		query += ` FOR UPDATE`
	}
	r, err := scanRequest(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("email change request %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load email change request: %w", err)
	}
	return r, nil
}

// pendingFor returns the pending request owned by userID, if any
func (s *SQLStore) pendingFor(ctx context.Context, tx *sql.Tx, userID int64) (*accounts.EmailChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM email_change_requests WHERE user_id = $1 AND status = $2`
	r, err := scanRequest(tx.QueryRowContext(ctx, query, userID, string(accounts.EmailChangePending)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending email change request: %w", err)
	}
	return r, nil
}

// requestedByOther reports whether a user other than userID has a pending
// request for email
func (s *SQLStore) requestedByOther(ctx context.Context, tx *sql.Tx, email string, userID int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_change_requests
		WHERE LOWER(new_email) = $1 AND status = $2 AND user_id <> $3`,
		email, string(accounts.EmailChangePending), userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check pending email change requests: %w", err)
	}
	return n > 0, nil
}

// close moves a pending request to status. It fails with ErrNotPending if
// the request was already closed.
func (s *SQLStore) close(ctx context.Context, tx *sql.Tx, id int64, status accounts.EmailChangeStatus, reviewer *int64, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE email_change_requests SET status = $1, reviewed_by = $2, reviewed_at = $3
		WHERE id = $4 AND status = $5`,
		string(status), reviewer, at, id, string(accounts.EmailChangePending))
	if err != nil {
		return fmt.Errorf("failed to update email change request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*accounts.EmailChangeRequest, error) {
	r := &accounts.EmailChangeRequest{}
	var (
		reviewedBy sql.NullInt64
		reviewedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.UserID, &r.OldEmail, &r.NewEmail, &r.Status, &r.RequestedAt, &reviewedBy, &reviewedAt)
	if err != nil {
		return nil, err
	}
	if reviewedBy.Valid {
		r.ReviewedBy = &reviewedBy.Int64
	}
	if reviewedAt.Valid {
		r.ReviewedAt = &reviewedAt.Time
	}
	return r, nil
}
