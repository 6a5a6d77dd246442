package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
)

// ListOptions pages a listing
type ListOptions struct {
	Limit      int
	Offset     int
	UnreadOnly bool
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 || o.Limit > 200 {
		return 50
	}
	return o.Limit
}

// SQLStore persists in-app notifications and announcements
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store on db
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Create inserts a notification
func (s *SQLStore) Create(ctx context.Context, n *accounts.Notification) error {
	if n.Payload == nil {
		n.Payload = map[string]any{}
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (recipient_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, query, n.RecipientID, n.EventType, string(payload), n.CreatedAt).Scan(&n.ID); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// Get loads a notification by ID
func (s *SQLStore) Get(ctx context.Context, id int64) (*accounts.Notification, error) {
	query := `SELECT id, recipient_id, event_type, payload, created_at, read_at FROM notifications WHERE id = $1`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("notification %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// List returns notifications matching scope, newest first
func (s *SQLStore) List(ctx context.Context, scope policy.Filter, opts ListOptions) ([]*accounts.Notification, error) {
	if scope.IsNone() {
		return []*accounts.Notification{}, nil
	}
	where, args := scope.SQL(0)
	if opts.UnreadOnly {
		where += " AND read_at IS NULL"
	}
	query := fmt.Sprintf(`
		SELECT id, recipient_id, event_type, payload, created_at, read_at
		FROM notifications
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, opts.limit(), opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	list := []*accounts.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return list, nil
}

// MarkRead sets read_at once. Marking an already read notification is a no-op.
func (s *SQLStore) MarkRead(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = $1 WHERE id = $2 AND read_at IS NULL`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// CreateAnnouncement inserts an unpublished announcement
func (s *SQLStore) CreateAnnouncement(ctx context.Context, a *accounts.Announcement) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO announcements (title, body, published, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, query, a.Title, a.Body, a.Published, a.CreatedBy, a.CreatedAt).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to create announcement: %w", err)
	}
	return nil
}

// GetAnnouncement loads an announcement by ID
func (s *SQLStore) GetAnnouncement(ctx context.Context, id int64) (*accounts.Announcement, error) {
	query := `SELECT id, title, body, published, published_at, created_by, created_at FROM announcements WHERE id = $1`
	a, err := scanAnnouncement(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("announcement %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get announcement: %w", err)
	}
	return a, nil
}

// PublishAnnouncement marks an announcement published at the given time
func (s *SQLStore) PublishAnnouncement(ctx context.Context, id int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE announcements SET published = $1, published_at = $2 WHERE id = $3`,
		true, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to publish announcement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("announcement %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ListAnnouncements returns announcements matching scope, newest first
func (s *SQLStore) ListAnnouncements(ctx context.Context, scope policy.Filter, opts ListOptions) ([]*accounts.Announcement, error) {
	if scope.IsNone() {
		return []*accounts.Announcement{}, nil
	}
	where, args := scope.SQL(0)
	query := fmt.Sprintf(`
		SELECT id, title, body, published, published_at, created_by, created_at
		FROM announcements
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, opts.limit(), opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	defer rows.Close()

	list := []*accounts.Announcement{}
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate announcements: %w", err)
	}
	return list, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(row scanner) (*accounts.Notification, error) {
	n := &accounts.Notification{}
	var payload string
	var readAt sql.NullTime
	if err := row.Scan(&n.ID, &n.RecipientID, &n.EventType, &payload, &n.CreatedAt, &readAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	return n, nil
}

func scanAnnouncement(row scanner) (*accounts.Announcement, error) {
	a := &accounts.Announcement{}
	var publishedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.Title, &a.Body, &a.Published, &publishedAt, &a.CreatedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		a.PublishedAt = &publishedAt.Time
	}
	return a, nil
}
