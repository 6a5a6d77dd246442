package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists audit entries. Entries are only ever inserted and listed.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store on db
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Name implements Named
func (s *SQLStore) Name() string { return "sql" }

// Record implements Sink
func (s *SQLStore) Record(ctx context.Context, entry *Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log_entries (
			actor_id, target_id, action, details,
			ip_address, user_agent, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		entry.ActorID, entry.TargetID, entry.Action, string(details),
		nullString(entry.IPAddress), nullString(entry.UserAgent), nullString(entry.RequestID), entry.Timestamp,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Query filters a listing. Zero fields are ignored.
type Query struct {
	ActorID  *int64
	TargetID *int64
	Actions  []string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// List returns entries matching q, newest first
func (s *SQLStore) List(ctx context.Context, q Query) ([]*Entry, error) {
	query := `
		SELECT id, actor_id, target_id, action, details,
			ip_address, user_agent, request_id, created_at
		FROM audit_log_entries
		WHERE 1=1
	`

	var args []any
	argCount := 1

	if q.ActorID != nil {
		query += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, *q.ActorID)
		argCount++
	}
	if q.TargetID != nil {
		query += fmt.Sprintf(" AND target_id = $%d", argCount)
		args = append(args, *q.TargetID)
		argCount++
	}
	if len(q.Actions) > 0 {
		placeholders := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			placeholders[i] = fmt.Sprintf("$%d", argCount)
			args = append(args, a)
			argCount++
		}
		query += " AND action IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if q.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, q.Since.UTC())
		argCount++
	}
	if q.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, q.Until.UTC())
		argCount++
	}

	query += " ORDER BY created_at DESC, id DESC"

	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                    Entry
			actorID, targetID    sql.NullInt64
			details              string
			ip, agent, requestID sql.NullString
		)
		if err := rows.Scan(&e.ID, &actorID, &targetID, &e.Action, &details,
			&ip, &agent, &requestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if actorID.Valid {
			e.ActorID = &actorID.Int64
		}
		if targetID.Valid {
			e.TargetID = &targetID.Int64
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
		}
		e.IPAddress, e.UserAgent, e.RequestID = ip.String, agent.String, requestID.String
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
